package authflow

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// FiberMiddleware is the fiber-native form of Middleware for applications
// that mount fiber directly instead of going through the router
// abstraction.
func (g *RouteGuard) FiberMiddleware(req GuardRequirement) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap := AwaitSettled(c.UserContext(), g.store, g.waitTimeout)

		decision := EvaluateGuard(snap, req, c.OriginalURL())
		switch decision.Action {
		case GuardRender:
			return c.Next()
		case GuardRedirect:
			g.logger.Debug("guard redirect %s -> %s", c.OriginalURL(), decision.Location)
			statusCode := http.StatusSeeOther
			if c.Method() == fiber.MethodGet {
				statusCode = http.StatusFound
			}
			return c.Redirect(decision.Location, statusCode)
		default:
			return c.Status(fiber.StatusServiceUnavailable).SendString("auth state unavailable")
		}
	}
}

// FiberProtected gates a fiber route for any authenticated session.
func (g *RouteGuard) FiberProtected() fiber.Handler {
	return g.FiberMiddleware(GuardRequirement{})
}

// FiberRequireRole gates a fiber route to the given roles.
func (g *RouteGuard) FiberRequireRole(roles ...Role) fiber.Handler {
	return g.FiberMiddleware(GuardRequirement{Roles: roles, RequireProfile: true})
}
