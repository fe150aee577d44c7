package authflow

import (
	"net/http"
	"time"

	"github.com/goliatone/go-router"
)

// RouteGuard adapts the pure guard evaluation to go-router middleware so a
// fiber-served portal can protect its pages against the shared Store.
type RouteGuard struct {
	store       *Store
	logger      Logger
	waitTimeout time.Duration
}

// DefaultGuardWait bounds how long a request waits for bootstrap or profile
// loading to settle before it is evaluated against whatever state exists.
const DefaultGuardWait = 5 * time.Second

// NewRouteGuard builds a guard over the application's store.
func NewRouteGuard(store *Store) *RouteGuard {
	return &RouteGuard{
		store:       store,
		logger:      defLogger{},
		waitTimeout: DefaultGuardWait,
	}
}

func (g *RouteGuard) WithLogger(logger Logger) *RouteGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

func (g *RouteGuard) WithWaitTimeout(d time.Duration) *RouteGuard {
	if d > 0 {
		g.waitTimeout = d
	}
	return g
}

// Protected gates a route for any authenticated session.
func (g *RouteGuard) Protected() router.MiddlewareFunc {
	return g.Middleware(GuardRequirement{})
}

// RequireRole gates a route to the given roles, redirecting mismatches to
// their own landing page per the role router.
func (g *RouteGuard) RequireRole(roles ...Role) router.MiddlewareFunc {
	return g.Middleware(GuardRequirement{Roles: roles, RequireProfile: true})
}

// Middleware evaluates the requirement against a settled state snapshot.
func (g *RouteGuard) Middleware(req GuardRequirement) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			snap := AwaitSettled(c.Context(), g.store, g.waitTimeout)

			decision := EvaluateGuard(snap, req, c.OriginalURL())
			switch decision.Action {
			case GuardRender:
				return next(c)
			case GuardRedirect:
				g.logger.Debug("guard redirect %s -> %s", c.OriginalURL(), decision.Location)
				statusCode := http.StatusSeeOther
				if c.Method() == string(router.GET) {
					statusCode = http.StatusFound
				}
				return c.Redirect(decision.Location, statusCode)
			default:
				// still not settled after the wait bound; do not render a
				// protected page against an indeterminate state
				return c.Status(http.StatusServiceUnavailable).SendString("auth state unavailable")
			}
		}
	}
}
