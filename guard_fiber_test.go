package authflow_test

import (
	"net/http/httptest"
	"testing"

	authflow "github.com/citypages/go-authflow"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardedApp(store *authflow.Store) *fiber.App {
	guard := authflow.NewRouteGuard(store).WithLogger(authflow.NopLogger())

	app := fiber.New()
	app.Get("/profile", guard.FiberProtected(), func(c *fiber.Ctx) error {
		return c.SendString("profile")
	})
	app.Get("/admin", guard.FiberRequireRole(authflow.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("admin")
	})
	return app
}

func TestFiberGuardRedirectsAnonymous(t *testing.T) {
	store := authflow.NewStore()
	store.Update(func(st *authflow.AuthState) {
		*st = authflow.AuthState{AuthReady: true, ProfileReady: true}
	})

	app := newGuardedApp(store)

	res, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/profile", nil))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, fiber.StatusFound, res.StatusCode)
	assert.Equal(t, "/auth/login?redirect=%2Fprofile", res.Header.Get("Location"))
}

func TestFiberGuardRendersAuthenticated(t *testing.T) {
	store := authflow.NewStore()
	store.Update(func(st *authflow.AuthState) {
		*st = settledState(authflow.RoleUser)
	})

	app := newGuardedApp(store)

	res, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/profile", nil))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, fiber.StatusOK, res.StatusCode)
}

func TestFiberGuardRoleMismatchRedirects(t *testing.T) {
	store := authflow.NewStore()
	store.Update(func(st *authflow.AuthState) {
		*st = settledState(authflow.RoleBusiness)
	})

	app := newGuardedApp(store)

	res, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/admin", nil))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, fiber.StatusFound, res.StatusCode)
	assert.Equal(t, authflow.RouteBusiness, res.Header.Get("Location"))
}

func TestFiberGuardRoleMatchRenders(t *testing.T) {
	store := authflow.NewStore()
	store.Update(func(st *authflow.AuthState) {
		*st = settledState(authflow.RoleAdmin)
	})

	app := newGuardedApp(store)

	res, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/admin", nil))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, fiber.StatusOK, res.StatusCode)
}
