package authflow_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	authflow "github.com/citypages/go-authflow"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRouterContext records the subset of the router.Context surface the
// guard middleware touches. The embedded interface covers the rest.
type routerContext = router.Context

type stubRouterContext struct {
	routerContext

	method         string
	originalURL    string
	statusCode     int
	body           string
	redirectTo     string
	redirectStatus int
}

func (c *stubRouterContext) Context() context.Context { return context.Background() }
func (c *stubRouterContext) Method() string           { return c.method }
func (c *stubRouterContext) OriginalURL() string      { return c.originalURL }

func (c *stubRouterContext) Status(code int) router.Context {
	c.statusCode = code
	return c
}

func (c *stubRouterContext) SendString(s string) error {
	c.body = s
	return nil
}

func (c *stubRouterContext) Redirect(path string, status ...int) error {
	c.redirectTo = path
	if len(status) > 0 {
		c.redirectStatus = status[0]
	}
	return nil
}

func runGuardMiddleware(t *testing.T, mw router.MiddlewareFunc, c *stubRouterContext) bool {
	t.Helper()
	rendered := false
	next := func(router.Context) error {
		rendered = true
		return nil
	}
	require.NoError(t, mw(next)(c))
	return rendered
}

func TestRouteGuardMiddleware(t *testing.T) {
	t.Run("anonymous GET redirects to login with return path", func(t *testing.T) {
		store := authflow.NewStore()
		store.Update(func(st *authflow.AuthState) {
			*st = authflow.AuthState{AuthReady: true, ProfileReady: true}
		})
		guard := authflow.NewRouteGuard(store).WithLogger(authflow.NopLogger())

		c := &stubRouterContext{method: string(router.GET), originalURL: "/business"}
		rendered := runGuardMiddleware(t, guard.Protected(), c)

		assert.False(t, rendered)
		assert.Equal(t, "/auth/login?redirect=%2Fbusiness", c.redirectTo)
		assert.Equal(t, http.StatusFound, c.redirectStatus)
	})

	t.Run("anonymous POST redirects with see-other", func(t *testing.T) {
		store := authflow.NewStore()
		store.Update(func(st *authflow.AuthState) {
			*st = authflow.AuthState{AuthReady: true, ProfileReady: true}
		})
		guard := authflow.NewRouteGuard(store).WithLogger(authflow.NopLogger())

		c := &stubRouterContext{method: "POST", originalURL: "/business"}
		rendered := runGuardMiddleware(t, guard.Protected(), c)

		assert.False(t, rendered)
		assert.Equal(t, http.StatusSeeOther, c.redirectStatus)
	})

	t.Run("authenticated user renders", func(t *testing.T) {
		store := authflow.NewStore()
		store.Update(func(st *authflow.AuthState) {
			*st = settledState(authflow.RoleUser)
		})
		guard := authflow.NewRouteGuard(store).WithLogger(authflow.NopLogger())

		c := &stubRouterContext{method: string(router.GET), originalURL: "/profile"}
		rendered := runGuardMiddleware(t, guard.Protected(), c)

		assert.True(t, rendered)
		assert.Empty(t, c.redirectTo)
	})

	t.Run("role mismatch redirects to own landing page", func(t *testing.T) {
		store := authflow.NewStore()
		store.Update(func(st *authflow.AuthState) {
			*st = settledState(authflow.RoleBusiness)
		})
		guard := authflow.NewRouteGuard(store).WithLogger(authflow.NopLogger())

		c := &stubRouterContext{method: string(router.GET), originalURL: "/admin"}
		rendered := runGuardMiddleware(t, guard.RequireRole(authflow.RoleAdmin), c)

		assert.False(t, rendered)
		assert.Equal(t, authflow.RouteBusiness, c.redirectTo)
	})

	t.Run("unsettled state answers service unavailable", func(t *testing.T) {
		store := authflow.NewStore() // stays in the initial loading state
		guard := authflow.NewRouteGuard(store).
			WithLogger(authflow.NopLogger()).
			WithWaitTimeout(30 * time.Millisecond)

		c := &stubRouterContext{method: string(router.GET), originalURL: "/profile"}
		rendered := runGuardMiddleware(t, guard.Protected(), c)

		assert.False(t, rendered)
		assert.Equal(t, http.StatusServiceUnavailable, c.statusCode)
		assert.Equal(t, "auth state unavailable", c.body)
	})
}
