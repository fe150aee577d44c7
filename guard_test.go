package authflow_test

import (
	"context"
	"testing"
	"time"

	authflow "github.com/citypages/go-authflow"
	"github.com/stretchr/testify/assert"
)

func settledState(role authflow.Role) authflow.AuthState {
	profile := testProfile("subject-1")
	profile.Role = role
	return authflow.AuthState{
		Authenticated: true,
		AuthReady:     true,
		ProfileReady:  true,
		SubjectID:     "subject-1",
		User:          profile,
	}
}

func TestEvaluateGuard(t *testing.T) {
	anyUser := authflow.GuardRequirement{}
	adminOnly := authflow.GuardRequirement{Roles: []authflow.Role{authflow.RoleAdmin}}
	needsProfile := authflow.GuardRequirement{RequireProfile: true}

	t.Run("waits for auth readiness", func(t *testing.T) {
		decision := authflow.EvaluateGuard(authflow.AuthState{Loading: true}, anyUser, "/profile")
		assert.Equal(t, authflow.GuardWait, decision.Action)
	})

	t.Run("unauthenticated redirects to login with return path", func(t *testing.T) {
		st := authflow.AuthState{AuthReady: true, ProfileReady: true}
		decision := authflow.EvaluateGuard(st, anyUser, "/business")
		assert.Equal(t, authflow.GuardRedirect, decision.Action)
		assert.Equal(t, "/auth/login?redirect=%2Fbusiness", decision.Location)
	})

	t.Run("waits for profile readiness when authenticated", func(t *testing.T) {
		st := authflow.AuthState{Authenticated: true, AuthReady: true}
		decision := authflow.EvaluateGuard(st, anyUser, "/profile")
		assert.Equal(t, authflow.GuardWait, decision.Action)
	})

	t.Run("renders for any authenticated user", func(t *testing.T) {
		decision := authflow.EvaluateGuard(settledState(authflow.RoleUser), anyUser, "/profile")
		assert.Equal(t, authflow.GuardRender, decision.Action)
	})

	t.Run("role mismatch redirects to own landing page", func(t *testing.T) {
		decision := authflow.EvaluateGuard(settledState(authflow.RoleBusiness), adminOnly, "/admin")
		assert.Equal(t, authflow.GuardRedirect, decision.Action)
		assert.Equal(t, authflow.RouteBusiness, decision.Location)
	})

	t.Run("role match renders", func(t *testing.T) {
		decision := authflow.EvaluateGuard(settledState(authflow.RoleAdmin), adminOnly, "/admin")
		assert.Equal(t, authflow.GuardRender, decision.Action)
	})

	t.Run("missing profile redirects when required", func(t *testing.T) {
		st := settledState(authflow.RoleUser)
		st.User = nil
		decision := authflow.EvaluateGuard(st, needsProfile, "/business")
		assert.Equal(t, authflow.GuardRedirect, decision.Action)
		assert.Equal(t, authflow.RouteProfile, decision.Location)
	})

	t.Run("missing profile renders without requirement", func(t *testing.T) {
		st := settledState(authflow.RoleUser)
		st.User = nil
		decision := authflow.EvaluateGuard(st, anyUser, "/profile")
		assert.Equal(t, authflow.GuardRender, decision.Action)
	})

	t.Run("no self redirect loop", func(t *testing.T) {
		st := settledState(authflow.RoleUser)
		st.User = nil
		decision := authflow.EvaluateGuard(st, needsProfile, authflow.RouteProfile)
		assert.Equal(t, authflow.GuardRender, decision.Action)
	})
}

func TestLoginRedirect(t *testing.T) {
	assert.Equal(t, "/auth/login", authflow.LoginRedirect(""))
	assert.Equal(t, "/auth/login", authflow.LoginRedirect(authflow.RouteLogin))
	assert.Equal(t, "/auth/login?redirect=%2Fadmin%2Flistings", authflow.LoginRedirect("/admin/listings"))
}

func TestAwaitSettled(t *testing.T) {
	t.Run("returns immediately when settled", func(t *testing.T) {
		store := authflow.NewStore()
		store.Update(func(st *authflow.AuthState) {
			*st = authflow.AuthState{AuthReady: true, ProfileReady: true}
		})

		snap := authflow.AwaitSettled(context.Background(), store, time.Second)
		assert.True(t, snap.Settled())
	})

	t.Run("waits for the settling transition", func(t *testing.T) {
		store := authflow.NewStore()

		go func() {
			time.Sleep(20 * time.Millisecond)
			store.Update(func(st *authflow.AuthState) {
				*st = authflow.AuthState{AuthReady: true, ProfileReady: true}
			})
		}()

		snap := authflow.AwaitSettled(context.Background(), store, time.Second)
		assert.True(t, snap.Settled())
	})

	t.Run("gives up at the timeout", func(t *testing.T) {
		store := authflow.NewStore()

		start := time.Now()
		snap := authflow.AwaitSettled(context.Background(), store, 30*time.Millisecond)
		assert.False(t, snap.Settled())
		assert.Less(t, time.Since(start), time.Second)
	})
}
