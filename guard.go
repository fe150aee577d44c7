package authflow

import (
	"context"
	"net/url"
	"time"
)

// GuardRequirement describes what a protected route needs. An empty Roles
// slice means any authenticated user; RequireProfile additionally refuses
// onboarding-incomplete sessions.
type GuardRequirement struct {
	Roles          []Role
	RequireProfile bool
}

// GuardAction is the verdict of a guard evaluation.
type GuardAction int

const (
	// GuardWait means bootstrap or profile loading has not settled yet.
	GuardWait GuardAction = iota
	// GuardRender lets the route render.
	GuardRender
	// GuardRedirect sends the client to Decision.Location.
	GuardRedirect
)

// GuardDecision carries the action and, for redirects, the target path.
type GuardDecision struct {
	Action   GuardAction
	Location string
}

// EvaluateGuard gates a protected route against a state snapshot, in order:
// wait for AuthReady; unauthenticated redirects to login with a return
// path; wait for ProfileReady; a missing profile or role mismatch redirects
// per the role router; otherwise render. Pure over its inputs.
func EvaluateGuard(st AuthState, req GuardRequirement, currentPath string) GuardDecision {
	if !st.AuthReady {
		return GuardDecision{Action: GuardWait}
	}

	if !st.Authenticated {
		return GuardDecision{Action: GuardRedirect, Location: LoginRedirect(currentPath)}
	}

	if !st.ProfileReady {
		return GuardDecision{Action: GuardWait}
	}

	if st.User == nil {
		if req.RequireProfile || len(req.Roles) > 0 {
			return redirectUnless(Role("").RedirectPath(), currentPath)
		}
		return GuardDecision{Action: GuardRender}
	}

	if len(req.Roles) > 0 && !roleAllowed(st.User.Role, req.Roles) {
		return redirectUnless(st.User.Role.RedirectPath(), currentPath)
	}

	return GuardDecision{Action: GuardRender}
}

// LoginRedirect builds the login path carrying the page to return to.
func LoginRedirect(returnTo string) string {
	if returnTo == "" || returnTo == RouteLogin {
		return RouteLogin
	}
	return RouteLogin + "?redirect=" + url.QueryEscape(returnTo)
}

// redirectUnless avoids a self-redirect loop when the fallback destination
// is the page being guarded.
func redirectUnless(target, currentPath string) GuardDecision {
	if target == currentPath {
		return GuardDecision{Action: GuardRender}
	}
	return GuardDecision{Action: GuardRedirect, Location: target}
}

func roleAllowed(role Role, allowed []Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// AwaitSettled blocks until the store reaches a settled snapshot (AuthReady
// plus, when authenticated, ProfileReady) or the context expires, returning
// the latest snapshot either way. Guards use it so a request arriving
// mid-bootstrap renders against a settled state instead of flashing a
// redirect.
func AwaitSettled(ctx context.Context, store *Store, timeout time.Duration) AuthState {
	snap := store.Snapshot()
	if snap.Settled() {
		return snap
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return store.Snapshot()
		case snap, ok := <-updates:
			if !ok {
				return store.Snapshot()
			}
			if snap.Settled() {
				return snap
			}
		}
	}
}
