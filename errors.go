package authflow

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// ErrNoSession is the error when the backend holds no current session
var ErrNoSession = errors.New("no active session")

// ErrNotAuthenticated is returned by operations that need an in-memory user
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrNoEmptyString guards required string inputs
var ErrNoEmptyString = errors.New("value should not be an empty string")

// ErrProfileNotFound means the profile row does not exist yet. This is the
// onboarding-incomplete state, not a failure: the session stays valid.
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode("PROFILE_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials is returned for a failed password grant.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotConfirmed blocks sign-in for accounts pending verification.
var ErrEmailNotConfirmed = goerrors.New("email not confirmed", goerrors.CategoryAuth).
	WithTextCode("EMAIL_NOT_CONFIRMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailTaken is the backend's authoritative sign-up uniqueness error.
var ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode("EMAIL_TAKEN").
	WithCode(goerrors.CodeConflict)

// ErrCorruptCache marks a locally cached session artifact that cannot be
// decoded. Bootstrap clears the cache and proceeds as logged out.
var ErrCorruptCache = goerrors.New("corrupt session cache", goerrors.CategoryInternal).
	WithTextCode("CORRUPT_SESSION_CACHE").
	WithCode(goerrors.CodeInternal)

// ErrTooManyRequests is surfaced when a local rate limit rejects an operation.
var ErrTooManyRequests = goerrors.New("too many requests", goerrors.CategoryRateLimit).
	WithTextCode("TOO_MANY_REQUESTS")

// IsProfileNotFound reports whether err represents the "zero rows" outcome
// of a profile fetch, regardless of which store implementation produced it.
func IsProfileNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrProfileNotFound) || goerrors.IsNotFound(err)
}

// IsCorruptCache reports whether err came from decoding a damaged local
// session artifact.
func IsCorruptCache(err error) bool {
	return err != nil && errors.Is(err, ErrCorruptCache)
}
