// Package authflow implements the authentication/session lifecycle core of
// the CityPages directory portal: session bootstrap against a pluggable
// identity backend, asynchronous profile loading, a long-lived auth event
// subscription, credential operations (login, register, logout, resend
// verification, update profile), and role based route guarding.
//
// The package owns a single piece of mutable state, the Store, which holds
// the current AuthState. All mutations go through the Manager so that they
// are atomic transitions; consumers subscribe to the Store and re-render on
// each published snapshot instead of blocking on backend calls.
package authflow
