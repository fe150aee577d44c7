package authflow

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventBootstrapSession   ActivityEventType = "auth.bootstrap.session"
	ActivityEventBootstrapAnonymous ActivityEventType = "auth.bootstrap.anonymous"
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventLogout             ActivityEventType = "auth.logout"
	ActivityEventRegistration       ActivityEventType = "auth.register"
	ActivityEventVerificationResend ActivityEventType = "auth.verification.resend"
	ActivityEventStreamSignedIn     ActivityEventType = "auth.stream.signed_in"
	ActivityEventStreamSignedOut    ActivityEventType = "auth.stream.signed_out"
	ActivityEventProfileLoaded      ActivityEventType = "profile.loaded"
	ActivityEventProfileMissing     ActivityEventType = "profile.missing"
	ActivityEventProfileError       ActivityEventType = "profile.error"
	ActivityEventProfileUpdated     ActivityEventType = "profile.updated"
)

// ActivityEvent captures audit-friendly information about a lifecycle action.
type ActivityEvent struct {
	EventType  ActivityEventType
	SubjectID  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
