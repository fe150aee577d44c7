package authflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Backend is the identity collaborator the lifecycle core talks to. A nil
// session with a nil error from CurrentSession means "no session", which is
// a valid logged-out state rather than a failure.
type Backend interface {
	CurrentSession(ctx context.Context) (*Session, error)
	Subscribe(ctx context.Context) (Subscription, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, data RegisterData) (*PendingUser, error)
	SignOut(ctx context.Context) error
	ResendVerification(ctx context.Context, email string) error
}

// ProfileStore reads and writes application profiles keyed by the session's
// subject id. FetchBySubjectID returns ErrProfileNotFound (or any error for
// which IsProfileNotFound holds) when no row exists for the subject.
type ProfileStore interface {
	FetchBySubjectID(ctx context.Context, subjectID string) (*Profile, error)
	Update(ctx context.Context, id uuid.UUID, update ProfileUpdate) error
}

// SessionCache persists the backend session artifact locally so a restart
// can bootstrap without re-authenticating. Load returns (nil, nil) when
// nothing is cached and ErrCorruptCache when the artifact cannot be decoded.
type SessionCache interface {
	Load() (*Session, error)
	Store(session *Session) error
	Clear() error
}

// PendingUser is what SignUp returns before the email is verified. No
// session exists yet and no profile row is expected to exist.
type PendingUser struct {
	ID                 string     `json:"id,omitempty"`
	Email              string     `json:"email,omitempty"`
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at,omitempty"`
}

// Config holds lifecycle tuning options
type Config interface {
	GetProfileTimeout() time.Duration
	GetLoginFailsafe() time.Duration
	GetResendInterval() time.Duration
	GetResendBurst() int
}

// SimpleConfig is a plain struct Config implementation. Zero values fall
// back to the package defaults when applied to a Manager.
type SimpleConfig struct {
	ProfileTimeout time.Duration
	LoginFailsafe  time.Duration
	ResendInterval time.Duration
	ResendBurst    int
}

func (c SimpleConfig) GetProfileTimeout() time.Duration { return c.ProfileTimeout }
func (c SimpleConfig) GetLoginFailsafe() time.Duration  { return c.LoginFailsafe }
func (c SimpleConfig) GetResendInterval() time.Duration { return c.ResendInterval }
func (c SimpleConfig) GetResendBurst() int              { return c.ResendBurst }

// DefaultLogger returns the stdout logger used when nothing is injected.
func DefaultLogger() Logger {
	return defLogger{}
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHFLOW "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
