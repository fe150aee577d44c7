package local

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the identity record the embedded backend authenticates
// against. It is distinct from the application profile: an account exists
// from sign-up, a profile only after verification provisions it.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID                 uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email              string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash       string         `bun:"password_hash,notnull" json:"-"`
	EmailConfirmedAt   *time.Time     `bun:"email_confirmed_at,nullzero" json:"email_confirmed_at,omitempty"`
	ConfirmationSentAt *time.Time     `bun:"confirmation_sent_at,nullzero" json:"confirmation_sent_at,omitempty"`
	Metadata           map[string]any `bun:"metadata" json:"metadata,omitempty"`
	LoginAttempts      int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt     *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt         *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt          *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt          *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Confirmed reports whether the account finished email verification.
func (a *Account) Confirmed() bool {
	return a != nil && a.EmailConfirmedAt != nil
}

// SeedValue reads a string out of the sign-up metadata seed.
func (a *Account) SeedValue(key string) string {
	if a == nil || a.Metadata == nil {
		return ""
	}
	if v, ok := a.Metadata[key].(string); ok {
		return v
	}
	return ""
}
