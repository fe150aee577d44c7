package authflow

import (
	"time"
)

// Session is the backend-issued proof of authentication. The access token is
// opaque to this package; only the subject id and expiry are interpreted.
type Session struct {
	SubjectID      string     `json:"subject_id,omitempty"`
	Email          string     `json:"email,omitempty"`
	EmailConfirmed bool       `json:"email_confirmed,omitempty"`
	AccessToken    string     `json:"access_token,omitempty"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the session identifies a subject and has not
// expired as of now. A session without an expiry is treated as live; the
// backend refreshes tokens transparently.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.SubjectID == "" {
		return false
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return false
	}
	return true
}

// Clone returns a copy so callers can hold a snapshot without sharing
// pointers with the backend.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.IssuedAt != nil {
		t := *s.IssuedAt
		out.IssuedAt = &t
	}
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}
