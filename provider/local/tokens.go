package local

import (
	"time"

	authflow "github.com/citypages/go-authflow"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService mints and validates the access tokens the embedded backend
// hands out as sessions.
type TokenService struct {
	signingKey []byte
	expiration time.Duration
	issuer     string
	logger     authflow.Logger
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email          string `json:"email,omitempty"`
	EmailConfirmed bool   `json:"email_confirmed,omitempty"`
	Role           string `json:"role,omitempty"`
}

// NewTokenService creates a token service for the embedded backend.
func NewTokenService(signingKey []byte, expiration time.Duration, issuer string, logger authflow.Logger) *TokenService {
	if logger == nil {
		logger = authflow.DefaultLogger()
	}
	if expiration <= 0 {
		expiration = time.Hour
	}
	return &TokenService{
		signingKey: signingKey,
		expiration: expiration,
		issuer:     issuer,
		logger:     logger,
	}
}

// Generate signs a session token for the account.
func (ts *TokenService) Generate(account *Account) (string, *authflow.Session, error) {
	if account == nil {
		return "", nil, errors.New("account must not be nil", errors.CategoryInternal)
	}

	now := time.Now()
	expires := now.Add(ts.expiration)

	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email:          account.Email,
		EmailConfirmed: account.Confirmed(),
		Role:           account.SeedValue("role"),
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.signingKey)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	session := &authflow.Session{
		SubjectID:      account.ID.String(),
		Email:          account.Email,
		EmailConfirmed: account.Confirmed(),
		AccessToken:    raw,
		IssuedAt:       &now,
		ExpiresAt:      &expires,
	}

	return raw, session, nil
}

// Validate parses and verifies a token, rebuilding the session it encodes.
func (ts *TokenService) Validate(raw string) (*authflow.Session, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method", errors.CategoryAuth)
		}
		return ts.signingKey, nil
	})
	if err != nil {
		ts.logger.Debug("token validation failed: %v", err)
		return nil, errors.Wrap(err, errors.CategoryAuth, "invalid session token")
	}
	if !token.Valid {
		return nil, errors.New("invalid session token", errors.CategoryAuth)
	}

	session := &authflow.Session{
		SubjectID:      claims.Subject,
		Email:          claims.Email,
		EmailConfirmed: claims.EmailConfirmed,
		AccessToken:    raw,
	}
	if claims.IssuedAt != nil {
		t := claims.IssuedAt.Time
		session.IssuedAt = &t
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		session.ExpiresAt = &t
	}
	return session, nil
}
