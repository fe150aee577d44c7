package httpapi

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	authflow "github.com/citypages/go-authflow"
	jwt "github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenVerifier checks access tokens against the identity service's JWK
// Set. The key set refreshes in the background so key rotation does not
// require a restart.
type TokenVerifier struct {
	jwks *keyfunc.JWKS
}

// NewTokenVerifier fetches the JWK Set from jwksURL and keeps it fresh.
func NewTokenVerifier(jwksURL string, logger authflow.Logger) (*TokenVerifier, error) {
	if logger == nil {
		logger = authflow.DefaultLogger()
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("failed to do a background refresh of JWK set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to get JWK set").
			WithMetadata(map[string]any{"jwks_url": jwksURL})
	}

	return &TokenVerifier{jwks: jwks}, nil
}

// Close stops the background key refresh.
func (v *TokenVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

type serviceClaims struct {
	jwt.RegisteredClaims
	Email          string `json:"email"`
	EmailConfirmed bool   `json:"email_confirmed"`
}

// Verify parses and validates raw, returning the session it encodes.
func (v *TokenVerifier) Verify(raw string) (*authflow.Session, error) {
	claims := &serviceClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.jwks.Keyfunc)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid access token").
			WithTextCode("INVALID_TOKEN").
			WithCode(goerrors.CodeUnauthorized)
	}
	if !token.Valid {
		return nil, goerrors.New("invalid access token", goerrors.CategoryAuth).
			WithTextCode("INVALID_TOKEN").
			WithCode(goerrors.CodeUnauthorized)
	}

	session := &authflow.Session{
		SubjectID:      claims.Subject,
		Email:          claims.Email,
		EmailConfirmed: claims.EmailConfirmed,
		AccessToken:    raw,
	}
	if claims.IssuedAt != nil {
		issued := claims.IssuedAt.Time
		session.IssuedAt = &issued
	}
	if claims.ExpiresAt != nil {
		expires := claims.ExpiresAt.Time
		session.ExpiresAt = &expires
	}
	return session, nil
}
