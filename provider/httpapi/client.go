// Package httpapi is the authflow backend client for a hosted identity
// service (GoTrue-style auth endpoints plus a PostgREST profile table).
// Outbound requests go through an SSRF-safe HTTP client since the base URL
// is operator configuration; access tokens can additionally be verified
// against the service's JWK Set.
//
// The hosted service has no push channel: like the browser SDK, the event
// stream is synthesized from the client's own operations.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	authflow "github.com/citypages/go-authflow"
	"github.com/doyensec/safeurl"
	goerrors "github.com/goliatone/go-errors"
)

// Config holds the hosted service coordinates.
type Config interface {
	GetBaseURL() string
	GetAPIKey() string
	GetJWKSURL() string
}

// StaticConfig is a plain struct Config implementation.
type StaticConfig struct {
	BaseURL string
	APIKey  string
	JWKSURL string
}

func (c StaticConfig) GetBaseURL() string { return c.BaseURL }
func (c StaticConfig) GetAPIKey() string  { return c.APIKey }
func (c StaticConfig) GetJWKSURL() string { return c.JWKSURL }

const defaultRequestTimeout = 10 * time.Second

// Client implements authflow.Backend against a hosted identity service.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	logger   authflow.Logger
	verifier *TokenVerifier
	bus      *authflow.EventBus
	cache    authflow.SessionCache

	mu      sync.Mutex
	current *authflow.Session
}

var _ authflow.Backend = (*Client)(nil)

// ClientOption customizes Client construction.
type ClientOption func(*Client)

// WithLogger overrides the default logger.
func WithLogger(logger authflow.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the SSRF-guarded default client, mainly so tests
// can talk to loopback servers.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithSessionCache lets CurrentSession recover a session across restarts.
func WithSessionCache(cache authflow.SessionCache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithTokenVerifier enables JWKS verification of access tokens.
func WithTokenVerifier(verifier *TokenVerifier) ClientOption {
	return func(c *Client) {
		c.verifier = verifier
	}
}

// New builds a client for the service described by cfg.
func New(cfg Config, opts ...ClientOption) (*Client, error) {
	base := strings.TrimRight(cfg.GetBaseURL(), "/")
	if base == "" {
		return nil, goerrors.New("base URL is required", goerrors.CategoryValidation)
	}

	c := &Client{
		baseURL: base,
		apiKey:  cfg.GetAPIKey(),
		http:    newSafeClient(defaultRequestTimeout),
		logger:  authflow.DefaultLogger(),
		bus:     authflow.NewEventBus(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.verifier == nil && cfg.GetJWKSURL() != "" {
		verifier, err := NewTokenVerifier(cfg.GetJWKSURL(), c.logger)
		if err != nil {
			return nil, err
		}
		c.verifier = verifier
	}

	return c, nil
}

// newSafeClient builds the SSRF-guarded outbound client. The dialer-level
// checks also cover DNS rebinding, which a static URL validation cannot.
func newSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// Close ends the event stream and stops JWKS refreshing.
func (c *Client) Close() {
	c.bus.Close()
	if c.verifier != nil {
		c.verifier.Close()
	}
}

// Subscribe implements authflow.Backend.
func (c *Client) Subscribe(ctx context.Context) (authflow.Subscription, error) {
	return c.bus.Subscribe(ctx)
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	EmailConfirmedAt   *time.Time `json:"email_confirmed_at"`
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at"`
}

type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"msg"`
	Error_  string `json:"error"`
	Desc    string `json:"error_description"`
}

func (e apiError) text() string {
	for _, s := range []string{e.Message, e.Desc, e.Error_} {
		if s != "" {
			return s
		}
	}
	return ""
}

// CurrentSession returns the live session, refreshing an expired one when a
// refresh token exists and recovering from the session cache on restart. A
// corrupt cache artifact propagates as authflow.ErrCorruptCache.
func (c *Client) CurrentSession(ctx context.Context) (*authflow.Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	now := time.Now()
	if current.Valid(now) {
		return current.Clone(), nil
	}

	if current == nil && c.cache != nil {
		cached, err := c.cache.Load()
		if err != nil {
			return nil, err
		}
		current = cached
	}

	if current == nil {
		return nil, nil
	}

	if current.Valid(now) {
		if c.verifier != nil {
			if _, err := c.verifier.Verify(current.AccessToken); err != nil {
				c.logger.Debug("cached access token rejected: %v", err)
				return nil, nil
			}
		}
		c.setCurrent(current)
		return current.Clone(), nil
	}

	if current.RefreshToken == "" {
		return nil, nil
	}

	session, err := c.refresh(ctx, current.RefreshToken)
	if err != nil {
		c.logger.Warn("session refresh failed: %v", err)
		return nil, nil
	}

	c.setCurrent(session)
	c.bus.Emit(authflow.Event{Type: authflow.EventTokenRefreshed, Session: session.Clone()})
	return session.Clone(), nil
}

// SignInWithPassword implements the password grant.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*authflow.Session, error) {
	payload := map[string]string{"email": email, "password": password}

	var out tokenResponse
	status, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", payload, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, authflow.ErrInvalidCredentials
	}

	session := sessionFromToken(out)
	c.setCurrent(session)
	c.bus.Emit(authflow.Event{Type: authflow.EventSignedIn, Session: session.Clone()})
	return session.Clone(), nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*authflow.Session, error) {
	payload := map[string]string{"refresh_token": refreshToken}

	var out tokenResponse
	status, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", payload, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, goerrors.New("refresh token rejected", goerrors.CategoryAuth)
	}

	return sessionFromToken(out), nil
}

// SignUp submits the sign-up with the profile-seed metadata attached. The
// service's uniqueness error is authoritative; no pre-check is performed.
func (c *Client) SignUp(ctx context.Context, data authflow.RegisterData) (*authflow.PendingUser, error) {
	payload := map[string]any{
		"email":    data.Email,
		"password": data.Password,
		"data":     data.SeedMetadata(),
	}

	var out userResponse
	status, apiErr, err := c.doWithError(ctx, http.MethodPost, "/auth/v1/signup", "", payload, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return &authflow.PendingUser{
			ID:                 out.ID,
			Email:              out.Email,
			ConfirmationSentAt: out.ConfirmationSentAt,
		}, nil
	}

	message := strings.ToLower(apiErr.text())
	if status == http.StatusUnprocessableEntity || strings.Contains(message, "already registered") {
		return nil, authflow.ErrEmailTaken
	}
	return nil, goerrors.New(fmt.Sprintf("sign-up rejected: %s", apiErr.text()), goerrors.CategoryAuth)
}

// SignOut revokes the session server-side and drops it locally either way.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.mu.Unlock()

	defer c.bus.Emit(authflow.Event{Type: authflow.EventSignedOut})

	if current == nil {
		return nil
	}

	if _, err := c.do(ctx, http.MethodPost, "/auth/v1/logout", current.AccessToken, nil, nil); err != nil {
		// the local sign-out already happened; the server token will expire
		c.logger.Warn("remote sign-out failed: %v", err)
	}
	return nil
}

// ResendVerification asks the service to re-send the confirmation email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	payload := map[string]string{"type": "signup", "email": email}

	status, apiErr, err := c.doWithError(ctx, http.MethodPost, "/auth/v1/resend", "", payload, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return goerrors.New(fmt.Sprintf("resend rejected: %s", apiErr.text()), goerrors.CategoryAuth)
	}
	return nil
}

func (c *Client) setCurrent(session *authflow.Session) {
	c.mu.Lock()
	c.current = session
	c.mu.Unlock()
}

func sessionFromToken(out tokenResponse) *authflow.Session {
	now := time.Now()
	expires := now.Add(time.Duration(out.ExpiresIn) * time.Second)
	return &authflow.Session{
		SubjectID:      out.User.ID,
		Email:          out.User.Email,
		EmailConfirmed: out.User.EmailConfirmedAt != nil,
		AccessToken:    out.AccessToken,
		RefreshToken:   out.RefreshToken,
		IssuedAt:       &now,
		ExpiresAt:      &expires,
	}
}

// do issues one JSON request; non-2xx statuses are returned, not errors.
func (c *Client) do(ctx context.Context, method, path, bearer string, payload, out any) (int, error) {
	status, _, err := c.doWithError(ctx, method, path, bearer, payload, out)
	return status, err
}

func (c *Client) doWithError(ctx context.Context, method, path, bearer string, payload, out any) (int, apiError, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, apiError{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, apiError{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, apiError{}, goerrors.Wrap(err, goerrors.CategoryOperation, "identity service unreachable")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, apiError{}, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read response")
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return res.StatusCode, apiError{}, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode response")
			}
		}
		return res.StatusCode, apiError{}, nil
	}

	parsed := apiError{}
	_ = json.Unmarshal(raw, &parsed)
	return res.StatusCode, parsed, nil
}
