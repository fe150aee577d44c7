// Package local is an embedded reference implementation of the authflow
// backend: accounts and profiles live in a bun-managed SQLite database and
// sessions are signed JWTs. It exists for development, tests and
// single-binary deployments; hosted deployments use provider/httpapi.
//
// Like the hosted SDK, the event stream is client generated: the provider
// emits SIGNED_IN/SIGNED_OUT/USER_UPDATED events from its own operations.
package local

import (
	"context"
	"strings"
	"sync"
	"time"

	authflow "github.com/citypages/go-authflow"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MaxLoginAttempts is the maximum number of attempts an account gets in a
// cooldown period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// Provider implements authflow.Backend against the local database.
type Provider struct {
	db        *bun.DB
	accounts  Accounts
	profiles  *Profiles
	tokens    *TokenService
	provision *ProvisionProfileHandler
	bus       *authflow.EventBus
	logger    authflow.Logger
	cache     authflow.SessionCache

	mu      sync.Mutex
	current *authflow.Session
}

var _ authflow.Backend = (*Provider)(nil)

// ProviderOption customizes Provider construction.
type ProviderOption func(*Provider)

// WithLogger overrides the default logger.
func WithLogger(logger authflow.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSessionCache lets CurrentSession recover a session across restarts.
func WithSessionCache(cache authflow.SessionCache) ProviderOption {
	return func(p *Provider) {
		p.cache = cache
	}
}

// WithTokenExpiration overrides the default one hour session lifetime.
func WithTokenExpiration(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.tokens.expiration = d
		}
	}
}

// NewProvider wires the embedded backend over db.
func NewProvider(db *bun.DB, signingKey []byte, opts ...ProviderOption) *Provider {
	profiles := NewProfilesRepository(db)
	p := &Provider{
		db:        db,
		accounts:  NewAccountsRepository(db),
		profiles:  profiles,
		tokens:    NewTokenService(signingKey, time.Hour, "authflow.local", nil),
		provision: NewProvisionProfileHandler(db, profiles),
		bus:       authflow.NewEventBus(),
		logger:    authflow.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Profiles exposes the profile store for the Manager.
func (p *Provider) Profiles() *Profiles {
	return p.profiles
}

// Setup creates the backing tables. Safe to call repeatedly.
func (p *Provider) Setup(ctx context.Context) error {
	models := []any{(*Account)(nil), (*authflow.Profile)(nil)}
	for _, model := range models {
		if _, err := p.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}
	return nil
}

// Close ends the event stream for all subscribers.
func (p *Provider) Close() {
	p.bus.Close()
}

// Subscribe implements authflow.Backend.
func (p *Provider) Subscribe(ctx context.Context) (authflow.Subscription, error) {
	return p.bus.Subscribe(ctx)
}

// CurrentSession returns the live session, recovering one from the session
// cache after a restart. A corrupt cache artifact propagates as
// authflow.ErrCorruptCache so bootstrap can clear it.
func (p *Provider) CurrentSession(ctx context.Context) (*authflow.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Valid(time.Now()) {
		return p.current.Clone(), nil
	}
	p.current = nil

	if p.cache == nil {
		return nil, nil
	}

	cached, err := p.cache.Load()
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, nil
	}

	session, err := p.tokens.Validate(cached.AccessToken)
	if err != nil {
		p.logger.Debug("cached session token rejected: %v", err)
		return nil, nil
	}

	p.current = session
	return session.Clone(), nil
}

// SignInWithPassword implements the password grant with the portal's login
// attempt throttling.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*authflow.Session, error) {
	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, authflow.ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account during sign-in")
	}

	if account.LoginAttemptAt != nil {
		expired, err := isOutsideThresholdPeriod(*account.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate login attempt cooldown")
		}
		if expired {
			account.LoginAttempts = 0
		}
	}

	if account.LoginAttempts > MaxLoginAttempts {
		return nil, authflow.ErrTooManyRequests
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if err2 := p.accounts.TrackAttemptedLogin(ctx, account); err2 != nil {
			p.logger.Error("failed to track login attempt: %v", err2)
		}
		return nil, authflow.ErrInvalidCredentials
	}

	if !account.Confirmed() {
		return nil, authflow.ErrEmailNotConfirmed
	}

	if err := p.accounts.TrackSuccessfulLogin(ctx, account); err != nil {
		p.logger.Error("failed to track successful login: %v", err)
	}

	_, session, err := p.tokens.Generate(account)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = session
	p.mu.Unlock()

	p.bus.Emit(authflow.Event{Type: authflow.EventSignedIn, Session: session.Clone()})
	return session.Clone(), nil
}

// SignUp creates a pending account carrying the profile-seed metadata. The
// account cannot sign in until ConfirmEmail runs; no profile row exists yet.
func (p *Provider) SignUp(ctx context.Context, data authflow.RegisterData) (*authflow.PendingUser, error) {
	email := strings.ToLower(strings.TrimSpace(data.Email))

	if existing, err := p.accounts.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, authflow.ErrEmailTaken
	} else if err != nil && !goerrors.IsNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
	}

	hash, err := HashPassword(data.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	now := time.Now()
	account := &Account{
		ID:                 uuid.New(),
		Email:              email,
		PasswordHash:       hash,
		Metadata:           data.SeedMetadata(),
		ConfirmationSentAt: &now,
	}

	if account, err = p.accounts.Create(ctx, account); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
	}

	return &authflow.PendingUser{
		ID:                 account.ID.String(),
		Email:              account.Email,
		ConfirmationSentAt: account.ConfirmationSentAt,
	}, nil
}

// SignOut drops the live session and notifies subscribers.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	p.bus.Emit(authflow.Event{Type: authflow.EventSignedOut})
	return nil
}

// ResendVerification re-marks the confirmation as sent. Unknown accounts are
// not an error so the endpoint cannot be used to probe for registrations.
func (p *Provider) ResendVerification(ctx context.Context, email string) error {
	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for resend")
	}
	if account.Confirmed() {
		return nil
	}
	return p.accounts.MarkConfirmationSent(ctx, account)
}

// ConfirmEmail finishes verification: it flips the account's confirmed flag
// and provisions the profile row from the sign-up seed, the step a hosted
// backend performs with a database trigger.
func (p *Provider) ConfirmEmail(ctx context.Context, email string) error {
	account, err := p.accounts.ConfirmEmail(ctx, email)
	if err != nil {
		return err
	}

	if err := p.provision.Execute(ctx, ProvisionProfileMessage{
		SubjectID: account.ID.String(),
		Email:     account.Email,
		Metadata:  account.Metadata,
	}); err != nil {
		return err
	}

	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current != nil && current.SubjectID == account.ID.String() {
		p.bus.Emit(authflow.Event{Type: authflow.EventUserUpdated, Session: current.Clone()})
	}

	return nil
}

// isOutsideThresholdPeriod checks if t falls outside the duration pattern
// counting back from now.
func isOutsideThresholdPeriod(t time.Time, pattern string) (bool, error) {
	duration, err := time.ParseDuration(pattern)
	if err != nil {
		return false, err
	}
	return !t.After(time.Now().Add(-duration)), nil
}
