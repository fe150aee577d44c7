package authflow

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-print"
	"golang.org/x/time/rate"
)

// Defaults for the lifecycle timing knobs. The profile timeout bounds a hung
// fetch so Loading can never stay true forever; the login failsafe clears
// Loading when the signed-in event is delayed or missed.
const (
	DefaultProfileTimeout = 15 * time.Second
	DefaultLoginFailsafe  = 2 * time.Second
	DefaultResendInterval = 30 * time.Second
	DefaultResendBurst    = 2
)

// Manager is the canonical auth lifecycle implementation: it bootstraps the
// session once, consumes the backend event stream for the rest of the
// process lifetime, and runs every credential operation. It is the only
// writer of the Store it owns a reference to.
type Manager struct {
	backend  Backend
	profiles ProfileStore
	cache    SessionCache
	store    *Store

	logger         Logger
	sink           ActivitySink
	clock          func() time.Time
	profileTimeout time.Duration
	loginFailsafe  time.Duration
	resendLimiter  *rate.Limiter

	sub       Subscription
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	startOnce sync.Once
}

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// WithLogger overrides the default stdout logger.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithActivitySink configures an ActivitySink for lifecycle audit events.
func WithActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithSessionCache attaches a local session artifact cache; bootstrap clears
// it when it is corrupt and logout clears it unconditionally.
func WithSessionCache(cache SessionCache) ManagerOption {
	return func(m *Manager) {
		m.cache = cache
	}
}

// WithProfileTimeout bounds every profile fetch.
func WithProfileTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.profileTimeout = d
		}
	}
}

// WithLoginFailsafe bounds how long Login waits for the subscriber to
// observe the sign-in event before force-clearing the loading flag.
func WithLoginFailsafe(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.loginFailsafe = d
		}
	}
}

// WithResendLimit throttles ResendVerification locally, mirroring the
// hosted backend's own resend throttling.
func WithResendLimit(interval time.Duration, burst int) ManagerOption {
	return func(m *Manager) {
		if interval > 0 && burst > 0 {
			m.resendLimiter = rate.NewLimiter(rate.Every(interval), burst)
		}
	}
}

// WithConfig applies a Config in one call; zero values keep the defaults.
func WithConfig(cfg Config) ManagerOption {
	return func(m *Manager) {
		if cfg == nil {
			return
		}
		WithProfileTimeout(cfg.GetProfileTimeout())(m)
		WithLoginFailsafe(cfg.GetLoginFailsafe())(m)
		WithResendLimit(cfg.GetResendInterval(), cfg.GetResendBurst())(m)
	}
}

// NewManager wires the lifecycle core. The store is owned by the caller's
// composition root and handed in by reference so guards and views can
// subscribe to the same instance.
func NewManager(backend Backend, profiles ProfileStore, store *Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:        backend,
		profiles:       profiles,
		store:          store,
		logger:         defLogger{},
		sink:           noopActivitySink{},
		clock:          time.Now,
		profileTimeout: DefaultProfileTimeout,
		loginFailsafe:  DefaultLoginFailsafe,
		resendLimiter:  rate.NewLimiter(rate.Every(DefaultResendInterval), DefaultResendBurst),
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Store returns the state store the manager mutates.
func (m *Manager) Store() *Store {
	return m.store
}

// State returns the current AuthState snapshot.
func (m *Manager) State() AuthState {
	return m.store.Snapshot()
}

// Bootstrap asks the backend for an existing session and settles the
// initial state. Invoked exactly once when the application mounts. Failures
// fail open to logged-out: a transport error or a corrupt cached session is
// treated as no-session after a best-effort cache clear.
func (m *Manager) Bootstrap(ctx context.Context) AuthState {
	session, err := m.backend.CurrentSession(ctx)
	if err != nil {
		if IsCorruptCache(err) {
			m.logger.Warn("bootstrap found corrupt session cache, clearing: %v", err)
		} else {
			m.logger.Error("bootstrap session lookup failed: %v", err)
		}
		m.clearCache()
		return m.settleSignedOut(ctx, ActivityEventBootstrapAnonymous, map[string]any{
			"error": err.Error(),
		})
	}

	if !session.Valid(m.clock()) {
		return m.settleSignedOut(ctx, ActivityEventBootstrapAnonymous, nil)
	}

	return m.settleSignedIn(ctx, session, ActivityEventBootstrapSession)
}

// Start establishes the lifetime event subscription and consumes events in
// arrival order until Close. Call after Bootstrap.
func (m *Manager) Start(ctx context.Context) error {
	var err error
	m.startOnce.Do(func() {
		var sub Subscription
		sub, err = m.backend.Subscribe(ctx)
		if err != nil {
			return
		}
		m.sub = sub
		m.wg.Add(1)
		go m.consume(sub)
	})
	return err
}

// Close tears the subscription down and waits for in-flight async work.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		if m.sub != nil {
			m.sub.Unsubscribe()
		}
	})
	m.wg.Wait()
}

func (m *Manager) consume(sub Subscription) {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			m.handleEvent(event)
		}
	}
}

// handleEvent processes one backend event. The ordering, deferred recover
// and forced settle make the two invariants hold: events apply in arrival
// order, and no handler failure can leave Loading stuck true.
func (m *Manager) handleEvent(event Event) {
	defer m.forceSettled()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("auth event handler panic: %v", r)
		}
	}()

	ctx := context.Background()
	m.logger.Debug("auth event %s subject=%s", event.Type, event.Session.subjectOrEmpty())

	if event.Type != EventSignedOut && event.Session.Valid(m.clock()) {
		m.settleSignedIn(ctx, event.Session, ActivityEventStreamSignedIn)
		return
	}

	m.settleSignedOut(ctx, ActivityEventStreamSignedOut, nil)
}

func (s *Session) subjectOrEmpty() string {
	if s == nil {
		return ""
	}
	return s.SubjectID
}

// forceSettled is the finally-equivalent on the event path: whatever
// happened, the UI must not be left spinning.
func (m *Manager) forceSettled() {
	m.store.Commit(func(st *AuthState) bool {
		if !st.Loading {
			return false
		}
		st.Loading = false
		return true
	})
}

// settleSignedIn applies the authenticated flags synchronously and spawns
// the profile load for the session's subject; profile loading must not
// block the rest of the application.
func (m *Manager) settleSignedIn(ctx context.Context, session *Session, activity ActivityEventType) AuthState {
	snap, gen, _ := m.store.Transition(func(gen uint64, st *AuthState) bool {
		st.Authenticated = true
		st.AuthReady = true
		st.Loading = false
		st.Generation = gen
		if st.SubjectID != session.SubjectID {
			// a different subject signed in; the previous profile is dead
			st.User = nil
			st.ProfileReady = false
			st.ProfileVerified = false
		}
		st.SubjectID = session.SubjectID
		return true
	})

	m.record(ctx, activity, session.SubjectID, nil)
	m.logger.Debug("signed-in transition: %s", print.MaybePrettyJSON(snap))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loadProfile(gen, session.SubjectID)
	}()

	return snap
}

// settleSignedOut resets to the fully logged-out terminal configuration.
func (m *Manager) settleSignedOut(ctx context.Context, activity ActivityEventType, meta map[string]any) AuthState {
	snap, _, _ := m.store.Transition(func(gen uint64, st *AuthState) bool {
		*st = AuthState{
			AuthReady:    true,
			ProfileReady: true,
			Generation:   gen,
		}
		return true
	})

	m.record(ctx, activity, "", meta)
	return snap
}

// loadProfile fetches the profile for subjectID and commits the result only
// if gen still matches the live state; a mismatch means a newer transition
// superseded this fetch and the result is discarded silently. Safe to call
// concurrently; the last committed write wins. Never lets an error escape.
func (m *Manager) loadProfile(gen uint64, subjectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.profileTimeout)
	defer cancel()

	profile, err := m.profiles.FetchBySubjectID(ctx, subjectID)
	if profile != nil {
		profile = profile.Clone()
	}

	snap, committed := m.store.Commit(func(st *AuthState) bool {
		if st.Generation != gen || st.SubjectID != subjectID {
			return false
		}
		st.Loading = false
		st.ProfileReady = true
		switch {
		case err == nil && profile != nil:
			st.User = profile
			st.Authenticated = true
			st.ProfileVerified = profile.Verified
		case IsProfileNotFound(err):
			// onboarding incomplete: session still valid, keep Authenticated
			st.User = nil
			st.ProfileVerified = false
		default:
			// transient read failure or timeout: do not force a logout
			st.User = nil
			st.ProfileVerified = false
		}
		return true
	})

	if !committed {
		m.logger.Debug("discarding stale profile fetch subject=%s gen=%d", subjectID, gen)
		return
	}

	switch {
	case err == nil && profile != nil:
		m.record(ctx, ActivityEventProfileLoaded, subjectID, map[string]any{"profile_id": profile.ID.String()})
		m.logger.Debug("profile loaded: %s", print.MaybePrettyJSON(snap.User))
	case IsProfileNotFound(err):
		m.record(ctx, ActivityEventProfileMissing, subjectID, nil)
		m.logger.Info("no profile for subject %s, onboarding incomplete", subjectID)
	default:
		m.record(ctx, ActivityEventProfileError, subjectID, map[string]any{"error": err.Error()})
		m.logger.Warn("profile fetch failed for subject %s: %v", subjectID, err)
	}
}

// Login performs the password grant. On success it does not mark the state
// authenticated itself; the event subscriber observes the sign-in. A
// bounded failsafe timer clears Loading anyway in case the event is
// delayed or missed, so the UI cannot spin forever.
func (m *Manager) Login(ctx context.Context, email, password string) bool {
	if err := (Credentials{Email: email, Password: password}).Validate(); err != nil {
		m.logger.Debug("login payload rejected: %v", err)
		return false
	}

	m.store.Update(func(st *AuthState) {
		st.Loading = true
	})

	session, err := m.backend.SignInWithPassword(ctx, email, password)
	if err != nil || !session.Valid(m.clock()) {
		m.store.Update(func(st *AuthState) {
			st.Loading = false
		})
		m.record(ctx, ActivityEventLoginFailure, "", map[string]any{
			"identifier": email,
			"error":      errString(err),
		})
		m.logger.Error("login failed for %s: %v", email, err)
		return false
	}

	m.storeCache(session)
	m.record(ctx, ActivityEventLoginSuccess, session.SubjectID, map[string]any{"identifier": email})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loginFailsafeTimer(session)
	}()

	return true
}

// loginFailsafeTimer converges the state if the subscriber has not already
// done so within the failsafe bound. Forcing the flags alone would leave
// ProfileReady false forever when the event never arrives, so the failsafe
// also runs the profile load for the session it holds.
func (m *Manager) loginFailsafeTimer(session *Session) {
	timer := time.NewTimer(m.loginFailsafe)
	defer timer.Stop()

	select {
	case <-m.done:
		return
	case <-timer.C:
	}

	snap, gen, forced := m.store.Transition(func(gen uint64, st *AuthState) bool {
		if st.Authenticated && !st.Loading {
			return false
		}
		st.Authenticated = true
		st.AuthReady = true
		st.Loading = false
		st.Generation = gen
		if st.SubjectID == "" {
			st.SubjectID = session.SubjectID
		}
		return true
	})

	if forced {
		m.logger.Warn("sign-in event not observed within %s, failsafe settled state", m.loginFailsafe)
		m.loadProfile(gen, snap.SubjectID)
	}
}

// Register signs the account up with profile-seed metadata. It does not log
// the user in: the account needs email verification before a session
// exists, and the profile row is provisioned out-of-band after that.
// Duplicate emails surface as the backend's authoritative conflict error.
func (m *Manager) Register(ctx context.Context, data RegisterData) bool {
	if err := data.Validate(); err != nil {
		m.logger.Debug("registration payload rejected: %v", err)
		return false
	}

	pending, err := m.backend.SignUp(ctx, data)
	if err != nil || pending == nil {
		m.logger.Error("registration failed for %s: %v", data.Email, err)
		return false
	}

	m.record(ctx, ActivityEventRegistration, pending.ID, map[string]any{
		"identifier": data.Email,
		"role":       string(data.Role),
	})
	return true
}

// Logout signs out of the backend, clears the cached session artifact and
// proactively resets the state for responsiveness. The sign-out event, if
// and when it arrives, converges on the same terminal configuration.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.backend.SignOut(ctx); err != nil {
		m.logger.Error("backend sign-out failed: %v", err)
	}
	m.clearCache()
	m.settleSignedOut(ctx, ActivityEventLogout, nil)
}

// ResendVerification asks the backend to re-send the confirmation email.
// Local throttling mirrors the backend's own resend limits.
func (m *Manager) ResendVerification(ctx context.Context, email string) bool {
	if m.resendLimiter != nil && !m.resendLimiter.Allow() {
		m.logger.Warn("verification resend throttled for %s", email)
		return false
	}

	if err := m.backend.ResendVerification(ctx, email); err != nil {
		m.logger.Error("verification resend failed for %s: %v", email, err)
		return false
	}

	m.record(ctx, ActivityEventVerificationResend, "", map[string]any{"identifier": email})
	return true
}

// UpdateProfile writes the partial update keyed by the current profile's id
// and merges it into the in-memory user optimistically on success. Requires
// an existing in-memory user.
func (m *Manager) UpdateProfile(ctx context.Context, update ProfileUpdate) bool {
	snap := m.store.Snapshot()
	if snap.User == nil {
		m.logger.Debug("profile update rejected: %v", ErrNotAuthenticated)
		return false
	}
	if update.IsZero() {
		return true
	}
	if err := update.Validate(); err != nil {
		m.logger.Debug("profile update rejected: %v", err)
		return false
	}

	profileID := snap.User.ID
	if err := m.profiles.Update(ctx, profileID, update); err != nil {
		m.logger.Error("profile update failed for %s: %v", profileID, err)
		return false
	}

	m.store.Commit(func(st *AuthState) bool {
		if st.User == nil || st.User.ID != profileID {
			// signed out (or switched users) while the write was in flight
			return false
		}
		merged := st.User.Clone()
		update.ApplyTo(merged)
		now := m.clock()
		merged.UpdatedAt = &now
		st.User = merged
		st.ProfileVerified = merged.Verified
		return true
	})

	m.record(ctx, ActivityEventProfileUpdated, snap.SubjectID, map[string]any{
		"profile_id": profileID.String(),
	})
	return true
}

// VerificationStatus is the result of CheckVerificationStatus.
type VerificationStatus struct {
	EmailVerified   bool
	ProfileVerified bool
	Profile         *Profile
}

// CheckVerificationStatus re-reads session and profile from the backend,
// bypassing the in-memory snapshot. Used by the verify-email flow to poll
// until both the email confirmation and the profile row exist.
func (m *Manager) CheckVerificationStatus(ctx context.Context) VerificationStatus {
	session, err := m.backend.CurrentSession(ctx)
	if err != nil || !session.Valid(m.clock()) {
		return VerificationStatus{}
	}

	status := VerificationStatus{EmailVerified: session.EmailConfirmed}

	profile, err := m.profiles.FetchBySubjectID(ctx, session.SubjectID)
	if err != nil || profile == nil {
		return status
	}

	status.ProfileVerified = true
	status.Profile = profile.Clone()
	return status
}

func (m *Manager) storeCache(session *Session) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Store(session.Clone()); err != nil {
		m.logger.Warn("session cache write failed: %v", err)
	}
}

func (m *Manager) clearCache() {
	if m.cache == nil {
		return
	}
	if err := m.cache.Clear(); err != nil {
		m.logger.Warn("session cache clear failed: %v", err)
	}
}

func (m *Manager) record(ctx context.Context, eventType ActivityEventType, subjectID string, metadata map[string]any) {
	sink := normalizeActivitySink(m.sink)
	event := ActivityEvent{
		EventType:  eventType,
		SubjectID:  subjectID,
		Metadata:   metadata,
		OccurredAt: m.clock(),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
