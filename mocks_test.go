package authflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	authflow "github.com/citypages/go-authflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockBackend implements authflow.Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) CurrentSession(ctx context.Context) (*authflow.Session, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(*authflow.Session)
	return session, args.Error(1)
}

func (m *MockBackend) Subscribe(ctx context.Context) (authflow.Subscription, error) {
	args := m.Called(ctx)
	sub, _ := args.Get(0).(authflow.Subscription)
	return sub, args.Error(1)
}

func (m *MockBackend) SignInWithPassword(ctx context.Context, email, password string) (*authflow.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*authflow.Session)
	return session, args.Error(1)
}

func (m *MockBackend) SignUp(ctx context.Context, data authflow.RegisterData) (*authflow.PendingUser, error) {
	args := m.Called(ctx, data)
	pending, _ := args.Get(0).(*authflow.PendingUser)
	return pending, args.Error(1)
}

func (m *MockBackend) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) ResendVerification(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// MockProfileStore implements authflow.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) FetchBySubjectID(ctx context.Context, subjectID string) (*authflow.Profile, error) {
	args := m.Called(ctx, subjectID)
	profile, _ := args.Get(0).(*authflow.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileStore) Update(ctx context.Context, id uuid.UUID, update authflow.ProfileUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

// MockSessionCache implements authflow.SessionCache
type MockSessionCache struct {
	mock.Mock
}

func (m *MockSessionCache) Load() (*authflow.Session, error) {
	args := m.Called()
	session, _ := args.Get(0).(*authflow.Session)
	return session, args.Error(1)
}

func (m *MockSessionCache) Store(session *authflow.Session) error {
	args := m.Called(session)
	return args.Error(0)
}

func (m *MockSessionCache) Clear() error {
	args := m.Called()
	return args.Error(0)
}

// stubSubscription is a channel-backed authflow.Subscription for driving
// the manager's event loop from tests.
type stubSubscription struct {
	ch   chan authflow.Event
	once sync.Once
}

func newStubSubscription() *stubSubscription {
	return &stubSubscription{ch: make(chan authflow.Event, 8)}
}

func (s *stubSubscription) Events() <-chan authflow.Event { return s.ch }

func (s *stubSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.ch) })
}

func (s *stubSubscription) emit(event authflow.Event) {
	s.ch <- event
}

func testSession(subjectID string) *authflow.Session {
	now := time.Now()
	expires := now.Add(time.Hour)
	return &authflow.Session{
		SubjectID:      subjectID,
		Email:          subjectID + "@example.com",
		EmailConfirmed: true,
		AccessToken:    "access-" + subjectID,
		RefreshToken:   "refresh-" + subjectID,
		IssuedAt:       &now,
		ExpiresAt:      &expires,
	}
}

func testProfile(subjectID string) *authflow.Profile {
	return &authflow.Profile{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Email:     subjectID + "@example.com",
		Name:      "Test User",
		Role:      authflow.RoleUser,
		Verified:  true,
	}
}

// waitForState blocks until the store publishes a snapshot matching cond.
func waitForState(t *testing.T, store *authflow.Store, cond func(authflow.AuthState) bool) authflow.AuthState {
	t.Helper()

	updates, cancel := store.Subscribe()
	defer cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-updates:
			if cond(st) {
				return st
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state, last snapshot: %+v", store.Snapshot())
			return authflow.AuthState{}
		}
	}
}
