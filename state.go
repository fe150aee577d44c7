package authflow

import (
	"sync"
)

// AuthState is the process-local authentication snapshot. Authenticated
// false implies User nil; the converse does not hold, an authenticated
// session with no profile yet is the valid onboarding-incomplete state.
type AuthState struct {
	Authenticated   bool
	Loading         bool
	AuthReady       bool
	ProfileReady    bool
	ProfileVerified bool
	SubjectID       string
	User            *Profile
	Generation      uint64
}

// Settled reports whether both readiness gates have completed, meaning a
// guard can decide render-vs-redirect without waiting.
func (s AuthState) Settled() bool {
	if !s.AuthReady {
		return false
	}
	if !s.Authenticated {
		return true
	}
	return s.ProfileReady
}

// Store is the single holder of AuthState for the application lifetime. It
// is owned by the composition root and handed to the Manager and to guards
// by reference; mutations are atomic read-modify-write transitions and each
// committed transition is fanned out to subscribers.
type Store struct {
	mu      sync.Mutex
	state   AuthState
	gen     uint64
	subs    map[int]chan AuthState
	nextSub int
}

// NewStore returns a Store in the initial bootstrapping state: loading, not
// authenticated, neither readiness flag set.
func NewStore() *Store {
	return &Store{
		state: AuthState{Loading: true},
		subs:  map[int]chan AuthState{},
	}
}

// Snapshot returns the current state by value.
func (s *Store) Snapshot() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update applies fn to the latest state under the lock and publishes the
// result. fn must merge into the state it is given; it never sees a stale
// snapshot captured before an awaited call.
func (s *Store) Update(fn func(*AuthState)) AuthState {
	s.mu.Lock()
	fn(&s.state)
	snap := s.state
	s.notify(snap)
	s.mu.Unlock()
	return snap
}

// Commit is Update with a veto: fn returns false to discard the transition,
// leaving state untouched and subscribers unnotified. Late profile fetches
// use this to drop results for superseded generations.
func (s *Store) Commit(fn func(*AuthState) bool) (AuthState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	if !fn(&next) {
		return s.state, false
	}
	s.state = next
	s.notify(next)
	return next, true
}

// NextGeneration returns a monotonically increasing tag. Every auth
// transition (bootstrap, sign-in, sign-out) takes a new generation so that
// async results can be matched against the transition that spawned them.
func (s *Store) NextGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// Transition takes the next generation and applies fn in one critical
// section, so the write order always matches the generation order. fn
// returns false to veto; a vetoed transition consumes no generation. fn
// receives the generation it is committing under and must stamp it into
// the state it produces.
func (s *Store) Transition(fn func(gen uint64, st *AuthState) bool) (AuthState, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	gen := s.gen + 1
	if !fn(gen, &next) {
		return s.state, s.gen, false
	}
	s.gen = gen
	s.state = next
	s.notify(next)
	return next, gen, true
}

// Subscribe registers a state listener. The channel carries coalesced
// snapshots: a slow consumer sees the latest state rather than every
// intermediate one, and never blocks a transition. The returned cancel
// function must be called to release the subscription.
func (s *Store) Subscribe() (<-chan AuthState, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan AuthState, 1)
	s.subs[id] = ch
	// seed with the current state so new subscribers settle immediately
	ch <- s.state
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// notify runs with s.mu held so snapshots are delivered in commit order.
func (s *Store) notify(snap AuthState) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// drop the stale pending snapshot, keep the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
