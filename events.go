package authflow

import (
	"context"
	"sync"
)

// EventType enumerates the backend auth event stream.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is a single entry in the backend auth event stream. Session is nil
// for sign-out; any event carrying a live session is treated like a
// sign-in by the subscriber.
type Event struct {
	Type    EventType
	Session *Session
}

// Subscription is a cancellable auth event stream. Events are delivered in
// the order the backend produced them; the channel closes after
// Unsubscribe or when the backend shuts down.
type Subscription interface {
	Events() <-chan Event
	Unsubscribe()
}

// EventBus is a small fan-out helper for Backend implementations that
// synthesize their own event stream (the hosted-service client and the
// embedded provider both do). Emit never blocks the caller: each
// subscriber has a buffered ordered queue, and a subscriber that has been
// abandoned without Unsubscribe eventually has its oldest events dropped.
//
// Shedding is always oldest-first, so the newest event is delivered to
// every live subscriber no matter how far behind it is. Events are
// self-contained (each carries the session it describes, not a delta), so
// a consumer that missed shed events still settles on the correct state
// from the newest one; only intermediate history is lost.
type EventBus struct {
	mu     sync.Mutex
	subs   map[int]*busSubscription
	nextID int
	closed bool
}

const busBuffer = 16

func NewEventBus() *EventBus {
	return &EventBus{subs: map[int]*busSubscription{}}
}

type busSubscription struct {
	bus *EventBus
	id  int
	ch  chan Event
}

func (s *busSubscription) Events() <-chan Event { return s.ch }

func (s *busSubscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(sub.ch)
	}
}

// Subscribe registers a new listener. The context is accepted for symmetry
// with remote backends; cancellation still requires Unsubscribe.
func (b *EventBus) Subscribe(_ context.Context) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrNoSession
	}
	sub := &busSubscription{bus: b, id: b.nextID, ch: make(chan Event, busBuffer)}
	b.subs[b.nextID] = sub
	b.nextID++
	return sub, nil
}

// Emit delivers the event to every live subscriber in registration order.
func (b *EventBus) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			// queue full: shed the oldest event to keep ordering of the rest
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}

// Close ends the stream for all subscribers.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
