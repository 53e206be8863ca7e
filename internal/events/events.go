// Package events carries session-change notifications. Subscribers hold an
// explicit unsubscribe handle for the lifetime of their subscription.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names the kind of session change.
type Type string

const (
	SignedIn       Type = "SIGNED_IN"
	SignedOut      Type = "SIGNED_OUT"
	TokenRefreshed Type = "TOKEN_REFRESHED"
	UserUpdated    Type = "USER_UPDATED"
)

// Event is one session change for an identity.
type Event struct {
	Type       Type      `json:"type"`
	IdentityID uuid.UUID `json:"identity_id"`
	At         time.Time `json:"at"`
}

// New stamps an event with the current time.
func New(t Type, identityID uuid.UUID) Event {
	return Event{Type: t, IdentityID: identityID, At: time.Now().UTC()}
}

// Handler receives events. Implementations call it from a single goroutine
// per subscription, in publish order.
type Handler func(Event)

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber registers handlers. The returned function releases the
// subscription; calling it more than once is safe.
type Subscriber interface {
	Subscribe(ctx context.Context, fn Handler) (unsubscribe func(), err error)
}

// Bus is both ends of a notification channel.
type Bus interface {
	Publisher
	Subscriber
}

// Broadcaster is an in-process Bus. Publish delivers synchronously to every
// current subscriber.
type Broadcaster struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{handlers: make(map[uint64]Handler)}
}

func (b *Broadcaster) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *Broadcaster) Subscribe(_ context.Context, fn Handler) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}, nil
}

// Subscribers reports how many subscriptions are live.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
