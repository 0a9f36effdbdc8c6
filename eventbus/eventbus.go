package eventbus

import (
	"context"
	"sync"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/google/uuid"
)

// Handler is called for every published event. Handlers must not block.
type Handler func(ctx context.Context, event *history.Event)

// Bus broadcasts appended events to every interested party, possibly on other nodes.
type Bus interface {
	// Publish delivers the given events to all subscribers
	Publish(ctx context.Context, events ...*history.Event) error

	// Subscribe registers a handler for all events. The returned function removes the subscription.
	Subscribe(handler Handler) (unsubscribe func())

	Close() error
}

// Envelope carries an event to other nodes. Origin identifies the publishing bus so it can skip its own
// events, which it already delivered locally.
type Envelope struct {
	Origin string         `json:"origin"`
	Event  *history.Event `json:"event"`
}

// NewOrigin returns a unique identifier for a bus instance
func NewOrigin() string {
	return uuid.NewString()
}

type localBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

var _ Bus = (*localBus)(nil)

// NewLocalBus returns a bus delivering events within this process
func NewLocalBus() *localBus {
	return &localBus{
		handlers: make(map[int]Handler),
	}
}

func (b *localBus) Publish(ctx context.Context, events ...*history.Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, event := range events {
		for _, h := range handlers {
			h(ctx, event)
		}
	}

	return nil
}

func (b *localBus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.handlers, id)
	}
}

func (b *localBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[int]Handler)

	return nil
}
