// Package eventbus is a small in-process typed pub/sub bus used to fan out
// auth events (session eviction, high-risk audit records) to ancillary
// in-process consumers without coupling the producer to each consumer
// directly. No pack repo imports a third-party in-process event bus — the
// closest matches are external message brokers (SQS/SNS), a different
// concern from single-instance fan-out — so this is a standard-library
// channel implementation (see DESIGN.md's C15 entry for the justification).
package eventbus

import (
	"context"
	"sync"
)

// Event is anything published on the bus; Topic groups subscribers.
type Event struct {
	Topic string
	Data  any
}

// Handler consumes one published Event. Handlers run in their own goroutine
// and must not block indefinitely — the bus does not enforce a timeout, the
// handler owns that responsibility (mirroring C8's recoverAndLog pattern).
type Handler func(ctx context.Context, ev Event)

// Bus is a topic-keyed, fan-out publisher. Zero value is usable.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
}

func New() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers handler for topic. Order of delivery across handlers
// on the same topic is not guaranteed.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers == nil {
		b.subscribers = make(map[string][]Handler)
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish fans ev out to every handler subscribed to ev.Topic, each in its
// own goroutine, and returns immediately without waiting for delivery.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[ev.Topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		go h(ctx, ev)
	}
}
