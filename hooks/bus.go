package hooks

import (
	"errors"
	"sync"
)

// Bus fans AgentEvents out to every registered subscriber, synchronously and
// in registration order (spec.md §5: "listener invocation is synchronous
// with emission"). Unlike Stream, which is single-consumer, Bus supports any
// number of subscribers — callers, session recorders, and stream bridges all
// register independently.
//
// Listeners must not assume they can extend the event loop, and must not
// remove themselves mid-iteration; Publish iterates a snapshot so this is
// safe to do anyway (spec.md §9).
type Bus struct {
	mu          sync.RWMutex
	order       []*subscription
	subscribers map[*subscription]func(AgentEvent)
}

type subscription struct {
	bus  *Bus
	once sync.Once
}

// Subscription represents an active registration on a Bus.
type Subscription interface {
	// Close removes the subscriber. Idempotent and safe to call multiple times.
	Close()
}

// NewBus constructs an empty, ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[*subscription]func(AgentEvent))}
}

// Publish delivers event to every currently registered subscriber, in
// registration order, synchronously in the caller's goroutine. A snapshot of
// subscribers is taken before iteration so registration changes during
// Publish do not affect the current delivery.
func (b *Bus) Publish(event AgentEvent) {
	b.mu.RLock()
	subs := make([]func(AgentEvent), 0, len(b.order))
	for _, s := range b.order {
		if fn, ok := b.subscribers[s]; ok {
			subs = append(subs, fn)
		}
	}
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(event)
	}
}

// Register adds a subscriber and returns a Subscription that can be closed
// to unregister. Register returns an error if fn is nil.
func (b *Bus) Register(fn func(AgentEvent)) (Subscription, error) {
	if fn == nil {
		return nil, errors.New("hooks: subscriber function is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = fn
	b.order = append(b.order, s)
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
}
