// Package hooks provides the EventStream primitive (spec.md §4.1) and the
// AgentEvent bus/taxonomy (spec.md §6) used to multiplex run progress to
// subscribers. EventStream is deliberately single-producer/single-consumer;
// the N-subscriber fan-out used for AgentEvent delivery is a separate Bus,
// grounded on the teacher's hooks.Bus fan-out pattern but adapted to this
// core's tagged AgentEvent type instead of goa-ai's workflow-scoped events.
package hooks

import (
	"context"
	"sync"
)

// Stream is a single-producer/single-consumer asynchronous sequence of
// events T with an optional terminal result R (spec.md §4.1).
//
// Ordering is strictly FIFO: consuming the sequence yields every buffered
// event in order, then any events pushed while awaiting, then terminates
// after End. Pushes after End are silently dropped. There is no internal
// failure mode; Next surfaces only context cancellation.
type Stream[T any, R any] struct {
	mu     sync.Mutex
	items  []T
	ended  bool
	result R
	hasRes bool
	notify chan struct{}
	resCh  chan struct{}
}

// NewStream constructs a ready-to-use Stream.
func NewStream[T any, R any]() *Stream[T, R] {
	return &Stream[T, R]{notify: make(chan struct{}), resCh: make(chan struct{})}
}

// Push hands the event directly to an awaiting consumer, or buffers it FIFO
// if none is currently waiting. Pushes after End are silently dropped.
func (s *Stream[T, R]) Push(event T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.items = append(s.items, event)
	s.wakeConsumer()
}

// End marks the stream complete. Any consumer currently awaiting Next
// resolves to done; subsequent calls to Next also return done once buffered
// events already pushed before End have been drained. If result is provided
// it resolves the handle returned by Result.
func (s *Stream[T, R]) End(result ...R) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	if len(result) > 0 {
		s.result = result[0]
		s.hasRes = true
	}
	s.wakeConsumer()
	close(s.resCh)
}

// Next blocks until an event is available, the stream ends, or ctx is
// canceled. It returns (event, true, nil) for each buffered or pushed event
// in FIFO order, then (zero, false, nil) once the stream has ended and the
// buffer has drained, or (zero, false, ctx.Err()) on cancellation.
func (s *Stream[T, R]) Next(ctx context.Context) (T, bool, error) {
	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			item := s.items[0]
			s.items = s.items[1:]
			s.mu.Unlock()
			return item, true, nil
		}
		if s.ended {
			s.mu.Unlock()
			var zero T
			return zero, false, nil
		}
		ch := s.notify
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}
}

// ResultHandle resolves once End is called with a result value.
type ResultHandle[R any] struct {
	resCh  chan struct{}
	mu     *sync.Mutex
	result *R
	hasRes *bool
}

// Result returns a single-shot handle that resolves when End is called; its
// Await reports whether End was given a result value.
func (s *Stream[T, R]) Result() ResultHandle[R] {
	return ResultHandle[R]{resCh: s.resCh, mu: &s.mu, result: &s.result, hasRes: &s.hasRes}
}

// Await blocks until the stream ends or ctx is canceled, returning the
// terminal result if one was provided to End.
func (h ResultHandle[R]) Await(ctx context.Context) (R, bool, error) {
	select {
	case <-h.resCh:
		h.mu.Lock()
		defer h.mu.Unlock()
		return *h.result, *h.hasRes, nil
	case <-ctx.Done():
		var zero R
		return zero, false, ctx.Err()
	}
}

// wakeConsumer must be called with s.mu held. It unblocks any goroutine
// currently parked in Next without requiring the caller to coordinate
// separately, by closing and replacing the notification channel.
func (s *Stream[T, R]) wakeConsumer() {
	close(s.notify)
	s.notify = make(chan struct{})
}
