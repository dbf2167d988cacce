// Package memstore provides an in-memory session.Store for tests and local
// development, grounded on the teacher's in-process memory store idiom
// (runtime/agents/memory/inmem): a mutex-guarded slice, defensively copied
// on every read and write so callers cannot mutate internal state.
package memstore

import (
	"context"
	"sync"

	"github.com/agentcore-go/agentcore/session"
)

// Store implements session.Store using an in-process slice. Data is not
// persisted across restarts.
type Store struct {
	mu      sync.RWMutex
	entries []session.Entry
}

// New returns a ready-to-use Store with no entries.
func New() *Store {
	return &Store{}
}

// Append appends entry to the in-process log.
func (s *Store) Append(_ context.Context, entry session.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Load returns every entry recorded so far, in append order.
func (s *Store) Load(_ context.Context) (session.Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := make([]session.Entry, len(s.entries))
	copy(cloned, s.entries)
	return session.Tree{Entries: cloned}, nil
}

// Reset clears all stored entries. Primarily useful in tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
