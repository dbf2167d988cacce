// Package session implements the Session Recorder (spec.md §4.7): a
// subscriber that writes message_end events as parent-linked entries to a
// pluggable store, plus the SessionEntry data model of spec.md §3.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/resilience"
	"github.com/agentcore-go/agentcore/telemetry"
)

// PayloadKind tags the variant carried by a SessionEntry.
type PayloadKind string

const (
	PayloadMessage           PayloadKind = "message"
	PayloadThinkingLevel     PayloadKind = "thinking-level"
	PayloadModelChange       PayloadKind = "model-change"
	PayloadCompactionSummary PayloadKind = "compaction-summary"
	PayloadBranchSummary     PayloadKind = "branch-summary"
	PayloadLabel             PayloadKind = "label"
	PayloadCustom            PayloadKind = "custom"
)

// Entry is a persisted record with a stable id, an optional parent id
// (forming a linked list or tree), a timestamp, and a tagged payload
// variant (spec.md §3). The parent chain from any leaf reconstructs the
// conversation that produced it.
type Entry struct {
	ID        string
	ParentID  string // empty for a root entry
	Kind      PayloadKind
	Timestamp time.Time

	// Message is populated when Kind == PayloadMessage.
	Message *message.Message
	// ThinkingLevel is populated when Kind == PayloadThinkingLevel.
	ThinkingLevel string
	// ModelID is populated when Kind == PayloadModelChange.
	ModelID string
	// Summary is populated for PayloadCompactionSummary / PayloadBranchSummary.
	Summary string
	// Label is populated when Kind == PayloadLabel.
	Label string
	// Custom is populated when Kind == PayloadCustom.
	Custom any
}

// Tree is the result of Store.Load: every entry recorded for a session, in
// append order. Parent chains need not be contiguous (spec.md §6).
type Tree struct {
	Entries []Entry
}

// ErrClosed reports an append to a store that has been closed. The stores in
// this module (memstore, mongostore, redisstore) have no close operation and
// never return it.
var ErrClosed = errors.New("session: store is closed")

// Store is the persistence collaborator (spec.md §4.7, §6): append(entry),
// load() -> tree.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Load(ctx context.Context) (Tree, error)
}

// Subscriber is implemented by anything the Recorder can attach to
// (normally *agent.Agent via its Subscribe method), kept narrow to avoid an
// import cycle between session and agent.
type Subscriber interface {
	Subscribe(fn func(hooks.AgentEvent)) (hooks.Subscription, error)
}

// Recorder subscribes to an agent's event bus and writes message_end events
// as parent-linked Entries to a Store (spec.md §4.7). Writes are serialized
// by one background task so entries are appended monotonically (spec.md
// §5) even though onEvent itself only enqueues and returns. Recording may
// be stopped and restarted; stopping removes the subscription and drains
// the queue.
type Recorder struct {
	store   Store
	tel     telemetry.Telemetry
	backoff resilience.BackoffConfig

	queue chan Entry
	done  chan struct{}

	mu          sync.Mutex
	sub         hooks.Subscription
	lastEntryID string
	closed      bool
}

// NewRecorder constructs a Recorder over store and starts its background
// writer task immediately. tel logs asynchronous append failures; a zero
// value is treated as telemetry.NewNoop().
func NewRecorder(store Store, tel telemetry.Telemetry) *Recorder {
	if tel.Logger == nil {
		tel = telemetry.NewNoop()
	}
	r := &Recorder{
		store:   store,
		tel:     tel,
		backoff: resilience.DefaultBackoff(),
		queue:   make(chan Entry, 1024),
		done:    make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// Start attaches the Recorder to src. Calling Start while already started
// is a no-op; callers must Stop first to reattach.
func (r *Recorder) Start(src Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return nil
	}
	if r.closed {
		// Restart after Stop: the previous writer has exited, so open a
		// fresh queue and writer task.
		r.queue = make(chan Entry, 1024)
		r.done = make(chan struct{})
		r.closed = false
		go r.writeLoop()
	}
	sub, err := src.Subscribe(r.onEvent)
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

// Stop removes the subscription and shuts down the background writer once
// its queue has drained.
func (r *Recorder) Stop() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	close(r.queue)
	<-r.done
}

func (r *Recorder) onEvent(e hooks.AgentEvent) {
	if e.Type != hooks.EventMessageEnd || e.Message == nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	parentID := r.lastEntryID
	entryID := uuid.NewString()
	r.lastEntryID = entryID
	r.mu.Unlock()

	r.queue <- Entry{
		ID:        entryID,
		ParentID:  parentID,
		Kind:      PayloadMessage,
		Timestamp: time.Now().UTC(),
		Message:   e.Message,
	}
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for entry := range r.queue {
		err := resilience.Retry(context.Background(), r.backoff, nil, func(ctx context.Context) error {
			return r.store.Append(ctx, entry)
		})
		if err != nil {
			r.tel.Logger.Error(context.Background(), "session: append failed", "entry_id", entry.ID, "err", err)
		}
	}
}
