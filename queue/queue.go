// Package queue implements the Queue Manager (spec.md §4.6, §9): two FIFO
// queues — steering and follow-up — each with a configurable drain mode, and
// the sentinel stop-condition the Agent Loop combines with the caller's own
// stop condition.
package queue

import (
	"sync"

	"github.com/agentcore-go/agentcore/message"
)

// DrainMode controls how many queued batches a single drain removes.
type DrainMode string

const (
	// DrainOneAtATime removes exactly one queued batch per drain (default).
	DrainOneAtATime DrainMode = "one-at-a-time"
	// DrainAll removes every batch currently queued, flattened into one.
	DrainAll DrainMode = "all"
)

// Manager holds the steering and follow-up queues for one agent instance.
// Enqueue is safe to call from any goroutine; Drain/Peek are normally called
// by the loop's single task, but the mutex makes them safe regardless
// (spec.md §5: "a simple mutex or single-threaded invariant suffices").
type Manager struct {
	mu sync.Mutex

	steeringMode DrainMode
	followUpMode DrainMode
	steering     [][]*message.Message
	followUp     [][]*message.Message
}

// New constructs a Manager with the given drain modes. An empty DrainMode
// defaults to DrainOneAtATime, matching spec.md §6's configuration defaults.
func New(steeringMode, followUpMode DrainMode) *Manager {
	if steeringMode == "" {
		steeringMode = DrainOneAtATime
	}
	if followUpMode == "" {
		followUpMode = DrainOneAtATime
	}
	return &Manager{steeringMode: steeringMode, followUpMode: followUpMode}
}

// EnqueueSteering appends one batch of messages to the steering queue. A
// batch is usually a single user message, but callers may enqueue a
// pre-built list (e.g. a user message plus attachments).
func (m *Manager) EnqueueSteering(batch ...*message.Message) {
	if len(batch) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steering = append(m.steering, batch)
}

// EnqueueFollowUp appends one batch of messages to the follow-up queue.
func (m *Manager) EnqueueFollowUp(batch ...*message.Message) {
	if len(batch) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followUp = append(m.followUp, batch)
}

// SteeringPending reports whether the steering queue is non-empty. This is
// the sentinel stop condition of spec.md §4.6 step 4 and §9: the loop
// combines it with the caller's stop condition so a step is allowed to
// finish but the next model call waits for steering to drain. Reading
// length is the atomic check spec.md §5 calls for.
func (m *Manager) SteeringPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steering) > 0
}

// DrainSteering removes and returns messages from the steering queue per
// steeringMode, flattened into one ordered batch. Returns nil if empty.
func (m *Manager) DrainSteering() []*message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return drain(&m.steering, m.steeringMode)
}

// DrainFollowUp removes and returns messages from the follow-up queue per
// followUpMode, flattened into one ordered batch. Returns nil if empty.
func (m *Manager) DrainFollowUp() []*message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return drain(&m.followUp, m.followUpMode)
}

func drain(q *[][]*message.Message, mode DrainMode) []*message.Message {
	if len(*q) == 0 {
		return nil
	}
	var batches [][]*message.Message
	switch mode {
	case DrainAll:
		batches = *q
		*q = nil
	default: // DrainOneAtATime
		batches = (*q)[:1]
		*q = (*q)[1:]
	}
	var out []*message.Message
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}
