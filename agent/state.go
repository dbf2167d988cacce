package agent

import (
	"sync"

	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/message"
)

// State is the runtime-observable AgentState of spec.md §3: message log,
// streaming flag, pending tool-call set, and last error. The Agent Loop is
// its single writer; reads are safe from any goroutine.
type State struct {
	mu sync.RWMutex

	instructions string
	messages     []*message.Message
	isStreaming  bool
	pending      map[string]bool // toolCallID -> awaiting tool_execution_end
	streamMsg    *message.Message
	lastError    error
}

func newState(instructions string) *State {
	return &State{instructions: instructions, pending: make(map[string]bool)}
}

// Messages returns a snapshot copy of the conversation log.
func (s *State) Messages() []*message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*message.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// IsStreaming reports whether a run is currently in progress.
func (s *State) IsStreaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isStreaming
}

// PendingToolCalls returns the tool-call ids currently awaiting
// tool_execution_end, exposed read-only to subscribers (spec.md §5).
func (s *State) PendingToolCalls() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	return out
}

// LastError returns the error from the most recently failed run, if any.
func (s *State) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// StreamMessage returns the in-progress assistant message, non-nil only
// between a message_start and message_end for it (spec.md §3).
func (s *State) StreamMessage() *message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamMsg
}

func (s *State) append(m *message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// observe updates pending-tool-call and stream-message bookkeeping from the
// event stream itself, keeping a single source of truth instead of
// duplicating the decoder/dispatcher's own lifecycle tracking (spec.md §9:
// the Event bus is a simple set of listeners; this is one of them,
// registered internally before any caller-supplied subscriber).
func (s *State) observe(e hooks.AgentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Type {
	case hooks.EventMessageStart:
		if e.Message != nil && e.Message.Role == message.RoleAssistant {
			s.streamMsg = e.Message
		}
	case hooks.EventMessageEnd:
		if e.Message != nil && e.Message.Role == message.RoleAssistant && e.Message == s.streamMsg {
			s.streamMsg = nil
		}
	case hooks.EventToolExecutionStart:
		s.pending[e.ToolCallID] = true
	case hooks.EventToolExecutionEnd:
		delete(s.pending, e.ToolCallID)
	}
}

func (s *State) resetRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isStreaming = true
	s.lastError = nil
	s.pending = make(map[string]bool)
	s.streamMsg = nil
}

func (s *State) endRun(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isStreaming = false
	s.pending = make(map[string]bool)
	s.streamMsg = nil
	s.lastError = err
}
