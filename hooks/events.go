package hooks

import (
	"github.com/agentcore-go/agentcore/message"
)

// EventType identifies the kind of AgentEvent (spec.md §6).
type EventType string

const (
	EventAgentStart         EventType = "agent_start"
	EventAgentEnd           EventType = "agent_end"
	EventTurnStart          EventType = "turn_start"
	EventTurnEnd            EventType = "turn_end"
	EventMessageStart       EventType = "message_start"
	EventMessageUpdate      EventType = "message_update"
	EventMessageEnd         EventType = "message_end"
	EventStreamPart         EventType = "stream_part"
	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolExecutionUpdate EventType = "tool_execution_update"
	EventToolExecutionEnd   EventType = "tool_execution_end"
	EventError              EventType = "error"
)

// AgentEvent is the tagged union delivered to run subscribers. Exactly one
// of the payload fields matching Type is meaningful; constructors in this
// file populate the right shape.
type AgentEvent struct {
	Type EventType

	// agent_end
	Messages []*message.Message

	// turn_end
	Message     *message.Message
	ToolResults []*message.Message

	// message_start / message_update / message_end
	// Message (above) carries the message; Delta carries the incremental
	// text fragment for message_update.
	Delta string

	// stream_part: raw passthrough payload for advanced subscribers.
	Part any

	// tool_execution_*
	ToolCallID   string
	ToolName     string
	Args         map[string]any
	PartialResult any
	Result        any
	IsError       bool

	// error
	Err error
}

func NewAgentStart() AgentEvent { return AgentEvent{Type: EventAgentStart} }

func NewAgentEnd(messages []*message.Message) AgentEvent {
	return AgentEvent{Type: EventAgentEnd, Messages: messages}
}

func NewTurnStart() AgentEvent { return AgentEvent{Type: EventTurnStart} }

func NewTurnEnd(msg *message.Message, toolResults []*message.Message) AgentEvent {
	return AgentEvent{Type: EventTurnEnd, Message: msg, ToolResults: toolResults}
}

func NewMessageStart(msg *message.Message) AgentEvent {
	return AgentEvent{Type: EventMessageStart, Message: msg}
}

func NewMessageUpdate(msg *message.Message, delta string) AgentEvent {
	return AgentEvent{Type: EventMessageUpdate, Message: msg, Delta: delta}
}

func NewMessageEnd(msg *message.Message) AgentEvent {
	return AgentEvent{Type: EventMessageEnd, Message: msg}
}

func NewStreamPart(part any) AgentEvent {
	return AgentEvent{Type: EventStreamPart, Part: part}
}

func NewToolExecutionStart(toolCallID, toolName string, args map[string]any) AgentEvent {
	return AgentEvent{Type: EventToolExecutionStart, ToolCallID: toolCallID, ToolName: toolName, Args: args}
}

func NewToolExecutionUpdate(toolCallID, toolName string, partial any) AgentEvent {
	return AgentEvent{Type: EventToolExecutionUpdate, ToolCallID: toolCallID, ToolName: toolName, PartialResult: partial}
}

func NewToolExecutionEnd(toolCallID, toolName string, result any, isError bool) AgentEvent {
	return AgentEvent{Type: EventToolExecutionEnd, ToolCallID: toolCallID, ToolName: toolName, Result: result, IsError: isError}
}

func NewError(err error) AgentEvent {
	return AgentEvent{Type: EventError, Err: err}
}
