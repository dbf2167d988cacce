// Package message defines the tagged conversation message types shared by the
// message converter, stream decoder, tool dispatcher, and session recorder.
// Messages are modeled as typed parts rather than flattened strings so that
// text, reasoning, and tool-call content keep their structure end to end.
package message

import "time"

// Role identifies the speaker of a Message.
type Role string

const (
	// RoleUser marks a message authored by the end user (or injected as
	// steering/follow-up input).
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the model.
	RoleAssistant Role = "assistant"
	// RoleToolResult marks a message carrying the outcome of a tool call.
	RoleToolResult Role = "tool-result"
	// RoleCustom marks an opaque envelope the core does not interpret.
	RoleCustom Role = "custom"
)

// StopReason records why an assistant message's generation stopped.
type StopReason string

const (
	StopReasonStop     StopReason = "stop"
	StopReasonLength   StopReason = "length"
	StopReasonToolUse  StopReason = "tool-use"
	StopReasonError    StopReason = "error"
	StopReasonAborted  StopReason = "aborted"
)

type (
	// Part is a marker interface implemented by all message content blocks.
	Part interface{ isPart() }

	// TextPart is plain text content.
	TextPart struct {
		Text string
	}

	// ImagePart carries image bytes attached to a user message.
	ImagePart struct {
		MimeType string
		Data     []byte
	}

	// FilePart carries arbitrary file bytes attached to a user message.
	FilePart struct {
		Name     string
		MimeType string
		Data     []byte
	}

	// ReasoningPart carries provider-issued reasoning/thinking content. It is
	// observable in events but the Message Converter strips it: it is never
	// replayed back to the model (spec.md §4.3).
	ReasoningPart struct {
		Text string
	}

	// ToolCallPart declares a tool invocation requested by the assistant.
	ToolCallPart struct {
		ID        string
		Name      string
		Arguments map[string]any
	}
)

func (TextPart) isPart()      {}
func (ImagePart) isPart()     {}
func (FilePart) isPart()      {}
func (ReasoningPart) isPart() {}
func (ToolCallPart) isPart()  {}

// Message is a single tagged-union conversation entry. Exactly one of the
// role-specific fields below is meaningful for a given Role; constructors
// (NewUserText, NewUserParts, NewToolResult, NewCustom) populate them
// correctly. Assistant messages are produced exclusively by the Stream
// Decoder via NewAssistantBuffer / mutation, never by this constructor set.
type Message struct {
	Role Role

	// User content: either Text (plain string shorthand) or Parts (ordered
	// text/image/file parts). At most one is populated.
	Text  string
	Parts []Part

	// Assistant content.
	Assistant *Assistant

	// Tool-result content.
	ToolResult *ToolResult

	// Custom opaque envelope content, passed through by the core but dropped
	// from the provider-facing view.
	Custom any

	// Timestamp records creation time in UTC.
	Timestamp time.Time
}

// Assistant is the content of a RoleAssistant message: an ordered sequence of
// parts drawn from {text, reasoning, tool-call}, plus model metadata.
type Assistant struct {
	// Parts are the ordered content blocks produced by the model.
	Parts []Part
	// ModelID identifies the model that produced this message.
	ModelID string
	// Usage carries cumulative token counters for the step that produced this
	// message.
	Usage TokenUsage
	// StopReason records why generation stopped.
	StopReason StopReason
	// Error carries a human-readable error message when StopReason is
	// StopReasonError.
	Error string
}

// ToolResult is the content of a RoleToolResult message.
type ToolResult struct {
	// ToolCallID references the assistant tool-call this result answers.
	ToolCallID string
	// ToolName is the name of the tool that was invoked.
	ToolName string
	// Parts carry text/image content the model can read.
	Parts []Part
	// Details carries structured, non-textual output for host-side consumers.
	Details any
	// IsError reports whether this result represents a tool failure.
	IsError bool
}

// TokenUsage tracks token counters for a model step.
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	CacheReadTokens  int
	CacheWriteTokens int
}

// NewUserText constructs a RoleUser message with plain text content.
func NewUserText(text string) *Message {
	return &Message{Role: RoleUser, Text: text, Timestamp: time.Now().UTC()}
}

// NewUserParts constructs a RoleUser message with ordered parts.
func NewUserParts(parts ...Part) *Message {
	return &Message{Role: RoleUser, Parts: parts, Timestamp: time.Now().UTC()}
}

// NewToolResult constructs a RoleToolResult message.
func NewToolResult(toolCallID, toolName string, parts []Part, details any, isError bool) *Message {
	return &Message{
		Role: RoleToolResult,
		ToolResult: &ToolResult{
			ToolCallID: toolCallID,
			ToolName:   toolName,
			Parts:      parts,
			Details:    details,
			IsError:    isError,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewCustom constructs a RoleCustom envelope message that the core passes
// through without interpretation.
func NewCustom(payload any) *Message {
	return &Message{Role: RoleCustom, Custom: payload, Timestamp: time.Now().UTC()}
}

// NewAssistantBuffer constructs an empty, in-progress RoleAssistant message
// for the Stream Decoder to mutate until message_end freezes it.
func NewAssistantBuffer(modelID string) *Message {
	return &Message{
		Role:      RoleAssistant,
		Assistant: &Assistant{ModelID: modelID},
		Timestamp: time.Now().UTC(),
	}
}

// TextContent concatenates all TextPart content in Parts (used for User
// messages that carry multi-part content and for ToolResult content).
func TextContent(parts []Part) string {
	var s string
	for _, p := range parts {
		if tp, ok := p.(TextPart); ok {
			s += tp.Text
		}
	}
	return s
}

// ToolCalls returns the ordered ToolCallPart entries of an assistant message.
func (a *Assistant) ToolCalls() []ToolCallPart {
	var calls []ToolCallPart
	for _, p := range a.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// Text concatenates the TextPart content of an assistant message, in order.
func (a *Assistant) Text() string {
	var s string
	for _, p := range a.Parts {
		if tp, ok := p.(TextPart); ok {
			s += tp.Text
		}
	}
	return s
}
