// Package convert implements the Message Converter (spec.md §4.3): it
// normalizes the heterogeneous message log (native rich messages, messages
// already shaped for the provider, and opaque custom envelopes) into the
// ordered list of ProviderMessage the model provider expects.
package convert

import (
	"encoding/base64"
	"fmt"

	"github.com/agentcore-go/agentcore/message"
)

// ProviderRole is one of the roles the model provider understands.
type ProviderRole string

const (
	ProviderRoleSystem    ProviderRole = "system"
	ProviderRoleUser      ProviderRole = "user"
	ProviderRoleAssistant ProviderRole = "assistant"
	ProviderRoleTool      ProviderRole = "tool"
)

// ProviderPart is one content block of a ProviderMessage.
type ProviderPart interface{ isProviderPart() }

type (
	ProviderText struct{ Text string }

	ProviderFile struct {
		MimeType string
		Data     []byte // base64-free; caller encodes when serializing on the wire
	}

	ProviderToolCall struct {
		ID        string
		Name      string
		Arguments map[string]any
	}

	ProviderToolResult struct {
		ToolCallID string
		Output     string
	}
)

func (ProviderText) isProviderPart()       {}
func (ProviderFile) isProviderPart()       {}
func (ProviderToolCall) isProviderPart()   {}
func (ProviderToolResult) isProviderPart() {}

// ProviderMessage is one entry of the provider-facing transcript.
type ProviderMessage struct {
	Role  ProviderRole
	Parts []ProviderPart
}

// Already lets a caller hand a pre-shaped ProviderMessage through the
// converter untouched (spec.md §4.3: "Provider-shaped messages ... pass
// through unchanged"). Wrap it with message.NewCustom before appending to
// the log.
type Already struct {
	Message ProviderMessage
}

// ToMessages converts a heterogeneous, ordered message log into the
// provider's expected input format, applying the rules of spec.md §4.3.
func ToMessages(log []*message.Message) []ProviderMessage {
	out := make([]ProviderMessage, 0, len(log))
	for _, m := range log {
		switch m.Role {
		case message.RoleUser:
			out = append(out, convertUser(m))
		case message.RoleAssistant:
			if pm, ok := convertAssistant(m); ok {
				out = append(out, pm)
			}
		case message.RoleToolResult:
			out = append(out, convertToolResult(m))
		case message.RoleCustom:
			if already, ok := m.Custom.(Already); ok {
				out = append(out, already.Message)
			}
			// Other custom envelopes are silently dropped from the
			// provider-facing view; they remain in the conversation log.
		}
	}
	return out
}

func convertUser(m *message.Message) ProviderMessage {
	if len(m.Parts) == 0 {
		return ProviderMessage{Role: ProviderRoleUser, Parts: []ProviderPart{ProviderText{Text: m.Text}}}
	}
	parts := make([]ProviderPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch v := p.(type) {
		case message.TextPart:
			parts = append(parts, ProviderText{Text: v.Text})
		case message.ImagePart:
			parts = append(parts, ProviderFile{MimeType: v.MimeType, Data: v.Data})
		case message.FilePart:
			parts = append(parts, ProviderFile{MimeType: v.MimeType, Data: v.Data})
		}
	}
	return ProviderMessage{Role: ProviderRoleUser, Parts: parts}
}

// convertAssistant strips reasoning parts (spec.md §4.3: "never sent back to
// the model"). If nothing remains, ok is false and the message is omitted
// from the output entirely.
func convertAssistant(m *message.Message) (ProviderMessage, bool) {
	if m.Assistant == nil {
		return ProviderMessage{}, false
	}
	parts := make([]ProviderPart, 0, len(m.Assistant.Parts))
	for _, p := range m.Assistant.Parts {
		switch v := p.(type) {
		case message.TextPart:
			parts = append(parts, ProviderText{Text: v.Text})
		case message.ToolCallPart:
			parts = append(parts, ProviderToolCall{ID: v.ID, Name: v.Name, Arguments: v.Arguments})
		case message.ReasoningPart:
			// stripped
		}
	}
	if len(parts) == 0 {
		return ProviderMessage{}, false
	}
	return ProviderMessage{Role: ProviderRoleAssistant, Parts: parts}, true
}

func convertToolResult(m *message.Message) ProviderMessage {
	if m.ToolResult == nil {
		return ProviderMessage{Role: ProviderRoleTool}
	}
	var output string
	for _, p := range m.ToolResult.Parts {
		switch v := p.(type) {
		case message.TextPart:
			output += v.Text
		case message.ImagePart:
			output += fmt.Sprintf("[image: %s]", v.MimeType)
		}
	}
	return ProviderMessage{
		Role: ProviderRoleTool,
		Parts: []ProviderPart{ProviderToolResult{
			ToolCallID: m.ToolResult.ToolCallID,
			Output:     output,
		}},
	}
}

// EncodeFile base64-encodes a ProviderFile's bytes for wire transmission,
// used by provider adapters (providers/anthropic, providers/openai) that
// embed file content directly in the request payload.
func EncodeFile(f ProviderFile) string {
	return base64.StdEncoding.EncodeToString(f.Data)
}
