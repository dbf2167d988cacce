package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MarshalJSON encodes a Message while preserving the concrete Part types
// carried in Parts and Assistant.Parts via an explicit Kind discriminator, so
// round-trips through a session store do not lose type information when
// parts are stored as an interface slice.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role       Role           `json:"role"`
		Text       string         `json:"text,omitempty"`
		Parts      []any          `json:"parts,omitempty"`
		Assistant  *assistantJSON `json:"assistant,omitempty"`
		ToolResult *toolResultJSON `json:"toolResult,omitempty"`
		Custom     any            `json:"custom,omitempty"`
		Timestamp  string         `json:"timestamp"`
	}
	out := alias{Role: m.Role, Text: m.Text, Custom: m.Custom, Timestamp: m.Timestamp.Format(timeLayout)}
	if len(m.Parts) > 0 {
		parts, err := encodeParts(m.Parts)
		if err != nil {
			return nil, fmt.Errorf("encode parts: %w", err)
		}
		out.Parts = parts
	}
	if m.Assistant != nil {
		aj, err := toAssistantJSON(m.Assistant)
		if err != nil {
			return nil, fmt.Errorf("encode assistant: %w", err)
		}
		out.Assistant = aj
	}
	if m.ToolResult != nil {
		tj, err := toToolResultJSON(m.ToolResult)
		if err != nil {
			return nil, fmt.Errorf("encode toolResult: %w", err)
		}
		out.ToolResult = tj
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a Message, materializing concrete Part
// implementations stored in Parts and Assistant.Parts.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role       Role              `json:"role"`
		Text       string            `json:"text"`
		Parts      []json.RawMessage `json:"parts"`
		Assistant  *assistantJSON    `json:"assistant"`
		ToolResult *toolResultJSON   `json:"toolResult"`
		Custom     any               `json:"custom"`
		Timestamp  string            `json:"timestamp"`
	}
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.Role = tmp.Role
	m.Text = tmp.Text
	m.Custom = tmp.Custom
	if tmp.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, tmp.Timestamp)
		if err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		m.Timestamp = ts
	}
	if len(tmp.Parts) > 0 {
		parts, err := decodeParts(tmp.Parts)
		if err != nil {
			return fmt.Errorf("decode parts: %w", err)
		}
		m.Parts = parts
	}
	if tmp.Assistant != nil {
		a, err := fromAssistantJSON(tmp.Assistant)
		if err != nil {
			return fmt.Errorf("decode assistant: %w", err)
		}
		m.Assistant = a
	}
	if tmp.ToolResult != nil {
		tr, err := fromToolResultJSON(tmp.ToolResult)
		if err != nil {
			return fmt.Errorf("decode toolResult: %w", err)
		}
		m.ToolResult = tr
	}
	return nil
}

type assistantJSON struct {
	Parts      []any      `json:"parts,omitempty"`
	ModelID    string     `json:"modelId"`
	Usage      TokenUsage `json:"usage"`
	StopReason StopReason `json:"stopReason"`
	Error      string     `json:"error,omitempty"`
}

func toAssistantJSON(a *Assistant) (*assistantJSON, error) {
	parts, err := encodeParts(a.Parts)
	if err != nil {
		return nil, err
	}
	return &assistantJSON{Parts: parts, ModelID: a.ModelID, Usage: a.Usage, StopReason: a.StopReason, Error: a.Error}, nil
}

func fromAssistantJSON(aj *assistantJSON) (*Assistant, error) {
	parts, err := decodeRawParts(aj.Parts)
	if err != nil {
		return nil, err
	}
	return &Assistant{Parts: parts, ModelID: aj.ModelID, Usage: aj.Usage, StopReason: aj.StopReason, Error: aj.Error}, nil
}

type toolResultJSON struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Parts      []any  `json:"parts,omitempty"`
	Details    any    `json:"details,omitempty"`
	IsError    bool   `json:"isError"`
}

func toToolResultJSON(tr *ToolResult) (*toolResultJSON, error) {
	parts, err := encodeParts(tr.Parts)
	if err != nil {
		return nil, err
	}
	return &toolResultJSON{ToolCallID: tr.ToolCallID, ToolName: tr.ToolName, Parts: parts, Details: tr.Details, IsError: tr.IsError}, nil
}

func fromToolResultJSON(tj *toolResultJSON) (*ToolResult, error) {
	parts, err := decodeRawParts(tj.Parts)
	if err != nil {
		return nil, err
	}
	return &ToolResult{ToolCallID: tj.ToolCallID, ToolName: tj.ToolName, Parts: parts, Details: tj.Details, IsError: tj.IsError}, nil
}

// decodeRawParts re-marshals already-decoded `any` values (from a parent
// json.Unmarshal into []any) back into json.RawMessage so decodePart can
// apply its Kind-discriminated switch uniformly.
func decodeRawParts(parts []any) ([]Part, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	raw := make([]json.RawMessage, len(parts))
	for i, p := range parts {
		enc, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode parts[%d]: %w", i, err)
		}
		raw[i] = enc
	}
	return decodeParts(raw)
}

func encodeParts(parts []Part) ([]any, error) {
	out := make([]any, 0, len(parts))
	for i, p := range parts {
		enc, err := encodePart(p)
		if err != nil {
			return nil, fmt.Errorf("parts[%d]: %w", i, err)
		}
		out = append(out, enc)
	}
	return out, nil
}

func decodeParts(raw []json.RawMessage) ([]Part, error) {
	out := make([]Part, 0, len(raw))
	for i, r := range raw {
		p, err := decodePart(r)
		if err != nil {
			return nil, fmt.Errorf("parts[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func encodePart(p Part) (any, error) {
	switch v := p.(type) {
	case TextPart:
		return struct {
			Kind string `json:"kind"`
			TextPart
		}{Kind: "text", TextPart: v}, nil
	case ImagePart:
		return struct {
			Kind string `json:"kind"`
			ImagePart
		}{Kind: "image", ImagePart: v}, nil
	case FilePart:
		return struct {
			Kind string `json:"kind"`
			FilePart
		}{Kind: "file", FilePart: v}, nil
	case ReasoningPart:
		return struct {
			Kind string `json:"kind"`
			ReasoningPart
		}{Kind: "reasoning", ReasoningPart: v}, nil
	case ToolCallPart:
		return struct {
			Kind string `json:"kind"`
			ToolCallPart
		}{Kind: "tool-call", ToolCallPart: v}, nil
	default:
		return nil, fmt.Errorf("unknown part type %T", p)
	}
}

func decodePart(raw json.RawMessage) (Part, error) {
	var disc struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &disc); err != nil {
		return nil, fmt.Errorf("decode kind: %w", err)
	}
	switch disc.Kind {
	case "text":
		var p TextPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode TextPart: %w", err)
		}
		return p, nil
	case "image":
		var p ImagePart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode ImagePart: %w", err)
		}
		return p, nil
	case "file":
		var p FilePart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode FilePart: %w", err)
		}
		return p, nil
	case "reasoning":
		var p ReasoningPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode ReasoningPart: %w", err)
		}
		return p, nil
	case "tool-call":
		var p ToolCallPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode ToolCallPart: %w", err)
		}
		return p, nil
	case "":
		return nil, errors.New("part missing kind discriminator")
	default:
		return nil, fmt.Errorf("unknown part kind %q", disc.Kind)
	}
}

const timeLayout = time.RFC3339Nano
