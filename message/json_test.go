package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartRoundTripPreservesKind(t *testing.T) {
	cases := []struct {
		name string
		part Part
		kind string
	}{
		{name: "text", part: TextPart{Text: "hi"}, kind: "text"},
		{name: "image", part: ImagePart{MimeType: "image/png", Data: []byte{1, 2, 3}}, kind: "image"},
		{name: "file", part: FilePart{Name: "a.txt", MimeType: "text/plain", Data: []byte("x")}, kind: "file"},
		{name: "reasoning", part: ReasoningPart{Text: "thinking"}, kind: "reasoning"},
		{name: "tool-call", part: ToolCallPart{ID: "c1", Name: "search", Arguments: map[string]any{"q": "go"}}, kind: "tool-call"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := encodePart(tt.part)
			require.NoError(t, err)
			raw, err := json.Marshal(enc)
			require.NoError(t, err)

			var disc struct {
				Kind string `json:"kind"`
			}
			require.NoError(t, json.Unmarshal(raw, &disc))
			require.Equal(t, tt.kind, disc.Kind)

			decoded, err := decodePart(raw)
			require.NoError(t, err)
			require.Equal(t, tt.part, decoded)
		})
	}
}

func TestDecodePartRejectsMissingKind(t *testing.T) {
	_, err := decodePart([]byte(`{"text":"no kind"}`))
	require.Error(t, err)
}

func TestMessageRoundTripUser(t *testing.T) {
	orig := NewUserParts(TextPart{Text: "hello"}, ImagePart{MimeType: "image/jpeg", Data: []byte{9}})

	raw, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))

	require.Equal(t, orig.Role, decoded.Role)
	require.Equal(t, orig.Parts, decoded.Parts)
	require.WithinDuration(t, orig.Timestamp, decoded.Timestamp, 0)
}

func TestMessageRoundTripAssistant(t *testing.T) {
	orig := NewAssistantBuffer("model-x")
	orig.Assistant.Parts = []Part{
		TextPart{Text: "thinking out loud"},
		ToolCallPart{ID: "call-1", Name: "get_weather", Arguments: map[string]any{"city": "Lisbon"}},
	}
	orig.Assistant.StopReason = StopReasonToolUse
	orig.Assistant.Usage = TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}

	raw, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))

	require.Equal(t, RoleAssistant, decoded.Role)
	require.Equal(t, orig.Assistant.Parts, decoded.Assistant.Parts)
	require.Equal(t, orig.Assistant.StopReason, decoded.Assistant.StopReason)
	require.Equal(t, orig.Assistant.Usage, decoded.Assistant.Usage)
}

func TestMessageRoundTripToolResult(t *testing.T) {
	orig := NewToolResult("call-1", "get_weather", []Part{TextPart{Text: "sunny"}}, map[string]any{"tempC": 22}, false)

	raw, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))

	require.Equal(t, RoleToolResult, decoded.Role)
	require.Equal(t, orig.ToolResult.ToolCallID, decoded.ToolResult.ToolCallID)
	require.Equal(t, orig.ToolResult.ToolName, decoded.ToolResult.ToolName)
	require.Equal(t, orig.ToolResult.Parts, decoded.ToolResult.Parts)
	require.False(t, decoded.ToolResult.IsError)
}

func TestMessageUnmarshalRejectsBadTimestamp(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"role":"user","timestamp":"not-a-time"}`), &m)
	require.Error(t, err)
}
