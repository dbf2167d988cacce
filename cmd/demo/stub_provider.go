package main

import (
	"context"

	"github.com/agentcore-go/agentcore/convert"
	"github.com/agentcore-go/agentcore/provider"
	"github.com/agentcore-go/agentcore/streamdecoder"
)

// stubProvider is a canned, offline provider.Provider used when no model
// API key is configured, mirroring the teacher's stubPlanner
// (cmd/demo/main.go): it requests the weather tool while the latest user
// turn mentions "weather" and no tool result has been seen, replies with
// the most recent tool result once there is one, and otherwise replies with
// a fixed greeting, so the demo runs end to end without network access.
type stubProvider struct{}

func (stubProvider) Stream(ctx context.Context, req provider.StreamRequest) (streamdecoder.Source, error) {
	if city, ok := wantsTool(req); ok {
		return newToolCallSource(req.ModelID, "get_weather", map[string]any{"city": extractCity(city)}), nil
	}

	text := "Hello from agentcore! Ask me about the weather and I'll call a tool."
	for _, m := range req.Messages {
		if m.Role != convert.ProviderRoleTool {
			continue
		}
		for _, part := range m.Parts {
			if v, ok := part.(convert.ProviderToolResult); ok {
				text = "Tool result: " + v.Output
			}
		}
	}
	return newFixedSource(req.ModelID, text), nil
}

// extractCity is a deliberately naive heuristic: the demo prompt is expected
// to end with the city name (e.g. "weather in Paris").
func extractCity(prompt string) string {
	words := splitWords(prompt)
	if len(words) == 0 {
		return "an unknown city"
	}
	return words[len(words)-1]
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

// wantsTool reports whether the stub should emit a tool call instead of
// plain text: the demo triggers its one registered tool whenever the latest
// user turn mentions "weather" and no tool result has been seen yet.
func wantsTool(req provider.StreamRequest) (string, bool) {
	var sawToolResult bool
	var lastUserText string
	for _, m := range req.Messages {
		switch m.Role {
		case convert.ProviderRoleTool:
			sawToolResult = true
		case convert.ProviderRoleUser:
			for _, part := range m.Parts {
				if v, ok := part.(convert.ProviderText); ok {
					lastUserText = v.Text
				}
			}
		}
	}
	if sawToolResult {
		return "", false
	}
	if containsFold(lastUserText, "weather") {
		return lastUserText, true
	}
	return "", false
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if equalFold(s[i:i+m], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// fixedSource replays a pre-built slice of fragments, either a plain-text
// reply or a single tool call depending on what Stream decided to emit.
type fixedSource struct {
	frags []streamdecoder.Fragment
	pos   int
}

func newFixedSource(modelID, text string) *fixedSource {
	return &fixedSource{frags: []streamdecoder.Fragment{
		{Kind: streamdecoder.KindStartStep, ModelID: modelID},
		{Kind: streamdecoder.KindTextStart},
		{Kind: streamdecoder.KindTextDelta, Text: text},
		{Kind: streamdecoder.KindTextEnd},
		{Kind: streamdecoder.KindFinishStep, ProviderStopReason: "stop"},
		{Kind: streamdecoder.KindFinish, ProviderStopReason: "stop"},
	}}
}

func newToolCallSource(modelID, toolName string, args map[string]any) *fixedSource {
	return &fixedSource{frags: []streamdecoder.Fragment{
		{Kind: streamdecoder.KindStartStep, ModelID: modelID},
		{Kind: streamdecoder.KindToolInputStart, ToolCallID: "demo-call-1", ToolName: toolName},
		{Kind: streamdecoder.KindToolCall, ToolCallID: "demo-call-1", ToolName: toolName, Args: args},
		{Kind: streamdecoder.KindFinishStep, ProviderStopReason: "tool-use"},
		{Kind: streamdecoder.KindFinish, ProviderStopReason: "tool-use"},
	}}
}

func (s *fixedSource) Next(ctx context.Context) (streamdecoder.Fragment, bool, error) {
	select {
	case <-ctx.Done():
		return streamdecoder.Fragment{}, false, ctx.Err()
	default:
	}
	if s.pos >= len(s.frags) {
		return streamdecoder.Fragment{}, false, nil
	}
	f := s.frags[s.pos]
	s.pos++
	return f, true, nil
}

func (s *fixedSource) Close() error { return nil }
