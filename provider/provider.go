// Package provider defines the Model Provider collaborator (spec.md §6): the
// external streaming language-model interface the Agent Loop drives each
// step. Concrete implementations live in providers/anthropic and
// providers/openai; tests and the demo command use a fake.
package provider

import (
	"context"

	"github.com/agentcore-go/agentcore/convert"
	"github.com/agentcore-go/agentcore/streamdecoder"
	"github.com/agentcore-go/agentcore/tool"
)

// ToolChoice steers how the model selects among available tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// StreamRequest is the input to one model step (spec.md §6:
// "stream({messages, tools, toolChoice?, providerOptions?, headers?,
// callSettings?, abortSignal, ...})").
type StreamRequest struct {
	Messages       []convert.ProviderMessage
	Tools          []*tool.Definition
	ToolChoice     ToolChoice
	ProviderOptions map[string]any
	Headers        map[string]string
	ModelID        string
}

// Response carries the provider's final view of the step once the stream is
// exhausted, mirroring spec.md §6's "response: promised {messages: list}".
type Response struct {
	Messages []convert.ProviderMessage
}

// Provider is the model provider collaborator: it opens a streaming call and
// returns a lazy Fragment sequence. It does not return a Response.
type Provider interface {
	// Stream opens one model call and returns the fragment sequence the
	// Stream Decoder drives. The returned Source must respect ctx
	// cancellation (spec.md §6's abortSignal).
	Stream(ctx context.Context, req StreamRequest) (streamdecoder.Source, error)
}
