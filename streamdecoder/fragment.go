package streamdecoder

import (
	"context"

	"github.com/agentcore-go/agentcore/message"
)

// FragmentKind identifies one element of the provider's streaming sequence
// (spec.md §4.4, the Fragment collaborator of §6).
type FragmentKind string

const (
	KindStartStep  FragmentKind = "start-step"
	KindFinishStep FragmentKind = "finish-step"

	KindTextStart FragmentKind = "text-start"
	KindTextDelta FragmentKind = "text-delta"
	KindTextEnd   FragmentKind = "text-end"

	KindReasoningStart FragmentKind = "reasoning-start"
	KindReasoningDelta FragmentKind = "reasoning-delta"
	KindReasoningEnd   FragmentKind = "reasoning-end"

	KindToolInputStart FragmentKind = "tool-input-start"
	KindToolInputDelta FragmentKind = "tool-input-delta"
	KindToolCall       FragmentKind = "tool-call"
	KindToolResult     FragmentKind = "tool-result"
	KindToolError      FragmentKind = "tool-error"
	KindToolOutputDenied FragmentKind = "tool-output-denied"

	KindFinish FragmentKind = "finish"
	KindError  FragmentKind = "error"

	// Ignorable kinds: consumed for completeness but produce no decoder
	// state transition beyond an optional stream_part passthrough.
	KindSource          FragmentKind = "source"
	KindFile            FragmentKind = "file"
	KindRaw             FragmentKind = "raw"
	KindAbort           FragmentKind = "abort"
	KindApprovalRequest FragmentKind = "approval-request"
)

// Fragment is one element of the provider's streaming sequence. Only the
// fields relevant to Kind are populated; the rest are zero.
type Fragment struct {
	Kind FragmentKind

	// text-delta / reasoning-delta
	Text string

	// tool-input-start / tool-input-delta / tool-call
	ToolCallID  string
	ToolName    string
	ArgsDelta   string         // raw JSON fragment, tool-input-delta only
	Args        map[string]any // finalized arguments, tool-call only

	// tool-result / tool-error / tool-output-denied: a provider-side (server
	// executed) tool outcome delivered in-band, distinct from the
	// host-executed tools the Tool Dispatcher runs.
	ResultParts   []message.Part
	ResultDetails any
	DeniedReason  string

	// finish-step / finish
	ProviderStopReason string // e.g. "end_turn", "max_tokens", "tool_use"
	Usage              message.TokenUsage

	// error
	Err error

	// start-step
	ModelID string

	// ignorable kinds carry their raw payload here for stream_part passthrough
	Raw any
}

// Source is the lazy sequence of Fragments the model provider streams
// (spec.md §6: "fullStream: lazy-sequence<Fragment>"). Implementations must
// respect ctx cancellation.
type Source interface {
	Next(ctx context.Context) (Fragment, bool, error)
	Close() error
}
