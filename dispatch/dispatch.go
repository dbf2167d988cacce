// Package dispatch implements the Tool Dispatcher (spec.md §4.5): given an
// assistant message's ordered tool-call requests, it executes each host
// tool, emits lifecycle events, collects results as messages, and supports
// mid-batch abort when a steering message arrives.
package dispatch

import (
	"context"
	"fmt"

	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/streamdecoder"
	"github.com/agentcore-go/agentcore/tool"
	"github.com/agentcore-go/agentcore/tooladapter"
	"github.com/agentcore-go/agentcore/toolerrors"
)

// PreHookDecision is the tagged result of a pre-tool-use hook (spec.md §9).
type PreHookDecision struct {
	Decision    tool.ApprovalDecision
	Reason      string
	UpdatedArgs map[string]any // non-nil replaces the call's arguments when Decision is Allow
}

// Hooks are the optional dispatch-time hooks described in spec.md §4.5.
type Hooks struct {
	// PreHook runs before a tool executes. A nil PreHook always allows.
	PreHook func(ctx context.Context, toolCallID, toolName string, args map[string]any) PreHookDecision
	// PostHook runs after a tool executes successfully.
	PostHook func(ctx context.Context, toolCallID, toolName string, result tool.Result)
	// ApprovalAuthority, when set, resolves an "ask" decision instead of the
	// default deny-by-default policy (spec.md §4.5 step 3, §9).
	ApprovalAuthority func(ctx context.Context, toolCallID, toolName string, args map[string]any) (approved bool, reason string)
}

// Result is what Dispatch returns for one assistant message's batch.
type Result struct {
	// ToolResultMessages are the Tool-result messages produced, in call order.
	ToolResultMessages []*message.Message
	// SteeringBatch is non-empty when the steering queue interrupted the
	// batch; remaining calls were synthesized as skipped (spec.md §4.5 step 7).
	SteeringBatch []*message.Message
}

// Dispatch executes the ordered tool calls of asst sequentially, following
// spec.md §4.5. emit delivers lifecycle AgentEvents, including the
// message_start/message_end pair wrapped around each Tool-result message
// (step 6). steeringGetter is polled before each call (step 7); dedup
// is the same Dedup instance the Stream Decoder used for this step so
// tool_execution_start/end each fire exactly once per call id.
func Dispatch(
	ctx context.Context,
	asst *message.Message,
	tools *tool.Set,
	dedup *streamdecoder.Dedup,
	h Hooks,
	steeringGetter func() []*message.Message,
	emit func(hooks.AgentEvent),
) (Result, error) {
	var res Result
	if asst == nil || asst.Assistant == nil {
		return res, nil
	}
	calls := asst.Assistant.ToolCalls()

	for i, call := range calls {
		if batch := steeringGetter(); len(batch) > 0 {
			res.SteeringBatch = batch
			skipRemaining(ctx, calls[i:], dedup, emit, &res)
			return res, nil
		}

		msg, err := dispatchOne(ctx, call, tools, dedup, h, emit)
		if err != nil {
			return res, err
		}
		res.ToolResultMessages = append(res.ToolResultMessages, msg)
	}
	return res, nil
}

func dispatchOne(
	ctx context.Context,
	call message.ToolCallPart,
	tools *tool.Set,
	dedup *streamdecoder.Dedup,
	h Hooks,
	emit func(hooks.AgentEvent),
) (*message.Message, error) {
	startOnce := func(toolCallID, toolName string, input map[string]any) {
		if dedup.TryStart(toolCallID) {
			emit(hooks.NewToolExecutionStart(toolCallID, toolName, input))
		}
	}
	endOnce := func(toolCallID, toolName string, result tool.Result, isError bool) {
		if dedup.TryEnd(toolCallID) {
			emit(hooks.NewToolExecutionEnd(toolCallID, toolName, result.Output, isError))
		}
	}
	onUpdate := func(toolCallID, toolName string, partial tool.Result) {
		emit(hooks.NewToolExecutionUpdate(toolCallID, toolName, partial.Output))
	}

	startOnce(call.ID, call.Name, call.Arguments)

	def, ok := tools.Lookup(call.Name)
	if !ok {
		result := tool.Result{Output: toolerrors.Errorf("Tool %s not found", call.Name), IsError: true}
		endOnce(call.ID, call.Name, result, true)
		return appendToolResultMessage(emit, call, result.Output, true), nil
	}

	args := call.Arguments
	if h.PreHook != nil {
		decision := h.PreHook(ctx, call.ID, call.Name, args)
		switch decision.Decision {
		case "", tool.ApprovalAllow:
			if decision.UpdatedArgs != nil {
				args = decision.UpdatedArgs
			}
		case tool.ApprovalDeny:
			result := tool.Result{Output: toolerrors.Errorf("Tool call denied: %s", decision.Reason), IsError: true}
			endOnce(call.ID, call.Name, result, true)
			return appendToolResultMessage(emit, call, result.Output, true), nil
		case tool.ApprovalAsk:
			approved, reason := false, "approval required"
			if h.ApprovalAuthority != nil {
				approved, reason = h.ApprovalAuthority(ctx, call.ID, call.Name, args)
			}
			if !approved {
				result := tool.Result{Output: toolerrors.Errorf("Tool call denied: %s", reason), IsError: true}
				endOnce(call.ID, call.Name, result, true)
				return appendToolResultMessage(emit, call, result.Output, true), nil
			}
		}
	}

	if def.IsSchemaOnly() {
		// Schema-only tools have no user code; no adapter runs for them.
		endOnce(call.ID, call.Name, tool.Result{}, false)
		return appendToolResultMessage(emit, call, nil, false), nil
	}

	adapter := tooladapter.New(def, tooladapter.Handlers{
		OnStart:  func(string, string, map[string]any) {}, // already fired above
		OnUpdate: onUpdate,
		OnEnd: func(toolCallID, toolName string, result tool.Result, isError bool) {
			endOnce(toolCallID, toolName, result, isError)
			if !isError && h.PostHook != nil {
				h.PostHook(ctx, toolCallID, toolName, result)
			}
		},
	})

	output, execErr := adapter.Execute(ctx, call.ID, args, tool.ExecuteContext{ToolCallID: call.ID})
	isError := execErr != nil
	if execErr != nil {
		output = toolerrors.FromError(execErr)
	}
	return appendToolResultMessage(emit, call, output, isError), nil
}

func appendToolResultMessage(emit func(hooks.AgentEvent), call message.ToolCallPart, output any, isError bool) *message.Message {
	parts := []message.Part{message.TextPart{Text: resultText(output)}}
	msg := message.NewToolResult(call.ID, call.Name, parts, output, isError)
	emit(hooks.NewMessageStart(msg))
	emit(hooks.NewMessageEnd(msg))
	return msg
}

func resultText(output any) string {
	switch v := output.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// skipRemaining synthesizes a skipped Tool-result for each call not yet
// executed because the steering queue interrupted the batch (spec.md §4.5
// step 7). tool_execution_start fires here only for calls whose start the
// Stream Decoder has not already emitted (dedup); tool_execution_end fires
// for each call not yet ended.
func skipRemaining(ctx context.Context, calls []message.ToolCallPart, dedup *streamdecoder.Dedup, emit func(hooks.AgentEvent), res *Result) {
	for _, call := range calls {
		if dedup.TryStart(call.ID) {
			emit(hooks.NewToolExecutionStart(call.ID, call.Name, call.Arguments))
		}
		const skipMsg = "Skipped due to queued user message."
		if dedup.TryEnd(call.ID) {
			emit(hooks.NewToolExecutionEnd(call.ID, call.Name, skipMsg, true))
		}
		msg := appendToolResultMessage(emit, call, skipMsg, true)
		res.ToolResultMessages = append(res.ToolResultMessages, msg)
	}
}
