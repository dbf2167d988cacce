// Package tooladapter wraps a tool.Definition and mediates start/update/end
// notifications, converting sync values, promised values (here: functions
// that simply return after blocking), and lazy sequences uniformly (spec.md
// §4.2).
package tooladapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/tool"
)

// Handlers are the lifecycle callbacks the dispatcher supplies to an Adapter.
// ShouldSkip, when it returns a non-empty reason, pre-empts execution
// entirely (spec.md §4.2 step 2 — the steering skip-on-steer path).
type Handlers struct {
	OnStart  func(toolCallID, toolName string, input map[string]any)
	OnUpdate func(toolCallID, toolName string, partial tool.Result)
	OnEnd    func(toolCallID, toolName string, result tool.Result, isError bool)
	ShouldSkip func(toolCallID string) (reason string, skip bool)
}

// Adapter wraps one tool.Definition and exposes it as a uniform Execute
// entry point regardless of whether the definition's Execute/ExecuteLazy
// returns a single value or a lazy sequence of partial results.
//
// Duplicate onStart for the same toolCallID must be suppressed by the
// caller (the Dispatcher, §4.5): the Adapter itself does not deduplicate —
// it may see both an explicit dispatcher-driven start and one the decoder
// already fired for the same id.
type Adapter struct {
	def *tool.Definition
	h   Handlers

	mu  sync.Mutex
	ui  map[string]any // last stored UI value, keyed by toolCallID
}

// New constructs an Adapter for def with the given lifecycle Handlers.
func New(def *tool.Definition, h Handlers) *Adapter {
	return &Adapter{def: def, h: h, ui: make(map[string]any)}
}

// Execute runs the adapted tool for one call, following the protocol in
// spec.md §4.2:
//  1. onStart fires before user code runs.
//  2. ShouldSkip, if it returns true, synthesizes a skipped error result and
//     never invokes user code.
//  3. Otherwise the definition's Execute/ExecuteLazy runs; lazy sequences
//     stream onUpdate per item, single values resolve once.
//  4. A panic/error from user code is captured, onEnd fires with isError,
//     and the error is returned to the caller.
func (a *Adapter) Execute(ctx context.Context, toolCallID string, input map[string]any, ec tool.ExecuteContext) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("tool %s panicked: %v", a.def.Name, p)
			if a.h.OnEnd != nil {
				a.h.OnEnd(toolCallID, a.def.Name, tool.Result{Output: err, IsError: true}, true)
			}
		}
	}()
	if a.h.OnStart != nil {
		a.h.OnStart(toolCallID, a.def.Name, input)
	}

	if a.h.ShouldSkip != nil {
		if reason, skip := a.h.ShouldSkip(toolCallID); skip {
			result := tool.Result{Output: map[string]any{"skipped": true, "reason": reason}, IsError: true}
			a.storeUI(toolCallID, result.UI)
			if a.h.OnEnd != nil {
				a.h.OnEnd(toolCallID, a.def.Name, result, true)
			}
			return result.Output, nil
		}
	}

	switch {
	case a.def.ExecuteLazy != nil:
		return a.executeLazy(ctx, toolCallID, input, ec)
	case a.def.Execute != nil:
		return a.executeOnce(ctx, toolCallID, input, ec)
	default:
		// Schema-only tool: the dispatcher never routes here per spec.md §9,
		// but guard defensively rather than panicking.
		result := tool.Result{Output: nil}
		a.storeUI(toolCallID, nil)
		if a.h.OnEnd != nil {
			a.h.OnEnd(toolCallID, a.def.Name, result, false)
		}
		return nil, nil
	}
}

func (a *Adapter) executeOnce(ctx context.Context, toolCallID string, input map[string]any, ec tool.ExecuteContext) (any, error) {
	result, err := a.def.Execute(ctx, input, ec)
	if err != nil {
		failed := tool.Result{Output: err, IsError: true}
		if a.h.OnEnd != nil {
			a.h.OnEnd(toolCallID, a.def.Name, failed, true)
		}
		return nil, err
	}
	if result.Output == nil && !result.IsError {
		result.Output = struct{}{}
	}
	a.storeUI(toolCallID, result.UI)
	if a.h.OnEnd != nil {
		a.h.OnEnd(toolCallID, a.def.Name, result, result.IsError)
	}
	return result.Output, nil
}

func (a *Adapter) executeLazy(ctx context.Context, toolCallID string, input map[string]any, ec tool.ExecuteContext) (any, error) {
	seq, err := a.def.ExecuteLazy(ctx, input, ec)
	if err != nil {
		failed := tool.Result{Output: err, IsError: true}
		if a.h.OnEnd != nil {
			a.h.OnEnd(toolCallID, a.def.Name, failed, true)
		}
		return nil, err
	}
	defer func() { _ = seq.Close() }()

	var last tool.Result
	for {
		select {
		case <-ctx.Done():
			aborted := tool.Result{Output: ctx.Err(), IsError: true}
			if a.h.OnEnd != nil {
				a.h.OnEnd(toolCallID, a.def.Name, aborted, true)
			}
			return nil, ctx.Err()
		default:
		}

		item, ok, err := seq.Next(ctx)
		if err != nil {
			failed := tool.Result{Output: err, IsError: true}
			if a.h.OnEnd != nil {
				a.h.OnEnd(toolCallID, a.def.Name, failed, true)
			}
			return nil, err
		}
		if !ok {
			break
		}
		last = item
		a.storeUI(toolCallID, item.UI)
		if a.h.OnUpdate != nil {
			a.h.OnUpdate(toolCallID, a.def.Name, item)
		}
	}

	if a.h.OnEnd != nil {
		a.h.OnEnd(toolCallID, a.def.Name, last, false)
	}
	return last.Output, nil
}

// ToModelOutput invokes the definition's projector, if any, on the UI value
// stored for toolCallID, returning the text the model should see for this
// tool's result (spec.md §4.2 step 4). If no projector or no stored UI
// exists, it falls back to the text content of msg.
func (a *Adapter) ToModelOutput(toolCallID string, msg *message.Message) string {
	a.mu.Lock()
	ui, ok := a.ui[toolCallID]
	a.mu.Unlock()
	if ok && a.def.ToModelOutput != nil {
		return a.def.ToModelOutput(ui)
	}
	if msg != nil && msg.ToolResult != nil {
		return message.TextContent(msg.ToolResult.Parts)
	}
	return ""
}

func (a *Adapter) storeUI(toolCallID string, ui any) {
	a.mu.Lock()
	a.ui[toolCallID] = ui
	a.mu.Unlock()
}
