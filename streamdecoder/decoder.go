// Package streamdecoder implements the Stream Decoder (spec.md §4.4): it
// consumes the provider's fragment sequence and reconstructs the assistant
// message for one step while emitting the semantic AgentEvents the Agent
// Loop and its subscribers observe.
package streamdecoder

import (
	"context"
	"strings"

	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/message"
)

// StepOutcome is what one call to Decode produces for the Agent Loop: the
// finalized assistant message for the step, plus any tool-result messages
// the provider resolved server-side and delivered in-band (distinct from
// the tool calls the Tool Dispatcher still needs to execute).
type StepOutcome struct {
	Assistant         *message.Message
	ServerToolResults []*message.Message
}

type toolInputAccum struct {
	name string
	args strings.Builder
}

type decodeState struct {
	asst            *message.Message
	messageStarted  bool
	messageEnded    bool
	turnEnded       bool
	openTextIdx     int
	openReasonIdx   int
	toolInputs      map[string]*toolInputAccum
	errored         bool
	serverResults   []*message.Message
	emit            func(hooks.AgentEvent)
	dedup           *Dedup
}

// Decode drains src, reconstructing one step's assistant message and firing
// events on emit. dedup is owned by the caller (the Agent Loop) and shared
// with the Tool Dispatcher so tool_execution_start/end each fire exactly
// once per tool-call id regardless of which path observes it first
// (spec.md §4.4, §9).
//
// On ctx cancellation, Decode stops iterating, finalizes any open content
// slot, marks the assistant's stop reason "aborted", emits message_end for
// it, and returns (outcome, nil) — cancellation is not an error per
// spec.md §7.
func Decode(ctx context.Context, src Source, dedup *Dedup, modelID string, emit func(hooks.AgentEvent)) (*StepOutcome, error) {
	st := &decodeState{
		asst:          message.NewAssistantBuffer(modelID),
		openTextIdx:   -1,
		openReasonIdx: -1,
		toolInputs:    make(map[string]*toolInputAccum),
		emit:          emit,
		dedup:         dedup,
	}

	for {
		select {
		case <-ctx.Done():
			st.abort()
			return st.outcome(), nil
		default:
		}

		frag, ok, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				st.abort()
				return st.outcome(), nil
			}
			return st.outcome(), err
		}
		if !ok {
			st.closeMessageOnce()
			st.emitTurnEndOnce()
			return st.outcome(), nil
		}

		if st.errored && frag.Kind != KindFinishStep && frag.Kind != KindFinish {
			// spec.md §4.4: once 'error' fires, subsequent fragments for
			// this step are ignored until the step/stream closes.
			continue
		}

		switch frag.Kind {
		case KindStartStep:
			st.emit(hooks.NewTurnStart())

		case KindTextStart:
			st.ensureStarted()
			st.asst.Assistant.Parts = append(st.asst.Assistant.Parts, message.TextPart{})
			st.openTextIdx = len(st.asst.Assistant.Parts) - 1

		case KindTextDelta:
			if st.openTextIdx >= 0 {
				tp := st.asst.Assistant.Parts[st.openTextIdx].(message.TextPart)
				tp.Text += frag.Text
				st.asst.Assistant.Parts[st.openTextIdx] = tp
			}
			st.emit(hooks.NewMessageUpdate(st.asst, frag.Text))

		case KindTextEnd:
			st.openTextIdx = -1

		case KindReasoningStart:
			st.ensureStarted()
			st.asst.Assistant.Parts = append(st.asst.Assistant.Parts, message.ReasoningPart{})
			st.openReasonIdx = len(st.asst.Assistant.Parts) - 1

		case KindReasoningDelta:
			if st.openReasonIdx >= 0 {
				rp := st.asst.Assistant.Parts[st.openReasonIdx].(message.ReasoningPart)
				rp.Text += frag.Text
				st.asst.Assistant.Parts[st.openReasonIdx] = rp
			}
			st.emit(hooks.NewMessageUpdate(st.asst, frag.Text))

		case KindReasoningEnd:
			st.openReasonIdx = -1

		case KindToolInputStart:
			st.ensureStarted()
			st.toolInputs[frag.ToolCallID] = &toolInputAccum{name: frag.ToolName}

		case KindToolInputDelta:
			if acc, ok := st.toolInputs[frag.ToolCallID]; ok {
				acc.args.WriteString(frag.ArgsDelta)
			}
			st.emit(hooks.NewStreamPart(ToolInputDeltaPart{
				ToolCallID: frag.ToolCallID,
				ToolName:   frag.ToolName,
				Delta:      frag.ArgsDelta,
			}))

		case KindToolCall:
			st.ensureStarted()
			delete(st.toolInputs, frag.ToolCallID)
			st.asst.Assistant.Parts = append(st.asst.Assistant.Parts, message.ToolCallPart{
				ID:        frag.ToolCallID,
				Name:      frag.ToolName,
				Arguments: frag.Args,
			})
			if st.dedup.TryStart(frag.ToolCallID) {
				st.emit(hooks.NewToolExecutionStart(frag.ToolCallID, frag.ToolName, frag.Args))
			}

		case KindToolResult, KindToolError, KindToolOutputDenied:
			isError := frag.Kind != KindToolResult
			st.handleServerToolOutcome(frag, isError)

		case KindFinishStep:
			st.finalizeStep()

		case KindFinish:
			st.finalizeFinish(frag)

		case KindError:
			st.errored = true
			st.asst.Assistant.StopReason = message.StopReasonError
			if frag.Err != nil {
				st.asst.Assistant.Error = frag.Err.Error()
			}
			st.emit(hooks.NewError(frag.Err))

		default:
			// Ignorable kinds (source, file, raw, abort, approval-request):
			// surfaced only as a raw passthrough for advanced subscribers.
			st.emit(hooks.NewStreamPart(frag.Raw))
		}
	}
}

// ToolInputDeltaPart is the stream_part payload for tool-input-delta
// fragments: a best-effort UX signal, not the canonical tool payload
// (spec.md's ToolCallDelta contract).
type ToolInputDeltaPart struct {
	ToolCallID string
	ToolName   string
	Delta      string
}

func (st *decodeState) ensureStarted() {
	if !st.messageStarted {
		st.messageStarted = true
		st.emit(hooks.NewMessageStart(st.asst))
		return
	}
	st.emit(hooks.NewMessageUpdate(st.asst, ""))
}

func (st *decodeState) handleServerToolOutcome(frag Fragment, isError bool) {
	if !st.dedup.TryEnd(frag.ToolCallID) {
		return
	}
	var result any
	if isError {
		if frag.DeniedReason != "" {
			result = frag.DeniedReason
		} else if len(frag.ResultParts) > 0 {
			result = message.TextContent(frag.ResultParts)
		}
	} else {
		result = frag.ResultDetails
	}
	st.emit(hooks.NewToolExecutionEnd(frag.ToolCallID, frag.ToolName, result, isError))

	msg := message.NewToolResult(frag.ToolCallID, frag.ToolName, frag.ResultParts, frag.ResultDetails, isError)
	st.emit(hooks.NewMessageStart(msg))
	st.emit(hooks.NewMessageEnd(msg))
	st.serverResults = append(st.serverResults, msg)
}

// finalizeStep handles finish-step: it closes any open content slot but
// does not yet emit message_end/turn_end. The assistant's overall
// stop-reason and usage are only known once the subsequent 'finish'
// fragment arrives (spec.md §4.4), and message_end must carry the final,
// frozen content — so emission is deferred to finalizeFinish.
func (st *decodeState) finalizeStep() {
	st.openTextIdx = -1
	st.openReasonIdx = -1
}

// closeMessageOnce emits message_end exactly once for the step's assistant
// message, regardless of which path (the finish fragment, cancellation, or a
// stream that ends without a finish fragment) triggers it. A Source error
// returns from Decode without emitting message_end.
func (st *decodeState) closeMessageOnce() {
	if st.messageEnded {
		return
	}
	st.messageEnded = true
	if st.asst.Assistant.StopReason == "" {
		st.asst.Assistant.StopReason = message.StopReasonStop
	}
	st.emit(hooks.NewMessageEnd(st.asst))
}

func (st *decodeState) finalizeFinish(frag Fragment) {
	if st.asst.Assistant.StopReason != message.StopReasonError {
		switch {
		case len(st.asst.Assistant.ToolCalls()) > 0:
			st.asst.Assistant.StopReason = message.StopReasonToolUse
		case isLengthStop(frag.ProviderStopReason):
			st.asst.Assistant.StopReason = message.StopReasonLength
		default:
			st.asst.Assistant.StopReason = message.StopReasonStop
		}
	}
	st.asst.Assistant.Usage = frag.Usage
	st.closeMessageOnce()
	st.emitTurnEndOnce()
}

// emitTurnEndOnce emits turn_end exactly once per step, regardless of
// whether finalizeFinish, abort, or the end-of-stream branch triggers it.
func (st *decodeState) emitTurnEndOnce() {
	if st.turnEnded {
		return
	}
	st.turnEnded = true
	st.emit(hooks.NewTurnEnd(st.asst, st.serverResults))
}

func isLengthStop(providerStopReason string) bool {
	switch providerStopReason {
	case "length", "max_tokens", "max_output_tokens":
		return true
	default:
		return false
	}
}

func (st *decodeState) abort() {
	st.openTextIdx = -1
	st.openReasonIdx = -1
	st.asst.Assistant.StopReason = message.StopReasonAborted
	st.closeMessageOnce()
	st.emitTurnEndOnce()
}

func (st *decodeState) outcome() *StepOutcome {
	return &StepOutcome{Assistant: st.asst, ServerToolResults: st.serverResults}
}
