// Package agent implements the Agent Loop (spec.md §4.6): the top-level
// orchestrator that transforms context, converts the log, streams the model,
// dispatches tool calls, and drains the steering/follow-up queues across a
// run's steps.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore-go/agentcore/convert"
	"github.com/agentcore-go/agentcore/dispatch"
	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/provider"
	"github.com/agentcore-go/agentcore/queue"
	"github.com/agentcore-go/agentcore/streamdecoder"
	"github.com/agentcore-go/agentcore/telemetry"
	"github.com/agentcore-go/agentcore/tool"
)

// Agent is one runnable agent instance: instructions, a tool set, and the
// configuration/hooks that drive its run loop.
type Agent struct {
	cfg   Config
	h     Hooks
	tools *tool.Set
	tel   telemetry.Telemetry

	state *State
	bus   *hooks.Bus
	queue *queue.Manager

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New constructs an Agent. tools may be nil (no callable tools). A zero
// telemetry.Telemetry is replaced with telemetry.NewNoop().
func New(instructions string, tools *tool.Set, cfg Config, h Hooks, tel telemetry.Telemetry) *Agent {
	if tel.Logger == nil && tel.Metrics == nil && tel.Tracer == nil {
		tel = telemetry.NewNoop()
	}
	a := &Agent{
		cfg:   cfg.withDefaults(),
		h:     h,
		tools: tools,
		tel:   tel,
		state: newState(instructions),
		bus:   hooks.NewBus(),
		queue: queue.New(cfg.SteeringMode, cfg.FollowUpMode),
	}
	// Registered before any caller subscriber so State reflects each event
	// by the time external listeners observe it.
	_, _ = a.bus.Register(a.state.observe)
	return a
}

// State returns the agent's runtime-observable state (spec.md §3).
func (a *Agent) State() *State { return a.state }

// Subscribe registers fn to receive every AgentEvent the loop emits, in
// registration order and synchronously with emission (spec.md §5, §9).
func (a *Agent) Subscribe(fn func(hooks.AgentEvent)) (hooks.Subscription, error) {
	return a.bus.Register(fn)
}

// EnqueueSteering injects a steering message: it will pre-empt the
// remaining tool calls of whichever step is in flight when it is next
// observed (spec.md glossary: "Steering").
func (a *Agent) EnqueueSteering(messages ...*message.Message) {
	a.queue.EnqueueSteering(messages...)
}

// EnqueueFollowUp queues a message to run after the current run would
// otherwise terminate (spec.md glossary: "Follow-up").
func (a *Agent) EnqueueFollowUp(messages ...*message.Message) {
	a.queue.EnqueueFollowUp(messages...)
}

// Abort signals the active run's cancellation, if one is in progress.
// Idempotent; a no-op when no run is active (spec.md §5).
func (a *Agent) Abort() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Prompt appends input (a plain string, wrapped as a user text message, or a
// prepared list of messages) and runs the loop to completion (spec.md
// §4.6). Returns ErrAlreadyRunning if a run is already in progress.
func (a *Agent) Prompt(ctx context.Context, input any) error {
	pending, err := asMessages(input)
	if err != nil {
		return err
	}
	return a.run(ctx, pending)
}

// Continue runs the loop without new input: the last non-assistant message
// in the log is the one to respond to. Returns ErrNothingToContinue if the
// log is empty or already ends with an assistant message (spec.md §4.6).
func (a *Agent) Continue(ctx context.Context) error {
	log := a.state.Messages()
	if len(log) == 0 || log[len(log)-1].Role == message.RoleAssistant {
		return ErrNothingToContinue
	}
	return a.run(ctx, nil)
}

func asMessages(input any) ([]*message.Message, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case string:
		return []*message.Message{message.NewUserText(v)}, nil
	case *message.Message:
		return []*message.Message{v}, nil
	case []*message.Message:
		return v, nil
	default:
		return nil, fmt.Errorf("agent: unsupported prompt input type %T", input)
	}
}

// run is the top-level operation both Prompt and Continue enter (spec.md
// §4.6's run-loop pseudocode contract).
func (a *Agent) run(ctx context.Context, pending []*message.Message) error {
	a.mu.Lock()
	if a.state.IsStreaming() {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state.resetRun()
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.cancel = nil
		a.mu.Unlock()
	}()

	a.emit(hooks.NewAgentStart())

	steps := 0
	var runErr error
	for {
		a.appendAndEmit(pending)

		if steps >= a.cfg.MaxSteps {
			a.tel.Logger.Info(runCtx, "agent: max steps reached", "max_steps", a.cfg.MaxSteps)
			break
		}
		if a.h.StopCondition != nil && a.h.StopCondition(steps+1) {
			a.tel.Logger.Info(runCtx, "agent: stop condition satisfied", "step", steps+1)
			break
		}
		steps++

		stepRes, err := a.runStep(runCtx)
		if err != nil {
			runErr = err
			break
		}
		if len(stepRes.steeringCaptured) > 0 {
			pending = stepRes.steeringCaptured
			continue
		}
		if runCtx.Err() != nil {
			// A cancelled step never drains steering or follow-ups; the run
			// ends here with one normal agent_end (spec.md §4.6, §5).
			break
		}
		if stepRes.toolCallsMade {
			// The model requested tool calls and none of them was pre-empted
			// by steering: the loop re-prompts with the tool results already
			// appended to the log (spec.md §4.6 scenario 2).
			pending = nil
			continue
		}
		if drained := a.queue.DrainSteering(); len(drained) > 0 {
			pending = drained
			continue
		}
		if drained := a.queue.DrainFollowUp(); len(drained) > 0 {
			pending = drained
			continue
		}
		break
	}

	a.state.endRun(runErr)
	a.emit(hooks.NewAgentEnd(a.state.Messages()))
	return runErr
}

// appendAndEmit appends each message to the log, emitting message_start then
// message_end for it (spec.md §4.6: "append pending to log, emitting
// message_start/message_end each"). These messages already arrive finalized
// (user/steering/follow-up input), so the pair fires back to back.
func (a *Agent) appendAndEmit(pending []*message.Message) {
	for _, m := range pending {
		a.state.append(m)
		a.emit(hooks.NewMessageStart(m))
		a.emit(hooks.NewMessageEnd(m))
	}
}

// stepResult is runStep's internal account of what happened, beyond the
// StepOutcome callers see via OnStepFinish: whether the loop should
// immediately re-prompt because tool calls ran, and the steering batch
// captured mid-step, if any.
type stepResult struct {
	steeringCaptured []*message.Message
	toolCallsMade    bool
}

// runStep executes one model step: transform-context, convert, stream,
// decode, dispatch (spec.md §4.6 "Per-step substeps"). Every suspension
// point is wrapped with a span and timer so a stuck or slow step is
// visible in traces without instrumenting each collaborator directly,
// following the teacher's tracedClient/tracedStream wrapping approach.
func (a *Agent) runStep(ctx context.Context) (stepResult, error) {
	ctx, stepSpan := a.tel.Tracer.Start(ctx, "agent.step", trace.WithSpanKind(trace.SpanKindInternal))
	stepStart := time.Now()
	defer func() {
		a.tel.Metrics.RecordTimer("agent.step.duration", time.Since(stepStart))
		stepSpan.End()
	}()

	log := a.state.Messages()

	if a.h.TransformContext != nil {
		tctx, tspan := a.tel.Tracer.Start(ctx, "agent.transform_context")
		transformed, err := a.h.TransformContext(tctx, log)
		if err != nil {
			tspan.RecordError(err)
			tspan.SetStatus(codes.Error, "transformContext failed")
			tspan.End()
			return stepResult{}, fmt.Errorf("agent: transformContext: %w", err)
		}
		tspan.End()
		log = transformed
	}

	if a.h.ResolveModel == nil {
		return stepResult{}, fmt.Errorf("agent: no ResolveModel hook configured")
	}
	mp, err := a.h.ResolveModel(ctx)
	if err != nil {
		return stepResult{}, fmt.Errorf("agent: resolveModel: %w", err)
	}

	headers := map[string]string{}
	if a.h.GetAPIKey != nil {
		apiKey, err := a.h.GetAPIKey(ctx)
		if err != nil {
			return stepResult{}, fmt.Errorf("agent: getApiKey: %w", err)
		}
		if a.h.ApiKeyHeaders != nil {
			headers = a.h.ApiKeyHeaders(apiKey)
		}
	}

	var modelID string
	if a.h.ModelID != nil {
		modelID, err = a.h.ModelID(ctx)
		if err != nil {
			return stepResult{}, fmt.Errorf("agent: modelID: %w", err)
		}
	}

	req := provider.StreamRequest{
		Messages:        convert.ToMessages(log),
		Tools:           a.tools.Definitions(),
		ToolChoice:      a.cfg.ToolChoice,
		ProviderOptions: thinkingProviderOptions(a.cfg.ThinkingLevel, a.cfg.ThinkingBudgets),
		Headers:         headers,
		ModelID:         modelID,
	}

	streamCtx, streamSpan := a.tel.Tracer.Start(ctx, "agent.model_stream", trace.WithSpanKind(trace.SpanKindClient))
	streamStart := time.Now()
	src, err := mp.Stream(streamCtx, req)
	if err != nil {
		streamSpan.RecordError(err)
		streamSpan.SetStatus(codes.Error, "model stream open failed")
		streamSpan.End()
		a.tel.Logger.Error(ctx, "agent: model stream open failed", "err", err)
		return stepResult{}, fmt.Errorf("agent: model stream: %w", err)
	}

	dedup := streamdecoder.NewDedup()
	outcome, err := streamdecoder.Decode(streamCtx, src, dedup, modelID, a.emit)
	a.tel.Metrics.RecordTimer("agent.model_stream.duration", time.Since(streamStart))
	if err != nil {
		streamSpan.RecordError(err)
		streamSpan.SetStatus(codes.Error, "stream decode failed")
		streamSpan.End()
		return stepResult{}, fmt.Errorf("agent: stream decode: %w", err)
	}
	if usage := outcome.Assistant.Assistant.Usage; usage != (message.TokenUsage{}) {
		streamSpan.AddEvent("agent.usage", "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}
	streamSpan.SetStatus(codes.Ok, "ok")
	streamSpan.End()

	a.state.append(outcome.Assistant)
	for _, m := range outcome.ServerToolResults {
		a.state.append(m)
	}

	var toolResults []*message.Message
	var steeringCaptured []*message.Message
	toolCallsMade := outcome.Assistant.Assistant.StopReason == message.StopReasonToolUse
	if toolCallsMade {
		dctx, dspan := a.tel.Tracer.Start(ctx, "agent.dispatch_tools")
		dispatchStart := time.Now()
		res, err := dispatch.Dispatch(dctx, outcome.Assistant, a.tools, dedup, a.h.Dispatch, a.queue.DrainSteering, a.emit)
		a.tel.Metrics.RecordTimer("agent.dispatch.duration", time.Since(dispatchStart))
		a.tel.Metrics.IncCounter("agent.tool_calls", float64(len(outcome.Assistant.Assistant.ToolCalls())))
		if err != nil {
			dspan.RecordError(err)
			dspan.SetStatus(codes.Error, "dispatch failed")
			dspan.End()
			return stepResult{}, fmt.Errorf("agent: dispatch: %w", err)
		}
		dspan.SetStatus(codes.Ok, "ok")
		dspan.End()
		toolResults = res.ToolResultMessages
		steeringCaptured = res.SteeringBatch
		for _, m := range toolResults {
			a.state.append(m)
		}
	}

	if a.h.OnStepFinish != nil {
		a.h.OnStepFinish(StepOutcome{
			Assistant:         outcome.Assistant,
			ToolResults:       toolResults,
			ServerToolResults: outcome.ServerToolResults,
		})
	}

	return stepResult{steeringCaptured: steeringCaptured, toolCallsMade: toolCallsMade}, nil
}

func (a *Agent) emit(e hooks.AgentEvent) {
	a.bus.Publish(e)
}
