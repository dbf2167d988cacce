package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/provider"
	"github.com/agentcore-go/agentcore/streamdecoder"
	"github.com/agentcore-go/agentcore/telemetry"
	"github.com/agentcore-go/agentcore/tool"
)

// fakeSource replays a fixed fragment slice, honoring ctx cancellation like a
// real provider's Source must.
type fakeSource struct {
	frags []streamdecoder.Fragment
	pos   int
	block chan struct{} // when non-nil, Next blocks on it (or ctx) before the first fragment
}

func (s *fakeSource) Next(ctx context.Context) (streamdecoder.Fragment, bool, error) {
	if s.block != nil && s.pos == 0 {
		select {
		case <-s.block:
		case <-ctx.Done():
			return streamdecoder.Fragment{}, false, ctx.Err()
		}
	}
	if s.pos >= len(s.frags) {
		return streamdecoder.Fragment{}, false, nil
	}
	f := s.frags[s.pos]
	s.pos++
	return f, true, nil
}

func (s *fakeSource) Close() error { return nil }

func textReplyFragments(text string) []streamdecoder.Fragment {
	return []streamdecoder.Fragment{
		{Kind: streamdecoder.KindStartStep},
		{Kind: streamdecoder.KindTextStart},
		{Kind: streamdecoder.KindTextDelta, Text: text},
		{Kind: streamdecoder.KindTextEnd},
		{Kind: streamdecoder.KindFinishStep},
		{Kind: streamdecoder.KindFinish, ProviderStopReason: "stop"},
	}
}

func toolCallFragments(id, name string, args map[string]any) []streamdecoder.Fragment {
	return []streamdecoder.Fragment{
		{Kind: streamdecoder.KindStartStep},
		{Kind: streamdecoder.KindToolCall, ToolCallID: id, ToolName: name, Args: args},
		{Kind: streamdecoder.KindFinishStep},
		{Kind: streamdecoder.KindFinish, ProviderStopReason: "tool_calls"},
	}
}

// scriptedProvider hands out one fragment batch per call to Stream, in
// order; the last batch repeats once exhausted.
type scriptedProvider struct {
	mu      sync.Mutex
	batches [][]streamdecoder.Fragment
	calls   int
}

func (p *scriptedProvider) Stream(ctx context.Context, req provider.StreamRequest) (streamdecoder.Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.batches) {
		idx = len(p.batches) - 1
	}
	p.calls++
	return &fakeSource{frags: p.batches[idx]}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func echoTool() *tool.Definition {
	return &tool.Definition{
		Name: "echo",
		Execute: func(ctx context.Context, input map[string]any, ec tool.ExecuteContext) (tool.Result, error) {
			return tool.Result{Output: input["text"]}, nil
		},
	}
}

func hooksFor(p provider.Provider) Hooks {
	return Hooks{
		ResolveModel: func(context.Context) (provider.Provider, error) { return p, nil },
		ModelID:      func(context.Context) (string, error) { return "fake-model", nil },
	}
}

func TestPromptSimpleTextReplyAppendsUserAndAssistant(t *testing.T) {
	p := &scriptedProvider{batches: [][]streamdecoder.Fragment{textReplyFragments("hi there")}}
	a := New("be helpful", nil, DefaultConfig(), hooksFor(p), telemetry.NewNoop())

	err := a.Prompt(context.Background(), "hello")
	require.NoError(t, err)

	msgs := a.State().Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, message.RoleUser, msgs[0].Role)
	require.Equal(t, message.RoleAssistant, msgs[1].Role)
	require.Equal(t, "hi there", msgs[1].Assistant.Text())
	require.False(t, a.State().IsStreaming())
}

func TestPromptToolUseLoopDispatchesThenContinuesToTextReply(t *testing.T) {
	tools, err := tool.NewSet(echoTool())
	require.NoError(t, err)

	p := &scriptedProvider{batches: [][]streamdecoder.Fragment{
		toolCallFragments("call-1", "echo", map[string]any{"text": "ping"}),
		textReplyFragments("done"),
	}}

	a := New("", tools, DefaultConfig(), hooksFor(p), telemetry.NewNoop())

	var toolEnds []string
	_, err = a.Subscribe(func(e hooks.AgentEvent) {
		if e.Type == hooks.EventToolExecutionEnd {
			toolEnds = append(toolEnds, e.ToolCallID)
		}
	})
	require.NoError(t, err)

	err = a.Prompt(context.Background(), "go")
	require.NoError(t, err)
	require.Equal(t, 2, p.callCount())
	require.Equal(t, []string{"call-1"}, toolEnds)

	msgs := a.State().Messages()
	require.Len(t, msgs, 4) // user, assistant(tool-call), tool-result, assistant(text)
	require.Equal(t, message.RoleToolResult, msgs[2].Role)
}

func TestPromptRespectsMaxSteps(t *testing.T) {
	tools, err := tool.NewSet(echoTool())
	require.NoError(t, err)

	p := &scriptedProvider{batches: [][]streamdecoder.Fragment{
		toolCallFragments("call-1", "echo", map[string]any{"text": "x"}),
	}}

	cfg := DefaultConfig()
	cfg.MaxSteps = 2
	a := New("", tools, cfg, hooksFor(p), telemetry.NewNoop())

	err = a.Prompt(context.Background(), "loop forever")
	require.NoError(t, err)
	require.Equal(t, 2, p.callCount())
}

func TestPromptStopConditionHaltsBeforeFirstStep(t *testing.T) {
	p := &scriptedProvider{batches: [][]streamdecoder.Fragment{textReplyFragments("unused")}}
	h := hooksFor(p)
	h.StopCondition = func(step int) bool { return true }
	a := New("", nil, DefaultConfig(), h, telemetry.NewNoop())

	err := a.Prompt(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, 0, p.callCount())
	require.Len(t, a.State().Messages(), 1) // only the user message was appended
}

func TestPromptReturnsErrAlreadyRunningWhileStreaming(t *testing.T) {
	block := make(chan struct{})
	a := New("", nil, DefaultConfig(), Hooks{
		ResolveModel: func(context.Context) (provider.Provider, error) {
			return providerFunc(func(ctx context.Context, req provider.StreamRequest) (streamdecoder.Source, error) {
				return &fakeSource{frags: textReplyFragments("late"), block: block}, nil
			}), nil
		},
	}, telemetry.NewNoop())

	done := make(chan error, 1)
	go func() { done <- a.Prompt(context.Background(), "first") }()

	require.Eventually(t, func() bool { return a.State().IsStreaming() }, time.Second, time.Millisecond)

	err := a.Prompt(context.Background(), "second")
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(block)
	require.NoError(t, <-done)
}

func TestAbortEndsRunWithoutError(t *testing.T) {
	block := make(chan struct{})
	a := New("", nil, DefaultConfig(), Hooks{
		ResolveModel: func(context.Context) (provider.Provider, error) {
			return providerFunc(func(ctx context.Context, req provider.StreamRequest) (streamdecoder.Source, error) {
				return &fakeSource{frags: textReplyFragments("late"), block: block}, nil
			}), nil
		},
	}, telemetry.NewNoop())

	done := make(chan error, 1)
	go func() { done <- a.Prompt(context.Background(), "first") }()

	require.Eventually(t, func() bool { return a.State().IsStreaming() }, time.Second, time.Millisecond)
	a.Abort()

	err := <-done
	require.NoError(t, err)
	require.False(t, a.State().IsStreaming())
}

func TestContinueErrNothingToContinueOnEmptyLog(t *testing.T) {
	a := New("", nil, DefaultConfig(), Hooks{}, telemetry.NewNoop())
	err := a.Continue(context.Background())
	require.ErrorIs(t, err, ErrNothingToContinue)
}

func TestContinueErrNothingToContinueWhenLogEndsWithAssistant(t *testing.T) {
	p := &scriptedProvider{batches: [][]streamdecoder.Fragment{textReplyFragments("ok")}}
	a := New("", nil, DefaultConfig(), hooksFor(p), telemetry.NewNoop())
	require.NoError(t, a.Prompt(context.Background(), "hi"))

	err := a.Continue(context.Background())
	require.ErrorIs(t, err, ErrNothingToContinue)
}

func TestEnqueueFollowUpRunsAfterTurnCompletes(t *testing.T) {
	p := &scriptedProvider{batches: [][]streamdecoder.Fragment{
		textReplyFragments("first reply"),
		textReplyFragments("second reply"),
	}}
	a := New("", nil, DefaultConfig(), hooksFor(p), telemetry.NewNoop())
	a.EnqueueFollowUp(message.NewUserText("follow up question"))

	err := a.Prompt(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 2, p.callCount())

	msgs := a.State().Messages()
	require.Len(t, msgs, 4)
	require.Equal(t, "follow up question", msgs[2].Text)
}

func TestRunPropagatesResolveModelError(t *testing.T) {
	boom := errors.New("no model configured")
	a := New("", nil, DefaultConfig(), Hooks{
		ResolveModel: func(context.Context) (provider.Provider, error) { return nil, boom },
	}, telemetry.NewNoop())

	err := a.Prompt(context.Background(), "hi")
	require.ErrorIs(t, err, boom)
	require.Equal(t, boom, a.State().LastError())
}

type providerFunc func(ctx context.Context, req provider.StreamRequest) (streamdecoder.Source, error)

func (f providerFunc) Stream(ctx context.Context, req provider.StreamRequest) (streamdecoder.Source, error) {
	return f(ctx, req)
}
