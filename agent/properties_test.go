package agent

import (
	"context"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/provider"
	"github.com/agentcore-go/agentcore/streamdecoder"
	"github.com/agentcore-go/agentcore/telemetry"
	"github.com/agentcore-go/agentcore/tool"
)

// buildTextFragments strings chunks together into the start/delta*/end
// shape a real provider emits for one streamed text reply.
func buildTextFragments(chunks []string) []streamdecoder.Fragment {
	frags := []streamdecoder.Fragment{{Kind: streamdecoder.KindStartStep}, {Kind: streamdecoder.KindTextStart}}
	for _, c := range chunks {
		frags = append(frags, streamdecoder.Fragment{Kind: streamdecoder.KindTextDelta, Text: c})
	}
	frags = append(frags,
		streamdecoder.Fragment{Kind: streamdecoder.KindTextEnd},
		streamdecoder.Fragment{Kind: streamdecoder.KindFinishStep},
		streamdecoder.Fragment{Kind: streamdecoder.KindFinish, ProviderStopReason: "stop"},
	)
	return frags
}

// buildToolCallFragments emits n distinct tool calls in one step, the shape
// needed to exercise the dispatcher's per-call lifecycle and the steering
// pre-emption invariant.
func buildToolCallFragments(ids []string) []streamdecoder.Fragment {
	frags := []streamdecoder.Fragment{{Kind: streamdecoder.KindStartStep}}
	for _, id := range ids {
		frags = append(frags, streamdecoder.Fragment{
			Kind: streamdecoder.KindToolCall, ToolCallID: id, ToolName: "echo", Args: map[string]any{"text": id},
		})
	}
	frags = append(frags,
		streamdecoder.Fragment{Kind: streamdecoder.KindFinishStep},
		streamdecoder.Fragment{Kind: streamdecoder.KindFinish, ProviderStopReason: "tool_calls"},
	)
	return frags
}

// genChunks produces 1-6 short alphabetic chunks, used to build a streamed
// text reply whose final content is the concatenation of the deltas. Each
// chunk is non-empty: an empty delta fragment is a degenerate case the
// decoder already tolerates but isn't interesting to cover here.
func genChunks() gopter.Gen {
	return gen.IntRange(1, 6).FlatMap(func(n any) gopter.Gen {
		count := n.(int)
		return gen.SliceOfN(count, gen.Identifier()).Map(func(cs []string) []string {
			return cs
		})
	}, reflect.TypeOf([]string{}))
}

// genToolCallIDs produces 1-5 unique synthetic tool-call ids.
func genToolCallIDs() gopter.Gen {
	return gen.IntRange(1, 5).Map(func(n int) []string {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = "call-" + string(rune('a'+i))
		}
		return ids
	})
}

// TestMessageLifecycleProperty verifies invariant 2: message_start precedes
// message_end, and intervening message_update deltas concatenate to the
// final assistant text.
func TestMessageLifecycleProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("message_start precedes message_end; deltas concatenate to final text", prop.ForAll(
		func(chunks []string) bool {
			p := &scriptedProvider{batches: [][]streamdecoder.Fragment{buildTextFragments(chunks)}}
			a := New("", nil, DefaultConfig(), hooksFor(p), telemetry.NewNoop())

			var startIdx, endIdx = -1, -1
			var deltas string
			var assistantText string
			idx := 0
			_, _ = a.Subscribe(func(e hooks.AgentEvent) {
				if e.Message == nil || e.Message.Role != message.RoleAssistant {
					idx++
					return
				}
				switch e.Type {
				case hooks.EventMessageStart:
					if startIdx == -1 {
						startIdx = idx
					}
				case hooks.EventMessageUpdate:
					deltas += e.Delta
				case hooks.EventMessageEnd:
					endIdx = idx
					assistantText = e.Message.Assistant.Text()
				}
				idx++
			})

			if err := a.Prompt(context.Background(), "go"); err != nil {
				return false
			}
			want := ""
			for _, c := range chunks {
				want += c
			}
			return startIdx >= 0 && endIdx > startIdx && assistantText == want && deltas == want
		},
		genChunks(),
	))

	properties.TestingRun(t)
}

// TestToolExecutionLifecycleProperty verifies invariant 1: for every
// tool-call id, tool_execution_start fires exactly once, tool_execution_end
// fires exactly once, and start precedes end.
func TestToolExecutionLifecycleProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("tool_execution_start/end each fire exactly once, in order", prop.ForAll(
		func(ids []string) bool {
			tools, err := tool.NewSet(echoTool())
			if err != nil {
				return false
			}
			p := &scriptedProvider{batches: [][]streamdecoder.Fragment{
				buildToolCallFragments(ids),
				buildTextFragments([]string{"done"}),
			}}
			a := New("", tools, DefaultConfig(), hooksFor(p), telemetry.NewNoop())

			starts := map[string]int{}
			ends := map[string]int{}
			startPos := map[string]int{}
			endPos := map[string]int{}
			idx := 0
			_, _ = a.Subscribe(func(e hooks.AgentEvent) {
				switch e.Type {
				case hooks.EventToolExecutionStart:
					starts[e.ToolCallID]++
					if _, ok := startPos[e.ToolCallID]; !ok {
						startPos[e.ToolCallID] = idx
					}
				case hooks.EventToolExecutionEnd:
					ends[e.ToolCallID]++
					endPos[e.ToolCallID] = idx
				}
				idx++
			})

			if err := a.Prompt(context.Background(), "go"); err != nil {
				return false
			}
			for _, id := range ids {
				if starts[id] != 1 || ends[id] != 1 {
					return false
				}
				if startPos[id] >= endPos[id] {
					return false
				}
			}
			return true
		},
		genToolCallIDs(),
	))

	properties.TestingRun(t)
}

// TestAgentStartEndBoundaryProperty verifies invariant 3: agent_start is the
// first event emitted and agent_end is the last, for any number of tool
// calls in the run.
func TestAgentStartEndBoundaryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("agent_start is first, agent_end is last", prop.ForAll(
		func(ids []string) bool {
			tools, err := tool.NewSet(echoTool())
			if err != nil {
				return false
			}
			p := &scriptedProvider{batches: [][]streamdecoder.Fragment{
				buildToolCallFragments(ids),
				buildTextFragments([]string{"done"}),
			}}
			a := New("", tools, DefaultConfig(), hooksFor(p), telemetry.NewNoop())

			var events []hooks.EventType
			_, _ = a.Subscribe(func(e hooks.AgentEvent) { events = append(events, e.Type) })

			if err := a.Prompt(context.Background(), "go"); err != nil {
				return false
			}
			if len(events) == 0 {
				return false
			}
			return events[0] == hooks.EventAgentStart && events[len(events)-1] == hooks.EventAgentEnd
		},
		genToolCallIDs(),
	))

	properties.TestingRun(t)
}

// TestIsStreamingDuringRunProperty verifies invariant 4: state.isStreaming
// is true for every event strictly between agent_start and agent_end.
func TestIsStreamingDuringRunProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("isStreaming holds between agent_start and agent_end", prop.ForAll(
		func(ids []string) bool {
			tools, err := tool.NewSet(echoTool())
			if err != nil {
				return false
			}
			p := &scriptedProvider{batches: [][]streamdecoder.Fragment{
				buildToolCallFragments(ids),
				buildTextFragments([]string{"done"}),
			}}
			a := New("", tools, DefaultConfig(), hooksFor(p), telemetry.NewNoop())

			ok := true
			_, _ = a.Subscribe(func(e hooks.AgentEvent) {
				switch e.Type {
				case hooks.EventAgentStart, hooks.EventAgentEnd:
					return
				default:
					if !a.State().IsStreaming() {
						ok = false
					}
				}
			})

			if err := a.Prompt(context.Background(), "go"); err != nil {
				return false
			}
			return ok && !a.State().IsStreaming()
		},
		genToolCallIDs(),
	))

	properties.TestingRun(t)
}

// TestCancelProducesSingleAgentEndProperty verifies invariant 6: a run
// cancelled mid-stream produces exactly one agent_end and no events after
// it, regardless of how many text chunks had already streamed.
func TestCancelProducesSingleAgentEndProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("cancellation yields exactly one agent_end and nothing after", prop.ForAll(
		func(chunks []string) bool {
			block := make(chan struct{})
			a := New("", nil, DefaultConfig(), Hooks{
				ResolveModel: func(context.Context) (provider.Provider, error) {
					return providerFunc(func(ctx context.Context, req provider.StreamRequest) (streamdecoder.Source, error) {
						return &fakeSource{frags: buildTextFragments(chunks), block: block}, nil
					}), nil
				},
			}, telemetry.NewNoop())

			agentEnds := 0
			sawEndAlready := false
			_, _ = a.Subscribe(func(e hooks.AgentEvent) {
				if sawEndAlready {
					agentEnds = -1000 // sentinel: an event arrived after agent_end
					return
				}
				if e.Type == hooks.EventAgentEnd {
					agentEnds++
					sawEndAlready = true
				}
			})

			done := make(chan error, 1)
			go func() { done <- a.Prompt(context.Background(), "go") }()
			a.Abort()
			close(block)
			<-done

			return agentEnds == 1
		},
		genChunks(),
	))

	properties.TestingRun(t)
}

// TestSteeringPreemptsRemainingToolCallsProperty verifies invariant 7: when
// a steering message is enqueued mid-batch, every tool call after the one
// in flight is reported skipped, and the next model call is driven by the
// drained steering batch rather than the tool results.
func TestSteeringPreemptsRemainingToolCallsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("steering skips the remaining calls in the interrupted batch", prop.ForAll(
		func(n int) bool {
			ids := make([]string, n)
			for i := range ids {
				ids[i] = "call-" + string(rune('a'+i))
			}

			tools, err := tool.NewSet(&tool.Definition{
				Name: "echo",
				Execute: func(ctx context.Context, input map[string]any, ec tool.ExecuteContext) (tool.Result, error) {
					return tool.Result{Output: input["text"]}, nil
				},
			})
			if err != nil {
				return false
			}

			p := &scriptedProvider{batches: [][]streamdecoder.Fragment{
				buildToolCallFragments(ids),
				buildTextFragments([]string{"after steering"}),
			}}
			a := New("", tools, DefaultConfig(), hooksFor(p), telemetry.NewNoop())

			first := true
			_, _ = a.Subscribe(func(e hooks.AgentEvent) {
				if e.Type == hooks.EventToolExecutionEnd && first {
					first = false
					a.EnqueueSteering(message.NewUserText("stop"))
				}
			})

			if err := a.Prompt(context.Background(), "go"); err != nil {
				return false
			}

			msgs := a.State().Messages()
			skipped := 0
			for _, m := range msgs {
				if m.Role == message.RoleToolResult && m.ToolResult != nil && m.ToolResult.IsError {
					skipped++
				}
			}
			return skipped == n-1
		},
		gen.IntRange(2, 4),
	))

	properties.TestingRun(t)
}
