package subagent

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentcore-go/agentcore/agent"
	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/tool"
)

const promptInputSchemaJSON = `{
	"type": "object",
	"properties": {"prompt": {"type": "string"}},
	"required": ["prompt"]
}`

// promptInputSchema compiles the {prompt: string} schema every subagent
// tool shares as its input contract.
func promptInputSchema() *jsonschema.Schema {
	schema, err := tool.CompileSchema("subagent-input", []byte(promptInputSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("subagent: compile input schema: %v", err))
	}
	return schema
}

// run adapts a freshly constructed Agent's event stream into a
// tool.Sequence: every assistant message_update and message_end yields a
// Result whose Output is the running concatenation of assistant text so far
// (spec.md §4.8).
type run struct {
	sub    *agent.Agent
	ch     chan tool.Result
	errCh  chan error
	cancel context.CancelFunc
}

func startRun(ctx context.Context, spec Spec, prompt string) (tool.Sequence, error) {
	sub := agent.New(spec.Instructions, spec.Tools, spec.Config, spec.Hooks, spec.Telemetry)
	runCtx, cancel := context.WithCancel(ctx)

	r := &run{
		sub:    sub,
		ch:     make(chan tool.Result, 16),
		errCh:  make(chan error, 1),
		cancel: cancel,
	}

	var (
		mu   sync.Mutex
		text string
	)
	_, err := sub.Subscribe(func(e hooks.AgentEvent) {
		if e.Message == nil || e.Message.Role != message.RoleAssistant {
			return
		}
		switch e.Type {
		case hooks.EventMessageUpdate:
			mu.Lock()
			text += e.Delta
			out := text
			mu.Unlock()
			select {
			case r.ch <- tool.Result{Output: out}:
			case <-runCtx.Done():
			}
		case hooks.EventMessageEnd:
			mu.Lock()
			out := text
			mu.Unlock()
			select {
			case r.ch <- tool.Result{Output: out, UI: e.Message}:
			case <-runCtx.Done():
			}
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subagent %s: subscribe: %w", spec.ID, err)
	}

	go func() {
		runErr := sub.Prompt(runCtx, prompt)
		close(r.ch)
		r.errCh <- runErr
	}()

	return r, nil
}

// Next implements tool.Sequence.
func (r *run) Next(ctx context.Context) (tool.Result, bool, error) {
	select {
	case res, ok := <-r.ch:
		if !ok {
			return tool.Result{}, false, <-r.errCh
		}
		return res, true, nil
	case <-ctx.Done():
		return tool.Result{}, false, ctx.Err()
	}
}

// Close implements tool.Sequence, aborting the subagent's run if still in
// flight.
func (r *run) Close() error {
	r.sub.Abort()
	r.cancel()
	return nil
}
