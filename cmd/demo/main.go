// Command demo wires a minimal agent together and runs one prompt end to
// end, grounded on the teacher's cmd/demo: a tiny stand-in provider answers
// instantly so the demo needs no network access, unless ANTHROPIC_API_KEY
// is set, in which case it talks to the real Anthropic API.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agentcore-go/agentcore/agent"
	"github.com/agentcore-go/agentcore/hooks"
	"github.com/agentcore-go/agentcore/provider"
	"github.com/agentcore-go/agentcore/providers/anthropic"
	"github.com/agentcore-go/agentcore/telemetry"
	"github.com/agentcore-go/agentcore/tool"
)

func main() {
	ctx := context.Background()

	prompt := "What's the weather in Lisbon?"
	if len(os.Args) > 1 {
		prompt = strings.Join(os.Args[1:], " ")
	}

	tools, err := tool.NewSet(weatherTool())
	if err != nil {
		panic(err)
	}

	resolveModel := resolveModelHook()

	cfg := agent.DefaultConfig()
	h := agent.Hooks{ResolveModel: resolveModel}
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		// A non-empty ModelID overrides the Anthropic client's default model,
		// so it is only set for the stub provider.
		h.ModelID = func(context.Context) (string, error) { return "demo-model", nil }
	}

	a := agent.New("You are a concise assistant with access to a weather tool.", tools, cfg, h, telemetry.NewNoop())

	_, err = a.Subscribe(printEvent)
	if err != nil {
		panic(err)
	}

	if err := a.Prompt(ctx, prompt); err != nil {
		fmt.Fprintln(os.Stderr, "run failed:", err)
		os.Exit(1)
	}
}

func resolveModelHook() func(context.Context) (provider.Provider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return func(context.Context) (provider.Provider, error) { return stubProvider{}, nil }
	}
	client, err := anthropic.NewFromAPIKey(apiKey, "claude-3-5-sonnet-20241022", 1024)
	if err != nil {
		panic(err)
	}
	return func(context.Context) (provider.Provider, error) { return client, nil }
}

func printEvent(e hooks.AgentEvent) {
	switch e.Type {
	case hooks.EventMessageUpdate:
		fmt.Print(e.Delta)
	case hooks.EventToolExecutionStart:
		fmt.Printf("\n[calling %s %v]\n", e.ToolName, e.Args)
	case hooks.EventToolExecutionEnd:
		fmt.Printf("[%s returned %v]\n", e.ToolName, e.Result)
	case hooks.EventAgentEnd:
		fmt.Println()
	case hooks.EventError:
		fmt.Fprintln(os.Stderr, "error:", e.Err)
	}
}
