package agent

import (
	"context"

	"github.com/agentcore-go/agentcore/dispatch"
	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/provider"
	"github.com/agentcore-go/agentcore/queue"
)

// ThinkingLevel selects how much of a provider's reasoning budget a step
// requests (spec.md §4.6 step 3, §6).
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
	ThinkingXHigh   ThinkingLevel = "xhigh"
)

// DefaultThinkingBudgets returns the default per-level token budgets named in
// spec.md §4.6 step 3. xhigh and off are intentionally absent: both mean "no
// budget injection" per the spec.
func DefaultThinkingBudgets() map[ThinkingLevel]int {
	return map[ThinkingLevel]int{
		ThinkingMinimal: 1024,
		ThinkingLow:     4096,
		ThinkingMedium:  10000,
		ThinkingHigh:    32000,
	}
}

// thinkingProviderOptions builds the providerOptions fragment injected for a
// step's thinking level, or nil when no budget should be injected.
func thinkingProviderOptions(level ThinkingLevel, budgets map[ThinkingLevel]int) map[string]any {
	if level == "" || level == ThinkingOff || level == ThinkingXHigh {
		return nil
	}
	budget, ok := budgets[level]
	if !ok {
		return nil
	}
	return map[string]any{"thinking": map[string]any{"budgetTokens": budget}}
}

// Config holds the construction-time settings enumerated in spec.md §6.
type Config struct {
	// SteeringMode controls how many queued steering batches one interruption
	// drains (default DrainOneAtATime).
	SteeringMode queue.DrainMode
	// FollowUpMode controls how many queued follow-up batches drain once a run
	// would otherwise terminate (default DrainOneAtATime).
	FollowUpMode queue.DrainMode
	// ThinkingLevel is the default reasoning budget level for every step.
	ThinkingLevel ThinkingLevel
	// ThinkingBudgets overrides the per-level token budgets; nil uses
	// DefaultThinkingBudgets.
	ThinkingBudgets map[ThinkingLevel]int
	// MaxSteps bounds the run loop (default 20); a run that hits the bound
	// exits without error (spec.md §4.6 "Step bound").
	MaxSteps int
	// MaxRetryDelayMs is carried on the Config only: the run loop does not
	// read it, and no per-step timeout is derived from it.
	MaxRetryDelayMs int
	// ToolChoice is forwarded to the provider on every step.
	ToolChoice provider.ToolChoice
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		SteeringMode:    queue.DrainOneAtATime,
		FollowUpMode:    queue.DrainOneAtATime,
		ThinkingLevel:   ThinkingOff,
		ThinkingBudgets: DefaultThinkingBudgets(),
		MaxSteps:        20,
		ToolChoice:      provider.ToolChoiceAuto,
	}
}

func (c Config) withDefaults() Config {
	if c.SteeringMode == "" {
		c.SteeringMode = queue.DrainOneAtATime
	}
	if c.FollowUpMode == "" {
		c.FollowUpMode = queue.DrainOneAtATime
	}
	if c.ThinkingBudgets == nil {
		c.ThinkingBudgets = DefaultThinkingBudgets()
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 20
	}
	if c.ToolChoice == "" {
		c.ToolChoice = provider.ToolChoiceAuto
	}
	return c
}

// StepOutcome is what OnStepFinish receives after one model step completes,
// including any tool dispatch (spec.md §6 AgentCallOptions.onStepFinish).
type StepOutcome struct {
	Assistant         *message.Message
	ToolResults       []*message.Message
	ServerToolResults []*message.Message
}

// Hooks are the pluggable collaborators the Agent Loop consults at the
// suspension points of spec.md §5.
type Hooks struct {
	// TransformContext replaces the current log with its result before
	// conversion, allowing pruning or injection (spec.md §4.6 step 1).
	TransformContext func(ctx context.Context, log []*message.Message) ([]*message.Message, error)
	// ResolveModel resolves the model provider at call time (spec.md §4.6
	// step 3). Required.
	ResolveModel func(ctx context.Context) (provider.Provider, error)
	// ModelID identifies the model for the step's assistant message and
	// request metadata. Optional; empty if unset.
	ModelID func(ctx context.Context) (string, error)
	// GetAPIKey and ApiKeyHeaders build the request headers for a step.
	GetAPIKey     func(ctx context.Context) (string, error)
	ApiKeyHeaders func(apiKey string) map[string]string
	// OnStepFinish is invoked synchronously after each step completes.
	OnStepFinish func(StepOutcome)
	// Dispatch carries the Tool Dispatcher's pre/post/approval hooks
	// (spec.md §4.5 steps 3, 5).
	Dispatch dispatch.Hooks
	// StopCondition, when set, is consulted alongside MaxSteps before each
	// model call; it reports whether step (1-indexed, the step about to run)
	// should not be made (spec.md §4.6 step 4, §6's callSettings). The
	// steering-queue sentinel is combined with this by the loop itself.
	StopCondition func(step int) bool
}
