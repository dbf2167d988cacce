// Package subagent implements the Subagent Spec (spec.md §4.8): a registry
// mapping ids to fully configured agent specs, and a factory turning a
// registered spec into a callable tool.Definition that runs a fresh §4.6
// Agent Loop and streams its assistant text back as partial tool results.
package subagent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agentcore-go/agentcore/agent"
	"github.com/agentcore-go/agentcore/telemetry"
	"github.com/agentcore-go/agentcore/tool"
)

// ErrSubagentNotFound is returned by ToolDefinition for an unregistered id
// (spec.md §7's configuration error kinds).
var ErrSubagentNotFound = errors.New("subagent: id not found in registry")

// ErrDuplicateSubagent is returned by Register for an id already present
// (spec.md §7).
var ErrDuplicateSubagent = errors.New("subagent: id already registered")

// Spec is a full agent configuration: its own instructions, tools, model
// resolution hooks, and run settings (spec.md §4.8: "each spec is a full
// AgentConfig including its own model, instructions, and tools").
type Spec struct {
	// ID names the subagent; ToolDefinition uses it as the tool's Name.
	ID string
	// Description is shown to the parent model alongside the tool.
	Description string

	Instructions string
	Tools        *tool.Set
	Config       agent.Config
	Hooks        agent.Hooks
	Telemetry    telemetry.Telemetry
}

// Registry maps subagent ids to their Spec.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds spec under spec.ID. Returns ErrDuplicateSubagent if the id
// is already registered.
func (r *Registry) Register(spec Spec) error {
	if spec.ID == "" {
		return errors.New("subagent: id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.specs[spec.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateSubagent, spec.ID)
	}
	r.specs[spec.ID] = spec
	return nil
}

// Lookup returns the Spec registered under id, if any.
func (r *Registry) Lookup(id string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[id]
	return spec, ok
}

// ToolDefinition builds the tool.Definition exposing the subagent
// registered under id, or ErrSubagentNotFound if id is not registered.
func (r *Registry) ToolDefinition(id string) (*tool.Definition, error) {
	spec, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubagentNotFound, id)
	}
	return newToolDefinition(spec), nil
}

func newToolDefinition(spec Spec) *tool.Definition {
	return &tool.Definition{
		Name:        spec.ID,
		Description: spec.Description,
		InputSchema:     promptInputSchema(),
		InputSchemaJSON: []byte(promptInputSchemaJSON),
		ExecuteLazy: func(ctx context.Context, input map[string]any, ec tool.ExecuteContext) (tool.Sequence, error) {
			prompt, _ := input["prompt"].(string)
			if prompt == "" {
				return nil, fmt.Errorf("subagent %s: input.prompt is required", spec.ID)
			}
			return startRun(ctx, spec, prompt)
		},
	}
}
