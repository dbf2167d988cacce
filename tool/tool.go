// Package tool defines the ToolDefinition capability record and the lazy
// result shapes a tool's execute function may return (spec.md §3, §4.2).
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentcore-go/agentcore/message"
)

// ErrMissingOutputSchema indicates a tool declared no execute function and
// no output schema. spec.md §7 requires output-schema-only tools (the
// "schema-only" path the decoder's tool-call event is authoritative for) to
// declare an output schema so the model knows the result shape in advance.
var ErrMissingOutputSchema = errors.New("tool: a tool with no execute function must declare an output schema")

// Result is one item a tool's Execute may produce, either as the sole
// returned value or as an element of a lazy sequence. UI is opaque,
// call-id-scoped state carried across a call's lifecycle (spec.md §3).
type Result struct {
	Output  any
	UI      any
	IsError bool
}

// ExecuteContext is passed to a tool's Execute function (spec.md §6).
type ExecuteContext struct {
	// ToolCallID identifies this specific invocation.
	ToolCallID string
	// Messages is a snapshot of the conversation log at dispatch time.
	Messages []*message.Message
	// Context carries caller-supplied opaque data (experimental_context in
	// spec.md §6).
	Context map[string]any
}

// Sequence is a lazy sequence of partial Results, the "lazy sequence of
// partial results" shape described in spec.md §3/§4.2. Next returns
// (result, true) for each item in order, then (zero, false) when exhausted.
// Implementations must respect ctx cancellation and return promptly.
type Sequence interface {
	Next(ctx context.Context) (Result, bool, error)
	Close() error
}

// ApprovalDecision is returned by a NeedsApproval predicate or an approval
// authority (spec.md §4.5, §9).
type ApprovalDecision string

const (
	ApprovalAllow ApprovalDecision = "allow"
	ApprovalDeny  ApprovalDecision = "deny"
	ApprovalAsk   ApprovalDecision = "ask"
)

// Definition is a capability record describing a callable tool.
type Definition struct {
	// Name is unique within a tool set.
	Name string
	// Description is shown to the model to decide when to call the tool.
	Description string
	// InputSchema is the compiled JSON Schema for the tool's input, used by
	// ValidateInput.
	InputSchema *jsonschema.Schema
	// InputSchemaJSON is the raw JSON Schema document backing InputSchema,
	// forwarded verbatim to the model provider so the model sees the tool's
	// declared input shape (spec.md §6's ToolDefinition).
	InputSchemaJSON json.RawMessage
	// OutputSchema is the compiled JSON Schema for the tool's output. Required
	// when Execute is nil (ErrMissingOutputSchema otherwise).
	OutputSchema *jsonschema.Schema
	// OutputSchemaJSON is the raw JSON Schema document backing OutputSchema.
	OutputSchemaJSON json.RawMessage

	// Execute runs the tool. It may return a single Result, or implement
	// Sequence-returning behavior via ExecuteLazy. Exactly one of Execute or
	// ExecuteLazy should be set; if both are nil the tool is schema-only and
	// the dispatcher never calls the adapter for it (spec.md's Open Question
	// resolution in §9).
	Execute func(ctx context.Context, input map[string]any, ec ExecuteContext) (Result, error)

	// ExecuteLazy runs the tool and streams partial results. When set, it
	// takes precedence over Execute.
	ExecuteLazy func(ctx context.Context, input map[string]any, ec ExecuteContext) (Sequence, error)

	// NeedsApproval, when set, is consulted by the dispatcher's pre-hook path
	// before Execute/ExecuteLazy runs (spec.md §4.5 step 3).
	NeedsApproval func(ctx context.Context, input map[string]any, ec ExecuteContext) (ApprovalDecision, string)

	// ToModelOutput projects a stored UI value into the text the model sees
	// for this tool's results (spec.md §4.2 step 4).
	ToModelOutput func(ui any) string
}

// Validate enforces the MissingOutputSchema configuration error (spec.md §7).
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("tool: name is required")
	}
	if d.Execute == nil && d.ExecuteLazy == nil && d.OutputSchema == nil {
		return ErrMissingOutputSchema
	}
	return nil
}

// IsSchemaOnly reports whether the tool declares no execute function. The
// dispatcher never invokes the adapter for schema-only tools; the decoder's
// tool-call path is authoritative (spec.md §9).
func (d *Definition) IsSchemaOnly() bool {
	return d.Execute == nil && d.ExecuteLazy == nil
}

// ValidateInput validates a decoded argument map against InputSchema, when
// one is set. Tools without an InputSchema accept any input.
func (d *Definition) ValidateInput(input map[string]any) error {
	if d.InputSchema == nil {
		return nil
	}
	return d.InputSchema.Validate(input)
}

// CompileSchema compiles a raw JSON Schema document into a *jsonschema.Schema
// usable as Definition.InputSchema/OutputSchema. id is an arbitrary resource
// identifier unique within the compiler (conventionally the tool name).
func CompileSchema(id string, schemaJSON []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("tool: unmarshal schema %s: %w", id, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(id, doc); err != nil {
		return nil, fmt.Errorf("tool: add schema resource %s: %w", id, err)
	}
	schema, err := c.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("tool: compile schema %s: %w", id, err)
	}
	return schema, nil
}

// Set is a registry of tool definitions keyed by name, unique within the
// set (spec.md §3).
type Set struct {
	byName map[string]*Definition
	order  []string
}

// NewSet constructs a Set from the given definitions, validating each.
func NewSet(defs ...*Definition) (*Set, error) {
	s := &Set{byName: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("tool %q: %w", d.Name, err)
		}
		if _, dup := s.byName[d.Name]; dup {
			return nil, fmt.Errorf("tool: duplicate tool name %q", d.Name)
		}
		s.byName[d.Name] = d
		s.order = append(s.order, d.Name)
	}
	return s, nil
}

// Lookup returns the definition for name, or (nil, false) if absent.
func (s *Set) Lookup(name string) (*Definition, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.byName[name]
	return d, ok
}

// Definitions returns the tool set in registration order.
func (s *Set) Definitions() []*Definition {
	if s == nil {
		return nil
	}
	out := make([]*Definition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}
