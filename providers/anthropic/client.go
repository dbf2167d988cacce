// Package anthropic implements provider.Provider on top of the Anthropic
// Claude Messages API, grounded on the teacher's Anthropic model client
// (features/model/anthropic): it translates the core's request shape into
// sdk.MessageNewParams and adapts NewStreaming's SSE events into
// streamdecoder.Fragment values.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentcore-go/agentcore/convert"
	"github.com/agentcore-go/agentcore/provider"
	"github.com/agentcore-go/agentcore/resilience"
	"github.com/agentcore-go/agentcore/streamdecoder"
	"github.com/agentcore-go/agentcore/tool"
)

// MessagesClient captures the subset of the Anthropic SDK client this
// provider depends on, so tests can substitute a fake.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures the Anthropic-backed provider.
type Options struct {
	// DefaultModel names the Claude model used when a StreamRequest doesn't
	// set ModelID.
	DefaultModel string
	// MaxTokens caps completion length and must be positive; a positive
	// ProviderOptions["maxTokens"] overrides it per request.
	MaxTokens int
	// RateLimitRPS caps stream opens per second; zero disables limiting.
	RateLimitRPS float64
	// RateLimitBurst sizes the token bucket backing RateLimitRPS.
	RateLimitBurst int
	// Backoff configures retries on transient stream-open failures. The
	// zero value uses resilience.DefaultBackoff.
	Backoff resilience.BackoffConfig
}

// Client implements provider.Provider over Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	limiter      *resilience.Limiter
	backoff      resilience.BackoffConfig
}

// New builds a Client from an Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	if opts.MaxTokens <= 0 {
		return nil, errors.New("anthropic: max tokens is required")
	}
	backoff := opts.Backoff
	if backoff.MaxAttempts == 0 {
		backoff = resilience.DefaultBackoff()
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		limiter:      resilience.NewLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		backoff:      backoff,
	}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// transport, reading credentials from apiKey.
func NewFromAPIKey(apiKey, defaultModel string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel, MaxTokens: maxTokens})
}

// Stream implements provider.Provider.
func (c *Client) Stream(ctx context.Context, req provider.StreamRequest) (streamdecoder.Source, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	var reqOpts []option.RequestOption
	for k, v := range req.Headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}

	var stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	openErr := resilience.Retry(ctx, c.backoff, nil, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		s := c.msg.NewStreaming(ctx, *params, reqOpts...)
		if err := s.Err(); err != nil {
			return err
		}
		stream = s
		return nil
	})
	if openErr != nil {
		return nil, fmt.Errorf("anthropic: messages.new stream: %w", openErr)
	}
	return newSource(ctx, stream, req.ModelID), nil
}

func (c *Client) prepareRequest(req provider.StreamRequest) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = c.defaultModel
	}
	msgs, system, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	maxTokens := c.maxTokens
	if v, ok := req.ProviderOptions["maxTokens"].(int); ok && v > 0 {
		maxTokens = v
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if tc := encodeToolChoice(req.ToolChoice); tc != nil {
		params.ToolChoice = *tc
	}
	if thinking, ok := req.ProviderOptions["thinking"].(map[string]any); ok {
		if budget, ok := thinking["budgetTokens"].(int); ok && budget > 0 {
			params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(budget))
		}
	}
	return &params, nil
}

func encodeMessages(msgs []convert.ProviderMessage) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == convert.ProviderRoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(convert.ProviderText); ok && v.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: v.Text})
				}
			}
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case convert.ProviderText:
				if v.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(v.Text))
				}
			case convert.ProviderToolCall:
				blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Arguments, v.Name))
			case convert.ProviderToolResult:
				blocks = append(blocks, sdk.NewToolResultBlock(v.ToolCallID, v.Output, false))
			case convert.ProviderFile:
				// Image/file attachments are sent inline as an image block whose
				// source is the raw standard base64 of the bytes plus the MIME type.
				blocks = append(blocks, sdk.NewImageBlockBase64(v.MimeType, convert.EncodeFile(v)))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case convert.ProviderRoleUser, convert.ProviderRoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case convert.ProviderRoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(defs []*tool.Definition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		schema, err := toolInputSchema(def.InputSchemaJSON)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func toolInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{ExtraFields: map[string]any{"type": "object"}}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func encodeToolChoice(choice provider.ToolChoice) *sdk.ToolChoiceUnionParam {
	switch choice {
	case provider.ToolChoiceNone:
		none := sdk.NewToolChoiceNoneParam()
		return &sdk.ToolChoiceUnionParam{OfNone: &none}
	case provider.ToolChoiceRequired:
		return &sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}
	default:
		return nil
	}
}
