// Package openai implements provider.Provider on top of the OpenAI chat
// completions API, grounded on the pack's OpenAI model adapter
// (uzukizheng-trpc-agent-go/model/openai): it builds a
// ChatCompletionNewParams from the core's request shape and streams chunks
// through the official openai-go SDK's accumulator.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/agentcore-go/agentcore/convert"
	"github.com/agentcore-go/agentcore/provider"
	"github.com/agentcore-go/agentcore/resilience"
	"github.com/agentcore-go/agentcore/streamdecoder"
	"github.com/agentcore-go/agentcore/tool"
)

// ChatClient captures the subset of the OpenAI SDK client this provider
// depends on, so tests can substitute a fake.
type ChatClient interface {
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// Options configures the OpenAI-backed provider.
type Options struct {
	// DefaultModel names the chat model used when a StreamRequest doesn't
	// set ModelID.
	DefaultModel string
	// RateLimitRPS caps stream opens per second; zero disables limiting.
	RateLimitRPS float64
	// RateLimitBurst sizes the token bucket backing RateLimitRPS.
	RateLimitBurst int
	// Backoff configures retries on transient stream-open failures. The
	// zero value uses resilience.DefaultBackoff.
	Backoff resilience.BackoffConfig
}

// Client implements provider.Provider over the OpenAI chat completions API.
type Client struct {
	chat         ChatClient
	defaultModel string
	limiter      *resilience.Limiter
	backoff      resilience.BackoffConfig
}

// New builds a Client from an OpenAI chat completions client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	backoff := opts.Backoff
	if backoff.MaxAttempts == 0 {
		backoff = resilience.DefaultBackoff()
	}
	return &Client{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		limiter:      resilience.NewLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		backoff:      backoff,
	}, nil
}

// NewFromAPIKey constructs a Client using the default OpenAI HTTP
// transport, reading credentials from apiKey.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{DefaultModel: defaultModel})
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
	var stream *ssestream.Stream[openai.ChatCompletionChunk]
	openErr := resilience.Retry(ctx, c.backoff, nil, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		s := c.chat.NewStreaming(ctx, *params, reqOpts...)
		if err := s.Err(); err != nil {
			return err
		}
		stream = s
		return nil
	})
	if openErr != nil {
		return nil, fmt.Errorf("openai: chat.completions.new stream: %w", openErr)
	}
	return newSource(ctx, stream, req.ModelID), nil
}

func (c *Client) prepareRequest(req provider.StreamRequest) (*openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = c.defaultModel
	}
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := &openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: msgs,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
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
	return params, nil
}

func encodeMessages(msgs []convert.ProviderMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case convert.ProviderRoleSystem:
			out = append(out, openai.SystemMessage(textOf(m)))
		case convert.ProviderRoleUser:
			out = append(out, openai.UserMessage(textOf(m)))
		case convert.ProviderRoleAssistant:
			msg, err := encodeAssistant(m)
			if err != nil {
				return nil, err
			}
			out = append(out, msg)
		case convert.ProviderRoleTool:
			for _, part := range m.Parts {
				if v, ok := part.(convert.ProviderToolResult); ok {
					out = append(out, openai.ToolMessage(v.Output, v.ToolCallID))
				}
			}
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func textOf(m convert.ProviderMessage) string {
	var text string
	for _, part := range m.Parts {
		if v, ok := part.(convert.ProviderText); ok {
			text += v.Text
		}
	}
	return text
}

func encodeAssistant(m convert.ProviderMessage) (openai.ChatCompletionMessageParamUnion, error) {
	var text string
	var calls []openai.ChatCompletionMessageToolCallUnionParam
	for _, part := range m.Parts {
		switch v := part.(type) {
		case convert.ProviderText:
			text += v.Text
		case convert.ProviderToolCall:
			argsJSON, err := json.Marshal(v.Arguments)
			if err != nil {
				return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: encode tool call %q args: %w", v.Name, err)
			}
			calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: v.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      v.Name,
						Arguments: string(argsJSON),
					},
				},
			})
		}
	}
	msg := openai.AssistantMessage(text)
	if msg.OfAssistant != nil {
		msg.OfAssistant.ToolCalls = calls
	}
	return msg, nil
}

func encodeTools(defs []*tool.Definition) ([]openai.ChatCompletionToolUnionParam, error) {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		params, err := toolParameters(def.InputSchemaJSON)
		if err != nil {
			return nil, fmt.Errorf("openai: tool %q schema: %w", def.Name, err)
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  params,
		}))
	}
	return out, nil
}

func toolParameters(raw json.RawMessage) (shared.FunctionParameters, error) {
	if len(raw) == 0 {
		return shared.FunctionParameters{"type": "object"}, nil
	}
	var params shared.FunctionParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func encodeToolChoice(choice provider.ToolChoice) *openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice {
	case provider.ToolChoiceNone:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
	case provider.ToolChoiceRequired:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	default:
		return nil
	}
}
