package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/streamdecoder"
)

// source adapts an OpenAI chat completions streaming response into a
// streamdecoder.Source, grounded on the pack's handleStreamingResponse
// (uzukizheng-trpc-agent-go/model/openai): chunks are fed to the SDK's own
// ChatCompletionAccumulator as they arrive, and finalized tool calls are
// read back from the accumulator once the stream closes, rather than
// hand-rolling per-call argument buffering.
type source struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	modelID string

	fragments chan streamdecoder.Fragment

	errMu  sync.Mutex
	errSet bool
	err    error
}

func newSource(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], modelID string) streamdecoder.Source {
	cctx, cancel := context.WithCancel(ctx)
	s := &source{
		ctx:       cctx,
		cancel:    cancel,
		stream:    stream,
		modelID:   modelID,
		fragments: make(chan streamdecoder.Fragment, 32),
	}
	go s.run()
	return s
}

func (s *source) Next(ctx context.Context) (streamdecoder.Fragment, bool, error) {
	select {
	case frag, ok := <-s.fragments:
		if ok {
			return frag, true, nil
		}
		if err := s.getErr(); err != nil && !errors.Is(err, io.EOF) {
			return streamdecoder.Fragment{}, false, err
		}
		return streamdecoder.Fragment{}, false, nil
	case <-ctx.Done():
		return streamdecoder.Fragment{}, false, ctx.Err()
	}
}

func (s *source) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *source) run() {
	defer close(s.fragments)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	s.emit(streamdecoder.Fragment{Kind: streamdecoder.KindStartStep, ModelID: s.modelID})

	p := &chunkProcessor{emit: s.emit, toolIDs: map[int64]string{}, toolNames: map[int64]string{}}
	var acc openai.ChatCompletionAccumulator
	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(err)
				return
			}
			if err := s.ctx.Err(); err != nil {
				s.setErr(err)
				return
			}
			break
		}
		chunk := s.stream.Current()
		acc.AddChunk(chunk)
		if err := p.handle(chunk); err != nil {
			s.emit(streamdecoder.Fragment{Kind: streamdecoder.KindError, Err: err})
			s.setErr(err)
			return
		}
	}

	if err := p.finish(acc); err != nil {
		s.emit(streamdecoder.Fragment{Kind: streamdecoder.KindError, Err: err})
		s.setErr(err)
		return
	}
}

func (s *source) emit(f streamdecoder.Fragment) {
	select {
	case s.fragments <- f:
	case <-s.ctx.Done():
	}
}

func (s *source) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.err = err
}

func (s *source) getErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// chunkProcessor tracks the one open text run and the tool-call ids/names
// seen so far, so it can echo tool-input-start/delta fragments as the
// stream arrives while leaving argument finalization to the accumulator.
type chunkProcessor struct {
	emit       func(streamdecoder.Fragment)
	textOpen   bool
	toolIDs    map[int64]string
	toolNames  map[int64]string
	stopReason string
	usage      message.TokenUsage
}

func (p *chunkProcessor) handle(chunk openai.ChatCompletionChunk) error {
	if len(chunk.Choices) == 0 {
		if chunk.Usage.TotalTokens > 0 {
			p.usage = message.TokenUsage{
				InputTokens:     int(chunk.Usage.PromptTokens),
				OutputTokens:    int(chunk.Usage.CompletionTokens),
				TotalTokens:     int(chunk.Usage.TotalTokens),
				CacheReadTokens: int(chunk.Usage.PromptTokensDetails.CachedTokens),
			}
			p.emit(streamdecoder.Fragment{
				Kind:               streamdecoder.KindFinishStep,
				Usage:              p.usage,
				ProviderStopReason: p.stopReason,
			})
		}
		return nil
	}

	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		if !p.textOpen {
			p.textOpen = true
			p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindTextStart})
		}
		p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindTextDelta, Text: choice.Delta.Content})
	}

	for _, tc := range choice.Delta.ToolCalls {
		idx := tc.Index
		if tc.ID != "" {
			if _, seen := p.toolIDs[idx]; !seen {
				p.toolIDs[idx] = tc.ID
				p.toolNames[idx] = tc.Function.Name
				p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindToolInputStart, ToolCallID: tc.ID, ToolName: tc.Function.Name})
			}
		}
		if tc.Function.Arguments != "" {
			p.emit(streamdecoder.Fragment{
				Kind:       streamdecoder.KindToolInputDelta,
				ToolCallID: p.toolIDs[idx],
				ToolName:   p.toolNames[idx],
				ArgsDelta:  tc.Function.Arguments,
			})
		}
	}

	if choice.FinishReason != "" {
		p.stopReason = choice.FinishReason
		if p.textOpen {
			p.textOpen = false
			p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindTextEnd})
		}
	}

	return nil
}

// finish reads the accumulator's finalized tool calls, once the stream has
// closed, and emits one tool-call fragment per call before the terminal
// finish fragment.
func (p *chunkProcessor) finish(acc openai.ChatCompletionAccumulator) error {
	if len(acc.Choices) > 0 {
		for _, tc := range acc.Choices[0].Message.ToolCalls {
			if tc.ID == "" && tc.Function.Name == "" {
				continue
			}
			args, err := decodeToolArgs(tc.Function.Arguments)
			if err != nil {
				return err
			}
			p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindToolCall, ToolCallID: tc.ID, ToolName: tc.Function.Name, Args: args})
		}
	}
	p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindFinish, Usage: p.usage, ProviderStopReason: p.stopReason})
	return nil
}

func decodeToolArgs(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("openai stream: decode tool args: %w", err)
	}
	return args, nil
}
