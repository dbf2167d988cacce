package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentcore-go/agentcore/message"
	"github.com/agentcore-go/agentcore/streamdecoder"
)

// source adapts an Anthropic Messages streaming response into a
// streamdecoder.Source, grounded on the teacher's anthropicStreamer
// (features/model/anthropic/stream.go): a background goroutine pumps SSE
// events into a buffered channel of Fragments that Next drains.
type source struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	modelID string

	fragments chan streamdecoder.Fragment

	errMu  sync.Mutex
	errSet bool
	err    error
}

func newSource(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], modelID string) streamdecoder.Source {
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

	p := &chunkProcessor{emit: s.emit, toolBlocks: map[int]*toolBuffer{}}
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
			} else if err := s.ctx.Err(); err != nil {
				s.setErr(err)
			}
			return
		}
		if err := p.handle(s.stream.Current()); err != nil {
			s.emit(streamdecoder.Fragment{Kind: streamdecoder.KindError, Err: err})
			s.setErr(err)
			return
		}
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

// chunkProcessor converts one Anthropic MessageStreamEventUnion into zero or
// more streamdecoder.Fragment values, mirroring the teacher's
// anthropicChunkProcessor state machine (content-block index -> open tool
// call / open text block).
type chunkProcessor struct {
	emit       func(streamdecoder.Fragment)
	toolBlocks map[int]*toolBuffer
	textOpen   map[int]bool
	stopReason string
	usage      message.TokenUsage
}

type toolBuffer struct {
	id, name string
	args     strings.Builder
}

func (p *chunkProcessor) handle(event sdk.MessageStreamEventUnion) error {
	if p.textOpen == nil {
		p.textOpen = map[int]bool{}
	}
	switch ev := event.AsAny().(type) {
	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			if tu.ID == "" || tu.Name == "" {
				return fmt.Errorf("anthropic stream: tool_use block missing id/name")
			}
			p.toolBlocks[idx] = &toolBuffer{id: tu.ID, name: tu.Name}
			p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindToolInputStart, ToolCallID: tu.ID, ToolName: tu.Name})
			return nil
		}
		p.textOpen[idx] = true
		p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindTextStart})
		return nil
	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindTextDelta, Text: delta.Text})
			return nil
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return nil
			}
			tb := p.toolBlocks[idx]
			if tb == nil {
				return fmt.Errorf("anthropic stream: input JSON delta for unknown block %d", idx)
			}
			tb.args.WriteString(delta.PartialJSON)
			p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindToolInputDelta, ToolCallID: tb.id, ToolName: tb.name, ArgsDelta: delta.PartialJSON})
			return nil
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				return nil
			}
			p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindReasoningDelta, Text: delta.Thinking})
			return nil
		default:
			return nil
		}
	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		if tb := p.toolBlocks[idx]; tb != nil {
			delete(p.toolBlocks, idx)
			args, err := decodeToolArgs(tb.args.String())
			if err != nil {
				p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindError, Err: err})
				return err
			}
			p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindToolCall, ToolCallID: tb.id, ToolName: tb.name, Args: args})
			return nil
		}
		if p.textOpen[idx] {
			delete(p.textOpen, idx)
			p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindTextEnd})
		}
		return nil
	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		p.usage = message.TokenUsage{
			InputTokens:      int(ev.Usage.InputTokens),
			OutputTokens:     int(ev.Usage.OutputTokens),
			TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
			CacheReadTokens:  int(ev.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(ev.Usage.CacheCreationInputTokens),
		}
		p.emit(streamdecoder.Fragment{
			Kind:               streamdecoder.KindFinishStep,
			Usage:              p.usage,
			ProviderStopReason: p.stopReason,
		})
		return nil
	case sdk.MessageStopEvent:
		p.emit(streamdecoder.Fragment{Kind: streamdecoder.KindFinish, Usage: p.usage, ProviderStopReason: p.stopReason})
		return nil
	default:
		return nil
	}
}

func decodeToolArgs(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("anthropic stream: decode tool args: %w", err)
	}
	return args, nil
}
