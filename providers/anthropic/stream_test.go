package anthropic

import (
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/require"

	"github.com/agentcore-go/agentcore/streamdecoder"
)

// mustEvent decodes raw into a MessageStreamEventUnion the same way the SSE
// decoder underneath ssestream.Stream does, so chunkProcessor.handle can be
// exercised against the documented wire shape without a live connection.
func mustEvent(t *testing.T, raw string) sdk.MessageStreamEventUnion {
	t.Helper()
	var ev sdk.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func newProcessor() (*chunkProcessor, *[]streamdecoder.Fragment) {
	frags := &[]streamdecoder.Fragment{}
	p := &chunkProcessor{emit: func(f streamdecoder.Fragment) { *frags = append(*frags, f) }, toolBlocks: map[int]*toolBuffer{}}
	return p, frags
}

func TestChunkProcessorTextBlockEmitsStartDeltaEnd(t *testing.T) {
	p, frags := newProcessor()

	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)))
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`)))
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`)))
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_stop","index":0}`)))

	got := *frags
	require.Len(t, got, 4)
	require.Equal(t, streamdecoder.KindTextStart, got[0].Kind)
	require.Equal(t, streamdecoder.KindTextDelta, got[1].Kind)
	require.Equal(t, "Hel", got[1].Text)
	require.Equal(t, streamdecoder.KindTextDelta, got[2].Kind)
	require.Equal(t, "lo", got[2].Text)
	require.Equal(t, streamdecoder.KindTextEnd, got[3].Kind)
}

func TestChunkProcessorToolUseBlockAccumulatesArgs(t *testing.T) {
	p, frags := newProcessor()

	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{}}}`)))
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`)))
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Lisbon\"}"}}`)))
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_stop","index":1}`)))

	got := *frags
	require.Len(t, got, 4)
	require.Equal(t, streamdecoder.KindToolInputStart, got[0].Kind)
	require.Equal(t, "toolu_1", got[0].ToolCallID)
	require.Equal(t, streamdecoder.KindToolInputDelta, got[1].Kind)
	require.Equal(t, streamdecoder.KindToolCall, got[3].Kind)
	require.Equal(t, "Lisbon", got[3].Args["city"])
}

func TestChunkProcessorToolUseMissingIDOrNameErrors(t *testing.T) {
	p, _ := newProcessor()
	err := p.handle(mustEvent(t, `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"","name":"","input":{}}}`))
	require.Error(t, err)
}

func TestChunkProcessorInputJSONDeltaForUnknownBlockErrors(t *testing.T) {
	p, _ := newProcessor()
	err := p.handle(mustEvent(t, `{"type":"content_block_delta","index":9,"delta":{"type":"input_json_delta","partial_json":"{}"}}`))
	require.Error(t, err)
}

func TestChunkProcessorMalformedToolArgsEmitsErrorFragment(t *testing.T) {
	p, frags := newProcessor()
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"noop","input":{}}}`)))
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"not json"}}`)))
	err := p.handle(mustEvent(t, `{"type":"content_block_stop","index":0}`))
	require.Error(t, err)

	got := *frags
	require.Equal(t, streamdecoder.KindError, got[len(got)-1].Kind)
}

func TestChunkProcessorThinkingDeltaEmitsReasoningDelta(t *testing.T) {
	p, frags := newProcessor()
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`)))
	require.NoError(t, p.handle(mustEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"pondering"}}`)))

	got := *frags
	require.Equal(t, streamdecoder.KindReasoningDelta, got[len(got)-1].Kind)
	require.Equal(t, "pondering", got[len(got)-1].Text)
}

func TestChunkProcessorMessageDeltaCarriesUsageAndStopReason(t *testing.T) {
	p, frags := newProcessor()
	require.NoError(t, p.handle(mustEvent(t, `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":10,"output_tokens":5}}`)))

	got := *frags
	require.Len(t, got, 1)
	require.Equal(t, streamdecoder.KindFinishStep, got[0].Kind)
	require.Equal(t, "end_turn", got[0].ProviderStopReason)
	require.Equal(t, 10, got[0].Usage.InputTokens)
	require.Equal(t, 5, got[0].Usage.OutputTokens)
}

func TestChunkProcessorMessageStopEmitsFinishWithLastStopReason(t *testing.T) {
	p, frags := newProcessor()
	require.NoError(t, p.handle(mustEvent(t, `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{}}`)))
	require.NoError(t, p.handle(mustEvent(t, `{"type":"message_stop"}`)))

	got := *frags
	require.Equal(t, streamdecoder.KindFinish, got[len(got)-1].Kind)
	require.Equal(t, "tool_use", got[len(got)-1].ProviderStopReason)
}

func TestChunkProcessorUnknownEventTypeIsIgnored(t *testing.T) {
	p, frags := newProcessor()
	require.NoError(t, p.handle(mustEvent(t, `{"type":"message_start","message":{"id":"msg_1"}}`)))
	require.Empty(t, *frags)
}
