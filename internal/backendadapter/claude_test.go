package backendadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/ir"
)

func TestClaude_AdaptStreamChunk_TextBlock(t *testing.T) {
	a := NewClaude()
	state := NewStreamState(false)

	chunks, err := a.AdaptStreamChunk([]byte(`event: message_start
data: {"message":{"id":"msg_1","model":"claude-3-opus","usage":{"input_tokens":10,"output_tokens":0}}}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ir.ChunkMessageStart, chunks[0].Kind)

	chunks, err = a.AdaptStreamChunk([]byte(`event: content_block_start
data: {"index":0,"content_block":{"type":"text","text":""}}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ir.ChunkContentBlockStart, chunks[0].Kind)

	chunks, err = a.AdaptStreamChunk([]byte(`event: content_block_delta
data: {"index":0,"delta":{"type":"text_delta","text":"hello"}}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0].Delta)

	chunks, err = a.AdaptStreamChunk([]byte(`event: content_block_stop
data: {"index":0}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ir.ChunkContentBlockStop, chunks[0].Kind)

	chunks, err = a.AdaptStreamChunk([]byte(`event: message_delta
data: {"delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":1}}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "end_turn", chunks[0].StopReason)
}

func TestClaude_AdaptStreamChunk_InputJSONDeltaBeforeStartIsError(t *testing.T) {
	a := NewClaude()
	state := NewStreamState(false)

	_, err := a.AdaptStreamChunk([]byte(`event: content_block_delta
data: {"index":0,"delta":{"type":"input_json_delta","partial_json":"{}"}}`), state)
	require.Error(t, err)
	assert.True(t, ir.IsKind(err, ir.KindAdapterConversion))
}

func TestClaude_AdaptStreamChunk_ErrorEvent(t *testing.T) {
	a := NewClaude()
	state := NewStreamState(false)

	chunks, err := a.AdaptStreamChunk([]byte(`event: error
data: {"error":{"message":"rate limited"}}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ir.ChunkError, chunks[0].Kind)
	assert.Equal(t, "rate limited", chunks[0].Message)
}

func TestClaude_AdaptStreamChunk_ToolUse(t *testing.T) {
	a := NewClaude()
	state := NewStreamState(false)

	chunks, err := a.AdaptStreamChunk([]byte(`event: content_block_start
data: {"index":0,"content_block":{"type":"tool_use","id":"call_1","name":"get_time"}}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ir.ChunkToolUseStart, chunks[0].Kind)
	assert.Equal(t, ir.ChunkContentBlockStart, chunks[1].Kind)

	chunks, err = a.AdaptStreamChunk([]byte(`event: content_block_delta
data: {"index":0,"delta":{"type":"input_json_delta","partial_json":"{\"tz\":\"UTC\"}"}}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "call_1", chunks[0].ToolID)

	chunks, err = a.AdaptStreamChunk([]byte(`event: content_block_stop
data: {"index":0}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ir.ChunkToolUseEnd, chunks[0].Kind)
	assert.Equal(t, ir.ChunkContentBlockStop, chunks[1].Kind)
}
