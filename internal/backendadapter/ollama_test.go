package backendadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/ir"
)

func TestOllama_AdaptResponse_NonStreaming(t *testing.T) {
	a := NewOllama()
	body := []byte(`{"message":{"role":"assistant","content":"4"},"done":true,"prompt_eval_count":3,"eval_count":1}`)

	resp, err := a.AdaptResponse(body)
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "4", resp.Content[0].Text)
	assert.Equal(t, uint64(3), resp.Usage.InputTokens)
	assert.Equal(t, uint64(1), resp.Usage.OutputTokens)
}

func TestOllama_AdaptStreamChunk_TextThenDone(t *testing.T) {
	a := NewOllama()
	state := NewStreamState(false)

	chunks, err := a.AdaptStreamChunk([]byte(`{"message":{"role":"assistant","content":"hel"},"done":false}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 3) // message_start, content_block_start, text

	chunks, err = a.AdaptStreamChunk([]byte(`{"message":{"role":"assistant","content":"lo"},"done":false}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "lo", chunks[0].Delta)

	chunks, err = a.AdaptStreamChunk([]byte(`{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":5,"eval_count":2}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 2) // content_block_stop, message_stop
	assert.Equal(t, ir.ChunkMessageStop, chunks[1].Kind)
	assert.Equal(t, uint64(5), chunks[1].Usage.InputTokens)
}

func TestOllama_AdaptStreamChunk_ToolCallIsFullyFormed(t *testing.T) {
	a := NewOllama()
	state := NewStreamState(false)
	_, _ = a.AdaptStreamChunk([]byte(`{"message":{"role":"assistant","content":""},"done":false}`), state)

	chunks, err := a.AdaptStreamChunk([]byte(`{"message":{"role":"assistant","tool_calls":[{"function":{"name":"get_time","arguments":{"tz":"UTC"}}}]},"done":false}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	assert.Equal(t, ir.ChunkToolUseStart, chunks[0].Kind)
	assert.Equal(t, ir.ChunkToolUseDelta, chunks[2].Kind)
	assert.Equal(t, ir.ChunkToolUseEnd, chunks[3].Kind)
}
