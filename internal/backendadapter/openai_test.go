package backendadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/ir"
)

func TestOpenAI_AdaptStreamChunk_TextThenStop(t *testing.T) {
	a := NewOpenAI()
	state := NewStreamState(false)

	chunks, err := a.AdaptStreamChunk([]byte(`data: {"id":"chatcmpl-1","model":"gpt-4o","choices":[{"delta":{"role":"assistant"},"finish_reason":null}]}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ir.ChunkMessageStart, chunks[0].Kind)

	chunks, err = a.AdaptStreamChunk([]byte(`data: {"choices":[{"delta":{"content":"hello"},"finish_reason":null}]}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ir.ChunkContentBlockStart, chunks[0].Kind)
	assert.Equal(t, ir.ChunkText, chunks[1].Kind)
	assert.Equal(t, "hello", chunks[1].Delta)

	chunks, err = a.AdaptStreamChunk([]byte(`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ir.ChunkContentBlockStop, chunks[0].Kind)
	assert.Equal(t, ir.ChunkMessageStop, chunks[1].Kind)
	assert.Equal(t, "stop", chunks[1].StopReason)

	chunks, err = a.AdaptStreamChunk([]byte(`data: [DONE]`), state)
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestOpenAI_AdaptStreamChunk_ToolCallByIndex(t *testing.T) {
	a := NewOpenAI()
	state := NewStreamState(false)
	_, _ = a.AdaptStreamChunk([]byte(`data: {"id":"x","model":"gpt-4o","choices":[{"delta":{"role":"assistant"}}]}`), state)

	chunks, err := a.AdaptStreamChunk([]byte(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_time","arguments":""}}]}}]}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ir.ChunkToolUseStart, chunks[0].Kind)
	assert.Equal(t, "call_1", chunks[0].ToolID)

	chunks, err = a.AdaptStreamChunk([]byte(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"tz\":\"UTC\"}"}}]}}]}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ir.ChunkToolUseDelta, chunks[0].Kind)
	assert.Equal(t, "call_1", chunks[0].ToolID)
	assert.Equal(t, `{"tz":"UTC"}`, chunks[0].Delta)

	chunks, err = a.AdaptStreamChunk([]byte(`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`), state)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, ir.ChunkToolUseEnd, chunks[0].Kind)
	assert.Equal(t, ir.ChunkContentBlockStop, chunks[1].Kind)
	assert.Equal(t, ir.ChunkMessageStop, chunks[2].Kind)
	assert.Equal(t, "tool_use", chunks[2].StopReason)
}

func TestOpenAI_AdaptStreamChunk_EmptyToolCallsFallsBackToStop(t *testing.T) {
	a := NewOpenAI()
	state := NewStreamState(false)
	_, _ = a.AdaptStreamChunk([]byte(`data: {"id":"x","model":"gpt-4o","choices":[{"delta":{"role":"assistant"}}]}`), state)

	chunks, err := a.AdaptStreamChunk([]byte(`data: {"choices":[{"delta":{"content":"hi"},"finish_reason":"tool_calls"}]}`), state)
	require.NoError(t, err)
	last := chunks[len(chunks)-1]
	assert.Equal(t, ir.ChunkMessageStop, last.Kind)
	assert.Equal(t, "stop", last.StopReason)
}

func TestOpenAI_AdaptRequest_SystemPrependedAndAuth(t *testing.T) {
	a := NewOpenAI()
	req := ir.Request{
		SystemPrompt: "be terse",
		Messages:     []ir.Message{{Role: ir.RoleUser, Content: []ir.ContentBlock{ir.TextBlock("hi")}}},
	}

	httpReq, err := a.AdaptRequest(req, "sk-test", "https://api.openai.com/v1", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", httpReq.Header.Get("Authorization"))
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", httpReq.URL.String())
}
