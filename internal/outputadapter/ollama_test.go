package outputadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/sse"
)

func TestOllama_RenderChunk_TextThenStop(t *testing.T) {
	a := NewOllama()
	state := NewState(sse.New(false))

	events, err := a.RenderChunk(ir.MessageStart("m1", "llama3", ir.Usage{}), state)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "llama3", state.ModelID)

	events, err = a.RenderChunk(ir.TextDelta("hi"), state)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Data), `"content":"hi"`)

	events, err = a.RenderChunk(ir.MessageStop("stop", ir.Usage{InputTokens: 5, OutputTokens: 2}), state)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Data), `"done":true`)
	assert.Contains(t, string(events[0].Data), `"prompt_eval_count":5`)
}

func TestOllama_RenderChunk_ToolCallFlushedOnEnd(t *testing.T) {
	a := NewOllama()
	state := NewState(sse.New(false))

	events, err := a.RenderChunk(ir.ToolUseStart("function", "t1", "get_time"), state)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = a.RenderChunk(ir.ToolUseDelta("t1", `{"tz":"UTC"}`), state)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = a.RenderChunk(ir.ToolUseEnd("t1"), state)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Data), `"get_time"`)
	assert.Contains(t, string(events[0].Data), `"UTC"`)
}

func TestOllama_RenderResponse_AggregatesBlocks(t *testing.T) {
	a := NewOllama()
	resp := ir.Response{
		Model:      "llama3",
		Content:    []ir.ContentBlock{ir.TextBlock("hello")},
		StopReason: "stop",
		Usage:      ir.Usage{InputTokens: 3, OutputTokens: 1},
	}

	body, err := a.RenderResponse(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"hello"`)
	assert.Contains(t, string(body), `"done":true`)
}
