package outputadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/sse"
)

func TestGemini_RenderChunk_TextDeltaBecomesPart(t *testing.T) {
	a := NewGemini()
	state := NewState(sse.New(false))

	events, err := a.RenderChunk(ir.TextDelta("hi"), state)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Data), `"text":"hi"`)
}

func TestGemini_RenderChunk_ToolCallBufferedUntilEnd(t *testing.T) {
	a := NewGemini()
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
	assert.Contains(t, string(events[0].Data), `"functionCall"`)
	assert.Contains(t, string(events[0].Data), `"get_time"`)
	assert.Contains(t, string(events[0].Data), `"UTC"`)
}

func TestGemini_RenderResponse_AggregatesBlocks(t *testing.T) {
	a := NewGemini()
	resp := ir.Response{
		Model:      "gemini-pro",
		Content:    []ir.ContentBlock{ir.TextBlock("hello")},
		StopReason: "stop",
		Usage:      ir.Usage{InputTokens: 3, OutputTokens: 1},
	}

	body, err := a.RenderResponse(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"hello"`)
	assert.Contains(t, string(body), `"promptTokenCount":3`)
}
