package backendadapter

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/ir"
)

func TestGemini_AdaptResponse_NonStreaming(t *testing.T) {
	a := NewGemini()
	body := []byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"4"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":1}}`)

	resp, err := a.AdaptResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "stop", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "4", resp.Content[0].Text)
	assert.Equal(t, uint64(3), resp.Usage.InputTokens)
	assert.Equal(t, uint64(1), resp.Usage.OutputTokens)
}

func TestGemini_AdaptStreamChunk_SynthesizesBlockPerPart(t *testing.T) {
	a := NewGemini()
	state := NewStreamState(false)

	chunks, err := a.AdaptStreamChunk([]byte(`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"hi"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":1}}`), state)
	require.NoError(t, err)
	// message_start + (content_block_start, text, content_block_stop) + message_stop
	require.Len(t, chunks, 5)
	assert.Equal(t, ir.ChunkMessageStart, chunks[0].Kind)
	assert.Equal(t, ir.ChunkContentBlockStart, chunks[1].Kind)
	assert.Equal(t, ir.ChunkText, chunks[2].Kind)
	assert.Equal(t, ir.ChunkContentBlockStop, chunks[3].Kind)
	assert.Equal(t, ir.ChunkMessageStop, chunks[4].Kind)
}

func TestGemini_AdaptRequest_NamedToolChoiceNarrowsDeclarations(t *testing.T) {
	a := NewGemini()
	req := ir.Request{
		Messages: []ir.Message{{Role: ir.RoleUser, Content: []ir.ContentBlock{ir.TextBlock("hi")}}},
		Tools: []ir.Tool{
			{Name: "get_time", Description: "time"},
			{Name: "get_weather", Description: "weather"},
		},
		ToolChoice: ir.ChoiceNamed("get_time"),
	}

	httpReq, err := a.AdaptRequest(req, "key", "https://generativelanguage.googleapis.com/v1beta", "gemini-pro")
	require.NoError(t, err)
	assert.Contains(t, httpReq.URL.String(), "models/gemini-pro:generateContent")

	raw, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"get_time"`)
	assert.NotContains(t, string(raw), `"get_weather"`)
}
