package inputadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/ir"
)

func TestOpenAI_Parse_SystemAndToolChoice(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"stream": true,
		"messages": [
			{"role":"system","content":"be terse"},
			{"role":"user","content":"hi"}
		],
		"tool_choice": {"type":"function","function":{"name":"get_time"}}
	}`)

	req, err := NewOpenAI().Parse(body, Options{})
	require.NoError(t, err)

	assert.Equal(t, "be terse", req.SystemPrompt)
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, ir.RoleUser, req.Messages[0].Role)
	assert.Equal(t, ir.ChoiceNamed("get_time"), req.ToolChoice)
}

func TestOpenAI_Parse_ToolMessage(t *testing.T) {
	body := []byte(`{
		"model":"gpt-4o",
		"messages":[
			{"role":"tool","tool_call_id":"call_1","content":"42"}
		]
	}`)

	req, err := NewOpenAI().Parse(body, Options{})
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, ir.RoleTool, req.Messages[0].Role)
	require.Len(t, req.Messages[0].Content, 1)
	assert.Equal(t, "call_1", req.Messages[0].Content[0].ToolResultID)
}

func TestOpenAI_Parse_ImageURLMustBeDataURL(t *testing.T) {
	body := []byte(`{
		"model":"gpt-4o",
		"messages":[
			{"role":"user","content":[{"type":"image_url","image_url":{"url":"https://example.com/a.png"}}]}
		]
	}`)

	_, err := NewOpenAI().Parse(body, Options{})
	require.Error(t, err)
	assert.True(t, ir.IsKind(err, ir.KindInvalidRequest))
}

func TestClaude_Parse_SystemAndToolResult(t *testing.T) {
	body := []byte(`{
		"model":"claude-3-opus",
		"system":"be terse",
		"messages":[
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"4"}]}
		],
		"tool_choice":{"type":"tool","name":"calc"}
	}`)

	req, err := NewClaude().Parse(body, Options{})
	require.NoError(t, err)
	assert.Equal(t, "be terse", req.SystemPrompt)
	assert.Equal(t, ir.RoleTool, req.Messages[0].Role)
	assert.Equal(t, ir.ChoiceNamed("calc"), req.ToolChoice)
}

func TestGemini_Parse_StreamInferredFromAction(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"2+2"}]}]}`)

	req, err := NewGemini().Parse(body, Options{GeminiAction: "streamGenerateContent"})
	require.NoError(t, err)
	assert.True(t, req.Stream)

	req, err = NewGemini().Parse(body, Options{GeminiAction: "generateContent"})
	require.NoError(t, err)
	assert.False(t, req.Stream)
}

func TestGemini_Parse_FunctionCallAndResponse(t *testing.T) {
	body := []byte(`{
		"contents":[
			{"role":"model","parts":[{"functionCall":{"name":"get_time","args":{"tz":"UTC"}}}]},
			{"role":"user","parts":[{"functionResponse":{"name":"get_time","response":{"time":"now"}}}]}
		]
	}`)

	req, err := NewGemini().Parse(body, Options{GeminiAction: "generateContent"})
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, ir.BlockToolUse, req.Messages[0].Content[0].Kind)
	assert.Equal(t, ir.RoleTool, req.Messages[1].Role)
}

func TestOllama_Parse_DefaultsStreamTrue(t *testing.T) {
	body := []byte(`{"model":"llama3","messages":[{"role":"user","content":"hi"}]}`)

	req, err := NewOllama().Parse(body, Options{})
	require.NoError(t, err)
	assert.True(t, req.Stream)
	assert.Equal(t, "llama3", req.Model)
}

func TestOllama_Parse_ToolCallIsFullyFormed(t *testing.T) {
	body := []byte(`{
		"model":"llama3",
		"messages":[
			{"role":"assistant","tool_calls":[{"function":{"name":"get_time","arguments":{"tz":"UTC"}}}]}
		]
	}`)

	req, err := NewOllama().Parse(body, Options{})
	require.NoError(t, err)
	require.Len(t, req.Messages[0].Content, 1)
	assert.Equal(t, ir.BlockToolUse, req.Messages[0].Content[0].Kind)
	assert.Equal(t, "get_time", req.Messages[0].Content[0].ToolName)
}
