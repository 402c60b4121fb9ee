package shaping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/resolver"
)

func TestApplyRequest_ScalesTemperature(t *testing.T) {
	temp := float32(0.8)
	req := &ir.Request{Temperature: &temp}
	ApplyRequest(req, resolver.ProxyModel{Temperature: 0.5})
	assert.InDelta(t, 0.4, *req.Temperature, 0.0001)
}

func TestApplyRequest_FiltersToolsByName(t *testing.T) {
	req := &ir.Request{Tools: []ir.Tool{{Name: "shell"}, {Name: "get_time"}}}
	ApplyRequest(req, resolver.ProxyModel{
		Temperature: 1.0,
		ToolFilter:  map[string]struct{}{"shell": {}},
	})
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "get_time", req.Tools[0].Name)
}

func TestApplyRequest_PromptInjectionEnhanceAppends(t *testing.T) {
	req := &ir.Request{
		SystemPrompt: "be concise",
		Tools:        []ir.Tool{{Name: "get_time"}},
	}
	ApplyRequest(req, resolver.ProxyModel{
		Temperature:     1.0,
		PromptInjection: "enhance",
		PromptText:      "use tools wisely",
	})
	assert.Equal(t, "be concise\n\nuse tools wisely", req.SystemPrompt)
}

func TestApplyRequest_PromptInjectionReplaceOverwrites(t *testing.T) {
	req := &ir.Request{
		SystemPrompt: "be concise",
		Tools:        []ir.Tool{{Name: "get_time"}},
	}
	ApplyRequest(req, resolver.ProxyModel{
		Temperature:     1.0,
		PromptInjection: "replace",
		PromptText:      "use tools wisely",
	})
	assert.Equal(t, "use tools wisely", req.SystemPrompt)
}

func TestApplyRequest_NoToolsSkipsInjection(t *testing.T) {
	req := &ir.Request{SystemPrompt: "be concise"}
	ApplyRequest(req, resolver.ProxyModel{
		Temperature:     1.0,
		PromptInjection: "replace",
		PromptText:      "use tools wisely",
	})
	assert.Equal(t, "be concise", req.SystemPrompt)
}

func TestHeaders_ExpandsPlaceholdersAndPrefixes(t *testing.T) {
	pm := resolver.ProxyModel{
		Metadata: map[string]any{
			"customHeaders": map[string]any{
				"trace": "req-{RANDOM}",
				"conv":  "{CONV_ID}",
			},
		},
	}
	headers := Headers(pm, "12345")
	require.Contains(t, headers, "cs-trace")
	require.Contains(t, headers, "cs-conv")
	assert.Len(t, headers["cs-conv"], 36) // UUID string length
}

func TestBodyParams_CoercesTypesAndMerges(t *testing.T) {
	body := map[string]any{}
	pm := resolver.ProxyModel{
		Metadata: map[string]any{
			"customParams": map[string]any{
				"flag":  "true",
				"count": "3",
				"ratio": "1.5",
				"empty": "null",
				"name":  "literal",
			},
		},
	}
	BodyParams(body, pm, true)
	assert.Equal(t, true, body["flag"])
	assert.Equal(t, int64(3), body["count"])
	assert.Equal(t, 1.5, body["ratio"])
	assert.Nil(t, body["empty"])
	assert.Equal(t, "literal", body["name"])
}

func TestBodyParams_ForcesThinkingOffWhenNotStreaming(t *testing.T) {
	body := map[string]any{"enable_thinking": true}
	BodyParams(body, resolver.ProxyModel{}, false)
	assert.Equal(t, false, body["enable_thinking"])
}

func TestBodyParams_KeepsThinkingWhenStreaming(t *testing.T) {
	body := map[string]any{"enable_thinking": true}
	BodyParams(body, resolver.ProxyModel{}, true)
	assert.Equal(t, true, body["enable_thinking"])
}

func TestRawToolFilter_RemovesBlockedOpenAITool(t *testing.T) {
	body := map[string]any{
		"tools": []any{
			map[string]any{"type": "function", "function": map[string]any{"name": "shell"}},
			map[string]any{"type": "function", "function": map[string]any{"name": "get_time"}},
		},
	}
	RawToolFilter(body, "openai", resolver.ProxyModel{ToolFilter: map[string]struct{}{"shell": {}}})
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
}
