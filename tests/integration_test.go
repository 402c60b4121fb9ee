package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/config"
	"github.com/aidyou/ccgateway/internal/dispatcher"
	"github.com/aidyou/ccgateway/internal/httpapi"
	"github.com/aidyou/ccgateway/internal/resolver"
)

// TestGatewayIntegration_OpenAIClientToClaudeUpstream drives a non-streaming
// request through the full httpapi -> dispatcher -> resolver -> adapter
// stack against a fake upstream, end to end. See
// TestGatewayIntegration_OpenAIClientToClaudeUpstreamStream for the
// streaming §8 scenario E1 case.
func TestGatewayIntegration_OpenAIClientToClaudeUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-provider-key", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":1}}`))
	}))
	defer upstream.Close()

	tmpDir := t.TempDir()
	cfgMgr := config.NewManager(tmpDir)
	cfg := &config.Config{
		Host: "127.0.0.1",
		Port: 8080,
		Models: []config.ModelConfig{
			{
				Alias:        "alias-claude",
				ChatProtocol: "claude",
				BaseURL:      upstream.URL,
				APIKey:       "test-provider-key",
				Model:        "claude-3-5-sonnet",
			},
		},
	}
	require.NoError(t, cfgMgr.Save(cfg))
	_, err := cfgMgr.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	res := resolver.NewConfigResolver(cfgMgr)
	disp := dispatcher.New(res, logger, nil)
	api := httpapi.New(disp, logger)

	mux := http.NewServeMux()
	api.Routes(mux)

	body, _ := json.Marshal(map[string]any{
		"model":    "alias-claude",
		"stream":   false,
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	out, _ := io.ReadAll(rr.Body)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "chat.completion", decoded["object"])

	choices, ok := decoded["choices"].([]any)
	require.True(t, ok)
	require.Len(t, choices, 1)
	choice := choices[0].(map[string]any)
	message := choice["message"].(map[string]any)
	assert.Equal(t, "hello", message["content"])
	assert.Equal(t, "stop", choice["finish_reason"])
}

// TestGatewayIntegration_ClaudeClientToOpenAIUpstreamStream drives a real
// streaming SSE response through httpapi -> dispatcher -> resolver for a
// Claude client mediated onto an OpenAI-shaped upstream with a tool call,
// asserting the literal event sequence (§8 scenario E2): exactly one
// content_block_start per block, correctly typed and indexed, and a
// matching content_block_stop/tool close.
func TestGatewayIntegration_ClaudeClientToOpenAIUpstreamStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		frames := []string{
			`{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
			`{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_time","arguments":""}}]},"finish_reason":null}]}`,
			`{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"tz\":\"UTC\"}"}}]},"finish_reason":null}]}`,
			`{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	tmpDir := t.TempDir()
	cfgMgr := config.NewManager(tmpDir)
	cfg := &config.Config{
		Host: "127.0.0.1",
		Port: 8080,
		Models: []config.ModelConfig{
			{
				Alias:        "alias-openai",
				ChatProtocol: "openai",
				BaseURL:      upstream.URL,
				APIKey:       "test-provider-key",
				Model:        "gpt-4o",
			},
		},
	}
	require.NoError(t, cfgMgr.Save(cfg))
	_, err := cfgMgr.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	res := resolver.NewConfigResolver(cfgMgr)
	disp := dispatcher.New(res, logger, nil)
	api := httpapi.New(disp, logger)

	mux := http.NewServeMux()
	api.Routes(mux)

	body, _ := json.Marshal(map[string]any{
		"model":      "alias-openai",
		"stream":     true,
		"max_tokens": 100,
		"messages":   []map[string]any{{"role": "user", "content": "what time is it"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	out := rr.Body.String()

	assert.Equal(t, 1, strings.Count(out, "event: content_block_start"),
		"exactly one content_block_start must survive the paired ToolUseStart+ContentBlockStart backend chunks")
	assert.Contains(t, out, `"type":"tool_use"`)
	assert.NotContains(t, out, `"content_block":{"type":"text","text":""}`,
		"the tool block must never be rendered as a mistyped text block")
	assert.Equal(t, 1, strings.Count(out, "event: content_block_stop"))

	startIdx := indexFieldOf(t, out, "content_block_start")
	stopIdx := indexFieldOf(t, out, "content_block_stop")
	assert.Equal(t, startIdx, stopIdx, "the block's start and stop events must reference the same index")

	assert.Contains(t, out, `"get_time"`)
	assert.Contains(t, out, `"partial_json":"{\"tz\":\"UTC\"}"`)
}

// TestGatewayIntegration_OpenAIClientToClaudeUpstreamStream drives a real
// streaming response for §8 scenario E1: an OpenAI client mediated onto a
// Claude upstream's SSE event grammar for a single text block, asserting
// the rendered chat.completion.chunk deltas and the terminal [DONE]
// sentinel.
func TestGatewayIntegration_OpenAIClientToClaudeUpstreamStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","model":"claude-3-5-sonnet","usage":{"input_tokens":3,"output_tokens":0}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":1}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, e := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	tmpDir := t.TempDir()
	cfgMgr := config.NewManager(tmpDir)
	cfg := &config.Config{
		Host: "127.0.0.1",
		Port: 8080,
		Models: []config.ModelConfig{
			{
				Alias:        "alias-claude-stream",
				ChatProtocol: "claude",
				BaseURL:      upstream.URL,
				APIKey:       "test-provider-key",
				Model:        "claude-3-5-sonnet",
			},
		},
	}
	require.NoError(t, cfgMgr.Save(cfg))
	_, err := cfgMgr.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	res := resolver.NewConfigResolver(cfgMgr)
	disp := dispatcher.New(res, logger, nil)
	api := httpapi.New(disp, logger)

	mux := http.NewServeMux()
	api.Routes(mux)

	body, _ := json.Marshal(map[string]any{
		"model":    "alias-claude-stream",
		"stream":   true,
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	out := rr.Body.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "data: [DONE]", lines[len(lines)-1])

	var sawContent, sawStop bool
	for _, line := range lines {
		payload := strings.TrimPrefix(line, "data: ")
		if payload == line || payload == "[DONE]" {
			continue
		}
		var chunk map[string]any
		if json.Unmarshal([]byte(payload), &chunk) != nil {
			continue
		}
		choices, ok := chunk["choices"].([]any)
		if !ok || len(choices) == 0 {
			continue
		}
		choice := choices[0].(map[string]any)
		if delta, ok := choice["delta"].(map[string]any); ok {
			if c, _ := delta["content"].(string); c == "hello" {
				sawContent = true
			}
		}
		if fr, _ := choice["finish_reason"].(string); fr == "stop" {
			sawStop = true
		}
	}
	assert.True(t, sawContent, "expected a chat.completion.chunk delta with content %q", "hello")
	assert.True(t, sawStop, "expected a terminal chunk with finish_reason \"stop\"")
}

// indexFieldOf extracts the "index" field from the first SSE data payload
// following the named event in a Claude-protocol SSE stream.
func indexFieldOf(t *testing.T, out, eventName string) float64 {
	t.Helper()
	marker := "event: " + eventName + "\n"
	pos := strings.Index(out, marker)
	require.GreaterOrEqual(t, pos, 0, "event %q not found", eventName)
	rest := out[pos+len(marker):]
	dataLine := strings.SplitN(rest, "\n", 2)[0]
	payload := strings.TrimPrefix(dataLine, "data: ")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	idx, ok := decoded["index"].(float64)
	require.True(t, ok, "event %q payload has no numeric index field: %s", eventName, payload)
	return idx
}

// TestGatewayIntegration_UnresolvedAliasIs404 exercises the client-facing
// error path when the requested alias has no configured model.
func TestGatewayIntegration_UnresolvedAliasIs404(t *testing.T) {
	tmpDir := t.TempDir()
	cfgMgr := config.NewManager(tmpDir)
	require.NoError(t, cfgMgr.Save(&config.Config{Host: "127.0.0.1", Port: 8080}))
	_, err := cfgMgr.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	res := resolver.NewConfigResolver(cfgMgr)
	disp := dispatcher.New(res, logger, nil)
	api := httpapi.New(disp, logger)

	mux := http.NewServeMux()
	api.Routes(mux)

	body, _ := json.Marshal(map[string]any{"model": "missing", "messages": []map[string]any{{"role": "user", "content": "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
