package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidyou/ccgateway/internal/chatproto"
	"github.com/aidyou/ccgateway/internal/dispatcher"
	"github.com/aidyou/ccgateway/internal/resolver"
)

type fakeResolver struct {
	model resolver.ProxyModel
	err   error
}

func (f *fakeResolver) Resolve(alias string) (resolver.ProxyModel, error) { return f.model, f.err }
func (f *fakeResolver) RotateKeys(baseURL, apiKey string) string         { return apiKey }
func (f *fakeResolver) BuildHTTPClient(metadata map[string]any) *http.Client {
	return http.DefaultClient
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_OpenAIRoute_ExtractsAliasFromBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer upstream.Close()

	res := &fakeResolver{model: resolver.ProxyModel{
		Alias: "gpt", ChatProtocol: chatproto.OpenAI, BaseURL: upstream.URL,
		Model: "gpt-4o", Temperature: 1.0,
	}}
	h := New(dispatcher.New(res, discardLogger(), nil), discardLogger())

	mux := http.NewServeMux()
	h.Routes(mux)

	body := `{"model":"gpt","stream":false,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(out), `"hi"`)
}

func TestHandler_GeminiRoute_SplitsModelAndAction(t *testing.T) {
	var gotAction string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.URL.Query().Get("alt")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"4"}]},"finishReason":"STOP"}]}`))
	}))
	defer upstream.Close()

	res := &fakeResolver{model: resolver.ProxyModel{
		Alias: "gem", ChatProtocol: chatproto.Gemini, BaseURL: upstream.URL,
		Model: "gemini-2.0-flash", Temperature: 1.0,
	}}
	h := New(dispatcher.New(res, discardLogger(), nil), discardLogger())

	mux := http.NewServeMux()
	h.Routes(mux)

	body := `{"contents":[{"role":"user","parts":[{"text":"2+2"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gem:generateContent", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, gotAction, "generateContent is forwarded without alt=sse")
}

func TestHandler_GeminiRoute_RejectsMissingAction(t *testing.T) {
	res := &fakeResolver{}
	h := New(dispatcher.New(res, discardLogger(), nil), discardLogger())

	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gem", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}
