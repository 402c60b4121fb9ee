package dispatcher

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aidyou/ccgateway/internal/chatproto"
	"github.com/aidyou/ccgateway/internal/ir"
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

func TestDispatcher_MediatedNonStreaming_OpenAIClientToClaudeUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn","usage":{"input_tokens":2,"output_tokens":1}}`))
	}))
	defer upstream.Close()

	res := &fakeResolver{model: resolver.ProxyModel{
		Alias: "default", ChatProtocol: chatproto.Claude, BaseURL: upstream.URL,
		Model: "claude-3", Temperature: 1.0,
	}}
	d := New(res, discardLogger(), nil)

	body := `{"model":"default","messages":[{"role":"user","content":"hi"}],"stream":false}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	w := httptest.NewRecorder()

	d.Handle(w, req, chatproto.OpenAI, "default", Options{})

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(out), `"hi"`)
	assert.Contains(t, string(out), `"chat.completion"`)
}

func TestDispatcher_ResolveFailureRendersModelNotFound(t *testing.T) {
	res := &fakeResolver{err: ir.ModelNotFound("missing-alias")}
	d := New(res, discardLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	d.Handle(w, req, chatproto.OpenAI, "missing-alias", Options{})

	resp := w.Result()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDispatcher_UpstreamNon2xxIsTranslated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer upstream.Close()

	res := &fakeResolver{model: resolver.ProxyModel{
		ChatProtocol: chatproto.Claude, BaseURL: upstream.URL, Model: "claude-3", Temperature: 1.0,
	}}
	d := New(res, discardLogger(), nil)

	body := `{"model":"default","messages":[{"role":"user","content":"hi"}],"stream":false}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	w := httptest.NewRecorder()

	d.Handle(w, req, chatproto.OpenAI, "default", Options{})

	resp := w.Result()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
