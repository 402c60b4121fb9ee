// Package httpapi implements the client HTTP surface (§6.1): the four
// protocol endpoint families, each accepting the exact wire format of
// its corresponding provider. It resolves (protocol, alias,
// tool_compat_mode, gemini_action) from the request and hands off to
// the Chat Dispatcher.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aidyou/ccgateway/internal/chatproto"
	"github.com/aidyou/ccgateway/internal/dispatcher"
)

// Handler serves the four chat-completion endpoint families on top of
// one Dispatcher.
type Handler struct {
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
}

func New(d *dispatcher.Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{dispatcher: d, logger: logger}
}

// Routes registers the four endpoint families on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat/completions", h.handleOpenAI)
	mux.HandleFunc("POST /v1/messages", h.handleClaude)
	mux.HandleFunc("POST /v1beta/models/{modelAction}", h.handleGemini)
	mux.HandleFunc("POST /api/chat", h.handleOllama)
}

func (h *Handler) handleOpenAI(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chatproto.OpenAI)
}

func (h *Handler) handleClaude(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chatproto.Claude)
}

func (h *Handler) handleOllama(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chatproto.Ollama)
}

// handleGemini splits the `{model}:{action}` path segment per §6.1.
// The model name itself is the alias the resolver looks up; the action
// (generateContent / streamGenerateContent) decides whether the
// response is streamed.
func (h *Handler) handleGemini(w http.ResponseWriter, r *http.Request) {
	modelAction := r.PathValue("modelAction")
	model, action, ok := strings.Cut(modelAction, ":")
	if !ok {
		http.Error(w, "expected {model}:{action} path segment", http.StatusBadRequest)
		return
	}

	body, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	opts.GeminiAction = action
	r.Body = newBodyReader(body)
	h.dispatcher.Handle(w, r, chatproto.Gemini, model, opts)
}

// aliasFromBody extracts the `model` field clients set in the JSON body
// for the three protocols that carry the alias there (OpenAI, Claude,
// Ollama). Gemini instead carries it in the URL path (§6.1).
func aliasFromBody(body []byte) string {
	var payload struct {
		Model string `json:"model"`
	}
	_ = json.Unmarshal(body, &payload)
	return payload.Model
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, proto chatproto.Protocol) {
	body, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	r.Body = newBodyReader(body)
	h.dispatcher.Handle(w, r, proto, aliasFromBody(body), opts)
}

// prepare reads the body once (the dispatcher needs it whole anyway
// for model-name rewriting and shaping) and resolves the options the
// external HTTP layer owns per §6.1: debug toggle, tool-compat mode,
// and a per-request chat id used for debug records and header
// templating (§4.8.4 {CONV_ID}).
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) ([]byte, dispatcher.Options, bool) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return nil, dispatcher.Options{}, false
	}

	chatID := r.Header.Get("X-Chat-Id")
	if chatID == "" {
		chatID = uuid.NewString()
	}

	opts := dispatcher.Options{
		Debug:          r.URL.Query().Get("debug") == "true",
		ToolCompatMode: r.URL.Query().Get("tool_compat") == "true",
		ChatID:         chatID,
	}
	return body, opts, true
}
