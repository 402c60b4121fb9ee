// Package resolver implements the model-resolver contract the dispatcher
// consumes (§6.4): alias -> ProxyModel lookup, multi-line API key
// rotation, and proxy-aware HTTP client construction.
package resolver

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aidyou/ccgateway/internal/chatproto"
	"github.com/aidyou/ccgateway/internal/config"
	"github.com/aidyou/ccgateway/internal/ir"
)

// ProxyModel is the immutable, per-request view of one alias's upstream
// binding (§3.3).
type ProxyModel struct {
	Alias           string
	ChatProtocol    chatproto.Protocol
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float32
	ToolFilter      map[string]struct{}
	PromptInjection string
	PromptText      string
	Metadata        map[string]any
}

// Resolver is the model-resolver contract (§6.4).
type Resolver interface {
	Resolve(alias string) (ProxyModel, error)
	RotateKeys(baseURL, apiKey string) string
	BuildHTTPClient(metadata map[string]any) *http.Client
}

// ConfigResolver resolves aliases against a config.Manager's Models list.
type ConfigResolver struct {
	manager *config.Manager

	mu        sync.Mutex
	rotations map[string]int
}

func NewConfigResolver(manager *config.Manager) *ConfigResolver {
	return &ConfigResolver{manager: manager, rotations: make(map[string]int)}
}

// Resolve looks up alias among the configured models. Resolution is
// read-only: no writes happen on the request path (§5).
func (r *ConfigResolver) Resolve(alias string) (ProxyModel, error) {
	cfg := r.manager.Get()
	for _, m := range cfg.Models {
		if m.Alias != alias {
			continue
		}
		proto := chatproto.Protocol(m.ChatProtocol)
		if !proto.Valid() {
			return ProxyModel{}, ir.InvalidRequest("model %q has invalid chat_protocol %q", alias, m.ChatProtocol)
		}
		filter := make(map[string]struct{}, len(m.ToolFilter))
		for _, name := range m.ToolFilter {
			filter[name] = struct{}{}
		}
		return ProxyModel{
			Alias:           m.Alias,
			ChatProtocol:    proto,
			BaseURL:         m.BaseURL,
			APIKey:          r.RotateKeys(m.BaseURL, m.APIKey),
			Model:           m.Model,
			Temperature:     m.Temperature,
			ToolFilter:      filter,
			PromptInjection: m.PromptInjection,
			PromptText:      m.PromptText,
			Metadata:        m.Metadata,
		}, nil
	}
	return ProxyModel{}, ir.ModelNotFound(alias)
}

// RotateKeys round-robins api_key when it holds multiple newline-separated
// keys, keyed by base_url so distinct upstreams rotate independently.
func (r *ConfigResolver) RotateKeys(baseURL, apiKey string) string {
	keys := strings.Split(strings.TrimSpace(apiKey), "\n")
	if len(keys) <= 1 {
		return strings.TrimSpace(apiKey)
	}

	r.mu.Lock()
	idx := r.rotations[baseURL] % len(keys)
	r.rotations[baseURL]++
	r.mu.Unlock()

	return strings.TrimSpace(keys[idx])
}

// BuildHTTPClient builds a client honoring an optional "proxy" metadata
// entry (an HTTP/HTTPS/SOCKS5 proxy URL). Streaming responses are
// unbounded by client-side timeout; cancellation is cooperative via the
// request's context (§5).
func (r *ConfigResolver) BuildHTTPClient(metadata map[string]any) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if raw, ok := metadata["proxy"].(string); ok && raw != "" {
		if proxyURL, err := url.Parse(raw); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{Transport: transport}
}
