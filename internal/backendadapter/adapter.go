// Package backendadapter serializes the IR into an upstream provider's
// wire format and parses that provider's responses (streaming and not)
// back into the IR (§4.4). This is the heaviest component in the
// system: adapt_stream_chunk carries each provider's idiosyncratic
// streaming semantics.
package backendadapter

import (
	"net/http"

	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/reassembler"
	"github.com/aidyou/ccgateway/internal/sse"
)

// Response wraps a parsed upstream body together with whether the
// request was sent in tool-compat mode, mirroring the original's
// BackendResponse{body, tool_compat_mode}.
type Response struct {
	Body          ir.Response
	ToolCompatMode bool
}

// StreamState extends the spec'd SseStatus (§3.2) with the bookkeeping a
// backend adapter needs across frames of one stream but that the output
// adapter has no use for — chiefly OpenAI/Ollama's stream-index-to-tool-id
// map (§4.4: "accumulate tool-call parts by stream index, not id").
// Exactly one StreamState is created per request, alongside its Status.
type StreamState struct {
	*sse.Status

	// ToolIndexID maps a provider-assigned stream index to the tool_use
	// id minted for it on first sighting.
	ToolIndexID map[int]string

	// ToolArgsBuf accumulates the fragmented JSON-argument string per
	// tool id until the corresponding block closes.
	ToolArgsBuf map[string]string
}

// NewStreamState creates the per-request state shared between a backend
// adapter and the output adapter that follows it.
func NewStreamState(toolCompatMode bool) *StreamState {
	return &StreamState{
		Status:      sse.New(toolCompatMode),
		ToolIndexID: make(map[int]string),
		ToolArgsBuf: make(map[string]string),
	}
}

// Adapter implements the four backend-adapter operations for one
// upstream protocol.
type Adapter interface {
	// Format reports which framing rule the reassembler (C2) should
	// apply to this provider's stream (§4.2).
	Format() reassembler.Format

	// AdaptRequest serializes req into an outbound HTTP request ready
	// to send (§4.4 adapt_request).
	AdaptRequest(req ir.Request, apiKey, baseURL, model string) (*http.Request, error)

	// AdaptResponse parses a non-streaming upstream body (§4.4
	// adapt_response).
	AdaptResponse(body []byte) (ir.Response, error)

	// AdaptStreamChunk parses one reassembler frame into zero or more
	// IR stream chunks, mutating state as it goes (§4.4
	// adapt_stream_chunk).
	AdaptStreamChunk(frame []byte, state *StreamState) ([]ir.StreamChunk, error)

	// AdaptStreamEnd returns an optional terminal sentinel some client
	// protocols expect (§4.4 adapt_stream_end); this is consumed by the
	// output adapter on the far side, not written here.
	AdaptStreamEnd() []byte
}
