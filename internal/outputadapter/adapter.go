// Package outputadapter renders IR chunks and responses into a client
// protocol's byte stream (§4.5). Output adapters never write raw
// transport framing (SSE "data: " lines, blank-line separators); they
// return events or JSON objects that the transport layer serializes.
package outputadapter

import (
	"encoding/json"

	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/sse"
)

// Event is one unit of output: either an SSE event (Name set) or a bare
// JSON-lines object (Name empty). Data is the already-marshaled JSON
// body. Raw, when non-nil, is written verbatim instead of Data — used
// only for the literal "[DONE]" sentinel (§4.4 adapt_stream_end), which
// is not a JSON value.
type Event struct {
	Name string
	Data json.RawMessage
	Raw  []byte
}

// State is the per-stream bookkeeping an output adapter needs beyond the
// shared SseStatus — chiefly OpenAI's stable tool-call array index,
// assigned on first appearance of a tool id (§4.5).
type State struct {
	*sse.Status

	toolIndex   map[string]int
	nextToolIdx int

	// toolName/toolArgsBuf buffer a tool call's name and fragmented
	// argument deltas until ToolUseEnd, for output protocols (Gemini, Ollama)
	// whose wire format has no partial-arguments concept.
	toolName    map[string]string
	toolArgsBuf map[string]string
}

// NewState wraps a stream's shared status for output-adapter use. The
// same *sse.Status instance must be the one the backend adapter wrote
// into (§3.2 — owned by one stream, borrowed mutably in sequence).
func NewState(status *sse.Status) *State {
	return &State{
		Status:      status,
		toolIndex:   make(map[string]int),
		toolName:    make(map[string]string),
		toolArgsBuf: make(map[string]string),
	}
}

// ToolArrayIndex returns the stable tool_calls[] index for id, minting a
// new one on first appearance.
func (s *State) ToolArrayIndex(id string) (idx int, firstSeen bool) {
	if i, ok := s.toolIndex[id]; ok {
		return i, false
	}
	idx = s.nextToolIdx
	s.toolIndex[id] = idx
	s.nextToolIdx++
	return idx, true
}

// Adapter renders IR into one client protocol's event/JSON shape.
type Adapter interface {
	// RenderChunk renders one IR stream chunk into zero or more
	// client-facing events, consulting state as a read-only snapshot
	// plus the mutations §4.6 assigns to the output adapter (block
	// index bookkeeping, compat-mode text rendering).
	RenderChunk(chunk ir.StreamChunk, state *State) ([]Event, error)

	// RenderResponse renders a non-streaming UnifiedResponse into the
	// client protocol's JSON body.
	RenderResponse(resp ir.Response) (json.RawMessage, error)

	// StreamEnd returns any trailing events required after the last
	// chunk (e.g. OpenAI's literal "[DONE]" sentinel, §4.4
	// adapt_stream_end / §6.3).
	StreamEnd() []Event
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Only programmer error (a non-marshalable Go value) reaches
		// here; every field built by these adapters is JSON-safe.
		panic(err)
	}
	return b
}
