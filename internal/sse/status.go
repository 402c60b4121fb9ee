// Package sse implements the per-stream status tracker (§3.2, §4.6): the
// single piece of mutable state that backend and output adapters consult
// to know which content block is currently open.
package sse

import "github.com/aidyou/ccgateway/internal/ir"

// OpenBlock identifies the kind of content block currently open on a
// stream, or BlockNone if none is open.
type OpenBlock string

const (
	BlockNone     OpenBlock = ""
	BlockText     OpenBlock = "text"
	BlockThinking OpenBlock = "thinking"
	BlockToolUse  OpenBlock = "tool_use"
)

// Status is owned by exactly one stream; the reassembler and adapters
// borrow it mutably in sequence, never concurrently (§3.2).
type Status struct {
	MessageID  string
	ModelID    string
	MessageStarted bool
	MessageIndex   uint32

	OpenBlock OpenBlock
	ToolID    string

	TextDeltaCount     uint64
	ThinkingDeltaCount uint64

	// ToolCompatMode instructs output adapters to render tool calls as
	// text for clients that cannot consume structured tool-call events.
	// It is dispatcher-supplied and request-scoped (§4.3, §4.6).
	ToolCompatMode bool

	usage ir.Usage
}

// New creates a fresh status for a stream about to begin.
func New(toolCompatMode bool) *Status {
	return &Status{ToolCompatMode: toolCompatMode}
}

// OpenText transitions OpenBlock to text. Reopening the same kind is a
// no-op; a cross-kind change is the caller's responsibility to close
// first (§4.6 — the output adapter must emit ContentBlockStop before a
// new ContentBlockStart of a different kind).
func (s *Status) OpenText() {
	s.OpenBlock = BlockText
}

func (s *Status) OpenThinking() {
	s.OpenBlock = BlockThinking
}

// OpenTool transitions OpenBlock to tool_use and records the tool id.
func (s *Status) OpenTool(id string) {
	s.OpenBlock = BlockToolUse
	s.ToolID = id
}

// Close clears the open block. Tool id is cleared only when the closed
// block was a tool_use block, matching "cleared on ToolUseEnd /
// MessageStop" (§4.6).
func (s *Status) Close() {
	if s.OpenBlock == BlockToolUse {
		s.ToolID = ""
	}
	s.OpenBlock = BlockNone
}

// NextIndex returns the next content-block index and advances the
// monotonic counter (§4.6 — message_index is monotonically increasing
// within one message).
func (s *Status) NextIndex() uint32 {
	idx := s.MessageIndex
	s.MessageIndex++
	return idx
}

// MergeUsage folds in a newly observed usage report, enforcing §8.4's
// monotonicity property.
func (s *Status) MergeUsage(u ir.Usage) ir.Usage {
	s.usage = s.usage.Max(u)
	return s.usage
}

func (s *Status) Usage() ir.Usage { return s.usage }
