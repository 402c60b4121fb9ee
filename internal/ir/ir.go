// Package ir defines the protocol-neutral intermediate representation that
// the gateway's input, backend, and output adapters all speak. It is
// purely data: adapters translate into and out of it, never adding
// protocol-specific fields here.
package ir

import "encoding/json"

// Role identifies the speaker of a UnifiedMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Request is the protocol-neutral form of a chat-completion request.
type Request struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Tools        []Tool
	ToolChoice   ToolChoice
	Stream       bool
	Temperature  *float32
	TopP         *float32
	TopK         *int32
	MaxTokens    *uint32
}

// Message is one turn in the conversation.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// BlockKind tags the variant carried by a ContentBlock.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockImage      BlockKind = "image"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockThinking   BlockKind = "thinking"
)

// ContentBlock is a tagged union over the five content variants spec'd in
// §3.1. Only the fields relevant to Kind are populated.
type ContentBlock struct {
	Kind BlockKind

	// Text / Thinking
	Text string

	// Image
	MediaType string
	Data      string // base64

	// ToolUse
	ToolUseID   string
	ToolName    string
	ToolInput   json.RawMessage

	// ToolResult
	ToolResultID string
	ToolContent  string
	ToolIsError  bool
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

func ThinkingBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockThinking, Text: text}
}

func ImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{Kind: BlockImage, MediaType: mediaType, Data: data}
}

func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Kind: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Kind: BlockToolResult, ToolResultID: toolUseID, ToolContent: content, ToolIsError: isError}
}

// Tool is a single callable tool definition.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolChoiceMode selects how the model should use the tools it was given.
type ToolChoiceMode string

const (
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNamed    ToolChoiceMode = "named"
)

// ToolChoice mirrors the spec's None|Auto|Required|Named(name) union.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string // only set when Mode == ToolChoiceNamed
}

var (
	ChoiceNone     = ToolChoice{Mode: ToolChoiceNone}
	ChoiceAuto     = ToolChoice{Mode: ToolChoiceAuto}
	ChoiceRequired = ToolChoice{Mode: ToolChoiceRequired}
)

func ChoiceNamed(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceNamed, Name: name}
}

// IsZero reports whether no tool_choice was specified by the client.
func (c ToolChoice) IsZero() bool {
	return c.Mode == ""
}

// Usage carries token accounting; extensible with derived fields such as
// tokens-per-second when the dispatcher measures them.
type Usage struct {
	InputTokens     uint64
	OutputTokens    uint64
	TokensPerSecond *float64
}

// Max returns the element-wise max of two usages, used to enforce the
// monotonicity property (§8.4) when merging successive partial reports.
func (u Usage) Max(other Usage) Usage {
	out := u
	if other.InputTokens > out.InputTokens {
		out.InputTokens = other.InputTokens
	}
	if other.OutputTokens > out.OutputTokens {
		out.OutputTokens = other.OutputTokens
	}
	return out
}

// Response is the protocol-neutral non-streaming response shape.
type Response struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      Usage
}

// StreamChunkKind tags the variant carried by a StreamChunk.
type StreamChunkKind string

const (
	ChunkMessageStart      StreamChunkKind = "message_start"
	ChunkContentBlockStart StreamChunkKind = "content_block_start"
	ChunkText              StreamChunkKind = "text"
	ChunkThinking          StreamChunkKind = "thinking"
	ChunkToolUseStart      StreamChunkKind = "tool_use_start"
	ChunkToolUseDelta      StreamChunkKind = "tool_use_delta"
	ChunkToolUseEnd        StreamChunkKind = "tool_use_end"
	ChunkContentBlockStop  StreamChunkKind = "content_block_stop"
	ChunkMessageStop       StreamChunkKind = "message_stop"
	ChunkError             StreamChunkKind = "error"
)

// StreamChunk is a tagged union over the ten stream-event variants in
// §3.1. Fields are populated according to Kind; unused fields are zero.
type StreamChunk struct {
	Kind StreamChunkKind

	// MessageStart
	MessageID string
	Model     string

	// ContentBlockStart
	Index     uint32
	BlockKind BlockKind
	Block     json.RawMessage

	// Text / Thinking
	Delta string

	// ToolUseStart
	ToolID   string
	ToolName string
	ToolType string

	// ToolUseDelta reuses ToolID + Delta

	// ContentBlockStop reuses Index

	// MessageStop
	StopReason string
	Usage      Usage

	// Error
	Message string
}

func MessageStart(id, model string, usage Usage) StreamChunk {
	return StreamChunk{Kind: ChunkMessageStart, MessageID: id, Model: model, Usage: usage}
}

func ContentBlockStart(index uint32, kind BlockKind, block json.RawMessage) StreamChunk {
	return StreamChunk{Kind: ChunkContentBlockStart, Index: index, BlockKind: kind, Block: block}
}

func TextDelta(delta string) StreamChunk {
	return StreamChunk{Kind: ChunkText, Delta: delta}
}

func ThinkingDelta(delta string) StreamChunk {
	return StreamChunk{Kind: ChunkThinking, Delta: delta}
}

func ToolUseStart(toolType, id, name string) StreamChunk {
	return StreamChunk{Kind: ChunkToolUseStart, ToolType: toolType, ToolID: id, ToolName: name}
}

func ToolUseDelta(id, delta string) StreamChunk {
	return StreamChunk{Kind: ChunkToolUseDelta, ToolID: id, Delta: delta}
}

func ToolUseEnd(id string) StreamChunk {
	return StreamChunk{Kind: ChunkToolUseEnd, ToolID: id}
}

func ContentBlockStop(index uint32) StreamChunk {
	return StreamChunk{Kind: ChunkContentBlockStop, Index: index}
}

func MessageStop(stopReason string, usage Usage) StreamChunk {
	return StreamChunk{Kind: ChunkMessageStop, StopReason: stopReason, Usage: usage}
}

func ErrorChunk(message string) StreamChunk {
	return StreamChunk{Kind: ChunkError, Message: message}
}
