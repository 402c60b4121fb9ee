package outputadapter

import (
	"encoding/json"

	"github.com/aidyou/ccgateway/internal/ir"
)

// Claude renders IR into Anthropic's five-phase Messages streaming
// grammar (§4.5): message_start, per-block content_block_*, message_delta,
// message_stop.
type Claude struct{}

func NewClaude() *Claude { return &Claude{} }

func (a *Claude) StreamEnd() []Event { return nil }

func (a *Claude) RenderChunk(chunk ir.StreamChunk, state *State) ([]Event, error) {
	switch chunk.Kind {
	case ir.ChunkMessageStart:
		state.MessageID = chunk.MessageID
		state.ModelID = chunk.Model
		return []Event{ev("message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id": state.MessageID, "type": "message", "role": "assistant",
				"model": state.ModelID, "content": []any{},
				"usage": map[string]uint64{"input_tokens": chunk.Usage.InputTokens, "output_tokens": chunk.Usage.OutputTokens},
			},
		})}, nil

	case ir.ChunkContentBlockStart:
		if chunk.BlockKind == ir.BlockToolUse {
			// ChunkToolUseStart already opened this block (own index,
			// tool_use-typed content_block_start below); OpenAI/Ollama
			// backends also emit this paired ContentBlockStart for the
			// same block, Gemini's never does. Either way it's a no-op
			// here, mirroring gemini.go/ollama.go's ContentBlockStart
			// no-op.
			return nil, nil
		}
		kind := "text"
		if chunk.BlockKind == ir.BlockThinking {
			kind = "thinking"
			state.OpenThinking()
		} else {
			state.OpenText()
		}
		return []Event{ev("content_block_start", map[string]any{
			"type": "content_block_start", "index": chunk.Index,
			"content_block": map[string]any{"type": kind, "text": ""},
		})}, nil

	case ir.ChunkText:
		state.TextDeltaCount++
		return []Event{ev("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": blockIndexFor(state),
			"delta": map[string]string{"type": "text_delta", "text": chunk.Delta},
		})}, nil

	case ir.ChunkThinking:
		state.ThinkingDeltaCount++
		return []Event{ev("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": blockIndexFor(state),
			"delta": map[string]string{"type": "thinking_delta", "thinking": chunk.Delta},
		})}, nil

	case ir.ChunkToolUseStart:
		idx := state.NextIndex()
		state.OpenTool(chunk.ToolID)
		if state.ToolCompatMode {
			// Render as a synthetic text block instead of tool_use for
			// clients that cannot parse structured tool calls (§4.5).
			return []Event{ev("content_block_start", map[string]any{
				"type": "content_block_start", "index": idx,
				"content_block": map[string]any{"type": "text", "text": ""},
			})}, nil
		}
		return []Event{ev("content_block_start", map[string]any{
			"type": "content_block_start", "index": idx,
			"content_block": map[string]any{"type": "tool_use", "id": chunk.ToolID, "name": chunk.ToolName, "input": map[string]any{}},
		})}, nil

	case ir.ChunkToolUseDelta:
		if state.ToolCompatMode {
			return []Event{ev("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": blockIndexFor(state),
				"delta": map[string]string{"type": "text_delta", "text": chunk.Delta},
			})}, nil
		}
		return []Event{ev("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": blockIndexFor(state),
			"delta": map[string]string{"type": "input_json_delta", "partial_json": chunk.Delta},
		})}, nil

	case ir.ChunkToolUseEnd:
		return nil, nil

	case ir.ChunkContentBlockStop:
		state.Close()
		return []Event{ev("content_block_stop", map[string]any{"type": "content_block_stop", "index": chunk.Index})}, nil

	case ir.ChunkMessageStop:
		return []Event{
			ev("message_delta", map[string]any{
				"type": "message_delta",
				"delta": map[string]string{"stop_reason": chunk.StopReason},
				"usage": map[string]uint64{"output_tokens": chunk.Usage.OutputTokens},
			}),
			ev("message_stop", map[string]any{"type": "message_stop"}),
		}, nil

	case ir.ChunkError:
		return []Event{ev("error", map[string]any{
			"type": "error", "error": map[string]string{"type": "upstream_error", "message": chunk.Message},
		})}, nil

	default:
		return nil, nil
	}
}

// blockIndexFor returns the index of the currently open block, for the
// delta chunk kinds (text_delta/thinking_delta/input_json_delta) that
// carry no index of their own — it was assigned by the most recent
// NextIndex() call at ContentBlockStart/ToolUseStart time, so it is
// MessageIndex-1.
func blockIndexFor(state *State) uint32 {
	if state.MessageIndex == 0 {
		return 0
	}
	return state.MessageIndex - 1
}

func (a *Claude) RenderResponse(resp ir.Response) (json.RawMessage, error) {
	var blocks []map[string]any
	for _, b := range resp.Content {
		switch b.Kind {
		case ir.BlockText:
			blocks = append(blocks, map[string]any{"type": "text", "text": b.Text})
		case ir.BlockThinking:
			blocks = append(blocks, map[string]any{"type": "thinking", "thinking": b.Text})
		case ir.BlockToolUse:
			var input any = map[string]any{}
			if len(b.ToolInput) > 0 {
				_ = json.Unmarshal(b.ToolInput, &input)
			}
			blocks = append(blocks, map[string]any{"type": "tool_use", "id": b.ToolUseID, "name": b.ToolName, "input": input})
		}
	}

	wire := map[string]any{
		"id": resp.ID, "type": "message", "role": "assistant", "model": resp.Model,
		"content":     blocks,
		"stop_reason": resp.StopReason,
		"usage":       map[string]uint64{"input_tokens": resp.Usage.InputTokens, "output_tokens": resp.Usage.OutputTokens},
	}
	return mustMarshal(wire), nil
}

func ev(name string, v any) Event {
	return Event{Name: name, Data: mustMarshal(v)}
}
