package outputadapter

import (
	"encoding/json"

	"github.com/aidyou/ccgateway/internal/ir"
)

// Ollama renders IR into Ollama's one-JSON-object-per-line chat stream
// (§4.5). Text and thinking render as incremental deltas; tool calls are
// buffered until ToolUseEnd and flushed fully-formed, matching what a
// real Ollama server emits.
type Ollama struct{}

func NewOllama() *Ollama { return &Ollama{} }

func (a *Ollama) StreamEnd() []Event { return nil }

type ollamaWireToolCall struct {
	Function struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments"`
	} `json:"function"`
}

type ollamaWireMessage struct {
	Role      string                `json:"role"`
	Content   string                `json:"content"`
	Thinking  string                `json:"thinking,omitempty"`
	ToolCalls []ollamaWireToolCall  `json:"tool_calls,omitempty"`
}

type ollamaWireChunk struct {
	Model           string            `json:"model"`
	Message         ollamaWireMessage `json:"message"`
	Done            bool              `json:"done"`
	DoneReason      string            `json:"done_reason,omitempty"`
	PromptEvalCount uint64            `json:"prompt_eval_count,omitempty"`
	EvalCount       uint64            `json:"eval_count,omitempty"`
}

func (a *Ollama) RenderChunk(chunk ir.StreamChunk, state *State) ([]Event, error) {
	switch chunk.Kind {
	case ir.ChunkMessageStart:
		state.MessageID = chunk.MessageID
		state.ModelID = chunk.Model
		return []Event{{Data: mustMarshal(ollamaWireChunk{
			Model: state.ModelID, Message: ollamaWireMessage{Role: "assistant"},
		})}}, nil

	case ir.ChunkText:
		return []Event{{Data: mustMarshal(ollamaWireChunk{
			Model: state.ModelID, Message: ollamaWireMessage{Role: "assistant", Content: chunk.Delta},
		})}}, nil

	case ir.ChunkThinking:
		return []Event{{Data: mustMarshal(ollamaWireChunk{
			Model: state.ModelID, Message: ollamaWireMessage{Role: "assistant", Thinking: chunk.Delta},
		})}}, nil

	case ir.ChunkToolUseStart:
		state.toolName[chunk.ToolID] = chunk.ToolName
		state.toolArgsBuf[chunk.ToolID] = ""
		return nil, nil

	case ir.ChunkToolUseDelta:
		state.toolArgsBuf[chunk.ToolID] += chunk.Delta
		return nil, nil

	case ir.ChunkToolUseEnd:
		name := state.toolName[chunk.ToolID]
		raw := state.toolArgsBuf[chunk.ToolID]
		delete(state.toolName, chunk.ToolID)
		delete(state.toolArgsBuf, chunk.ToolID)

		var args any = map[string]any{}
		if raw != "" {
			_ = json.Unmarshal([]byte(raw), &args)
		}
		tc := ollamaWireToolCall{}
		tc.Function.Name = name
		tc.Function.Arguments = args
		return []Event{{Data: mustMarshal(ollamaWireChunk{
			Model: state.ModelID, Message: ollamaWireMessage{Role: "assistant", ToolCalls: []ollamaWireToolCall{tc}},
		})}}, nil

	case ir.ChunkContentBlockStart, ir.ChunkContentBlockStop:
		return nil, nil

	case ir.ChunkMessageStop:
		return []Event{{Data: mustMarshal(ollamaWireChunk{
			Model: state.ModelID, Message: ollamaWireMessage{Role: "assistant"},
			Done: true, DoneReason: convertStopReasonToOllama(chunk.StopReason),
			PromptEvalCount: chunk.Usage.InputTokens, EvalCount: chunk.Usage.OutputTokens,
		})}}, nil

	case ir.ChunkError:
		return []Event{{Data: mustMarshal(map[string]string{"error": chunk.Message})}}, nil

	default:
		return nil, nil
	}
}

func convertStopReasonToOllama(reason string) string {
	switch reason {
	case "tool_use", "tool_calls":
		return "tool_calls"
	case "max_tokens", "length":
		return "length"
	default:
		return "stop"
	}
}

func (a *Ollama) RenderResponse(resp ir.Response) (json.RawMessage, error) {
	msg := ollamaWireMessage{Role: "assistant"}
	var toolCalls []ollamaWireToolCall
	for _, b := range resp.Content {
		switch b.Kind {
		case ir.BlockText:
			msg.Content += b.Text
		case ir.BlockThinking:
			msg.Thinking += b.Text
		case ir.BlockToolUse:
			var args any = map[string]any{}
			if len(b.ToolInput) > 0 {
				_ = json.Unmarshal(b.ToolInput, &args)
			}
			tc := ollamaWireToolCall{}
			tc.Function.Name = b.ToolName
			tc.Function.Arguments = args
			toolCalls = append(toolCalls, tc)
		}
	}
	msg.ToolCalls = toolCalls

	wire := ollamaWireChunk{
		Model: resp.Model, Message: msg, Done: true,
		DoneReason:      convertStopReasonToOllama(resp.StopReason),
		PromptEvalCount: resp.Usage.InputTokens, EvalCount: resp.Usage.OutputTokens,
	}
	return mustMarshal(wire), nil
}
