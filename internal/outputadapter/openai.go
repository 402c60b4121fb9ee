package outputadapter

import (
	"encoding/json"

	"github.com/aidyou/ccgateway/internal/ir"
)

// OpenAI renders IR into OpenAI chat.completion(.chunk) shapes.
type OpenAI struct{}

func NewOpenAI() *OpenAI { return &OpenAI{} }

func (a *OpenAI) StreamEnd() []Event {
	return []Event{{Raw: []byte("[DONE]")}}
}

type openAIChunkDelta struct {
	Role             string                `json:"role,omitempty"`
	Content          string                `json:"content,omitempty"`
	ReasoningContent string                `json:"reasoning_content,omitempty"`
	ToolCalls        []openAIChunkToolCall `json:"tool_calls,omitempty"`
}

type openAIChunkToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function *struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

type openAIChunkWire struct {
	ID                string `json:"id"`
	Object            string `json:"object"`
	Model             string `json:"model"`
	Choices           []struct {
		Index        int              `json:"index"`
		Delta        openAIChunkDelta `json:"delta"`
		FinishReason *string          `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     uint64 `json:"prompt_tokens"`
		CompletionTokens uint64 `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

func (a *OpenAI) RenderChunk(chunk ir.StreamChunk, state *State) ([]Event, error) {
	switch chunk.Kind {
	case ir.ChunkMessageStart:
		state.MessageID = chunk.MessageID
		state.ModelID = chunk.Model
		return []Event{a.chunkEvent(state, openAIChunkDelta{Role: "assistant"}, nil)}, nil

	case ir.ChunkText:
		return []Event{a.chunkEvent(state, openAIChunkDelta{Content: chunk.Delta}, nil)}, nil

	case ir.ChunkThinking:
		return []Event{a.chunkEvent(state, openAIChunkDelta{ReasoningContent: chunk.Delta}, nil)}, nil

	case ir.ChunkToolUseStart:
		idx, _ := state.ToolArrayIndex(chunk.ToolID)
		tc := openAIChunkToolCall{Index: idx, ID: chunk.ToolID, Type: "function"}
		tc.Function = &struct {
			Name      string `json:"name,omitempty"`
			Arguments string `json:"arguments,omitempty"`
		}{Name: chunk.ToolName}
		return []Event{a.chunkEvent(state, openAIChunkDelta{ToolCalls: []openAIChunkToolCall{tc}}, nil)}, nil

	case ir.ChunkToolUseDelta:
		idx, _ := state.ToolArrayIndex(chunk.ToolID)
		tc := openAIChunkToolCall{Index: idx}
		tc.Function = &struct {
			Name      string `json:"name,omitempty"`
			Arguments string `json:"arguments,omitempty"`
		}{Arguments: chunk.Delta}
		return []Event{a.chunkEvent(state, openAIChunkDelta{ToolCalls: []openAIChunkToolCall{tc}}, nil)}, nil

	case ir.ChunkToolUseEnd, ir.ChunkContentBlockStart, ir.ChunkContentBlockStop:
		// OpenAI's wire format has no block-boundary markers of its
		// own; these are absorbed into the surrounding deltas.
		return nil, nil

	case ir.ChunkMessageStop:
		reason := convertStopReasonToOpenAI(chunk.StopReason)
		ev := a.chunkEvent(state, openAIChunkDelta{}, &reason)
		if chunk.Usage.InputTokens != 0 || chunk.Usage.OutputTokens != 0 {
			var wire openAIChunkWire
			_ = json.Unmarshal(ev.Data, &wire)
			wire.Usage = &struct {
				PromptTokens     uint64 `json:"prompt_tokens"`
				CompletionTokens uint64 `json:"completion_tokens"`
			}{PromptTokens: chunk.Usage.InputTokens, CompletionTokens: chunk.Usage.OutputTokens}
			ev.Data = mustMarshal(wire)
		}
		return []Event{ev}, nil

	case ir.ChunkError:
		return []Event{{Data: mustMarshal(map[string]any{
			"error": map[string]string{"message": chunk.Message, "type": "upstream_error"},
		})}}, nil

	default:
		return nil, nil
	}
}

func (a *OpenAI) chunkEvent(state *State, delta openAIChunkDelta, finishReason *string) Event {
	wire := openAIChunkWire{ID: state.MessageID, Object: "chat.completion.chunk", Model: state.ModelID}
	wire.Choices = []struct {
		Index        int              `json:"index"`
		Delta        openAIChunkDelta `json:"delta"`
		FinishReason *string          `json:"finish_reason"`
	}{{Index: 0, Delta: delta, FinishReason: finishReason}}
	return Event{Data: mustMarshal(wire)}
}

func convertStopReasonToOpenAI(reason string) string {
	switch reason {
	case "tool_use", "tool_calls":
		return "tool_calls"
	case "max_tokens", "length":
		return "length"
	case "":
		return "stop"
	default:
		return "stop"
	}
}

type openAINonStreamWire struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		Message      openAIChunkDelta `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     uint64 `json:"prompt_tokens"`
		CompletionTokens uint64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *OpenAI) RenderResponse(resp ir.Response) (json.RawMessage, error) {
	wire := openAINonStreamWire{ID: resp.ID, Object: "chat.completion", Model: resp.Model}
	wire.Usage.PromptTokens = resp.Usage.InputTokens
	wire.Usage.CompletionTokens = resp.Usage.OutputTokens

	msg := openAIChunkDelta{Role: "assistant"}
	var toolCalls []openAIChunkToolCall
	for i, b := range resp.Content {
		switch b.Kind {
		case ir.BlockText:
			msg.Content += b.Text
		case ir.BlockThinking:
			msg.ReasoningContent += b.Text
		case ir.BlockToolUse:
			tc := openAIChunkToolCall{Index: i, ID: b.ToolUseID, Type: "function"}
			tc.Function = &struct {
				Name      string `json:"name,omitempty"`
				Arguments string `json:"arguments,omitempty"`
			}{Name: b.ToolName, Arguments: string(b.ToolInput)}
			toolCalls = append(toolCalls, tc)
		}
	}
	msg.ToolCalls = toolCalls

	wire.Choices = []struct {
		Index        int              `json:"index"`
		Message      openAIChunkDelta `json:"message"`
		FinishReason string           `json:"finish_reason"`
	}{{Index: 0, Message: msg, FinishReason: convertStopReasonToOpenAI(resp.StopReason)}}

	return mustMarshal(wire), nil
}
