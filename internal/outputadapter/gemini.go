package outputadapter

import (
	"encoding/json"

	"github.com/aidyou/ccgateway/internal/ir"
)

// Gemini renders IR into the generateContent/streamGenerateContent
// candidates[0].content.parts shape (§4.5). Gemini's wire format has no
// block-boundary markers: text deltas are emitted as they arrive and the
// client concatenates them into one part, while tool calls are buffered
// until ToolUseEnd and flushed as one complete functionCall part.
type Gemini struct{}

func NewGemini() *Gemini { return &Gemini{} }

func (a *Gemini) StreamEnd() []Event { return nil }

type geminiWirePart struct {
	Text         string          `json:"text,omitempty"`
	Thought      bool            `json:"thought,omitempty"`
	FunctionCall *geminiWireFunc `json:"functionCall,omitempty"`
}

type geminiWireFunc struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

type geminiWireChunk struct {
	Candidates []geminiWireCandidate `json:"candidates"`
	UsageMeta  *geminiWireUsage      `json:"usageMetadata,omitempty"`
}

type geminiWireCandidate struct {
	Content      geminiWireContent `json:"content"`
	FinishReason string            `json:"finishReason,omitempty"`
}

type geminiWireContent struct {
	Role  string           `json:"role"`
	Parts []geminiWirePart `json:"parts"`
}

type geminiWireUsage struct {
	PromptTokenCount     uint64 `json:"promptTokenCount"`
	CandidatesTokenCount uint64 `json:"candidatesTokenCount"`
}

func (a *Gemini) RenderChunk(chunk ir.StreamChunk, state *State) ([]Event, error) {
	switch chunk.Kind {
	case ir.ChunkMessageStart:
		state.MessageID = chunk.MessageID
		state.ModelID = chunk.Model
		return nil, nil

	case ir.ChunkContentBlockStart, ir.ChunkContentBlockStop:
		return nil, nil

	case ir.ChunkText:
		return []Event{a.partEvent(geminiWirePart{Text: chunk.Delta}, "")}, nil

	case ir.ChunkThinking:
		return []Event{a.partEvent(geminiWirePart{Text: chunk.Delta, Thought: true}, "")}, nil

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
		return []Event{a.partEvent(geminiWirePart{FunctionCall: &geminiWireFunc{Name: name, Args: args}}, "")}, nil

	case ir.ChunkMessageStop:
		reason := convertStopReasonToGemini(chunk.StopReason)
		wire := geminiWireChunk{
			Candidates: []geminiWireCandidate{{
				Content:      geminiWireContent{Role: "model", Parts: []geminiWirePart{}},
				FinishReason: reason,
			}},
		}
		if chunk.Usage.InputTokens != 0 || chunk.Usage.OutputTokens != 0 {
			wire.UsageMeta = &geminiWireUsage{
				PromptTokenCount:     chunk.Usage.InputTokens,
				CandidatesTokenCount: chunk.Usage.OutputTokens,
			}
		}
		return []Event{{Data: mustMarshal(wire)}}, nil

	case ir.ChunkError:
		return []Event{{Data: mustMarshal(map[string]any{
			"error": map[string]any{"code": 500, "message": chunk.Message, "status": "UPSTREAM_ERROR"},
		})}}, nil

	default:
		return nil, nil
	}
}

func (a *Gemini) partEvent(part geminiWirePart, finishReason string) Event {
	cand := geminiWireCandidate{Content: geminiWireContent{Role: "model", Parts: []geminiWirePart{part}}}
	cand.FinishReason = finishReason
	return Event{Data: mustMarshal(geminiWireChunk{Candidates: []geminiWireCandidate{cand}})}
}

func convertStopReasonToGemini(reason string) string {
	switch reason {
	case "max_tokens", "length":
		return "MAX_TOKENS"
	case "tool_use", "tool_calls":
		return "STOP"
	default:
		return "STOP"
	}
}

func (a *Gemini) RenderResponse(resp ir.Response) (json.RawMessage, error) {
	var parts []geminiWirePart
	for _, b := range resp.Content {
		switch b.Kind {
		case ir.BlockText:
			parts = append(parts, geminiWirePart{Text: b.Text})
		case ir.BlockThinking:
			parts = append(parts, geminiWirePart{Text: b.Text, Thought: true})
		case ir.BlockToolUse:
			var args any = map[string]any{}
			if len(b.ToolInput) > 0 {
				_ = json.Unmarshal(b.ToolInput, &args)
			}
			parts = append(parts, geminiWirePart{FunctionCall: &geminiWireFunc{Name: b.ToolName, Args: args}})
		}
	}

	wire := geminiWireChunk{
		Candidates: []geminiWireCandidate{{
			Content:      geminiWireContent{Role: "model", Parts: parts},
			FinishReason: convertStopReasonToGemini(resp.StopReason),
		}},
		UsageMeta: &geminiWireUsage{
			PromptTokenCount:     resp.Usage.InputTokens,
			CandidatesTokenCount: resp.Usage.OutputTokens,
		},
	}
	return mustMarshal(wire), nil
}
