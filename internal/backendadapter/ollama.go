package backendadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/reassembler"
	"github.com/aidyou/ccgateway/internal/sse"
)

// Ollama implements the backend-adapter contract for a local Ollama
// server's /api/chat endpoint.
type Ollama struct{}

func NewOllama() *Ollama { return &Ollama{} }

func (a *Ollama) Format() reassembler.Format { return reassembler.FormatJSONLines }

func (a *Ollama) AdaptStreamEnd() []byte { return nil }

type ollamaWireMsg struct {
	Role      string               `json:"role"`
	Content   string                `json:"content,omitempty"`
	Thinking  string                `json:"thinking,omitempty"`
	ToolCalls []ollamaWireToolCall  `json:"tool_calls,omitempty"`
}

type ollamaWireToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaWireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type ollamaWireRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaWireMsg  `json:"messages"`
	Tools    []ollamaWireTool `json:"tools,omitempty"`
	Stream   bool             `json:"stream"`
	Options  *ollamaWireOpts  `json:"options,omitempty"`
}

type ollamaWireOpts struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int32   `json:"top_k,omitempty"`
}

// AdaptRequest has no auth step: Ollama's local server takes no API key
// (§4.4).
func (a *Ollama) AdaptRequest(req ir.Request, apiKey, baseURL, model string) (*http.Request, error) {
	wire := ollamaWireRequest{Model: model, Stream: req.Stream}

	if req.SystemPrompt != "" {
		wire.Messages = append(wire.Messages, ollamaWireMsg{Role: "system", Content: req.SystemPrompt})
	}

	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, encodeOllamaMessage(m))
	}

	for _, t := range req.Tools {
		wt := ollamaWireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.InputSchema
		wire.Tools = append(wire.Tools, wt)
	}

	if req.Temperature != nil || req.TopP != nil || req.TopK != nil {
		wire.Options = &ollamaWireOpts{Temperature: req.Temperature, TopP: req.TopP, TopK: req.TopK}
	}

	return newJSONRequest(strings.TrimRight(baseURL, "/")+"/api/chat", wire)
}

func encodeOllamaMessage(m ir.Message) ollamaWireMsg {
	if m.Role == ir.RoleTool {
		for _, b := range m.Content {
			if b.Kind == ir.BlockToolResult {
				return ollamaWireMsg{Role: "tool", Content: b.ToolContent}
			}
		}
	}

	role := "user"
	if m.Role == ir.RoleAssistant {
		role = "assistant"
	}

	wm := ollamaWireMsg{Role: role}
	for _, b := range m.Content {
		switch b.Kind {
		case ir.BlockText:
			wm.Content += b.Text
		case ir.BlockThinking:
			wm.Thinking += b.Text
		case ir.BlockToolUse:
			tc := ollamaWireToolCall{}
			tc.Function.Name = b.ToolName
			tc.Function.Arguments = b.ToolInput
			wm.ToolCalls = append(wm.ToolCalls, tc)
		}
	}
	return wm
}

type ollamaWireResponse struct {
	Message struct {
		Role      string               `json:"role"`
		Content   string               `json:"content"`
		Thinking  string               `json:"thinking"`
		ToolCalls []ollamaWireToolCall `json:"tool_calls"`
	} `json:"message"`
	Done           bool   `json:"done"`
	PromptEvalCount uint64 `json:"prompt_eval_count"`
	EvalCount       uint64 `json:"eval_count"`
}

func (a *Ollama) AdaptResponse(body []byte) (ir.Response, error) {
	var wire ollamaWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return ir.Response{}, ir.AdapterConversion("ollama: %v", err)
	}

	out := ir.Response{
		StopReason: "stop",
		Usage:      ir.Usage{InputTokens: wire.PromptEvalCount, OutputTokens: wire.EvalCount},
	}
	if wire.Message.Content != "" {
		out.Content = append(out.Content, ir.TextBlock(wire.Message.Content))
	}
	for i, tc := range wire.Message.ToolCalls {
		out.Content = append(out.Content, ir.ToolUseBlock(ollamaToolID(i), tc.Function.Name, tc.Function.Arguments))
	}

	return out, nil
}

func ollamaToolID(i int) string {
	return "ollama_tool_" + strconv.Itoa(i)
}

// AdaptStreamChunk: content/thinking are incremental deltas; tool_calls
// arrive fully formed (not a delta), per §4.4.
func (a *Ollama) AdaptStreamChunk(frame []byte, state *StreamState) ([]ir.StreamChunk, error) {
	if len(frame) == 0 {
		return nil, nil
	}

	var wire ollamaWireResponse
	if err := json.Unmarshal(frame, &wire); err != nil {
		return nil, ir.StreamFraming("ollama: malformed line: %v", err)
	}

	var out []ir.StreamChunk

	if !state.MessageStarted {
		state.MessageStarted = true
		out = append(out, ir.MessageStart(state.MessageID, state.ModelID, ir.Usage{}))
	}

	if wire.Message.Content != "" {
		if state.OpenBlock != sse.BlockText {
			if state.OpenBlock != sse.BlockNone {
				out = append(out, ir.ContentBlockStop(state.MessageIndex-1))
			}
			idx := state.NextIndex()
			state.OpenText()
			out = append(out, ir.ContentBlockStart(idx, ir.BlockText, nil))
		}
		out = append(out, ir.TextDelta(wire.Message.Content))
		state.TextDeltaCount++
	}

	if wire.Message.Thinking != "" {
		if state.OpenBlock != sse.BlockThinking {
			if state.OpenBlock != sse.BlockNone {
				out = append(out, ir.ContentBlockStop(state.MessageIndex-1))
			}
			idx := state.NextIndex()
			state.OpenThinking()
			out = append(out, ir.ContentBlockStart(idx, ir.BlockThinking, nil))
		}
		out = append(out, ir.ThinkingDelta(wire.Message.Thinking))
		state.ThinkingDeltaCount++
	}

	for i, tc := range wire.Message.ToolCalls {
		if state.OpenBlock != sse.BlockNone {
			out = append(out, ir.ContentBlockStop(state.MessageIndex-1))
		}
		id := ollamaToolID(i)
		idx := state.NextIndex()
		state.OpenTool(id)
		out = append(out,
			ir.ToolUseStart("tool_use", id, tc.Function.Name),
			ir.ContentBlockStart(idx, ir.BlockToolUse, nil),
			ir.ToolUseDelta(id, string(tc.Function.Arguments)),
			ir.ToolUseEnd(id),
			ir.ContentBlockStop(idx),
		)
		state.Close()
	}

	if wire.Done {
		if state.OpenBlock != sse.BlockNone {
			out = append(out, ir.ContentBlockStop(state.MessageIndex-1))
			state.Close()
		}
		usage := state.MergeUsage(ir.Usage{InputTokens: wire.PromptEvalCount, OutputTokens: wire.EvalCount})
		out = append(out, ir.MessageStop("stop", usage))
	}

	return out, nil
}
