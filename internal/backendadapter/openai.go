package backendadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/reassembler"
	"github.com/aidyou/ccgateway/internal/sse"
)

// OpenAI implements the backend-adapter contract for OpenAI-compatible
// upstreams (also used for the HuggingFace wire-format alias, §12).
type OpenAI struct{}

func NewOpenAI() *OpenAI { return &OpenAI{} }

func (a *OpenAI) Format() reassembler.Format { return reassembler.FormatSSE }

func (a *OpenAI) AdaptStreamEnd() []byte { return []byte("data: [DONE]") }

type openAIWireRequest struct {
	Model       string             `json:"model"`
	Messages    []openAIWireMsg    `json:"messages"`
	Tools       []openAIWireTool   `json:"tools,omitempty"`
	ToolChoice  any                `json:"tool_choice,omitempty"`
	Stream      bool               `json:"stream"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	MaxTokens   *uint32            `json:"max_tokens,omitempty"`
}

type openAIWireMsg struct {
	Role       string              `json:"role"`
	Content    any                 `json:"content,omitempty"`
	ToolCalls  []openAIWireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

type openAIWireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIWireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

func (a *OpenAI) AdaptRequest(req ir.Request, apiKey, baseURL, model string) (*http.Request, error) {
	wire := openAIWireRequest{
		Model:       model,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	if req.SystemPrompt != "" {
		wire.Messages = append(wire.Messages, openAIWireMsg{Role: "system", Content: req.SystemPrompt})
	}

	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, encodeOpenAIMessage(m)...)
	}

	for _, t := range req.Tools {
		wt := openAIWireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.InputSchema
		wire.Tools = append(wire.Tools, wt)
	}

	wire.ToolChoice = encodeOpenAIToolChoice(req.ToolChoice)

	httpReq, err := newJSONRequest(strings.TrimRight(baseURL, "/")+"/chat/completions", wire)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	return httpReq, nil
}

func encodeOpenAIToolChoice(tc ir.ToolChoice) any {
	switch tc.Mode {
	case ir.ToolChoiceNone:
		return "none"
	case ir.ToolChoiceAuto:
		return "auto"
	case ir.ToolChoiceRequired:
		return "required"
	case ir.ToolChoiceNamed:
		return map[string]any{
			"type":     "function",
			"function": map[string]string{"name": tc.Name},
		}
	default:
		return nil
	}
}

func encodeOpenAIMessage(m ir.Message) []openAIWireMsg {
	if m.Role == ir.RoleTool {
		for _, b := range m.Content {
			if b.Kind == ir.BlockToolResult {
				return []openAIWireMsg{{Role: "tool", Content: b.ToolContent, ToolCallID: b.ToolResultID}}
			}
		}
		return nil
	}

	role := "user"
	if m.Role == ir.RoleAssistant {
		role = "assistant"
	}

	wm := openAIWireMsg{Role: role}

	var parts []map[string]any
	var toolCalls []openAIWireToolCall
	for _, b := range m.Content {
		switch b.Kind {
		case ir.BlockText:
			parts = append(parts, map[string]any{"type": "text", "text": b.Text})
		case ir.BlockImage:
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]string{"url": fmt.Sprintf("data:%s;base64,%s", b.MediaType, b.Data)},
			})
		case ir.BlockToolUse:
			tc := openAIWireToolCall{ID: b.ToolUseID, Type: "function"}
			tc.Function.Name = b.ToolName
			tc.Function.Arguments = string(b.ToolInput)
			toolCalls = append(toolCalls, tc)
		}
	}

	if len(parts) == 1 && parts[0]["type"] == "text" {
		wm.Content = parts[0]["text"]
	} else if len(parts) > 0 {
		wm.Content = parts
	}
	wm.ToolCalls = toolCalls

	return []openAIWireMsg{wm}
}

type openAIWireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string               `json:"content"`
			ToolCalls []openAIWireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     uint64 `json:"prompt_tokens"`
		CompletionTokens uint64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *OpenAI) AdaptResponse(body []byte) (ir.Response, error) {
	var wire openAIWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return ir.Response{}, ir.AdapterConversion("openai: %v", err)
	}

	out := ir.Response{
		ID:    wire.ID,
		Model: wire.Model,
		Usage: ir.Usage{InputTokens: wire.Usage.PromptTokens, OutputTokens: wire.Usage.CompletionTokens},
	}

	if len(wire.Choices) > 0 {
		c := wire.Choices[0]
		out.StopReason = convertOpenAIFinishReason(c.FinishReason)
		if c.Message.Content != "" {
			out.Content = append(out.Content, ir.TextBlock(c.Message.Content))
		}
		for _, tc := range c.Message.ToolCalls {
			out.Content = append(out.Content, ir.ToolUseBlock(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
		}
	}

	return out, nil
}

func convertOpenAIFinishReason(reason string) string {
	switch reason {
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	case "":
		return "stop"
	default:
		return reason
	}
}

type openAIStreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role      string               `json:"role"`
			Content   string               `json:"content"`
			ToolCalls []openAIDeltaToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     uint64 `json:"prompt_tokens"`
		CompletionTokens uint64 `json:"completion_tokens"`
	} `json:"usage"`
}

type openAIDeltaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func (a *OpenAI) AdaptStreamChunk(frame []byte, state *StreamState) ([]ir.StreamChunk, error) {
	payload, isDone := sseDataPayload(frame)
	if isDone {
		return nil, nil
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var wire openAIStreamChunk
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, ir.StreamFraming("openai: malformed chunk: %v", err)
	}

	var out []ir.StreamChunk

	if !state.MessageStarted {
		state.MessageStarted = true
		if wire.ID != "" {
			state.MessageID = wire.ID
		}
		if wire.Model != "" {
			state.ModelID = wire.Model
		}
		out = append(out, ir.MessageStart(state.MessageID, state.ModelID, ir.Usage{}))
	}

	if len(wire.Choices) == 0 {
		if wire.Usage != nil {
			state.MergeUsage(ir.Usage{InputTokens: wire.Usage.PromptTokens, OutputTokens: wire.Usage.CompletionTokens})
		}
		return out, nil
	}

	choice := wire.Choices[0]

	if choice.Delta.Content != "" {
		if state.OpenBlock != sse.BlockText {
			if state.OpenBlock != sse.BlockNone {
				out = append(out, ir.ContentBlockStop(state.MessageIndex-1))
			}
			idx := state.NextIndex()
			state.OpenText()
			out = append(out, ir.ContentBlockStart(idx, ir.BlockText, nil))
		}
		out = append(out, ir.TextDelta(choice.Delta.Content))
		state.TextDeltaCount++
	}

	for _, tc := range choice.Delta.ToolCalls {
		id, seen := state.ToolIndexID[tc.Index]
		if !seen {
			if state.OpenBlock != sse.BlockNone {
				out = append(out, ir.ContentBlockStop(state.MessageIndex-1))
			}
			id = tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", tc.Index)
			}
			state.ToolIndexID[tc.Index] = id
			idx := state.NextIndex()
			state.OpenTool(id)
			out = append(out, ir.ToolUseStart("tool_use", id, tc.Function.Name))
			out = append(out, ir.ContentBlockStart(idx, ir.BlockToolUse, nil))
		}
		if tc.Function.Arguments != "" {
			state.ToolArgsBuf[id] += tc.Function.Arguments
			out = append(out, ir.ToolUseDelta(id, tc.Function.Arguments))
		}
	}

	if choice.FinishReason != nil {
		if state.OpenBlock == sse.BlockToolUse {
			out = append(out, ir.ToolUseEnd(state.ToolID))
		}
		if state.OpenBlock != sse.BlockNone {
			out = append(out, ir.ContentBlockStop(state.MessageIndex-1))
			state.Close()
		}
		usage := state.Usage()
		if wire.Usage != nil {
			usage = state.MergeUsage(ir.Usage{InputTokens: wire.Usage.PromptTokens, OutputTokens: wire.Usage.CompletionTokens})
		}

		reason := *choice.FinishReason
		// A stream can claim tool_calls without ever emitting one; treat
		// it as a protocol violation and fall back to a plain stop
		// rather than reporting a tool call that never happened.
		if reason == "tool_calls" && len(state.ToolIndexID) == 0 {
			reason = ""
		}
		out = append(out, ir.MessageStop(convertOpenAIFinishReason(reason), usage))
	}

	return out, nil
}
