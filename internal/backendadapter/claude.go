package backendadapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/reassembler"
	"github.com/aidyou/ccgateway/internal/sse"
)

// Claude implements the backend-adapter contract for the Anthropic
// Messages API.
type Claude struct{}

func NewClaude() *Claude { return &Claude{} }

func (a *Claude) Format() reassembler.Format { return reassembler.FormatSSE }

func (a *Claude) AdaptStreamEnd() []byte { return nil }

type claudeWireRequest struct {
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Messages    []claudeWireMsg  `json:"messages"`
	Tools       []claudeWireTool `json:"tools,omitempty"`
	ToolChoice  any              `json:"tool_choice,omitempty"`
	Stream      bool             `json:"stream"`
	Temperature *float32         `json:"temperature,omitempty"`
	TopP        *float32         `json:"top_p,omitempty"`
	TopK        *int32           `json:"top_k,omitempty"`
	MaxTokens   uint32           `json:"max_tokens"`
}

type claudeWireMsg struct {
	Role    string             `json:"role"`
	Content []claudeWireBlock  `json:"content"`
}

type claudeWireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Source    *claudeWireImg  `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type claudeWireImg struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeWireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

func (a *Claude) AdaptRequest(req ir.Request, apiKey, baseURL, model string) (*http.Request, error) {
	wire := claudeWireRequest{
		Model:       model,
		System:      req.SystemPrompt,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
	}
	if req.MaxTokens != nil {
		wire.MaxTokens = *req.MaxTokens
	} else {
		wire.MaxTokens = 4096
	}

	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, encodeClaudeMessage(m))
	}

	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, claudeWireTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	wire.ToolChoice = encodeClaudeToolChoice(req.ToolChoice)

	httpReq, err := newJSONRequest(strings.TrimRight(baseURL, "/")+"/messages", wire)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	if len(wire.Tools) > 0 {
		httpReq.Header.Set("anthropic-beta", "tools-2024-04-04")
	}
	return httpReq, nil
}

func encodeClaudeToolChoice(tc ir.ToolChoice) any {
	switch tc.Mode {
	case ir.ToolChoiceNone:
		return map[string]string{"type": "none"}
	case ir.ToolChoiceRequired:
		return map[string]string{"type": "any"}
	case ir.ToolChoiceNamed:
		return map[string]string{"type": "tool", "name": tc.Name}
	case ir.ToolChoiceAuto:
		return map[string]string{"type": "auto"}
	default:
		return nil
	}
}

// encodeClaudeMessage mirrors §4.4: "Tool results are packed into a user
// message as tool_result blocks."
func encodeClaudeMessage(m ir.Message) claudeWireMsg {
	role := "user"
	if m.Role == ir.RoleAssistant {
		role = "assistant"
	}

	wm := claudeWireMsg{Role: role}
	for _, b := range m.Content {
		switch b.Kind {
		case ir.BlockText:
			wm.Content = append(wm.Content, claudeWireBlock{Type: "text", Text: b.Text})
		case ir.BlockThinking:
			wm.Content = append(wm.Content, claudeWireBlock{Type: "thinking", Thinking: b.Text})
		case ir.BlockImage:
			wm.Content = append(wm.Content, claudeWireBlock{
				Type:   "image",
				Source: &claudeWireImg{Type: "base64", MediaType: b.MediaType, Data: b.Data},
			})
		case ir.BlockToolUse:
			wm.Content = append(wm.Content, claudeWireBlock{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput})
		case ir.BlockToolResult:
			wm.Content = append(wm.Content, claudeWireBlock{
				Type: "tool_result", ToolUseID: b.ToolResultID, Content: b.ToolContent, IsError: b.ToolIsError,
			})
		}
	}
	return wm
}

type claudeWireResponse struct {
	ID         string            `json:"id"`
	Model      string            `json:"model"`
	Content    []claudeWireBlock `json:"content"`
	StopReason string            `json:"stop_reason"`
	Usage      struct {
		InputTokens  uint64 `json:"input_tokens"`
		OutputTokens uint64 `json:"output_tokens"`
	} `json:"usage"`
}

func (a *Claude) AdaptResponse(body []byte) (ir.Response, error) {
	var wire claudeWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return ir.Response{}, ir.AdapterConversion("claude: %v", err)
	}

	out := ir.Response{
		ID:         wire.ID,
		Model:      wire.Model,
		StopReason: wire.StopReason,
		Usage:      ir.Usage{InputTokens: wire.Usage.InputTokens, OutputTokens: wire.Usage.OutputTokens},
	}

	for _, b := range wire.Content {
		switch b.Type {
		case "text":
			out.Content = append(out.Content, ir.TextBlock(b.Text))
		case "thinking":
			out.Content = append(out.Content, ir.ThinkingBlock(b.Thinking))
		case "tool_use":
			out.Content = append(out.Content, ir.ToolUseBlock(b.ID, b.Name, b.Input))
		}
	}

	return out, nil
}

// claudeStreamEvent is the parsed event:/data: pair for one frame.
type claudeStreamEvent struct {
	event string
	data  []byte
}

func parseClaudeFrame(frame []byte) claudeStreamEvent {
	var ev claudeStreamEvent
	scanner := bufio.NewScanner(bytes.NewReader(frame))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data = []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return ev
}

type claudeBlockStartWire struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type claudeDeltaWire struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Thinking    string `json:"thinking"`
	PartialJSON string `json:"partial_json"`
	StopReason  string `json:"stop_reason"`
}

func (a *Claude) AdaptStreamChunk(frame []byte, state *StreamState) ([]ir.StreamChunk, error) {
	ev := parseClaudeFrame(frame)
	if ev.event == "" || len(ev.data) == 0 {
		return nil, nil
	}

	switch ev.event {
	case "ping":
		return nil, nil

	case "message_start":
		var wire struct {
			Message struct {
				ID    string `json:"id"`
				Model string `json:"model"`
				Usage struct {
					InputTokens  uint64 `json:"input_tokens"`
					OutputTokens uint64 `json:"output_tokens"`
				} `json:"usage"`
			} `json:"message"`
		}
		if err := json.Unmarshal(ev.data, &wire); err != nil {
			return nil, ir.StreamFraming("claude: malformed message_start: %v", err)
		}
		state.MessageStarted = true
		state.MessageID = wire.Message.ID
		state.ModelID = wire.Message.Model
		usage := state.MergeUsage(ir.Usage{InputTokens: wire.Message.Usage.InputTokens, OutputTokens: wire.Message.Usage.OutputTokens})
		return []ir.StreamChunk{ir.MessageStart(state.MessageID, state.ModelID, usage)}, nil

	case "content_block_start":
		var wire struct {
			Index int                  `json:"index"`
			Block claudeBlockStartWire `json:"content_block"`
		}
		if err := json.Unmarshal(ev.data, &wire); err != nil {
			return nil, ir.StreamFraming("claude: malformed content_block_start: %v", err)
		}
		switch wire.Block.Type {
		case "text":
			state.OpenText()
		case "thinking":
			state.OpenThinking()
		case "tool_use", "server_tool_use":
			state.OpenTool(wire.Block.ID)
			state.ToolArgsBuf[wire.Block.ID] = ""
			return []ir.StreamChunk{
				ir.ToolUseStart(wire.Block.Type, wire.Block.ID, wire.Block.Name),
				ir.ContentBlockStart(uint32(wire.Index), ir.BlockToolUse, ev.data),
			}, nil
		default:
			return nil, nil
		}
		kind := ir.BlockText
		if wire.Block.Type == "thinking" {
			kind = ir.BlockThinking
		}
		return []ir.StreamChunk{ir.ContentBlockStart(uint32(wire.Index), kind, ev.data)}, nil

	case "content_block_delta":
		var wire struct {
			Index int             `json:"index"`
			Delta claudeDeltaWire `json:"delta"`
		}
		if err := json.Unmarshal(ev.data, &wire); err != nil {
			return nil, ir.StreamFraming("claude: malformed content_block_delta: %v", err)
		}
		switch wire.Delta.Type {
		case "text_delta":
			if state.OpenBlock != sse.BlockText {
				return nil, ir.AdapterConversion("claude: text_delta without open text block")
			}
			state.TextDeltaCount++
			return []ir.StreamChunk{ir.TextDelta(wire.Delta.Text)}, nil
		case "thinking_delta":
			if state.OpenBlock != sse.BlockThinking {
				return nil, ir.AdapterConversion("claude: thinking_delta without open thinking block")
			}
			state.ThinkingDeltaCount++
			return []ir.StreamChunk{ir.ThinkingDelta(wire.Delta.Thinking)}, nil
		case "input_json_delta":
			if state.OpenBlock != sse.BlockToolUse || state.ToolID == "" {
				return nil, ir.AdapterConversion("claude: input_json_delta before content_block_start")
			}
			state.ToolArgsBuf[state.ToolID] += wire.Delta.PartialJSON
			return []ir.StreamChunk{ir.ToolUseDelta(state.ToolID, wire.Delta.PartialJSON)}, nil
		default:
			return nil, nil
		}

	case "content_block_stop":
		var wire struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal(ev.data, &wire); err != nil {
			return nil, ir.StreamFraming("claude: malformed content_block_stop: %v", err)
		}
		var out []ir.StreamChunk
		if state.OpenBlock == sse.BlockToolUse {
			out = append(out, ir.ToolUseEnd(state.ToolID))
		}
		state.Close()
		out = append(out, ir.ContentBlockStop(uint32(wire.Index)))
		return out, nil

	case "message_delta":
		var wire struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
			Usage struct {
				OutputTokens uint64 `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(ev.data, &wire); err != nil {
			return nil, ir.StreamFraming("claude: malformed message_delta: %v", err)
		}
		usage := state.MergeUsage(ir.Usage{OutputTokens: wire.Usage.OutputTokens})
		return []ir.StreamChunk{ir.MessageStop(wire.Delta.StopReason, usage)}, nil

	case "message_stop":
		return nil, nil

	case "error":
		var wire struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(ev.data, &wire); err != nil {
			return []ir.StreamChunk{ir.ErrorChunk(string(ev.data))}, nil
		}
		return []ir.StreamChunk{ir.ErrorChunk(wire.Error.Message)}, nil

	default:
		return nil, nil
	}
}
