package inputadapter

import (
	"encoding/json"

	"github.com/aidyou/ccgateway/internal/ir"
)

// OpenAI deserializes OpenAI/HuggingFace-compatible chat-completion
// bodies into the IR.
type OpenAI struct{}

func NewOpenAI() *OpenAI { return &OpenAI{} }

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools"`
	ToolChoice  json.RawMessage `json:"tool_choice"`
	Stream      bool            `json:"stream"`
	Temperature *float32        `json:"temperature"`
	TopP        *float32        `json:"top_p"`
	MaxTokens   *uint32         `json:"max_tokens"`
}

type openAIMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls"`
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

func (a *OpenAI) Parse(body []byte, _ Options) (ir.Request, error) {
	var req openAIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ir.Request{}, ir.InvalidRequest("openai: %v", err)
	}

	out := ir.Request{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	for _, m := range req.Messages {
		if m.Role == "system" && out.SystemPrompt == "" {
			out.SystemPrompt = textOnly(m.Content)
			continue
		}

		msg := ir.Message{Role: openAIRole(m.Role)}

		if m.Role == "tool" {
			msg.Content = []ir.ContentBlock{ir.ToolResultBlock(m.ToolCallID, textOnly(m.Content), false)}
			out.Messages = append(out.Messages, msg)
			continue
		}

		blocks, err := parseOpenAIContent(m.Content)
		if err != nil {
			return ir.Request{}, err
		}
		msg.Content = blocks

		for _, tc := range m.ToolCalls {
			msg.Content = append(msg.Content, ir.ToolUseBlock(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
		}

		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ir.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	choice, err := parseOpenAIToolChoice(req.ToolChoice)
	if err != nil {
		return ir.Request{}, err
	}
	out.ToolChoice = choice

	return out, nil
}

func openAIRole(role string) ir.Role {
	switch role {
	case "assistant":
		return ir.RoleAssistant
	case "tool":
		return ir.RoleTool
	case "system":
		return ir.RoleSystem
	default:
		return ir.RoleUser
	}
}

// textOnly extracts plain text from an OpenAI message.content field,
// which may be a bare string or a list of parts.
func textOnly(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []openAIContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var sb string
		for _, p := range parts {
			if p.Type == "text" {
				sb += p.Text
			}
		}
		return sb
	}
	return ""
}

func parseOpenAIContent(raw json.RawMessage) ([]ir.ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil, nil
		}
		return []ir.ContentBlock{ir.TextBlock(s)}, nil
	}

	var parts []openAIContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, ir.InvalidRequest("openai: unsupported content shape: %v", err)
	}

	var blocks []ir.ContentBlock
	for _, p := range parts {
		switch p.Type {
		case "text":
			blocks = append(blocks, ir.TextBlock(p.Text))
		case "image_url":
			mediaType, data, ok := splitDataURL(p.ImageURL.URL)
			if !ok {
				return nil, ir.InvalidRequest("openai: image_url must be a data: URL")
			}
			blocks = append(blocks, ir.ImageBlock(mediaType, data))
		}
	}
	return blocks, nil
}

func parseOpenAIToolChoice(raw json.RawMessage) (ir.ToolChoice, error) {
	if len(raw) == 0 {
		return ir.ToolChoice{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "none":
			return ir.ChoiceNone, nil
		case "auto":
			return ir.ChoiceAuto, nil
		case "required", "any":
			return ir.ChoiceRequired, nil
		default:
			return ir.ToolChoice{}, nil
		}
	}

	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err != nil {
		return ir.ToolChoice{}, ir.InvalidRequest("openai: unsupported tool_choice shape: %v", err)
	}
	if named.Function.Name == "" {
		return ir.ToolChoice{}, nil
	}
	return ir.ChoiceNamed(named.Function.Name), nil
}
