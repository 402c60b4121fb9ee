package inputadapter

import (
	"encoding/json"

	"github.com/aidyou/ccgateway/internal/ir"
)

// Ollama deserializes Ollama /api/chat bodies into the IR.
type Ollama struct{}

func NewOllama() *Ollama { return &Ollama{} }

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools"`
	Stream   *bool           `json:"stream"`
	Options  *ollamaOptions  `json:"options"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images"`
	ToolName  string           `json:"tool_name"`
	ToolCalls []ollamaToolCall `json:"tool_calls"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type ollamaOptions struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	TopK        *int32   `json:"top_k"`
}

func (a *Ollama) Parse(body []byte, _ Options) (ir.Request, error) {
	var req ollamaRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ir.Request{}, ir.InvalidRequest("ollama: %v", err)
	}

	out := ir.Request{
		Model: req.Model,
		// Ollama defaults stream to true unless explicitly disabled.
		Stream: req.Stream == nil || *req.Stream,
	}

	if req.Options != nil {
		out.Temperature = req.Options.Temperature
		out.TopP = req.Options.TopP
		out.TopK = req.Options.TopK
	}

	for _, m := range req.Messages {
		if m.Role == "system" && out.SystemPrompt == "" {
			out.SystemPrompt = m.Content
			continue
		}

		if m.Role == "tool" {
			out.Messages = append(out.Messages, ir.Message{
				Role:    ir.RoleTool,
				Content: []ir.ContentBlock{ir.ToolResultBlock(m.ToolName, m.Content, false)},
			})
			continue
		}

		msg := ir.Message{Role: ollamaRole(m.Role)}
		if m.Content != "" {
			msg.Content = append(msg.Content, ir.TextBlock(m.Content))
		}
		for _, img := range m.Images {
			msg.Content = append(msg.Content, ir.ImageBlock("image/png", img))
		}
		for _, tc := range m.ToolCalls {
			msg.Content = append(msg.Content, ir.ToolUseBlock(tc.Function.Name, tc.Function.Name, tc.Function.Arguments))
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

	if len(out.Tools) > 0 {
		out.ToolChoice = ir.ChoiceAuto
	}

	return out, nil
}

func ollamaRole(role string) ir.Role {
	if role == "assistant" {
		return ir.RoleAssistant
	}
	return ir.RoleUser
}
