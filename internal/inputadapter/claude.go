package inputadapter

import (
	"encoding/json"

	"github.com/aidyou/ccgateway/internal/ir"
)

// Claude deserializes Anthropic Messages API bodies into the IR.
type Claude struct{}

func NewClaude() *Claude { return &Claude{} }

type claudeRequest struct {
	Model       string          `json:"model"`
	System      json.RawMessage `json:"system"`
	Messages    []claudeMessage `json:"messages"`
	Tools       []claudeTool    `json:"tools"`
	ToolChoice  *claudeToolChoice `json:"tool_choice"`
	Stream      bool            `json:"stream"`
	Temperature *float32        `json:"temperature"`
	TopP        *float32        `json:"top_p"`
	TopK        *int32          `json:"top_k"`
	MaxTokens   *uint32         `json:"max_tokens"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type claudeBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Source struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"source"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Input       json.RawMessage `json:"input"`
	ToolUseID   string          `json:"tool_use_id"`
	Content     json.RawMessage `json:"content"`
	IsError     bool            `json:"is_error"`
	Thinking    string          `json:"thinking"`
}

type claudeTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type claudeToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func (a *Claude) Parse(body []byte, _ Options) (ir.Request, error) {
	var req claudeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ir.Request{}, ir.InvalidRequest("claude: %v", err)
	}

	out := ir.Request{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		MaxTokens:   req.MaxTokens,
	}

	if len(req.System) > 0 {
		out.SystemPrompt = claudeSystemText(req.System)
	}

	for _, m := range req.Messages {
		blocks, err := parseClaudeContent(m.Content)
		if err != nil {
			return ir.Request{}, err
		}
		out.Messages = append(out.Messages, ir.Message{
			Role:    claudeRole(m.Role, blocks),
			Content: blocks,
		})
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ir.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case "none":
			out.ToolChoice = ir.ChoiceNone
		case "any":
			out.ToolChoice = ir.ChoiceRequired
		case "tool":
			out.ToolChoice = ir.ChoiceNamed(req.ToolChoice.Name)
		default:
			out.ToolChoice = ir.ChoiceAuto
		}
	}

	return out, nil
}

// claudeRole infers Tool role when the message consists solely of
// tool_result blocks, mirroring the spec's "Claude tool_result block ->
// equivalent" normalization (§4.3); Claude has no literal "tool" role.
func claudeRole(role string, blocks []ir.ContentBlock) ir.Role {
	if role == "assistant" {
		return ir.RoleAssistant
	}
	if len(blocks) > 0 {
		allResults := true
		for _, b := range blocks {
			if b.Kind != ir.BlockToolResult {
				allResults = false
				break
			}
		}
		if allResults {
			return ir.RoleTool
		}
	}
	return ir.RoleUser
}

func claudeSystemText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			if b.Type == "text" {
				out += b.Text
			}
		}
		return out
	}
	return ""
}

func parseClaudeContent(raw json.RawMessage) ([]ir.ContentBlock, error) {
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

	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, ir.InvalidRequest("claude: unsupported content shape: %v", err)
	}

	var out []ir.ContentBlock
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, ir.TextBlock(b.Text))
		case "thinking":
			out = append(out, ir.ThinkingBlock(b.Thinking))
		case "image":
			if b.Source.Type != "base64" {
				return nil, ir.InvalidRequest("claude: only base64 image sources are supported")
			}
			out = append(out, ir.ImageBlock(b.Source.MediaType, b.Source.Data))
		case "tool_use":
			out = append(out, ir.ToolUseBlock(b.ID, b.Name, b.Input))
		case "tool_result":
			out = append(out, ir.ToolResultBlock(b.ToolUseID, claudeToolResultText(b.Content), b.IsError))
		}
	}
	return out, nil
}

func claudeToolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			if b.Type == "text" {
				out += b.Text
			}
		}
		return out
	}
	return ""
}
