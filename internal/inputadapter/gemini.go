package inputadapter

import (
	"encoding/json"

	"github.com/aidyou/ccgateway/internal/ir"
)

// Gemini deserializes Google Generative Language API bodies into the IR.
type Gemini struct{}

func NewGemini() *Gemini { return &Gemini{} }

type geminiRequest struct {
	Contents          []geminiContent    `json:"contents"`
	SystemInstruction *geminiContent     `json:"system_instruction"`
	Tools             []geminiTool       `json:"tools"`
	ToolConfig        *geminiToolConfig  `json:"tool_config"`
	GenerationConfig  *geminiGenConfig   `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string `json:"text"`
	InlineData *struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"inlineData"`
	FunctionCall *struct {
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	} `json:"functionCall"`
	FunctionResponse *struct {
		Name     string          `json:"name"`
		Response json.RawMessage `json:"response"`
	} `json:"functionResponse"`
}

type geminiTool struct {
	FunctionDeclarations []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function_declarations"`
}

type geminiToolConfig struct {
	FunctionCallingConfig struct {
		Mode                 string   `json:"mode"`
		AllowedFunctionNames []string `json:"allowed_function_names"`
	} `json:"function_calling_config"`
}

type geminiGenConfig struct {
	Temperature     *float32 `json:"temperature"`
	TopP            *float32 `json:"topP"`
	TopK            *int32   `json:"topK"`
	MaxOutputTokens *uint32  `json:"maxOutputTokens"`
}

func (a *Gemini) Parse(body []byte, opts Options) (ir.Request, error) {
	var req geminiRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ir.Request{}, ir.InvalidRequest("gemini: %v", err)
	}

	out := ir.Request{
		// Gemini's model is resolved externally (§6.1, the URL carries
		// {model}:{action}); the dispatcher fills this in.
		Stream: opts.GeminiAction == "streamGenerateContent",
	}

	if req.GenerationConfig != nil {
		out.Temperature = req.GenerationConfig.Temperature
		out.TopP = req.GenerationConfig.TopP
		out.TopK = req.GenerationConfig.TopK
		out.MaxTokens = req.GenerationConfig.MaxOutputTokens
	}

	if req.SystemInstruction != nil {
		for _, p := range req.SystemInstruction.Parts {
			out.SystemPrompt += p.Text
		}
	}

	for _, c := range req.Contents {
		blocks, err := parseGeminiParts(c.Parts)
		if err != nil {
			return ir.Request{}, err
		}
		out.Messages = append(out.Messages, ir.Message{
			Role:    geminiRole(c.Role, blocks),
			Content: blocks,
		})
	}

	for _, t := range req.Tools {
		for _, fd := range t.FunctionDeclarations {
			out.Tools = append(out.Tools, ir.Tool{
				Name:        fd.Name,
				Description: fd.Description,
				InputSchema: fd.Parameters,
			})
		}
	}

	out.ToolChoice = geminiToolChoice(req.ToolConfig)

	return out, nil
}

func geminiRole(role string, blocks []ir.ContentBlock) ir.Role {
	if role == "model" {
		return ir.RoleAssistant
	}
	for _, b := range blocks {
		if b.Kind == ir.BlockToolResult {
			return ir.RoleTool
		}
	}
	return ir.RoleUser
}

func parseGeminiParts(parts []geminiPart) ([]ir.ContentBlock, error) {
	var out []ir.ContentBlock
	for _, p := range parts {
		switch {
		case p.FunctionCall != nil:
			out = append(out, ir.ToolUseBlock(p.FunctionCall.Name, p.FunctionCall.Name, p.FunctionCall.Args))
		case p.FunctionResponse != nil:
			out = append(out, ir.ToolResultBlock(p.FunctionResponse.Name, string(p.FunctionResponse.Response), false))
		case p.InlineData != nil:
			out = append(out, ir.ImageBlock(p.InlineData.MimeType, p.InlineData.Data))
		default:
			if p.Text != "" {
				out = append(out, ir.TextBlock(p.Text))
			}
		}
	}
	return out, nil
}

func geminiToolChoice(cfg *geminiToolConfig) ir.ToolChoice {
	if cfg == nil {
		return ir.ToolChoice{}
	}
	switch cfg.FunctionCallingConfig.Mode {
	case "NONE":
		return ir.ChoiceNone
	case "ANY":
		if len(cfg.FunctionCallingConfig.AllowedFunctionNames) == 1 {
			return ir.ChoiceNamed(cfg.FunctionCallingConfig.AllowedFunctionNames[0])
		}
		return ir.ChoiceRequired
	case "AUTO":
		return ir.ChoiceAuto
	default:
		return ir.ToolChoice{}
	}
}
