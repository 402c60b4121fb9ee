package backendadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/reassembler"
)

// Gemini implements the backend-adapter contract for Google's
// Generative Language API.
type Gemini struct{}

func NewGemini() *Gemini { return &Gemini{} }

func (a *Gemini) Format() reassembler.Format { return reassembler.FormatSSE }

func (a *Gemini) AdaptStreamEnd() []byte { return nil }

type geminiWireContent struct {
	Role  string           `json:"role"`
	Parts []geminiWirePart `json:"parts"`
}

type geminiWirePart struct {
	Text         string          `json:"text,omitempty"`
	InlineData   *geminiWireBlob `json:"inlineData,omitempty"`
	FunctionCall *struct {
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	} `json:"functionCall,omitempty"`
	FunctionResponse *struct {
		Name     string          `json:"name"`
		Response json.RawMessage `json:"response"`
	} `json:"functionResponse,omitempty"`
}

type geminiWireBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiWireRequest struct {
	Contents          []geminiWireContent `json:"contents"`
	SystemInstruction *geminiWireContent  `json:"system_instruction,omitempty"`
	Tools             []geminiWireTool    `json:"tools,omitempty"`
	ToolConfig        *geminiWireToolCfg  `json:"tool_config,omitempty"`
	GenerationConfig  *geminiWireGenCfg   `json:"generationConfig,omitempty"`
}

type geminiWireTool struct {
	FunctionDeclarations []geminiWireFuncDecl `json:"function_declarations"`
}

type geminiWireFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type geminiWireToolCfg struct {
	FunctionCallingConfig struct {
		Mode                 string   `json:"mode"`
		AllowedFunctionNames []string `json:"allowed_function_names,omitempty"`
	} `json:"function_calling_config"`
}

type geminiWireGenCfg struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	TopK            *int32   `json:"topK,omitempty"`
	MaxOutputTokens *uint32  `json:"maxOutputTokens,omitempty"`
}

func (a *Gemini) AdaptRequest(req ir.Request, apiKey, baseURL, model string) (*http.Request, error) {
	wire := geminiWireRequest{}

	if req.SystemPrompt != "" {
		wire.SystemInstruction = &geminiWireContent{Parts: []geminiWirePart{{Text: req.SystemPrompt}}}
	}

	for _, m := range req.Messages {
		wire.Contents = append(wire.Contents, encodeGeminiContent(m))
	}

	if len(req.Tools) > 0 {
		var decls []geminiWireFuncDecl
		for _, t := range req.Tools {
			decls = append(decls, geminiWireFuncDecl{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
		}
		wire.Tools = []geminiWireTool{{FunctionDeclarations: decls}}
	}

	wire.ToolConfig = encodeGeminiToolChoice(req.ToolChoice, &wire)

	wire.GenerationConfig = &geminiWireGenCfg{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		TopK:            req.TopK,
		MaxOutputTokens: req.MaxTokens,
	}

	action := "generateContent"
	if req.Stream {
		action = "streamGenerateContent"
	}
	url := fmt.Sprintf("%s/models/%s:%s?key=%s", strings.TrimRight(baseURL, "/"), model, action, apiKey)
	if req.Stream {
		url += "&alt=sse"
	}

	return newJSONRequest(url, wire)
}

func encodeGeminiToolChoice(tc ir.ToolChoice, wire *geminiWireRequest) *geminiWireToolCfg {
	cfg := &geminiWireToolCfg{}
	switch tc.Mode {
	case ir.ToolChoiceNone:
		cfg.FunctionCallingConfig.Mode = "NONE"
	case ir.ToolChoiceRequired:
		cfg.FunctionCallingConfig.Mode = "ANY"
	case ir.ToolChoiceNamed:
		cfg.FunctionCallingConfig.Mode = "ANY"
		cfg.FunctionCallingConfig.AllowedFunctionNames = []string{tc.Name}
		// Named forces the declared tool list down to just that
		// function (§4.4).
		for _, t := range wire.Tools {
			for _, d := range t.FunctionDeclarations {
				if d.Name == tc.Name {
					wire.Tools = []geminiWireTool{{FunctionDeclarations: []geminiWireFuncDecl{d}}}
				}
			}
		}
	case ir.ToolChoiceAuto:
		cfg.FunctionCallingConfig.Mode = "AUTO"
	default:
		return nil
	}
	return cfg
}

func encodeGeminiContent(m ir.Message) geminiWireContent {
	role := "user"
	if m.Role == ir.RoleAssistant {
		role = "model"
	}

	wc := geminiWireContent{Role: role}
	for _, b := range m.Content {
		switch b.Kind {
		case ir.BlockText:
			wc.Parts = append(wc.Parts, geminiWirePart{Text: b.Text})
		case ir.BlockImage:
			wc.Parts = append(wc.Parts, geminiWirePart{InlineData: &geminiWireBlob{MimeType: b.MediaType, Data: b.Data}})
		case ir.BlockToolUse:
			part := geminiWirePart{}
			part.FunctionCall = &struct {
				Name string          `json:"name"`
				Args json.RawMessage `json:"args"`
			}{Name: b.ToolName, Args: b.ToolInput}
			wc.Parts = append(wc.Parts, part)
		case ir.BlockToolResult:
			part := geminiWirePart{}
			resp := b.ToolContent
			if !json.Valid([]byte(resp)) {
				resp = fmt.Sprintf("%q", resp)
			}
			part.FunctionResponse = &struct {
				Name     string          `json:"name"`
				Response json.RawMessage `json:"response"`
			}{Name: b.ToolResultID, Response: json.RawMessage(resp)}
			wc.Parts = append(wc.Parts, part)
		}
	}
	return wc
}

type geminiWireResponse struct {
	Candidates []struct {
		Content      geminiWireContent `json:"content"`
		FinishReason string            `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     uint64 `json:"promptTokenCount"`
		CandidatesTokenCount uint64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (a *Gemini) AdaptResponse(body []byte) (ir.Response, error) {
	var wire geminiWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return ir.Response{}, ir.AdapterConversion("gemini: %v", err)
	}

	out := ir.Response{
		Usage: ir.Usage{InputTokens: wire.UsageMetadata.PromptTokenCount, OutputTokens: wire.UsageMetadata.CandidatesTokenCount},
	}

	if len(wire.Candidates) > 0 {
		c := wire.Candidates[0]
		out.StopReason = convertGeminiFinishReason(c.FinishReason)
		for _, p := range c.Content.Parts {
			out.Content = append(out.Content, decodeGeminiPart(p)...)
		}
	}

	return out, nil
}

func decodeGeminiPart(p geminiWirePart) []ir.ContentBlock {
	switch {
	case p.FunctionCall != nil:
		return []ir.ContentBlock{ir.ToolUseBlock(p.FunctionCall.Name, p.FunctionCall.Name, p.FunctionCall.Args)}
	case p.Text != "":
		return []ir.ContentBlock{ir.TextBlock(p.Text)}
	default:
		return nil
	}
}

func convertGeminiFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "max_tokens"
	case "":
		return "stop"
	default:
		return strings.ToLower(reason)
	}
}

// AdaptStreamChunk synthesizes content-block events for Gemini's
// discrete, non-delta parts (§4.4): each text part becomes a
// self-contained ContentBlockStart/Text/ContentBlockStop triple, each
// function call a ToolUseStart/ToolUseDelta/ToolUseEnd triple.
func (a *Gemini) AdaptStreamChunk(frame []byte, state *StreamState) ([]ir.StreamChunk, error) {
	payload, isDone := sseDataPayload(frame)
	if isDone || len(payload) == 0 {
		return nil, nil
	}

	var wire geminiWireResponse
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, ir.StreamFraming("gemini: malformed chunk: %v", err)
	}

	var out []ir.StreamChunk

	if !state.MessageStarted {
		state.MessageStarted = true
		out = append(out, ir.MessageStart(state.MessageID, state.ModelID, ir.Usage{}))
	}

	var finishReason string
	if len(wire.Candidates) > 0 {
		c := wire.Candidates[0]
		finishReason = c.FinishReason
		for _, p := range c.Content.Parts {
			out = append(out, synthesizeGeminiPart(p, state)...)
		}
	}

	usage := state.MergeUsage(ir.Usage{InputTokens: wire.UsageMetadata.PromptTokenCount, OutputTokens: wire.UsageMetadata.CandidatesTokenCount})

	if finishReason != "" {
		out = append(out, ir.MessageStop(convertGeminiFinishReason(finishReason), usage))
	}

	return out, nil
}

func synthesizeGeminiPart(p geminiWirePart, state *StreamState) []ir.StreamChunk {
	switch {
	case p.FunctionCall != nil:
		id := p.FunctionCall.Name
		return []ir.StreamChunk{
			ir.ToolUseStart("tool_use", id, p.FunctionCall.Name),
			ir.ToolUseDelta(id, string(p.FunctionCall.Args)),
			ir.ToolUseEnd(id),
		}
	case p.Text != "":
		idx := state.NextIndex()
		return []ir.StreamChunk{
			ir.ContentBlockStart(idx, ir.BlockText, nil),
			ir.TextDelta(p.Text),
			ir.ContentBlockStop(idx),
		}
	default:
		return nil
	}
}
