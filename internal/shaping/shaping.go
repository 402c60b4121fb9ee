// Package shaping implements the request-shaping policies applied at the
// gateway boundary (§4.8): temperature scaling, tool filtering, prompt
// injection, and custom header/body-parameter templating.
package shaping

import (
	"crypto/rand"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aidyou/ccgateway/internal/chatproto"
	"github.com/aidyou/ccgateway/internal/ir"
	"github.com/aidyou/ccgateway/internal/resolver"
)

// namespaceConvID roots the v5 UUIDs derived from a numeric chat id,
// so the same chat id always maps to the same {CONV_ID} value.
var namespaceConvID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// ApplyRequest applies temperature scaling, tool filtering, and prompt
// injection to a UnifiedRequest (mediated path). Header and body-param
// templating apply at the transport boundary via Headers/BodyParams
// below, since they are not IR-shaped concerns.
func ApplyRequest(req *ir.Request, pm resolver.ProxyModel) {
	scaleTemperature(req, pm)
	filterTools(req, pm)
	injectPrompt(req, pm)
}

func scaleTemperature(req *ir.Request, pm resolver.ProxyModel) {
	if pm.Temperature == 1.0 || req.Temperature == nil {
		return
	}
	scaled := *req.Temperature * pm.Temperature
	req.Temperature = &scaled
}

func filterTools(req *ir.Request, pm resolver.ProxyModel) {
	if len(pm.ToolFilter) == 0 || len(req.Tools) == 0 {
		return
	}
	kept := req.Tools[:0]
	for _, t := range req.Tools {
		if _, blocked := pm.ToolFilter[t.Name]; !blocked {
			kept = append(kept, t)
		}
	}
	req.Tools = kept
}

func injectPrompt(req *ir.Request, pm resolver.ProxyModel) {
	if len(req.Tools) == 0 || pm.PromptInjection == "" || pm.PromptInjection == "off" {
		return
	}
	switch pm.PromptInjection {
	case "enhance":
		if req.SystemPrompt == "" {
			req.SystemPrompt = pm.PromptText
		} else {
			req.SystemPrompt = req.SystemPrompt + "\n\n" + pm.PromptText
		}
	case "replace":
		req.SystemPrompt = pm.PromptText
	}
}

// ToolNameKey returns the protocol-specific JSON path that names a tool
// in a direct-forward (same-protocol) request body, used by the
// dispatcher's raw-body tool filter.
func ToolNameKey(proto chatproto.Protocol) []string {
	switch proto.Wire() {
	case chatproto.Claude:
		return []string{"name"}
	case chatproto.Gemini:
		return []string{"function_declarations", "0", "name"}
	default: // OpenAI, Ollama (OpenAI-shaped)
		return []string{"function", "name"}
	}
}

// Headers renders pm.Metadata["customHeaders"] (a map[string]any whose
// string values are used; other values are skipped) into
// the concrete cs-prefixed header set for one request, expanding
// {UUID}/{RANDOM}/{CONV_ID} placeholders.
func Headers(pm resolver.ProxyModel, chatID string) map[string]string {
	raw, ok := pm.Metadata["customHeaders"].(map[string]any)
	if !ok {
		return nil
	}

	out := make(map[string]string, len(raw))
	for key, v := range raw {
		tmpl, ok := v.(string)
		if !ok {
			continue
		}
		value := expandPlaceholders(tmpl, chatID)
		if !strings.HasPrefix(key, "cs-") {
			key = "cs-" + key
		}
		out[key] = value
	}
	return out
}

func expandPlaceholders(tmpl, chatID string) string {
	tmpl = strings.ReplaceAll(tmpl, "{UUID}", uuid.New().String())
	tmpl = strings.ReplaceAll(tmpl, "{RANDOM}", randomAlphanumeric(8))
	if strings.Contains(tmpl, "{CONV_ID}") {
		tmpl = strings.ReplaceAll(tmpl, "{CONV_ID}", convID(chatID))
	}
	return tmpl
}

// convID derives the {CONV_ID} placeholder value: a v5 UUID when chatID
// is numeric, the chat id itself when it already looks UUID-like, or a
// fresh v4 otherwise (§4.8.4).
func convID(chatID string) string {
	if chatID == "" {
		return uuid.New().String()
	}
	if _, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return uuid.NewSHA1(namespaceConvID, []byte(chatID)).String()
	}
	if _, err := uuid.Parse(chatID); err == nil {
		return chatID
	}
	return uuid.New().String()
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(buf)
}

// BodyParams type-coerces pm.Metadata["customParams"] per §4.8.5 and
// merges the result into body at top level. streaming controls the
// enable_thinking override: it is forced false on non-streaming
// requests to work around upstream errors some providers raise when
// thinking is requested without a stream.
func BodyParams(body map[string]any, pm resolver.ProxyModel, streaming bool) {
	raw, ok := pm.Metadata["customParams"].(map[string]any)
	if ok {
		for key, v := range raw {
			body[key] = coerce(v)
		}
	}

	if !streaming {
		if enabled, ok := body["enable_thinking"].(bool); ok && enabled {
			body["enable_thinking"] = false
		}
	}
}

func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "", "null":
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// RawToolFilter removes filtered tool entries from a direct-forward
// request body's tools array in place, using proto's name path.
func RawToolFilter(body map[string]any, proto chatproto.Protocol, pm resolver.ProxyModel) {
	if len(pm.ToolFilter) == 0 {
		return
	}
	tools, ok := body["tools"].([]any)
	if !ok {
		return
	}
	path := ToolNameKey(proto)
	kept := tools[:0]
	for _, t := range tools {
		name := lookupToolName(t, path)
		if _, blocked := pm.ToolFilter[name]; !blocked {
			kept = append(kept, t)
		}
	}
	body["tools"] = kept
}

func lookupToolName(tool any, path []string) string {
	cur := tool
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			if idx, err := strconv.Atoi(key); err == nil {
				arr, ok := cur.([]any)
				if !ok || idx >= len(arr) {
					return ""
				}
				cur = arr[idx]
				continue
			}
			return ""
		}
		cur = m[key]
	}
	s, _ := cur.(string)
	return s
}
