// Package inputadapter deserializes a client request body (one of the
// four wire protocols) into the Unified IR (§4.3).
package inputadapter

import (
	"strings"

	"github.com/aidyou/ccgateway/internal/ir"
)

// Options carries the dispatcher-resolved, protocol-external context an
// input adapter needs but that is not present in the body itself.
type Options struct {
	// GeminiAction is "generateContent" or "streamGenerateContent",
	// taken from the request URL; Gemini has no in-body stream flag.
	GeminiAction string
}

// Adapter deserializes a client request body into a UnifiedRequest.
type Adapter interface {
	Parse(body []byte, opts Options) (ir.Request, error)
}

// dataURLPrefix matches "data:<mediatype>;base64,".
const dataURLPrefix = "data:"

// splitDataURL extracts media type and base64 payload from a data: URL,
// or reports ok=false if url is not a data: URL (§4.1 — URL-only images
// must be converted or rejected).
func splitDataURL(url string) (mediaType, data string, ok bool) {
	if !strings.HasPrefix(url, dataURLPrefix) {
		return "", "", false
	}
	rest := url[len(dataURLPrefix):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", "", false
	}
	header := rest[:comma]
	data = rest[comma+1:]
	if !strings.HasSuffix(header, ";base64") {
		return "", "", false
	}
	mediaType = strings.TrimSuffix(header, ";base64")
	return mediaType, data, true
}
