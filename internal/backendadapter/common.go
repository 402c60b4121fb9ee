package backendadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// newJSONRequest builds a POST request with a JSON body, mirroring the
// teacher's provider request-construction helpers.
func newJSONRequest(url string, body any) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// sseDataPayload strips a "data: " prefix from one SSE frame line and
// reports whether the line carried the termination sentinel.
func sseDataPayload(line []byte) (payload []byte, isDone bool) {
	const prefix = "data:"
	trimmed := bytes.TrimSpace(line)
	if !bytes.HasPrefix(trimmed, []byte(prefix)) {
		return nil, false
	}
	payload = bytes.TrimSpace(trimmed[len(prefix):])
	if bytes.Equal(payload, []byte("[DONE]")) {
		return nil, true
	}
	return payload, false
}
