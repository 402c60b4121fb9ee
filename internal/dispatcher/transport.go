package dispatcher

import (
	"compress/gzip"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
)

// decompressBody wraps resp.Body according to its Content-Encoding
// header. Upstreams occasionally compress responses despite no
// explicit Accept-Encoding from this gateway; both the mediated and
// direct-forward paths need the decoded bytes before framing them.
func decompressBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
