package fetcher

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
)

const blockSniffBytes = 2048

// acceptedContentType reports whether a response content type can carry a PDF.
func acceptedContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "pdf") || strings.Contains(ct, "octet-stream")
}

// saveResponse validates an unparsed resty response and streams its body to
// dest through a temp file in the same directory. The response body is
// always closed.
func saveResponse(resp *resty.Response, dest string, minBytes int64) (int64, error) {
	body := resp.RawBody()
	if body == nil {
		return 0, eris.New("fetcher: empty response body")
	}
	defer body.Close() //nolint:errcheck

	status := resp.StatusCode()
	ct := resp.Header().Get("Content-Type")
	if status != http.StatusOK || !acceptedContentType(ct) {
		sniff, _ := io.ReadAll(io.LimitReader(body, blockSniffBytes))
		if b := DetectBlock(status, resp.Header(), sniff); b != nil {
			return 0, eris.Errorf("fetcher: blocked by %s (status %d)", b, status)
		}
		if status != http.StatusOK {
			return 0, eris.Errorf("fetcher: unexpected status %d", status)
		}
		return 0, eris.Errorf("fetcher: unexpected content type %q", ct)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*.part")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			os.Remove(tmpPath) //nolint:errcheck
		}
	}()

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return 0, eris.Wrap(err, "fetcher: write body")
	}
	if err := tmp.Close(); err != nil {
		return 0, eris.Wrap(err, "fetcher: close temp file")
	}
	if n <= minBytes {
		return 0, eris.Errorf("fetcher: body too small (%d bytes)", n)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, eris.Wrap(err, "fetcher: move into cache")
	}
	keep = true
	return n, nil
}
