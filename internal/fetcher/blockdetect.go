package fetcher

import (
	"bytes"
	"net/http"
	"strings"
)

// Block kinds reported by DetectBlock.
const (
	BlockCloudflare = "cloudflare"
	BlockCaptcha    = "captcha"
	BlockJSShell    = "js_shell"
)

// Block is an anti-bot interstitial recognised in a response.
type Block struct {
	Kind   string
	Marker string
}

func (b *Block) String() string {
	return b.Kind + " (" + b.Marker + ")"
}

type blockMarker struct {
	kind  string
	needs []string
	// shell markers only count on tiny bodies; a real page mentioning
	// javascript is not a block.
	shellOnly bool
}

var blockMarkers = []blockMarker{
	{kind: BlockCloudflare, needs: []string{"checking your browser"}},
	{kind: BlockCloudflare, needs: []string{"cf-browser-verification"}},
	{kind: BlockCloudflare, needs: []string{"cloudflare", "challenge"}},
	{kind: BlockCaptcha, needs: []string{"captcha"}},
	{kind: BlockJSShell, needs: []string{"<noscript", "javascript"}, shellOnly: true},
	{kind: BlockJSShell, needs: []string{`meta http-equiv="refresh"`}, shellOnly: true},
}

const shellMaxBytes = 2000

// DetectBlock looks for an anti-bot page in a download response or a
// rendered page source. Pass status 0 and a nil header for page sources.
// It returns nil when nothing matched.
func DetectBlock(status int, header http.Header, body []byte) *Block {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		switch {
		case header.Get("cf-ray") != "":
			return &Block{Kind: BlockCloudflare, Marker: "cf-ray header"}
		case header.Get("cf-cache-status") != "":
			return &Block{Kind: BlockCloudflare, Marker: "cf-cache-status header"}
		case strings.EqualFold(header.Get("server"), "cloudflare"):
			return &Block{Kind: BlockCloudflare, Marker: "server header"}
		}
	}

	if len(body) == 0 {
		return nil
	}
	lower := bytes.ToLower(body)
	for _, m := range blockMarkers {
		if m.shellOnly && len(body) >= shellMaxBytes {
			continue
		}
		if containsAll(lower, m.needs) {
			return &Block{Kind: m.kind, Marker: strings.Join(m.needs, "+")}
		}
	}
	return nil
}

func containsAll(haystack []byte, needles []string) bool {
	for _, n := range needles {
		if !bytes.Contains(haystack, []byte(n)) {
			return false
		}
	}
	return true
}
