package fetcher

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   string
	}{
		{"cf-ray on 403", 403, http.Header{"Cf-Ray": {"abc"}}, "", BlockCloudflare},
		{"cloudflare server on 503", 503, http.Header{"Server": {"cloudflare"}}, "", BlockCloudflare},
		{"browser check page", 200, nil, "<title>Checking your browser</title>", BlockCloudflare},
		{"cloudflare challenge", 0, nil, "cloudflare challenge platform", BlockCloudflare},
		{"captcha", 200, nil, "please solve the hCaptcha", BlockCaptcha},
		{"noscript shell", 200, nil, "<noscript>Enable JavaScript</noscript>", BlockJSShell},
		{"meta refresh", 200, nil, `<meta http-equiv="refresh" content="0">`, BlockJSShell},
		{"cf header without block status", 200, http.Header{"Cf-Ray": {"abc"}}, "%PDF-1.4", ""},
		{"empty body", 0, nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectBlock(tt.status, tt.header, []byte(tt.body))
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestDetectBlock_ShellMarkersIgnoredOnLargePages(t *testing.T) {
	page := "<noscript>This site works best with JavaScript</noscript>" + strings.Repeat("x", shellMaxBytes)
	assert.Nil(t, DetectBlock(200, nil, []byte(page)))
}

func TestBlock_String(t *testing.T) {
	b := DetectBlock(0, nil, []byte("Cloudflare challenge"))
	require.NotNil(t, b)
	assert.Equal(t, "cloudflare (cloudflare+challenge)", b.String())
}
