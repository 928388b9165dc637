package fetcher

import (
	"context"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cda-harvester/internal/model"
)

// DirectOptions configures DirectStrategy.
type DirectOptions struct {
	UserAgent string
	Referer   string
	Timeout   time.Duration
	MinBytes  int64
}

// DirectStrategy requests the URL with a browser-like header set.
type DirectStrategy struct {
	client   *resty.Client
	minBytes int64
}

// NewDirectStrategy creates a DirectStrategy.
func NewDirectStrategy(opts DirectOptions) *DirectStrategy {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New().SetTimeout(opts.Timeout)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeaders(map[string]string{
		"Accept":                    "application/pdf,application/octet-stream,text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"DNT":                       "1",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "same-origin",
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
	})
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Referer != "" {
		client.SetHeader("Referer", opts.Referer)
	}

	return &DirectStrategy{client: client, minBytes: opts.MinBytes}
}

// Name implements Strategy.
func (d *DirectStrategy) Name() model.DocumentSource { return model.SourceDirect }

// Supports implements Strategy.
func (d *DirectStrategy) Supports(string) bool { return true }

// Fetch implements Strategy.
func (d *DirectStrategy) Fetch(ctx context.Context, targetURL, dest string) (int64, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(targetURL)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: direct request")
	}
	return saveResponse(resp, dest, d.minBytes)
}
