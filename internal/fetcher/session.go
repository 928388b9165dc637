package fetcher

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cda-harvester/internal/browser"
	"github.com/sells-group/cda-harvester/internal/model"
)

const (
	sourcePrefixBytes = 500
	pdfAccept         = "application/pdf,application/octet-stream,*/*"
)

// Navigator is the slice of a browser session the session strategy needs.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	Export(ctx context.Context) (*browser.Export, error)
}

// SessionOptions configures SessionStrategy.
type SessionOptions struct {
	Settle   time.Duration
	Timeout  time.Duration
	Referer  string
	MinBytes int64
}

// SessionStrategy loads the URL in the browser, then replays the browser's
// cookies and user agent with a plain HTTP client to download the bytes.
type SessionStrategy struct {
	nav  Navigator
	opts SessionOptions
}

// NewSessionStrategy creates a SessionStrategy. A nil navigator disables it.
func NewSessionStrategy(nav Navigator, opts SessionOptions) *SessionStrategy {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &SessionStrategy{nav: nav, opts: opts}
}

// Name implements Strategy.
func (s *SessionStrategy) Name() model.DocumentSource { return model.SourceSession }

// Supports implements Strategy.
func (s *SessionStrategy) Supports(string) bool { return s.nav != nil }

// Fetch implements Strategy.
func (s *SessionStrategy) Fetch(ctx context.Context, targetURL, dest string) (int64, error) {
	if err := s.nav.Navigate(ctx, targetURL); err != nil {
		return 0, err
	}

	select {
	case <-time.After(s.opts.Settle):
	case <-ctx.Done():
		return 0, eris.Wrap(ctx.Err(), "fetcher: session settle")
	}

	loc, err := s.nav.Location(ctx)
	if err != nil {
		return 0, err
	}
	src, err := s.nav.PageSource(ctx)
	if err != nil {
		return 0, err
	}
	if len(src) > sourcePrefixBytes {
		src = src[:sourcePrefixBytes]
	}
	prefix := strings.ToLower(src)

	if !strings.Contains(strings.ToLower(loc), "pdf") {
		return 0, eris.Errorf("fetcher: session landed on non-pdf location %s", loc)
	}
	if strings.Contains(prefix, "error") {
		return 0, eris.Errorf("fetcher: session page reports an error at %s", loc)
	}
	if b := DetectBlock(0, nil, []byte(prefix)); b != nil {
		return 0, eris.Errorf("fetcher: session page blocked by %s", b)
	}

	exp, err := s.nav.Export(ctx)
	if err != nil {
		return 0, err
	}
	u, err := url.Parse(loc)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: parse session location %s", loc)
	}
	jar, err := exp.Jar(u)
	if err != nil {
		return 0, err
	}

	client := resty.New().
		SetTimeout(s.opts.Timeout).
		SetCookieJar(jar).
		SetHeader("Accept", pdfAccept)
	if exp.UserAgent != "" {
		client.SetHeader("User-Agent", exp.UserAgent)
	}
	if s.opts.Referer != "" {
		client.SetHeader("Referer", s.opts.Referer)
	}

	zap.L().Debug("fetcher: replaying session",
		zap.String("location", loc),
		zap.Int("cookies", len(exp.Cookies)),
	)

	resp, err := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(loc)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: session request")
	}
	return saveResponse(resp, dest, s.opts.MinBytes)
}
