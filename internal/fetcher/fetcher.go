// Package fetcher turns a report candidate into a validated PDF in the local
// cache. Strategies are tried in order; the first to produce a valid file wins.
package fetcher

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/sells-group/cda-harvester/internal/model"
)

// ErrUnavailable is returned when no strategy could retrieve a valid PDF.
var ErrUnavailable = eris.New("fetcher: document unavailable")

const maxCacheNameRunes = 50

// Strategy downloads one URL into dest. Implementations must leave dest
// untouched unless the download passed validation.
type Strategy interface {
	Name() model.DocumentSource
	Supports(targetURL string) bool
	Fetch(ctx context.Context, targetURL, dest string) (int64, error)
}

// Options configures the Fetcher.
type Options struct {
	CacheDir       string
	RequestsPerSec float64
}

// Fetcher resolves candidates to cached documents.
type Fetcher struct {
	opts       Options
	strategies []Strategy

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Fetcher that tries strategies in order.
func New(opts Options, strategies ...Strategy) *Fetcher {
	return &Fetcher{
		opts:       opts,
		strategies: strategies,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// CacheFileName derives the cache file name for a report title: letters,
// digits, spaces, '-' and '_' are kept, trailing spaces trimmed, the result
// capped at 50 characters, and ".pdf" appended. Distinct titles may collide.
func CacheFileName(title string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(title) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	name := []rune(strings.TrimRight(b.String(), " "))
	if len(name) > maxCacheNameRunes {
		name = name[:maxCacheNameRunes]
	}
	return string(name) + ".pdf"
}

// CachePath returns where the candidate's PDF is stored.
func (f *Fetcher) CachePath(c model.ReportCandidate) string {
	return filepath.Join(f.opts.CacheDir, CacheFileName(c.Title))
}

// Fetch returns the cached document for c, downloading it when absent. Any
// failure is reported as ErrUnavailable; transport details are only logged.
func (f *Fetcher) Fetch(ctx context.Context, c model.ReportCandidate) (*model.Document, error) {
	dest := f.CachePath(c)
	log := zap.L().With(zap.String("title", c.Title), zap.String("url", c.URL))

	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		log.Debug("fetcher: cache hit", zap.String("path", dest))
		return &model.Document{Path: dest, Size: info.Size(), Source: model.SourceCache}, nil
	}

	if err := os.MkdirAll(f.opts.CacheDir, 0o755); err != nil {
		log.Error("fetcher: create cache dir", zap.Error(err))
		return nil, ErrUnavailable
	}

	for _, s := range f.strategies {
		if !s.Supports(c.URL) {
			continue
		}
		if err := f.wait(ctx, c.URL); err != nil {
			log.Debug("fetcher: rate limit wait", zap.Error(err))
			return nil, ErrUnavailable
		}

		start := time.Now()
		n, err := s.Fetch(ctx, c.URL, dest)
		if err == nil {
			log.Info("fetcher: downloaded",
				zap.String("strategy", string(s.Name())),
				zap.Int64("bytes", n),
				zap.Duration("elapsed", time.Since(start)),
			)
			return &model.Document{Path: dest, Size: n, Source: s.Name()}, nil
		}
		log.Debug("fetcher: strategy failed, trying next",
			zap.String("strategy", string(s.Name())),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}

	log.Warn("fetcher: all strategies failed")
	return nil, ErrUnavailable
}

// wait blocks on the per-host limiter.
func (f *Fetcher) wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	f.mu.Lock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		limit := rate.Inf
		if f.opts.RequestsPerSec > 0 {
			limit = rate.Limit(f.opts.RequestsPerSec)
		}
		lim = rate.NewLimiter(limit, 1)
		f.limiters[u.Host] = lim
	}
	f.mu.Unlock()
	return lim.Wait(ctx)
}
