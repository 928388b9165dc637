// Package discovery finds recommendation report links on the rendered
// find-reports listing and resolves links that open in a new tab.
package discovery

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cda-harvester/internal/browser"
	"github.com/sells-group/cda-harvester/internal/model"
)

const (
	newTabMarker    = "opens in new tab"
	maxContextRunes = 200
	debugAnchors    = 10
)

var newTabMarkerRe = regexp.MustCompile(`(?i)opens in new tab`)

// Page is the browser surface discovery drives.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	CheckFilter(ctx context.Context, label string) (bool, error)
	Snapshot(ctx context.Context) (string, error)
	OpenInNewTab(ctx context.Context, anchorIndex int, wait, settle time.Duration) (string, error)
}

// Options configures a Resolver.
type Options struct {
	ListingURL  string
	FilterLabel string
	Category    string
	RenderWait  time.Duration
	FilterWait  time.Duration
	NewTabWait  time.Duration
	TabSettle   time.Duration
}

// Resolver turns the listing page into report candidates.
type Resolver struct {
	opts Options
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) *Resolver {
	if opts.Category == "" {
		opts.Category = model.CategoryReimbursementReview
	}
	return &Resolver{opts: opts}
}

// Discover loads the listing page and returns the accepted candidates in
// page order. Only a failure to load or read the page is returned as an
// error; per-anchor problems degrade to the anchor's own href.
func (r *Resolver) Discover(ctx context.Context, page Page) ([]model.ReportCandidate, error) {
	log := zap.L().With(zap.String("listing", r.opts.ListingURL))

	log.Info("discovery: navigating to listing")
	if err := page.Navigate(ctx, r.opts.ListingURL); err != nil {
		return nil, eris.Wrap(err, "discovery: load listing")
	}
	if err := sleep(ctx, r.opts.RenderWait); err != nil {
		return nil, err
	}

	if title, err := page.Title(ctx); err == nil {
		log.Info("discovery: page loaded", zap.String("title", title))
	}

	if r.opts.FilterLabel != "" {
		clicked, err := page.CheckFilter(ctx, r.opts.FilterLabel)
		switch {
		case err != nil:
			log.Info("discovery: filter not applied, filtering manually", zap.Error(err))
		case clicked:
			log.Info("discovery: activated category filter", zap.String("label", r.opts.FilterLabel))
		}
		if err := sleep(ctx, r.opts.FilterWait); err != nil {
			return nil, err
		}
	}

	html, err := page.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: snapshot listing")
	}
	base, err := page.Location(ctx)
	if err != nil || base == "" {
		base = r.opts.ListingURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: parse page url %s", base)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "discovery: parse listing html")
	}

	anchors := doc.Find("a")
	log.Info("discovery: anchors found", zap.Int("count", anchors.Length()))

	var out []model.ReportCandidate
	var direct int
	seen := make(map[[2]string]bool)
	anchors.EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if ctx.Err() != nil {
			return false
		}
		c, ok := r.candidate(ctx, page, baseURL, i, sel)
		if !ok {
			return true
		}
		key := [2]string{c.Title, c.URL}
		if seen[key] {
			return true
		}
		seen[key] = true
		if isPDFURL(c.URL) {
			direct++
		}
		log.Info("discovery: found report", zap.String("title", c.Title), zap.String("url", c.URL))
		out = append(out, c)
		return true
	})
	if err := ctx.Err(); err != nil {
		return out, eris.Wrap(err, "discovery: cancelled")
	}

	log.Info("discovery: complete",
		zap.Int("reports", len(out)),
		zap.Int("direct_pdf_links", direct),
	)
	return out, nil
}

func (r *Resolver) candidate(ctx context.Context, page Page, base *url.URL, i int, sel *goquery.Selection) (model.ReportCandidate, bool) {
	href, _ := sel.Attr("href")
	href = strings.TrimSpace(href)
	text := collapse(sel.Text())

	if i < debugAnchors {
		zap.L().Debug("discovery: anchor", zap.Int("n", i+1), zap.String("text", text), zap.String("href", href))
	}
	if href == "" || text == "" {
		return model.ReportCandidate{}, false
	}

	link := resolve(base, href)
	if !isCandidate(text, link) {
		return model.ReportCandidate{}, false
	}

	blockText := anchorContext(sel, text)
	if !isRelevant(blockText, text) {
		return model.ReportCandidate{}, false
	}

	if strings.Contains(strings.ToLower(text), newTabMarker) && !isPDFURL(link) {
		link = r.resolveNewTab(ctx, page, sel, link, text)
	}

	return model.ReportCandidate{
		Title:    strings.TrimSpace(newTabMarkerRe.ReplaceAllString(text, "")),
		URL:      link,
		Category: r.opts.Category,
		Context:  truncate(blockText, maxContextRunes),
	}, true
}

// resolveNewTab follows an anchor that opens a viewer tab. Any failure keeps
// the original link.
func (r *Resolver) resolveNewTab(ctx context.Context, page Page, sel *goquery.Selection, link, text string) string {
	idx, err := strconv.Atoi(sel.AttrOr(browser.IndexAttr, ""))
	if err != nil {
		zap.L().Warn("discovery: anchor not stamped, keeping link", zap.String("text", truncate(text, 50)))
		return link
	}

	loc, err := page.OpenInNewTab(ctx, idx, r.opts.NewTabWait, r.opts.TabSettle)
	if err != nil {
		zap.L().Warn("discovery: could not resolve new-tab link",
			zap.String("text", truncate(text, 50)),
			zap.Error(err),
		)
		return link
	}
	if isPDFURL(loc) || strings.Contains(strings.ToLower(loc), "pdf") {
		return loc
	}
	return link
}

// isCandidate classifies an anchor by its text and resolved URL.
func isCandidate(text, link string) bool {
	lower := strings.ToLower(text)
	if isPDFURL(link) {
		return true
	}
	if strings.Contains(lower, newTabMarker) &&
		(strings.Contains(lower, "recommendation") || strings.Contains(lower, "reason")) {
		return true
	}
	return strings.Contains(lower, "recommendation") &&
		(strings.Contains(lower, "reason") || strings.Contains(lower, "final"))
}

// isRelevant keeps reimbursement review material.
func isRelevant(blockText, text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(blockText, "reimbursement") ||
		strings.Contains(lower, "recommendation") ||
		strings.Contains(lower, "final")
}

// anchorContext is the full lowercased text of the anchor's
// great-grandparent, falling back to the anchor text.
func anchorContext(sel *goquery.Selection, text string) string {
	block := sel.Parent().Parent().Parent()
	out := text
	if block.Length() > 0 {
		if t := collapse(block.Text()); t != "" {
			out = t
		}
	}
	return strings.ToLower(out)
}

func isPDFURL(u string) bool {
	return strings.HasSuffix(strings.ToLower(u), ".pdf")
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "discovery: wait")
	case <-t.C:
		return nil
	}
}
