package discovery

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cda-harvester/internal/browser"
)

// StaticPage is a Page backed by a plain HTTP GET. It cannot run scripts:
// filters are never applied and indirect links cannot be opened.
type StaticPage struct {
	client   *resty.Client
	html     string
	location string
}

// NewStaticPage creates a StaticPage.
func NewStaticPage(userAgent string, timeout time.Duration) *StaticPage {
	client := resty.New().SetTimeout(timeout)
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return &StaticPage{client: client}
}

// Navigate fetches url and keeps its body for Snapshot.
func (p *StaticPage) Navigate(ctx context.Context, url string) error {
	resp, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return eris.Wrapf(err, "static: get %s", url)
	}
	if resp.StatusCode() != http.StatusOK {
		return eris.Errorf("static: get %s: status %d", url, resp.StatusCode())
	}

	p.html = string(resp.Body())
	p.location = url
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		p.location = raw.Request.URL.String()
	}
	return nil
}

// Title returns the document title.
func (p *StaticPage) Title(context.Context) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return "", eris.Wrap(err, "static: parse")
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

// Location returns the URL after redirects.
func (p *StaticPage) Location(context.Context) (string, error) {
	return p.location, nil
}

// CheckFilter always reports the filter as not applied.
func (p *StaticPage) CheckFilter(context.Context, string) (bool, error) {
	return false, nil
}

// Snapshot returns the fetched HTML with anchors stamped in document order.
func (p *StaticPage) Snapshot(context.Context) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return "", eris.Wrap(err, "static: parse")
	}
	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		s.SetAttr(browser.IndexAttr, strconv.Itoa(i))
	})
	html, err := doc.Html()
	if err != nil {
		return "", eris.Wrap(err, "static: render")
	}
	return html, nil
}

// OpenInNewTab is unsupported without a browser.
func (p *StaticPage) OpenInNewTab(context.Context, int, time.Duration, time.Duration) (string, error) {
	return "", eris.New("static: new tabs need a browser")
}

// Close is a no-op.
func (p *StaticPage) Close() error { return nil }
