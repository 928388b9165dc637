package browser

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/rotisserie/eris"
)

// Export is the transferable state of a browser session.
type Export struct {
	Cookies   []*http.Cookie
	UserAgent string
}

// CookiesFromCDP converts DevTools cookies to net/http cookies.
func CookiesFromCDP(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		// Session cookies report -1.
		if !c.Session && c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

// Jar returns a cookie jar holding the exported cookies that apply to the
// target's host. Cookies for other domains are dropped.
func (e *Export) Jar(target *url.URL) (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "browser: create cookie jar")
	}
	var scoped []*http.Cookie
	for _, c := range e.Cookies {
		if domainMatches(target.Hostname(), c.Domain) {
			scoped = append(scoped, c)
		}
	}
	jar.SetCookies(target, scoped)
	return jar, nil
}

func domainMatches(host, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	host = strings.ToLower(host)
	if domain == "" || domain == host {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}
