package browser

import (
	"net/url"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookiesFromCDP(t *testing.T) {
	in := []*network.Cookie{
		{Name: "sid", Value: "abc", Domain: ".cda-amc.ca", Path: "/", HTTPOnly: true, Secure: true, Session: true, Expires: -1},
		nil,
		{Name: "pref", Value: "en", Domain: "www.cda-amc.ca", Path: "/", Expires: 1893456000},
	}

	out := CookiesFromCDP(in)
	require.Len(t, out, 2)

	assert.Equal(t, "sid", out[0].Name)
	assert.Equal(t, "abc", out[0].Value)
	assert.True(t, out[0].HttpOnly)
	assert.True(t, out[0].Secure)
	assert.True(t, out[0].Expires.IsZero())

	assert.Equal(t, "pref", out[1].Name)
	assert.Equal(t, time.Unix(1893456000, 0), out[1].Expires)
}

func TestExport_JarScopesToHost(t *testing.T) {
	exp := &Export{Cookies: CookiesFromCDP([]*network.Cookie{
		{Name: "sid", Value: "abc", Domain: ".cda-amc.ca", Path: "/"},
		{Name: "tracker", Value: "x", Domain: ".example.com", Path: "/"},
	})}

	target, err := url.Parse("https://www.cda-amc.ca/sites/default/files/report.pdf")
	require.NoError(t, err)

	jar, err := exp.Jar(target)
	require.NoError(t, err)

	got := jar.Cookies(target)
	require.Len(t, got, 1)
	assert.Equal(t, "sid", got[0].Name)
	assert.Equal(t, "abc", got[0].Value)
}

func TestDomainMatches(t *testing.T) {
	tests := []struct {
		host, domain string
		want         bool
	}{
		{"www.cda-amc.ca", ".cda-amc.ca", true},
		{"www.cda-amc.ca", "www.cda-amc.ca", true},
		{"www.cda-amc.ca", "", true},
		{"cda-amc.ca", ".cda-amc.ca", true},
		{"evilcda-amc.ca", "cda-amc.ca", false},
		{"www.cda-amc.ca", "example.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domainMatches(tt.host, tt.domain), "%s vs %s", tt.host, tt.domain)
	}
}
