package search

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

// ParseAnchors returns the href of every element matching selector in an
// HTML document or fragment, in document order.
func ParseAnchors(html, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse anchors: %w", err)
	}
	var hrefs []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, strings.TrimSpace(href))
		}
	})
	return hrefs, nil
}

// Canonicalize resolves hrefs against base, unwraps search-engine redirect
// links, keeps http(s) URLs on domain (or a subdomain of it), strips query
// and fragment, and drops repeats of the same host+path. Order is preserved.
func Canonicalize(base string, hrefs []string, domain string) []string {
	baseURL, _ := url.Parse(base)
	seen := make(map[string]struct{}, len(hrefs))
	var links []string

	for _, raw := range hrefs {
		u, err := url.Parse(raw)
		if err != nil || raw == "" {
			continue
		}
		if baseURL != nil {
			u = baseURL.ResolveReference(u)
		}
		u = unwrapRedirect(u)
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if !MatchesDomain(host, domain) {
			continue
		}
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		key := host + path
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		links = append(links, u.Scheme+"://"+host+path)
	}
	return links
}

// unwrapRedirect returns the target of a /url?q= style redirect, or u.
func unwrapRedirect(u *url.URL) *url.URL {
	if u.Path != "/url" {
		return u
	}
	q := u.Query()
	for _, key := range []string{"q", "url"} {
		if target := q.Get(key); target != "" {
			if t, err := url.Parse(target); err == nil && t.IsAbs() {
				return t
			}
		}
	}
	return u
}

// MatchesDomain reports whether host belongs to the registrable domain of
// domain: the same eTLD+1, or domain itself when it is not registrable.
func MatchesDomain(host, domain string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if host == "" || domain == "" {
		return false
	}
	want, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		want = domain
	}
	got, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host == domain
	}
	return got == want
}
