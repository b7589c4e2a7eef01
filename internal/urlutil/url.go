// Package urlutil parses and canonicalises URLs for the matcher, generalizing
// the host-normalization helpers (hostname/port splitting, IPv6 literal
// handling, label-boundary same-origin checks) this codebase used to carry
// as single-purpose CDN request helpers into the general URL decomposition
// the filter matcher needs.
package urlutil

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Parsed holds the decomposed form of a URL as spec'd by the matcher:
// scheme, host (without port), path, and query, plus whether the host is a
// literal IP address (in which case label-boundary probing is disabled).
type Parsed struct {
	Scheme string
	Host   string // lowercased, port stripped; IPv6 literals keep their brackets
	Path   string
	Query  string
	IsIP   bool
}

// Parse decomposes rawURL. A bare host/path without a scheme is assumed to
// be "http://" prefixed, matching how EasyList patterns are often written
// without a scheme. Returns an error if the URL cannot be parsed or has no
// host, which the caller (Matcher) turns into a match-error + NotMatched.
func Parse(rawURL string) (Parsed, error) {
	candidate := rawURL
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return Parsed{}, err
	}
	if u.Host == "" {
		return Parsed{}, &HostError{URL: rawURL}
	}

	hostname := ExtractHostname(u.Host)
	isIP := net.ParseIP(stripBrackets(hostname)) != nil

	host := strings.ToLower(hostname)
	if !isIP {
		if folded, foldErr := idna.Lookup.ToASCII(host); foldErr == nil {
			host = folded
		}
	}

	path := collapseSlashes(u.Path)
	if path == "" {
		path = "/"
	}

	return Parsed{
		Scheme: strings.ToLower(u.Scheme),
		Host:   host,
		Path:   path,
		Query:  u.RawQuery,
		IsIP:   isIP,
	}, nil
}

// HostError is returned by Parse when a URL has no extractable host.
type HostError struct{ URL string }

func (e *HostError) Error() string { return "urlutil: no host in url: " + e.URL }

// ExtractHostname strips a trailing :port from host, correctly handling
// bracketed IPv6 literals ("[::1]:8080" -> "[::1]") and bare IPv6 literals
// (no port to strip, since they contain multiple colons).
func ExtractHostname(host string) string {
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			return host[:idx+1]
		}
		return host
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 && strings.Count(host, ":") == 1 {
		return host[:idx]
	}
	return host
}

func stripBrackets(host string) string {
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

// IsSubdomainOrEqual reports whether req is host or a subdomain of host,
// i.e. whether host is one of req's label-boundary suffixes.
func IsSubdomainOrEqual(host, req string) bool {
	if host == "" || req == "" {
		return false
	}
	if host == req {
		return true
	}
	return strings.HasSuffix(req, "."+host)
}

// collapseSlashes collapses runs of consecutive slashes, per this design
// ("canonicalise... do not normalise the path beyond collapsing consecutive
// slashes").
func collapseSlashes(path string) string {
	if !strings.Contains(path, "//") {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
