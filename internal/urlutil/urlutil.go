// Package urlutil implements the crawler's URL parsing, resolution, and
// registrable-domain heuristics. It never panics: malformed input yields a
// zero value, never a crash.
package urlutil

import (
	"net/url"
	"strings"
)

// Parsed is the scheme/host/port/path/query/fragment tuple a URL breaks
// down into.
type Parsed struct {
	Scheme   string
	Host     string
	Port     string
	Path     string
	Query    string
	Fragment string
}

// defaultScheme is filled in when a bare "host/path" string is parsed.
const defaultScheme = "http"

// Parse parses rawURL, defaulting the scheme to http when absent. It never
// returns an error; a malformed rawURL yields a zero Parsed.
func Parse(rawURL string) (Parsed, bool) {
	if rawURL == "" {
		return Parsed{}, false
	}

	candidate := rawURL
	if !strings.Contains(candidate, "://") {
		if strings.HasPrefix(candidate, "//") {
			candidate = defaultScheme + ":" + candidate
		} else {
			candidate = defaultScheme + "://" + candidate
		}
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return Parsed{}, false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return Parsed{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     u.Hostname(),
		Port:     u.Port(),
		Path:     path,
		Query:    u.RawQuery,
		Fragment: u.Fragment,
	}, true
}

// CanonicalURL strips the fragment and returns the normalized string form
// used as a frontier/visited-set key.
func CanonicalURL(rawURL string) (string, bool) {
	u, err := parsePermissive(rawURL)
	if err != nil {
		return "", false
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), true
}

// Resolve resolves relative against base:
//   - a scheme-qualified or "//"-prefixed relative is returned as-is (after
//     scheme fill);
//   - a "/"-prefixed relative replaces base's path entirely;
//   - otherwise relative is resolved against the directory portion of
//     base's path.
//
// Parsing is permissive: spaces and unsupported schemes are tolerated
// rather than rejected.
func Resolve(base, relative string) (string, bool) {
	if relative == "" {
		return "", false
	}

	baseURL, err := parsePermissive(base)
	if err != nil {
		return "", false
	}

	if strings.Contains(relative, "://") {
		return normalizeAbsolute(relative)
	}
	if strings.HasPrefix(relative, "//") {
		return normalizeAbsolute(baseURL.Scheme + ":" + relative)
	}

	relURL, err := parsePermissive(relative)
	if err != nil {
		return "", false
	}

	resolved := baseURL.ResolveReference(relURL)
	return resolved.String(), true
}

// parsePermissive URL-encodes characters net/url otherwise rejects (raw
// spaces in particular) before delegating to url.Parse, mirroring libcurl's
// CURLU_URLENCODE-style permissive parsing.
func parsePermissive(raw string) (*url.URL, error) {
	escaped := strings.ReplaceAll(raw, " ", "%20")
	return url.Parse(escaped)
}

func normalizeAbsolute(raw string) (string, bool) {
	u, err := parsePermissive(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), true
}

// Host returns the (possibly empty) host component of rawURL.
func Host(rawURL string) string {
	p, ok := Parse(rawURL)
	if !ok {
		return ""
	}
	return p.Host
}

// RegistrableDomainHeuristic approximates the "public + one label" domain
// boundary used only for same-site link filtering in the JS extractor.
//
// This is a documented approximation, not a Public Suffix List lookup: it
// returns the IP literal verbatim for IP hosts, and otherwise the last two
// dot-separated labels of the host (so "news.bbc.co.uk" incorrectly yields
// "co.uk" rather than "bbc.co.uk"). Multi-label public suffixes are a
// known miss; a real fix needs a suffix list, not more label-counting.
func RegistrableDomainHeuristic(host string) string {
	if host == "" {
		return ""
	}
	if isIPLiteral(host) {
		return host
	}

	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

func isIPLiteral(host string) bool {
	// A dotted-quad or any host containing ':' (IPv6 literal) is treated as
	// an IP literal; net/url already normalizes bracketed IPv6 literals
	// without brackets via Hostname(), so ':' is the reliable signal there.
	if strings.Contains(host, ":") {
		return true
	}
	labels := strings.Split(host, ".")
	if len(labels) != 4 {
		return false
	}
	for _, l := range labels {
		if l == "" {
			return false
		}
		for _, c := range l {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
