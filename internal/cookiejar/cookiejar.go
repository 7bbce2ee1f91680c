// Package cookiejar implements a per-origin, per-path cookie store with
// RFC-6265-aligned Set-Cookie parsing, domain/path matching, expiry, and
// Secure enforcement. It is a from-scratch component: net/http/cookiejar's
// PublicSuffixList-driven domain model can't express the bespoke
// per-(domain,path) ordered-bucket contract this component needs (see
// DESIGN.md).
package cookiejar

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Cookie is one stored cookie. Domain never carries a leading dot;
// ExpiresEpochSeconds of 0 means a session cookie.
type Cookie struct {
	Name                string
	Value               string
	Domain              string
	Path                string
	ExpiresEpochSeconds int64
	Secure              bool
	HTTPOnly            bool
}

// Jar is a domain -> path -> ordered cookie list store. Domain keys compare
// case-insensitively (stored lower-cased); path keys compare
// case-sensitively. All methods are safe to call from a single reactor
// thread; the mutex exists only to guard against accidental concurrent use
// from embedding code, not because the jar itself needs internal locking
// under the reactor's single-callback-at-a-time contract.
type Jar struct {
	mu      sync.Mutex
	domains map[string]map[string][]*Cookie
}

// New returns an empty Jar.
func New() *Jar {
	return &Jar{domains: make(map[string]map[string][]*Cookie)}
}

// nowFunc exists so tests can freeze time; production code leaves it at
// time.Now.
var nowFunc = time.Now

// Accept parses a single Set-Cookie header value received from requestHost
// over requestPath, validates its domain and Secure attribute against the
// request origin, and stores it. Parse failures and domain/Secure
// rejections are reported via the returned error (wrapping
// werr.ErrCookieParse at the call site is the caller's job); either way
// the jar is left unmodified on rejection.
func (j *Jar) Accept(setCookieHeader, requestHost, requestPath string, isHTTPS bool) error {
	c, err := parseSetCookie(setCookieHeader, requestHost, requestPath)
	if err != nil {
		return err
	}

	if !domainMatches(requestHost, c.Domain) {
		return fmt.Errorf("cookie domain %q does not match request host %q", c.Domain, requestHost)
	}
	if c.Secure && !isHTTPS {
		return fmt.Errorf("refusing to store Secure cookie %q received over plain HTTP", c.Name)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.upsert(c)
	return nil
}

// upsert inserts c, replacing any existing cookie in the same (domain,
// path) bucket whose name matches case-insensitively; otherwise it is
// appended at the tail, preserving insertion order.
func (j *Jar) upsert(c *Cookie) {
	domainKey := strings.ToLower(c.Domain)
	byPath, ok := j.domains[domainKey]
	if !ok {
		byPath = make(map[string][]*Cookie)
		j.domains[domainKey] = byPath
	}

	bucket := byPath[c.Path]
	for i, existing := range bucket {
		if strings.EqualFold(existing.Name, c.Name) {
			bucket[i] = c
			byPath[c.Path] = bucket
			return
		}
	}
	byPath[c.Path] = append(bucket, c)
}

// Header assembles the Cookie: header value to send for a request to host,
// path, isHTTPS. It returns ("", false) when there is nothing to send.
// Expired cookies encountered along the way are physically purged from the
// jar as a side effect; this mutation-during-read is safe because callers
// serialize all jar access onto one goroutine.
func (j *Jar) Header(host, path string, isHTTPS bool) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := nowFunc().Unix()
	var parts []string

	for domainKey, byPath := range j.domains {
		if !domainMatches(host, domainKey) {
			continue
		}
		for cookiePath, bucket := range byPath {
			if !pathMatches(path, cookiePath) {
				continue
			}

			kept := bucket[:0:0]
			for _, c := range bucket {
				if c.ExpiresEpochSeconds > 0 && c.ExpiresEpochSeconds < now {
					continue // purge: drop from kept, don't re-append
				}
				kept = append(kept, c)
				if c.Secure && !isHTTPS {
					continue // skip emission only, cookie stays stored
				}
				parts = append(parts, c.Name+"="+c.Value)
			}
			if len(kept) == 0 {
				delete(byPath, cookiePath)
			} else {
				byPath[cookiePath] = kept
			}
		}
		if len(byPath) == 0 {
			delete(j.domains, domainKey)
		}
	}

	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "; "), true
}

// domainMatches reports whether requestHost domain-matches cookieDomain:
// exact match, or requestHost ends with "."+cookieDomain.
func domainMatches(requestHost, cookieDomain string) bool {
	if strings.EqualFold(requestHost, cookieDomain) {
		return true
	}
	suffix := "." + cookieDomain
	if len(requestHost) <= len(suffix) {
		return false
	}
	return strings.EqualFold(requestHost[len(requestHost)-len(suffix):], suffix)
}

// pathMatches reports whether cookiePath applies to requestPath: exact
// match, a "/"-bounded prefix, or cookiePath "/".
func pathMatches(requestPath, cookiePath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return len(requestPath) > len(cookiePath) && requestPath[len(cookiePath)] == '/'
}

// parseSetCookie parses one Set-Cookie header value. defaultDomain and
// defaultPath seed the cookie before attribute parsing; defaultDomain wins
// only when no Domain attribute is present (handled by the caller's Accept
// by passing requestHost).
func parseSetCookie(header, defaultDomain, defaultPath string) (*Cookie, error) {
	segments := strings.Split(header, ";")
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty Set-Cookie header")
	}

	nameValue := segments[0]
	eq := strings.IndexByte(nameValue, '=')
	if eq < 0 {
		return nil, fmt.Errorf("Set-Cookie missing '=' in name-value pair: %q", nameValue)
	}

	c := &Cookie{
		Name:   strings.TrimSpace(nameValue[:eq]),
		Value:  strings.TrimSpace(nameValue[eq+1:]),
		Domain: defaultDomain,
		Path:   defaultPath,
	}

	maxAgeSeen := false

	for _, raw := range segments[1:] {
		attr := strings.TrimSpace(raw)
		if attr == "" {
			continue
		}

		var name, value string
		if i := strings.IndexByte(attr, '='); i >= 0 {
			name = strings.TrimSpace(attr[:i])
			value = strings.TrimSpace(attr[i+1:])
		} else {
			name = attr
		}

		switch strings.ToLower(name) {
		case "domain":
			if value != "" {
				c.Domain = strings.TrimPrefix(value, ".")
			}
		case "path":
			if value != "" {
				c.Path = value
			}
		case "expires":
			if !maxAgeSeen {
				if t, ok := parseHTTPDate(value); ok {
					c.ExpiresEpochSeconds = t
				}
			}
		case "max-age":
			n, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				maxAgeSeen = true
				if n >= 0 {
					c.ExpiresEpochSeconds = nowFunc().Unix() + n
				} else {
					c.ExpiresEpochSeconds = 1
				}
			}
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		}
	}

	return c, nil
}

// httpDateLayouts covers RFC 1123, RFC 850, and asctime, all interpreted
// as UTC.
var httpDateLayouts = []string{
	time.RFC1123,
	"Mon, 02-Jan-2006 15:04:05 MST", // RFC 1123 variant seen from real servers
	time.RFC850,
	time.ANSIC, // asctime form
}

func parseHTTPDate(value string) (int64, bool) {
	for _, layout := range httpDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Unix(), true
		}
	}
	return 0, false
}
