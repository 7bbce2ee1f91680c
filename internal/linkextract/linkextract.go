// Package linkextract yields candidate outbound URLs from a response body,
// dispatching on content-type. Normalization against the fetch-base is the
// crawler's job, not this package's: candidates are returned as found in
// the document, possibly duplicated.
package linkextract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yanrbts/wscan/internal/urlutil"
)

// Extractor holds the compiled JS regexes, built once at construction.
// Construction is the only place extraction can fail; Extract itself
// never returns an error — a malformed document simply yields zero links.
type Extractor struct {
	jsPathRe []*regexp.Regexp
	jsURLRe  *regexp.Regexp
}

// New compiles the extractor's regexes. A compile failure here is an
// initialization-class error; per-document extraction failures never
// surface since Extract degrades to zero links instead of erroring.
func New() (*Extractor, error) {
	patterns := []string{
		`(?:path|redirectTo|templateUrl)\s*:\s*"([^"]*)"`,
		`\[?["'](?:href|src)["']\]?\s*,\s*"([^"]*)"`,
		`router\.(?:navigateByUrl|parseUrl|isActive)\([^)]*["']([^"']*)["'][^)]*\)`,
		`router\.(?:navigate|createUrlTree)\(\s*\[[^\]]*["']([^"']*)["'][^\]]*\][^)]*\)`,
	}

	e := &Extractor{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("linkextract: compile JS path pattern %q: %w", p, err)
		}
		e.jsPathRe = append(e.jsPathRe, re)
	}

	urlRe, err := regexp.Compile(`https?://[^\s"'\\)]+`)
	if err != nil {
		return nil, fmt.Errorf("linkextract: compile JS url pattern: %w", err)
	}
	e.jsURLRe = urlRe

	return e, nil
}

// Extract returns candidate URLs found in body, dispatching on the prefix
// of contentType (case-insensitive), relative to baseURL for the
// registrable-domain filter applied to full-URL JS matches.
func (e *Extractor) Extract(body []byte, contentType, baseURL string) []string {
	ct := strings.ToLower(strings.TrimSpace(contentType))

	switch {
	case strings.HasPrefix(ct, "text/html"):
		return e.extractHTML(body)
	case strings.HasPrefix(ct, "application/javascript"),
		strings.HasPrefix(ct, "application/x-javascript"),
		strings.HasPrefix(ct, "text/javascript"):
		return e.extractJS(body, baseURL)
	case strings.HasPrefix(ct, "application/x-shockwave-flash"):
		return nil
	default:
		return nil
	}
}

func (e *Extractor) extractHTML(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, href)
		}
	})
	return links
}

func (e *Extractor) extractJS(body []byte, baseURL string) []string {
	src := string(body)
	baseDomain := urlutil.RegistrableDomainHeuristic(urlutil.Host(baseURL))

	var links []string

	for _, re := range e.jsPathRe {
		for _, m := range re.FindAllStringSubmatch(src, -1) {
			if len(m) < 2 {
				continue
			}
			path := m[1]
			if strings.Contains(path, "http") {
				continue // rejected: looks like a full URL, not a path
			}
			links = append(links, path)
		}
	}

	for _, full := range e.jsURLRe.FindAllString(src, -1) {
		if baseDomain == "" {
			continue
		}
		if urlutil.RegistrableDomainHeuristic(urlutil.Host(full)) == baseDomain {
			links = append(links, full)
		}
	}

	return links
}
