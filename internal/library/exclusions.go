package library

import (
	"net/url"
	"regexp"
	"strings"
)

// ExtractDomain pulls the lowercased hostname from a URL string.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Exclusions decides which visits are never captured.
type Exclusions struct {
	domains []string
	regexes []*regexp.Regexp
}

// NewExclusions compiles the denylist. Invalid patterns are skipped and
// returned so the caller can report them.
func NewExclusions(domains, patterns []string) (*Exclusions, []string) {
	e := &Exclusions{}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			e.domains = append(e.domains, d)
		}
	}
	var invalid []string
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			invalid = append(invalid, p)
			continue
		}
		e.regexes = append(e.regexes, re)
	}
	return e, invalid
}

// Excluded reports whether a visit to rawURL must not be recorded. A
// denylisted domain also excludes its subdomains.
func (e *Exclusions) Excluded(rawURL string) bool {
	if e == nil {
		return false
	}
	domain := ExtractDomain(rawURL)
	if domain == "" {
		return false
	}
	for _, d := range e.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	for _, re := range e.regexes {
		if re.MatchString(domain) {
			return true
		}
	}
	return false
}
