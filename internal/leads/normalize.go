// Package leads turns raw search hits into normalized, enriched leads and
// persists them without duplicates.
package leads

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-']+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether a normalized email has a deliverable shape.
func ValidEmail(email string) bool {
	if len(email) > 254 || strings.Contains(email, "..") {
		return false
	}
	return emailPattern.MatchString(email)
}

// DedupKey is the normalized email, or "ext:<externalID>" when the email
// is unknown. It returns "" when neither is available.
func DedupKey(email, externalID string) string {
	if e := NormalizeEmail(email); e != "" {
		return e
	}
	if id := strings.TrimSpace(externalID); id != "" {
		return "ext:" + id
	}
	return ""
}

// NormalizeDomain reduces a domain or URL to a bare lowercase hostname
// without scheme, port, path or a leading "www.".
func NormalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(u.Hostname(), ".")
	return strings.TrimPrefix(host, "www.")
}

// NormalizeURL prepends https:// to scheme-less input and discards values
// that do not parse to a URL with a host.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// NormalizeName collapses whitespace and title-cases names entered in all
// lower or all upper case. Mixed-case input ("McDonald") is left alone.
func NormalizeName(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return ""
	}
	if s == strings.ToLower(s) || s == strings.ToUpper(s) {
		return cases.Title(language.English).String(s)
	}
	return s
}

// DomainFilter applies a campaign's include and exclude domain lists.
type DomainFilter struct {
	include []string
	exclude []string
}

// NewDomainFilter builds a filter from raw domain lists.
func NewDomainFilter(include, exclude []string) DomainFilter {
	return DomainFilter{include: normalizeDomains(include), exclude: normalizeDomains(exclude)}
}

// Allow reports whether domain passes the filter. With an include list, a
// lead without a domain never passes.
func (f DomainFilter) Allow(domain string) bool {
	d := NormalizeDomain(domain)
	for _, ex := range f.exclude {
		if matchDomain(d, ex) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, in := range f.include {
		if matchDomain(d, in) {
			return true
		}
	}
	return false
}

// Empty reports whether the filter has no rules.
func (f DomainFilter) Empty() bool {
	return len(f.include) == 0 && len(f.exclude) == 0
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if n := NormalizeDomain(d); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// matchDomain matches d against rule exactly or as a subdomain.
func matchDomain(d, rule string) bool {
	if d == "" {
		return false
	}
	return d == rule || strings.HasSuffix(d, "."+rule)
}
