package discover

import (
	"net/url"
	"regexp"
	"strings"
)

// LinkSet is an insertion-ordered set of absolute product URLs.
type LinkSet struct {
	order []string
	seen  map[string]bool
}

func NewLinkSet() *LinkSet {
	return &LinkSet{seen: map[string]bool{}}
}

// Add reports whether u was new.
func (s *LinkSet) Add(u string) bool {
	if s.seen[u] {
		return false
	}
	s.seen[u] = true
	s.order = append(s.order, u)
	return true
}

func (s *LinkSet) Len() int { return len(s.order) }

// Links returns the URLs in first-seen order.
func (s *LinkSet) Links() []string {
	return append([]string(nil), s.order...)
}

// Canonicalize resolves href against base and drops the fragment. It returns
// "" for anything that is not an http(s) URL.
func Canonicalize(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String()
}

// Collect resolves hrefs and adds those matching pattern to set. It returns
// how many were new.
func Collect(set *LinkSet, base *url.URL, pattern *regexp.Regexp, hrefs []string) int {
	added := 0
	for _, h := range hrefs {
		u := Canonicalize(base, h)
		if u == "" || (pattern != nil && !pattern.MatchString(u)) {
			continue
		}
		if set.Add(u) {
			added++
		}
	}
	return added
}
