package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"watch-harvest/pkg/config"
	"watch-harvest/pkg/models"

	"github.com/PuerkitoBio/goquery"
)

// ReferenceSource records which rule produced a reference.
type ReferenceSource string

const (
	RefFromURL       ReferenceSource = "url"
	RefFromCanonical ReferenceSource = "canonical"
	RefFromBody      ReferenceSource = "body"
	RefFromTitle     ReferenceSource = "title"
)

// Confirmed reports whether the reference came from a manufacturer pattern
// rather than the title slug fallback.
func (s ReferenceSource) Confirmed() bool {
	return s != "" && s != RefFromTitle
}

var slugInvalidRe = regexp.MustCompile(`[^a-z0-9]+`)

func firstMatch(re *regexp.Regexp, s string) string {
	if re == nil || s == "" {
		return ""
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return m[0]
}

// DeriveReference guesses a reference from a product URL without visiting it.
// It uses the site's URL pattern when configured, else the reference pattern
// against the upper-cased path. An empty result means "not derivable".
func DeriveReference(site *config.SiteConfig, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if re := site.URLReferenceRe(); re != nil {
		return models.NormalizeReference(site.RewriteURLReference(firstMatch(re, u.Path)))
	}
	return models.NormalizeReference(firstMatch(site.ReferenceRe(), strings.ToUpper(u.Path)))
}

// bodyReference returns the first pattern match in visible text that is not
// a bare number, which filters out prices and years.
func bodyReference(re *regexp.Regexp, text string) string {
	if re == nil {
		return ""
	}
	for _, m := range re.FindAllString(text, 50) {
		if strings.IndexFunc(m, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
			return m
		}
	}
	return ""
}

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugInvalidRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func canonicalURLs(doc *goquery.Document) []string {
	var out []string
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && href != "" {
		out = append(out, href)
	}
	if og := metaContent(doc, "og:url"); og != "" {
		out = append(out, og)
	}
	return out
}

func pageTitle(doc *goquery.Document, snap *Snapshot) string {
	if t := metaContent(doc, "og:title"); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(snap.Title)
}

// resolveReference applies, in order: the source URL, canonical and og:url
// links, visible body text, and finally the slugified title. Other distinct
// references seen along the way are returned as aliases.
func resolveReference(site *config.SiteConfig, doc *goquery.Document, snap *Snapshot, sourceURL string, ld []ldProduct) (string, ReferenceSource, []string) {
	var (
		ref     string
		source  ReferenceSource
		aliases []string
	)
	consider := func(candidate string, src ReferenceSource) {
		candidate = models.NormalizeReference(candidate)
		if candidate == "" {
			return
		}
		if ref == "" {
			ref, source = candidate, src
			return
		}
		if candidate != ref {
			aliases = append(aliases, candidate)
		}
	}

	consider(DeriveReference(site, sourceURL), RefFromURL)
	for _, u := range canonicalURLs(doc) {
		consider(DeriveReference(site, u), RefFromCanonical)
	}

	if ref == "" {
		text := snap.BodyText
		if strings.TrimSpace(text) == "" {
			text = doc.Find("body").Text()
		}
		consider(bodyReference(site.ReferenceRe(), text), RefFromBody)
	}

	for _, p := range ld {
		for _, code := range []string{p.Sku, p.Mpn} {
			if code != "" && site.ReferenceRe().MatchString(strings.ToUpper(code)) {
				consider(code, RefFromBody)
			}
		}
	}

	if ref == "" {
		consider(Slugify(pageTitle(doc, snap)), RefFromTitle)
	}
	return ref, source, models.UnionAliases(ref, aliases)
}
