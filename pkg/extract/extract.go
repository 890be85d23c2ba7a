package extract

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"watch-harvest/pkg/config"
	"watch-harvest/pkg/models"

	"github.com/PuerkitoBio/goquery"
)

// Report explains how each field was resolved. It feeds debug dumps and the
// resume ledger.
type Report struct {
	ReferenceSource ReferenceSource `json:"referenceSource"`
	PriceSource     string          `json:"priceSource"`
	HeroTier        string          `json:"heroTier"`
	HeroVariants    []string        `json:"heroVariants"`
	MovementImages  []string        `json:"movementImages"`
	RankedImages    []ScoredImage   `json:"rankedImages"`
	Blocks          []string        `json:"blocks"`
	AnchorY         float64         `json:"anchorY"`
	RelatedY        float64         `json:"relatedY"`
}

// Extractor turns rendered product pages into records for one site.
type Extractor struct {
	Site   *config.SiteConfig
	Scorer Scorer
	Now    func() time.Time
}

func NewExtractor(site *config.SiteConfig) *Extractor {
	return &Extractor{Site: site, Scorer: GeometricScorer{}, Now: time.Now}
}

// Extract never fails for a missing field; every field degrades on its own.
// It returns an ExtractionError only when no reference can be resolved.
func (e *Extractor) Extract(snap *Snapshot, sourceURL string) (models.ProductRecord, *Report, error) {
	report := &Report{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return models.ProductRecord{}, report, &models.ExtractionError{URL: sourceURL, Err: fmt.Errorf("parse html: %w", err)}
	}
	if snap.URL == "" {
		snap.URL = sourceURL
	}

	ld := structuredProducts(doc)
	ref, refSource, aliases := resolveReference(e.Site, doc, snap, sourceURL, ld)
	report.ReferenceSource = refSource
	if ref == "" {
		return models.ProductRecord{}, report, &models.ExtractionError{URL: sourceURL, Err: models.ErrNoReference}
	}

	rec := models.ProductRecord{
		Reference:   ref,
		Brand:       e.Site.Brand,
		Collection:  e.collectionOf(sourceURL),
		Description: metaContent(doc, "description", "og:description"),
		SourceURL:   sourceURL,
		Aliases:     aliases,
		LastUpdated: e.now(),
	}
	for _, p := range ld {
		if b := p.brandName(); b != "" && rec.Brand == "" {
			rec.Brand = b
		}
		if d := strings.TrimSpace(p.Description); d != "" && d != rec.Description && rec.Details == "" {
			rec.Details = d
		}
		if rec.Collection == "" && p.Category != "" {
			rec.Collection = p.Category
		}
	}

	ctx := scoreContext(snap, ref)
	report.AnchorY, report.RelatedY = ctx.AnchorY, ctx.RelatedY

	rec.Price, report.PriceSource = e.resolvePrice(doc, ld, snap, ctx)

	blocks := findBlocks(doc)
	for name := range blocks {
		report.Blocks = append(report.Blocks, name)
	}
	sort.Strings(report.Blocks)
	rec.Case = blocks[blockCase].Text()
	rec.Dial = blocks[blockDial].Text()
	rec.Bracelet = blocks[blockBracelet].Text()
	rec.Movement = parseMovement(blocks[blockMovement])
	if mb := blocks[blockMovement]; mb != nil {
		base, _ := url.Parse(sourceURL)
		for _, img := range mb.Images {
			if u := absoluteURL(base, img); u != "" && !deniedImage(u) {
				report.MovementImages = append(report.MovementImages, u)
			}
		}
	}

	keywords := e.imageKeywords(rec)
	hero := selectHero(snap, doc, e.scorer(), ctx, keywords)
	if hero.URL == "" {
		base, _ := url.Parse(sourceURL)
		if img := structuredImage(ld, base, keywords); img != "" {
			hero.URL, hero.Variants, hero.Tier = img, []string{img}, TierMeta
		}
	}
	rec.ImageURL = hero.URL
	report.HeroTier = hero.Tier.String()
	report.HeroVariants = hero.Variants
	report.RankedImages = hero.Ranked

	return rec, report, nil
}

func (e *Extractor) resolvePrice(doc *goquery.Document, ld []ldProduct, snap *Snapshot, ctx ScoreContext) (models.Price, string) {
	if p, ok := priceFromMetaTags(doc); ok {
		return p, string(priceFromMeta)
	}
	if p, ok := priceFromStructuredData(ld); ok {
		return p, string(priceFromJSONLD)
	}
	if p, ok := priceFromBoxes(snap.PriceBoxes, ctx.RelatedY); ok {
		return p, string(priceFromText)
	}
	return models.UnknownPrice(), string(priceNotResolved)
}

func (e *Extractor) scorer() Scorer {
	if e.Scorer == nil {
		return GeometricScorer{}
	}
	return e.Scorer
}

func (e *Extractor) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Extractor) imageKeywords(rec models.ProductRecord) []string {
	kw := append([]string{}, e.Site.ImageKeywords...)
	kw = append(kw, strings.Fields(strings.ToLower(rec.Brand))...)
	if rec.Collection != "" {
		kw = append(kw, Slugify(rec.Collection))
	}
	kw = append(kw, strings.ToLower(rec.Reference), Slugify(rec.Reference))
	return kw
}

// collectionOf returns the configured collection named by a URL path segment,
// title-cased ("royal-oak" -> "Royal Oak").
func (e *Extractor) collectionOf(rawURL string) string {
	if fam := FamilyOf(e.Site, rawURL); fam != "" {
		words := strings.Fields(strings.ReplaceAll(fam, "-", " "))
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		return strings.Join(words, " ")
	}
	return ""
}

// FamilyOf returns the first URL path segment that names one of the site's
// collections, or "" when none does.
func FamilyOf(site *config.SiteConfig, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, seg := range strings.Split(u.Path, "/") {
		seg = strings.ToLower(strings.TrimSuffix(seg, ".html"))
		for _, c := range site.Collections {
			if seg == strings.ToLower(c) {
				return seg
			}
		}
	}
	return ""
}
