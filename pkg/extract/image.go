package extract

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ImageTier is the candidate source an image came from, in priority order.
type ImageTier int

const (
	TierNone ImageTier = iota
	TierImg
	TierBackground
	TierMeta
)

func (t ImageTier) String() string {
	switch t {
	case TierImg:
		return "img"
	case TierBackground:
		return "background"
	case TierMeta:
		return "meta"
	default:
		return "none"
	}
}

// rejected candidates score at or below this floor and are never chosen
const penaltyFloor = -500

var (
	deniedImageParts = []string{"logo", "favicon", "sprite", "icon", "placeholder", ".svg", "data:image/svg"}
	imagePathHints   = []string{"/image/upload", "/images/", "/image/", "/media/", "/dam/", "/assets/", "cdn", "/product"}
	relatedPhrases   = []string{
		"you might like", "you may also like", "you might also like", "others you might",
		"related products", "related watches", "related models", "recommended",
		"similar models", "similar watches", "discover more", "explore other",
		"more from", "customers also", "complete the look",
	}
	srcsetDescRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)([wx])$`)
)

// ScoreContext carries page-level facts shared by every candidate.
type ScoreContext struct {
	AnchorY        float64
	RelatedY       float64
	PageHeight     float64
	ViewportWidth  float64
	ViewportHeight float64
}

// Scorer ranks one image candidate. Higher is better; scores at or below
// the penalty floor mean "never pick this".
type Scorer interface {
	Score(c ImageNode, ctx ScoreContext) float64
}

// GeometricScorer favours large, sharp images near the product heading on the
// right half of the viewport, and rejects anything in the lower part of the
// page or under a related-products heading.
type GeometricScorer struct {
	MinSide float64
}

func (g GeometricScorer) Score(c ImageNode, ctx ScoreContext) float64 {
	minSide := g.MinSide
	if minSide == 0 {
		minSide = 80
	}
	if !c.Visible || c.Width < minSide || c.Height < minSide {
		return math.Inf(-1)
	}

	native := c.NaturalWidth * c.NaturalHeight
	if native == 0 {
		native = c.Area()
	}
	score := 2*math.Log10(1+c.Area()) + math.Log10(1+native)

	if ctx.AnchorY >= 0 {
		vh := ctx.ViewportHeight
		if vh <= 0 {
			vh = 900
		}
		dist := math.Abs(c.CenterY() - ctx.AnchorY)
		score += 3 / (1 + dist/vh)
	}
	if ctx.ViewportWidth > 0 && c.CenterX() > ctx.ViewportWidth/2 {
		score++
	}
	if ctx.RelatedY >= 0 && c.Y >= ctx.RelatedY {
		score -= 1000
	}
	if ctx.PageHeight > 0 && c.Y > 0.65*ctx.PageHeight {
		score -= 1000
	}
	return score
}

// ScoredImage is a ranked candidate, kept for debug dumps.
type ScoredImage struct {
	Tier  string  `json:"tier"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
	Box   Box     `json:"box"`
}

// HeroChoice is the selected hero image plus its alternate resolutions.
type HeroChoice struct {
	URL      string
	Variants []string
	Tier     ImageTier
	Ranked   []ScoredImage
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// RelatedPhrases lists the lowercase phrases that title a related products
// section.
func RelatedPhrases() []string {
	return append([]string(nil), relatedPhrases...)
}

func isRelatedHeading(text string) bool {
	t := normalizeText(text)
	for _, p := range relatedPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// scoreContext finds the anchor (first h1, else a heading or price label that
// mentions the reference, else the first price label) and the first related
// products heading below it.
func scoreContext(snap *Snapshot, reference string) ScoreContext {
	ctx := ScoreContext{
		AnchorY:        -1,
		RelatedY:       -1,
		PageHeight:     snap.PageHeight,
		ViewportWidth:  snap.ViewportWidth,
		ViewportHeight: snap.ViewportHeight,
	}
	for _, h := range snap.Headings {
		if h.Visible && strings.EqualFold(h.Tag, "h1") && !isRelatedHeading(h.Text) {
			ctx.AnchorY = h.CenterY()
			break
		}
	}
	if ctx.AnchorY < 0 && reference != "" {
		ref := strings.ToLower(reference)
		for _, h := range append(append([]TextBox{}, snap.Headings...), snap.PriceBoxes...) {
			if h.Visible && strings.Contains(strings.ToLower(h.Text), ref) {
				ctx.AnchorY = h.CenterY()
				break
			}
		}
	}
	if ctx.AnchorY < 0 {
		for _, p := range snap.PriceBoxes {
			if p.Visible && ParsePrice(p.Text).Known() {
				ctx.AnchorY = p.CenterY()
				break
			}
		}
	}
	for _, h := range snap.Headings {
		if !isRelatedHeading(h.Text) {
			continue
		}
		if ctx.AnchorY >= 0 && h.Y <= ctx.AnchorY {
			continue
		}
		if ctx.RelatedY < 0 || h.Y < ctx.RelatedY {
			ctx.RelatedY = h.Y
		}
	}
	return ctx
}

func deniedImage(u string) bool {
	l := strings.ToLower(u)
	if l == "" || strings.HasPrefix(l, "data:") || strings.HasPrefix(l, "blob:") {
		return true
	}
	for _, d := range deniedImageParts {
		if strings.Contains(l, d) {
			return true
		}
	}
	return false
}

// plausibleProductImage accepts meta images that mention a product keyword or
// come from an image serving path.
func plausibleProductImage(u string, keywords []string) bool {
	l := strings.ToLower(u)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(l, k) {
			return true
		}
	}
	for _, h := range imagePathHints {
		if strings.Contains(l, h) {
			return true
		}
	}
	return false
}

type srcsetEntry struct {
	URL   string
	Value float64
}

func parseSrcset(srcset string) []srcsetEntry {
	var out []srcsetEntry
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		e := srcsetEntry{URL: fields[0], Value: 1}
		if len(fields) > 1 {
			if m := srcsetDescRe.FindStringSubmatch(fields[1]); m != nil {
				e.Value, _ = strconv.ParseFloat(m[1], 64)
			}
		}
		out = append(out, e)
	}
	return out
}

// BestFromSrcset returns the largest descriptor in a srcset attribute.
func BestFromSrcset(srcset string) string {
	best := ""
	bestVal := -1.0
	for _, e := range parseSrcset(srcset) {
		if e.Value > bestVal {
			best, bestVal = e.URL, e.Value
		}
	}
	return best
}

func absoluteURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return r.String()
	}
	return base.ResolveReference(r).String()
}

func variantsOf(base *url.URL, n ImageNode) []string {
	var out []string
	seen := map[string]bool{}
	add := func(u string) {
		u = absoluteURL(base, u)
		if u != "" && !seen[u] && !deniedImage(u) {
			seen[u] = true
			out = append(out, u)
		}
	}
	add(BestFromSrcset(n.Srcset))
	for _, e := range parseSrcset(n.Srcset) {
		add(e.URL)
	}
	add(n.Src)
	return out
}

func rankNodes(tier ImageTier, nodes []ImageNode, scorer Scorer, ctx ScoreContext, base *url.URL) ([]ScoredImage, *ImageNode) {
	type scored struct {
		node  ImageNode
		score float64
	}
	var all []scored
	for _, n := range nodes {
		if len(variantsOf(base, n)) == 0 {
			continue
		}
		all = append(all, scored{node: n, score: scorer.Score(n, ctx)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	ranked := make([]ScoredImage, 0, len(all))
	var winner *ImageNode
	for i := range all {
		s := all[i]
		if math.IsInf(s.score, -1) {
			continue
		}
		ranked = append(ranked, ScoredImage{Tier: tier.String(), URL: variantsOf(base, s.node)[0], Score: s.score, Box: s.node.Box})
		if winner == nil && s.score > penaltyFloor {
			winner = &all[i].node
		}
	}
	return ranked, winner
}

func metaImageCandidates(doc *goquery.Document, base *url.URL) []string {
	var raw []string
	for _, name := range []string{"og:image:secure_url", "og:image", "twitter:image", "twitter:image:src"} {
		if v := metaContent(doc, name); v != "" {
			raw = append(raw, v)
		}
	}
	doc.Find(`link[rel="preload"][as="image"]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("imagesrcset"); ok {
			raw = append(raw, BestFromSrcset(v))
		}
		if v, ok := s.Attr("href"); ok {
			raw = append(raw, v)
		}
	})
	doc.Find("img[srcset], source[srcset]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("srcset")
		raw = append(raw, BestFromSrcset(v))
	})

	var out []string
	seen := map[string]bool{}
	for _, r := range raw {
		u := absoluteURL(base, r)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// selectHero walks the tiers in priority order and returns the first tier
// that yields an acceptable image.
// structuredImage is the last resort: the first JSON-LD product image that
// passes the same checks as meta images.
func structuredImage(ld []ldProduct, base *url.URL, keywords []string) string {
	for _, p := range ld {
		for _, img := range p.images() {
			u := absoluteURL(base, img)
			if u == "" || deniedImage(u) || !plausibleProductImage(u, keywords) {
				continue
			}
			return u
		}
	}
	return ""
}

func selectHero(snap *Snapshot, doc *goquery.Document, scorer Scorer, ctx ScoreContext, keywords []string) HeroChoice {
	base, _ := url.Parse(snap.URL)
	var choice HeroChoice

	tiers := []struct {
		tier  ImageTier
		nodes []ImageNode
	}{
		{TierImg, snap.Images},
		{TierBackground, snap.Backgrounds},
	}
	for _, t := range tiers {
		ranked, winner := rankNodes(t.tier, t.nodes, scorer, ctx, base)
		choice.Ranked = append(choice.Ranked, ranked...)
		if winner != nil && choice.Tier == TierNone {
			variants := variantsOf(base, *winner)
			choice.URL = variants[0]
			choice.Variants = variants
			choice.Tier = t.tier
		}
	}
	if choice.Tier != TierNone {
		return choice
	}

	for _, u := range metaImageCandidates(doc, base) {
		if deniedImage(u) || !plausibleProductImage(u, keywords) {
			continue
		}
		choice.Ranked = append(choice.Ranked, ScoredImage{Tier: TierMeta.String(), URL: u})
		if choice.Tier == TierNone {
			choice.URL = u
			choice.Variants = []string{u}
			choice.Tier = TierMeta
		}
	}
	return choice
}
