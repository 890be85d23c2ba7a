package extract

import (
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visibleImage(src string, x, y, w, h float64) ImageNode {
	return ImageNode{
		Box:           Box{X: x, Y: y, Width: w, Height: h},
		Src:           src,
		NaturalWidth:  w * 2,
		NaturalHeight: h * 2,
		Visible:       true,
	}
}

func TestSelectHero_IgnoresRelatedProducts(t *testing.T) {
	snap := &Snapshot{
		URL:            productURL,
		PageHeight:     4000,
		ViewportWidth:  1440,
		ViewportHeight: 900,
		Headings: []TextBox{
			{Tag: "h1", Text: "Royal Oak Selfwinding", Box: Box{X: 760, Y: 150, Width: 500, Height: 40}, Visible: true},
			{Tag: "h2", Text: "Others you might like", Box: Box{X: 100, Y: 1100, Width: 600, Height: 40}, Visible: true},
		},
		Images: []ImageNode{
			visibleImage("/assets/logo.svg", 20, 10, 200, 80),
			visibleImage("https://cdn.example.com/images/hero.jpg", 700, 100, 500, 500),
			visibleImage("https://cdn.example.com/images/other-1.jpg", 100, 1200, 900, 900),
			visibleImage("https://cdn.example.com/images/other-2.jpg", 100, 2200, 900, 900),
		},
	}
	ctx := scoreContext(snap, "15510ST.OO.1320ST.06")
	assert.Equal(t, 170.0, ctx.AnchorY)
	assert.Equal(t, 1100.0, ctx.RelatedY)

	hero := selectHero(snap, testDoc(t, "<html></html>"), GeometricScorer{}, ctx, nil)
	assert.Equal(t, "https://cdn.example.com/images/hero.jpg", hero.URL)
	assert.Equal(t, TierImg, hero.Tier)
	require.Len(t, hero.Ranked, 3)
	assert.Equal(t, hero.URL, hero.Ranked[0].URL)
	for _, r := range hero.Ranked[1:] {
		assert.LessOrEqual(t, r.Score, float64(penaltyFloor))
	}
}

func TestSelectHero_LowerPageRejected(t *testing.T) {
	snap := &Snapshot{
		URL:            productURL,
		PageHeight:     4000,
		ViewportWidth:  1440,
		ViewportHeight: 900,
		Images: []ImageNode{
			visibleImage("https://cdn.example.com/images/footer-banner.jpg", 0, 2800, 1400, 900),
			visibleImage("https://cdn.example.com/images/hero-small.jpg", 800, 300, 120, 120),
		},
	}
	hero := selectHero(snap, testDoc(t, "<html></html>"), GeometricScorer{}, scoreContext(snap, ""), nil)
	assert.Equal(t, "https://cdn.example.com/images/hero-small.jpg", hero.URL)
}

func TestSelectHero_FallsBackToMeta(t *testing.T) {
	snap := &Snapshot{
		URL:        productURL,
		PageHeight: 3000,
		Headings: []TextBox{
			{Tag: "h2", Text: "You may also like", Box: Box{Y: 50, Width: 400, Height: 30}, Visible: true},
		},
		Images: []ImageNode{
			visibleImage("https://cdn.example.com/images/related.jpg", 0, 400, 600, 600),
		},
	}
	doc := testDoc(t, `<html><head>
		<meta property="og:image" content="https://watches.example.com/static/logo.png">
		<meta name="twitter:image" content="https://cdn.example.com/images/15510st.jpg">
	</head></html>`)

	hero := selectHero(snap, doc, GeometricScorer{}, scoreContext(snap, ""), []string{"15510st"})
	assert.Equal(t, "https://cdn.example.com/images/15510st.jpg", hero.URL)
	assert.Equal(t, TierMeta, hero.Tier)
}

func TestScoreContext_RelatedTitleOutsideHeadings(t *testing.T) {
	snap := &Snapshot{
		URL:        productURL,
		PageHeight: 4000,
		Headings: []TextBox{
			{Tag: "h1", Text: "Royal Oak Selfwinding", Box: Box{X: 760, Y: 150, Width: 500, Height: 40}, Visible: true},
			{Tag: "div", Text: "You might also like", Box: Box{X: 100, Y: 1300, Width: 600, Height: 30}, Visible: true},
			{Tag: "p", Text: "Related watches", Box: Box{X: 100, Y: 1800, Width: 600, Height: 30}, Visible: true},
		},
	}
	ctx := scoreContext(snap, "")
	assert.Equal(t, 1300.0, ctx.RelatedY)
}

func TestStructuredImage(t *testing.T) {
	base, err := url.Parse(productURL)
	require.NoError(t, err)
	ld := func(raw string) []ldProduct { return []ldProduct{{Image: []byte(raw)}} }

	tests := []struct {
		name string
		ld   []ldProduct
		want string
	}{
		{name: "plausible image", ld: ld(`"https://cdn.example.com/images/15510st.jpg"`), want: "https://cdn.example.com/images/15510st.jpg"},
		{name: "relative resolved", ld: ld(`["/media/15510st.png"]`), want: "https://watches.example.com/media/15510st.png"},
		{name: "logo denied", ld: ld(`"https://cdn.example.com/images/logo.png"`), want: ""},
		{name: "unrelated path rejected", ld: ld(`"https://tracker.example.net/pixel.gif"`), want: ""},
		{name: "first acceptable wins", ld: ld(`["https://watches.example.com/favicon.ico", "https://cdn.example.com/images/15510st-side.jpg"]`), want: "https://cdn.example.com/images/15510st-side.jpg"},
		{name: "no structured data", ld: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, structuredImage(tt.ld, base, []string{"15510st"}))
		})
	}
}

func TestSelectHero_NothingAcceptable(t *testing.T) {
	snap := &Snapshot{URL: productURL}
	doc := testDoc(t, `<html><head><meta property="og:image" content="https://watches.example.com/favicon.ico"></head></html>`)

	hero := selectHero(snap, doc, GeometricScorer{}, scoreContext(snap, ""), nil)
	assert.Empty(t, hero.URL)
	assert.Equal(t, TierNone, hero.Tier)
	assert.Equal(t, "none", hero.Tier.String())
}

func TestGeometricScorer(t *testing.T) {
	ctx := ScoreContext{AnchorY: 200, RelatedY: -1, PageHeight: 3000, ViewportWidth: 1440, ViewportHeight: 900}
	s := GeometricScorer{}

	hidden := visibleImage("a.jpg", 800, 100, 400, 400)
	hidden.Visible = false
	assert.True(t, math.IsInf(s.Score(hidden, ctx), -1))
	assert.True(t, math.IsInf(s.Score(visibleImage("a.jpg", 800, 100, 40, 40), ctx), -1))

	near := s.Score(visibleImage("a.jpg", 800, 100, 400, 400), ctx)
	far := s.Score(visibleImage("a.jpg", 800, 1500, 400, 400), ctx)
	left := s.Score(visibleImage("a.jpg", 0, 100, 400, 400), ctx)
	assert.Greater(t, near, far)
	assert.Greater(t, near, left)
}

func TestBestFromSrcset(t *testing.T) {
	assert.Equal(t, "b.jpg", BestFromSrcset("a.jpg 480w, b.jpg 1200w, c.jpg 800w"))
	assert.Equal(t, "x2.jpg", BestFromSrcset("x1.jpg 1x, x2.jpg 2x"))
	assert.Equal(t, "only.jpg", BestFromSrcset("only.jpg"))
	assert.Equal(t, "", BestFromSrcset(""))
}

func TestVariantsOf(t *testing.T) {
	base, err := url.Parse("https://watches.example.com/en/watch/royal-oak/x")
	require.NoError(t, err)

	n := ImageNode{Srcset: "/img/s.jpg 400w, /img/l.jpg 1600w", Src: "/img/s.jpg"}
	assert.Equal(t, []string{
		"https://watches.example.com/img/l.jpg",
		"https://watches.example.com/img/s.jpg",
	}, variantsOf(base, n))

	assert.Empty(t, variantsOf(base, ImageNode{Src: "/img/sprite.png"}))
}
