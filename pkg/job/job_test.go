package job

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"watch-harvest/pkg/config"
	"watch-harvest/pkg/extract"
	"watch-harvest/pkg/images"
	"watch-harvest/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
	<title>Royal Oak Selfwinding 15510ST</title>
	<meta property="product:price:amount" content="45000">
	<meta property="product:price:currency" content="CHF">
</head>
<body>
	<h1>Royal Oak Selfwinding</h1>
	<section>
		<h3>Movement</h3>
		<p>Self-winding.</p>
		<img src="/images/calibre-4302.jpg" alt="calibre">
		<dl><dt>Calibre</dt><dd>4302</dd></dl>
	</section>
</body>
</html>`

type fakePage struct {
	snap    *extract.Snapshot
	snapErr error
	closed  bool
}

func (p *fakePage) Snapshot(context.Context) (*extract.Snapshot, error) {
	return p.snap, p.snapErr
}
func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }
func (p *fakePage) HTML(context.Context) (string, error)       { return "<html></html>", nil }
func (p *fakePage) Close()                                     { p.closed = true }

type recordingUploader struct {
	mu   sync.Mutex
	keys []string
}

func (u *recordingUploader) UploadImage(_ context.Context, data []byte, key string, opts images.UploadOptions) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
	return "https://res.example.com/" + key + "." + opts.Format, nil
}

func testSite(t *testing.T) *config.SiteConfig {
	t.Helper()
	site := &config.SiteConfig{
		Name:                "example",
		Brand:               "Example Watches",
		ProductPattern:      `/en/watch/`,
		URLReferencePattern: `/watch/[a-z-]+/([0-9a-z.]+)$`,
		Collections:         []string{"royal-oak"},
		UploadFolder:        "watches",
	}
	require.NoError(t, site.Compile())
	return site
}

// imageServer serves the hero image and 404s everything else.
func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/images/hero.jpg" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func snapshotFor(base string) *extract.Snapshot {
	return &extract.Snapshot{
		URL:            base + "/en/watch/royal-oak/15510st.oo.1320st.06",
		HTML:           pageTemplate,
		PageHeight:     3000,
		ViewportWidth:  1440,
		ViewportHeight: 900,
		Headings: []extract.TextBox{
			{Tag: "h1", Text: "Royal Oak Selfwinding", Box: extract.Box{X: 760, Y: 150, Width: 500, Height: 40}, Visible: true},
		},
		Images: []extract.ImageNode{
			{Box: extract.Box{X: 700, Y: 100, Width: 500, Height: 500}, Src: base + "/images/hero.jpg", NaturalWidth: 1000, NaturalHeight: 1000, Visible: true},
		},
	}
}

func openerFor(page *fakePage) PageOpener {
	return func(context.Context, string) (ProductPage, error) { return page, nil }
}

func TestRunner_UploadsHeroAndDegradesMovement(t *testing.T) {
	srv := imageServer(t)
	snap := snapshotFor(srv.URL)
	page := &fakePage{snap: snap}
	up := &recordingUploader{}

	r := NewRunner(testSite(t), openerFor(page), images.NewResolver(images.NewDownloader(), up))
	r.Upload = true

	var stages []Stage
	res := r.Run(context.Background(), snap.URL, func(s Stage) { stages = append(stages, s) })

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, []Stage{StageRendering, StageExtracting}, stages)
	assert.True(t, page.closed)
	assert.True(t, res.Confirmed)
	assert.Equal(t, "url", res.ReferenceSource)

	rec := res.Record
	assert.Equal(t, "15510ST.OO.1320ST.06", rec.Reference)
	assert.Equal(t, "https://res.example.com/watches/15510st.oo.1320st.06.webp", rec.ImageURL)
	assert.Equal(t, []string{"watches/15510st.oo.1320st.06"}, up.keys)

	// the movement image 404s, so the raw url stays on the record
	assert.Equal(t, srv.URL+"/images/calibre-4302.jpg", rec.Movement.Image)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "movement image")
}

func TestRunner_PassThroughWithoutUpload(t *testing.T) {
	snap := snapshotFor("https://watches.example.com")
	up := &recordingUploader{}
	r := NewRunner(testSite(t), openerFor(&fakePage{snap: snap}), images.NewResolver(images.NewDownloader(), up))

	res := r.Run(context.Background(), snap.URL, nil)

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "https://watches.example.com/images/hero.jpg", res.Record.ImageURL)
	assert.Equal(t, "https://watches.example.com/images/calibre-4302.jpg", res.Record.Movement.Image)
	assert.Empty(t, up.keys)
	assert.Empty(t, res.Warnings)
}

func TestRunner_Failures(t *testing.T) {
	site := testSite(t)
	url := "https://watches.example.com/en/watch/royal-oak/15510st.oo.1320st.06"

	tests := []struct {
		name  string
		open  PageOpener
		stage Stage
		kind  ErrorKind
	}{
		{
			name: "navigation",
			open: func(context.Context, string) (ProductPage, error) {
				return nil, &models.NavigationError{URL: url, Err: errors.New("timeout")}
			},
			stage: StageRendering,
			kind:  KindNavigation,
		},
		{
			name:  "snapshot",
			open:  openerFor(&fakePage{snapErr: errors.New("target closed")}),
			stage: StageRendering,
			kind:  KindNavigation,
		},
		{
			name: "no reference",
			open: openerFor(&fakePage{snap: &extract.Snapshot{
				URL:  "https://watches.example.com/en/about",
				HTML: "<html><head></head><body><p>nothing here</p></body></html>",
			}}),
			stage: StageExtracting,
			kind:  KindExtraction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(site, tt.open, nil)
			target := url
			if tt.name == "no reference" {
				target = "https://watches.example.com/en/about"
			}
			res := r.Run(context.Background(), target, nil)
			assert.False(t, res.OK())
			assert.Nil(t, res.Record)
			assert.Equal(t, tt.stage, res.Stage)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestRunner_DebugArtifacts(t *testing.T) {
	snap := snapshotFor("https://watches.example.com")
	root := t.TempDir()
	r := NewRunner(testSite(t), openerFor(&fakePage{snap: snap}), nil)
	r.Debug = NewDebugSink(root, "run-1")

	res := r.Run(context.Background(), snap.URL, nil)
	require.True(t, res.OK(), res.Error)

	dir := filepath.Join(root, "run-1", "royal-oak-15510st-oo-1320st-06")
	assert.Equal(t, dir, res.DebugDir)
	for _, name := range []string{"job.log", "page.html", "screenshot.png", "report.json", "candidates.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	logData, err := os.ReadFile(filepath.Join(dir, "job.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "reference 15510ST.OO.1320ST.06 from url")
}

func TestNilDebugSink(t *testing.T) {
	var s *DebugSink
	d := s.For("https://watches.example.com/en/watch/royal-oak/x")
	assert.Nil(t, d)
	d.Logf("ignored %d", 1)
	d.Report(&extract.Report{})
	d.Close()
	assert.Equal(t, "", d.Dir())
}

func TestProtocol_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Stage(StageRendering))
	buf.WriteString("chrome noise on stdout\n")
	require.NoError(t, enc.Stage(StageExtracting))
	rec := models.ProductRecord{Reference: "15202ST", Price: models.UnknownPrice()}
	require.NoError(t, enc.Result(Result{URL: "https://x", Record: &rec, Stage: StageExtracting, Confirmed: true}))

	var stages []Stage
	res, err := Decode(&buf, func(s Stage) { stages = append(stages, s) })
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageRendering, StageExtracting}, stages)
	assert.True(t, res.OK())
	assert.Equal(t, "15202ST", res.Record.Reference)
	assert.True(t, res.Confirmed)
}

func TestDecode_NoResult(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"type":"stage","stage":"rendering"}`+"\n"), nil)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindNavigation, Classify(&models.NavigationError{Err: errors.New("x")}))
	assert.Equal(t, KindExtraction, Classify(&models.ExtractionError{Err: models.ErrNoReference}))
	assert.Equal(t, KindDownload, Classify(&models.DownloadError{URL: "u", StatusCode: 404}))
	assert.Equal(t, KindUpload, Classify(&models.UploadError{Key: "k", Err: errors.New("x")}))
	assert.Equal(t, KindInternal, Classify(errors.New("boom")))
}

func TestConfig_ArgsRoundTrip(t *testing.T) {
	cfg := Config{
		SitesFile:      "sites.json",
		Site:           "example",
		URL:            "https://watches.example.com/en/watch/royal-oak/15202st",
		Upload:         true,
		Debug:          true,
		DebugDir:       "/tmp/debug",
		RunID:          "abc",
		Headless:       false,
		StateDir:       "/tmp/state",
		LogLevel:       "debug",
		NavTimeout:     30 * time.Second,
		ConsentTimeout: 5 * time.Second,
	}
	t.Setenv("CHROME_PATH", "")
	t.Setenv("CLOUDINARY_URL", "")

	parsed, err := ParseFlags(cfg.Args(), nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestParseFlags_RequiresURL(t *testing.T) {
	_, err := ParseFlags([]string{"--site", "example"}, &bytes.Buffer{})
	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "url", cfgErr.Field)
}

func TestResultSummary(t *testing.T) {
	rec := models.ProductRecord{Reference: "ROYAL-OAK-JUMBO", Price: models.UnknownPrice()}
	ok := Result{Record: &rec}
	assert.Equal(t, "ok ROYAL-OAK-JUMBO (title slug), no price", ok.Summary())

	bad := Result{Stage: StageRendering, ErrorKind: KindNavigation, Error: "timeout"}
	assert.Equal(t, "failed at rendering (navigation): timeout", bad.Summary())
}
