package job

import (
	"context"
	"fmt"
	"strings"
	"time"

	"watch-harvest/pkg/config"
	"watch-harvest/pkg/extract"
	"watch-harvest/pkg/images"
	"watch-harvest/pkg/models"
	"watch-harvest/pkg/render"

	log "github.com/sirupsen/logrus"
)

// ProductPage is the slice of a rendered page a job needs.
type ProductPage interface {
	Snapshot(ctx context.Context) (*extract.Snapshot, error)
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Close()
}

// PageOpener loads a product page and leaves it ready for a snapshot.
type PageOpener func(ctx context.Context, url string) (ProductPage, error)

// SessionOpener opens product pages in a browser session, dismissing consent
// and scrolling through the page so lazy images load.
func SessionOpener(s *render.Session, warmUpSteps int) PageOpener {
	return func(ctx context.Context, url string) (ProductPage, error) {
		page, err := s.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		render.DismissConsent(ctx, page)
		if err := page.WarmUp(ctx, warmUpSteps, 400*time.Millisecond); err != nil {
			log.Debugf("warm-up on %s stopped early: %v", url, err)
		}
		return page, nil
	}
}

// Runner executes the render, extract and image steps for one URL. Storage
// is left to the caller.
type Runner struct {
	Site      *config.SiteConfig
	Open      PageOpener
	Extractor *extract.Extractor
	Images    *images.Resolver
	Upload    bool
	Debug     *DebugSink
}

func NewRunner(site *config.SiteConfig, open PageOpener, resolver *images.Resolver) *Runner {
	return &Runner{
		Site:      site,
		Open:      open,
		Extractor: extract.NewExtractor(site),
		Images:    resolver,
	}
}

// Run never panics on a bad page; every failure comes back in the Result.
func (r *Runner) Run(ctx context.Context, url string, onStage func(Stage)) Result {
	stage := func(s Stage) {
		if onStage != nil {
			onStage(s)
		}
	}
	dump := r.Debug.For(url)
	defer dump.Close()

	stage(StageRendering)
	dump.Logf("rendering %s", url)
	page, err := r.Open(ctx, url)
	if err != nil {
		dump.Logf("navigation failed: %v", err)
		return Failed(url, StageRendering, err)
	}
	defer page.Close()

	snap, err := page.Snapshot(ctx)
	if err != nil {
		dump.Capture(ctx, page)
		dump.Logf("snapshot failed: %v", err)
		return Failed(url, StageRendering, &models.NavigationError{URL: url, Err: err})
	}
	dump.Capture(ctx, page)

	stage(StageExtracting)
	rec, report, err := r.Extractor.Extract(snap, url)
	dump.Report(report)
	if err != nil {
		dump.Logf("extraction failed: %v", err)
		return Failed(url, StageExtracting, err)
	}
	dump.Logf("reference %s from %s", rec.Reference, report.ReferenceSource)

	res := Result{
		URL:             url,
		ReferenceSource: string(report.ReferenceSource),
		Confirmed:       report.ReferenceSource.Confirmed(),
		Stage:           StageExtracting,
		DebugDir:        dump.Dir(),
	}
	res.Warnings = r.resolveImages(ctx, &rec, report)
	for _, w := range res.Warnings {
		dump.Logf("warning: %s", w)
	}
	res.Record = &rec
	return res
}

// resolveImages degrades to the raw candidate URL when downloading or
// uploading fails.
func (r *Runner) resolveImages(ctx context.Context, rec *models.ProductRecord, report *extract.Report) []string {
	if r.Images == nil {
		return nil
	}
	var warnings []string

	if len(report.HeroVariants) > 0 {
		key := images.ObjectKey(r.Site.UploadFolder, rec.Reference, "")
		img, err := r.Images.ResolveFirst(ctx, report.HeroVariants, key, r.Upload)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("hero image kept as %s: %v", rec.ImageURL, err))
		} else if img.URL != "" {
			rec.ImageURL = img.URL
		}
	}

	if len(report.MovementImages) > 0 {
		key := images.ObjectKey(r.Site.UploadFolder, rec.Reference, "movement")
		img, err := r.Images.ResolveFirst(ctx, report.MovementImages, key, r.Upload)
		if err != nil {
			rec.Movement.Image = report.MovementImages[0]
			warnings = append(warnings, fmt.Sprintf("movement image kept as %s: %v", rec.Movement.Image, err))
		} else if img.URL != "" {
			rec.Movement.Image = img.URL
		}
	}
	return warnings
}

// Summary is the one-line status logged per job.
func (r Result) Summary() string {
	if !r.OK() {
		return fmt.Sprintf("failed at %s (%s): %s", r.Stage, r.ErrorKind, r.Error)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ok %s", r.Record.Reference)
	if !r.Confirmed {
		b.WriteString(" (title slug)")
	}
	if !r.Record.Price.Known() {
		b.WriteString(", no price")
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, ", %d image warning(s)", len(r.Warnings))
	}
	return b.String()
}
