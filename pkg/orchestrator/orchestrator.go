package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"watch-harvest/pkg/config"
	"watch-harvest/pkg/job"
	"watch-harvest/pkg/logger"
	"watch-harvest/pkg/metrics"
	"watch-harvest/pkg/models"
	"watch-harvest/pkg/publish"
	"watch-harvest/pkg/resume"
	"watch-harvest/pkg/store"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// Summary is the outcome of a crawl. Partial failures do not fail the run.
type Summary struct {
	OK         int
	Fail       int
	Discovered int
	Queued     int
	Skipped    int
}

// Orchestrator turns seeds into a queue and drives jobs over it.
type Orchestrator struct {
	Site       *config.SiteConfig
	Opts       config.Options
	Discoverer Discoverer
	Runner     JobRunner
	// Store is read for resume and written with --write. Nil disables both.
	Store     store.DocumentStore
	Ledger    *resume.Ledger
	Publisher publish.Publisher
	Metrics   *metrics.Registry
	RunID     string
	// Out receives records in dry-run mode.
	Out io.Writer
	Now func() time.Time

	outMu   sync.Mutex
	tracker *Tracker
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Run discovers, queues and harvests. It returns models.ErrNoSeeds or
// models.ErrNoURLs when there is nothing to do at all.
func (o *Orchestrator) Run(ctx context.Context, seeds []string) (Summary, error) {
	var summary Summary
	if len(seeds) == 0 {
		return summary, &models.ConfigurationError{Field: "seeds", Detail: "no seed urls"}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewRegistry()
	}
	if o.Publisher == nil {
		o.Publisher = publish.Nop{}
	}
	o.tracker = NewTracker(o.Metrics)

	urls, err := DiscoverAll(ctx, o.Discoverer, seeds, o.Site.ProductRe(), 2)
	if err != nil {
		return summary, fmt.Errorf("discovery: %w", err)
	}
	summary.Discovered = len(urls)
	o.Metrics.Discovered.Add(float64(len(urls)))
	if len(urls) == 0 {
		return summary, models.ErrNoURLs
	}

	filter, err := o.resumeFilter(ctx)
	if err != nil {
		return summary, err
	}
	queue, stats := BuildQueue(o.Site, urls, o.Opts, filter)
	summary.Queued = len(queue)
	summary.Skipped = stats.ResumeSkipped
	o.Metrics.Queued.Set(float64(len(queue)))
	o.Metrics.ResumeSkipped.Add(float64(stats.ResumeSkipped))
	log.WithFields(log.Fields{
		"discovered":     stats.Discovered,
		"family_dropped": stats.FamilyDropped,
		"cap_dropped":    stats.CapDropped,
		"resume_skipped": stats.ResumeSkipped,
		"limit_dropped":  stats.LimitDropped,
	}).Infof("queue built with %d product urls", len(queue))

	if o.Opts.URLsOnly {
		if err := WriteURLList(o.Opts.OutFile, queue); err != nil {
			return summary, err
		}
		log.Infof("wrote %d urls to %s", len(queue), o.Opts.OutFile)
		return summary, nil
	}

	for _, e := range queue {
		o.tracker.Set(e.URL, job.StageQueued)
	}

	var mu sync.Mutex
	pool := NewPool(o.Opts.Concurrency, o.Opts.Delay, o.Opts.DelayJitter)
	started := time.Now()
	poolErr := pool.Run(ctx, queue, func(ctx context.Context, e models.CrawlQueueEntry) {
		ok := o.process(ctx, e)
		mu.Lock()
		defer mu.Unlock()
		if ok {
			summary.OK++
		} else {
			summary.Fail++
		}
	})
	logger.Flush()

	log.Infof("crawl finished in %s: %d ok, %d failed, %d skipped (resume)",
		time.Since(started).Round(time.Second), summary.OK, summary.Fail, summary.Skipped)
	if poolErr != nil {
		return summary, fmt.Errorf("crawl interrupted: %w", poolErr)
	}
	return summary, nil
}

func (o *Orchestrator) resumeFilter(ctx context.Context) (*resume.Filter, error) {
	if !o.Opts.Resume {
		return nil, nil
	}
	f := &resume.Filter{Stored: map[string]bool{}, Ledger: o.Ledger}
	if o.Store == nil {
		log.Warn("resume requested without a store; nothing will be skipped")
		return f, nil
	}
	stored, err := store.References(ctx, o.Store)
	if err != nil {
		return nil, fmt.Errorf("load stored references: %w", err)
	}
	log.Infof("resume: %s references already stored", humanize.Comma(int64(len(stored))))
	f.Stored = stored
	return f, nil
}

// process runs one job and persists its result. A panic in an in-process
// job is contained to that URL.
func (o *Orchestrator) process(ctx context.Context, e models.CrawlQueueEntry) (ok bool) {
	entryLog := log.WithFields(log.Fields{"url": e.URL, "family": e.Family})
	started := time.Now()
	o.Metrics.JobsStarted.Inc()
	defer func() {
		if r := recover(); r != nil {
			entryLog.Errorf("job panicked: %v", r)
			ok = false
		}
		outcome := "ok"
		if !ok {
			outcome = "failed"
			o.tracker.Set(e.URL, job.StageFailed)
		} else {
			o.tracker.Set(e.URL, job.StageDone)
		}
		o.Metrics.JobsFinished.WithLabelValues(outcome).Inc()
		o.Metrics.JobDurationSec.Observe(time.Since(started).Seconds())
	}()

	entryLog.Info("job started")
	res := o.Runner.Run(ctx, e, func(s job.Stage) {
		o.tracker.Set(e.URL, s)
		entryLog.Debugf("stage %s", s)
	})
	for _, w := range res.Warnings {
		if kind, _, found := strings.Cut(w, " image"); found && (kind == "hero" || kind == "movement") {
			o.Metrics.ImageFailures.WithLabelValues(kind).Inc()
		}
		entryLog.Warn(w)
	}
	if !res.OK() {
		entryLog.WithField("kind", res.ErrorKind).Warn(res.Summary())
		return false
	}

	o.tracker.Set(e.URL, job.StageUpserting)
	if err := o.persist(ctx, e, res); err != nil {
		entryLog.Errorf("upsert failed: %v", err)
		return false
	}
	entryLog.Info(res.Summary())
	return true
}

func (o *Orchestrator) persist(ctx context.Context, e models.CrawlQueueEntry, res job.Result) error {
	rec := *res.Record
	if !o.Opts.Write || o.Store == nil {
		return o.printRecord(rec)
	}

	merged, err := o.Store.Upsert(ctx, rec)
	if err != nil {
		return err
	}
	o.Metrics.Upserts.Inc()

	if res.Confirmed && o.Ledger != nil {
		entry := resume.Entry{Reference: merged.Reference, Source: res.ReferenceSource, ConfirmedAt: o.now().UTC()}
		if err := o.Ledger.Record(e.URL, entry); err != nil {
			log.WithField("url", e.URL).Warnf("failed to record resume entry: %v", err)
		}
	}

	ev := publish.RecordEvent{
		RunID:     o.RunID,
		Site:      o.Site.Name,
		Reference: merged.Reference,
		SourceURL: e.URL,
		Record:    merged,
		At:        o.now().UTC(),
	}
	if err := o.Publisher.Publish(ctx, ev); err != nil {
		log.WithField("reference", merged.Reference).Warnf("failed to publish record event: %v", err)
	}
	return nil
}

func (o *Orchestrator) printRecord(rec models.ProductRecord) error {
	if o.Out == nil {
		return nil
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	o.outMu.Lock()
	defer o.outMu.Unlock()
	_, err = fmt.Fprintf(o.Out, "%s\n", data)
	return err
}
