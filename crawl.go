package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"watch-harvest/pkg/config"
	"watch-harvest/pkg/discover"
	"watch-harvest/pkg/job"
	"watch-harvest/pkg/metrics"
	"watch-harvest/pkg/orchestrator"
	"watch-harvest/pkg/publish"
	"watch-harvest/pkg/render"
	"watch-harvest/pkg/resume"
	"watch-harvest/pkg/store"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func crawl(ctx context.Context, opts config.Options, site *config.SiteConfig, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.NewString()
	log.WithFields(log.Fields{
		"run":         runID,
		"site":        site.Name,
		"concurrency": opts.Concurrency,
		"write":       opts.Write,
		"upload":      opts.Upload,
	}).Info("crawl starting")

	reg := metrics.NewRegistry()
	if opts.MetricsAddr != "" {
		go serveMetrics(ctx, opts.MetricsAddr, reg)
	}

	if err := os.MkdirAll(opts.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var (
		st     store.DocumentStore
		ledger *resume.Ledger
		err    error
	)
	if opts.Write || opts.Resume {
		if st, err = store.Open(ctx, opts.StoreDSN); err != nil {
			return err
		}
		defer st.Close()
		if ledger, err = resume.OpenLedger(filepath.Join(opts.StateDir, "ledger")); err != nil {
			return err
		}
		defer ledger.Close()
	}

	var pub publish.Publisher = publish.Nop{}
	if opts.Write && len(opts.KafkaBrokers) > 0 {
		k := publish.NewKafkaPublisher(opts.KafkaBrokers, opts.KafkaTopic)
		defer k.Close()
		pub = k
	}

	var session *render.Session
	if !site.Static || (opts.InProcess && !opts.URLsOnly) {
		session, err = render.NewSession(ctx, render.Options{
			Headless:       opts.Headless,
			ChromePath:     opts.ChromePath,
			NavTimeout:     opts.NavTimeout,
			ConsentTimeout: opts.ConsentTimeout,
			StorageState:   job.StorageStatePath(opts.StateDir, site.Name),
		})
		if err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
		defer session.Close()
	}

	var disc orchestrator.Discoverer
	if site.Static {
		disc = discover.NewStaticDiscoverer(site.MaxScrolls)
	} else {
		disc = discover.NewDiscoverer(discover.SessionOpener(session), site.MaxScrolls, site.StableTicks)
	}

	runner, err := newJobRunner(opts, site, session, runID)
	if err != nil {
		return err
	}

	o := &orchestrator.Orchestrator{
		Site:       site,
		Opts:       opts,
		Discoverer: disc,
		Runner:     runner,
		Store:      st,
		Ledger:     ledger,
		Publisher:  pub,
		Metrics:    reg,
		RunID:      runID,
		Out:        stdout,
	}
	summary, err := o.Run(ctx, site.Seeds)
	if err != nil {
		return err
	}
	if opts.Debug && !opts.URLsOnly {
		log.Infof("diagnostics in %s", filepath.Join(opts.DebugDir, runID))
	}
	log.WithFields(log.Fields{"ok": summary.OK, "fail": summary.Fail, "run": runID}).Info("summary")
	return nil
}

func newJobRunner(opts config.Options, site *config.SiteConfig, session *render.Session, runID string) (orchestrator.JobRunner, error) {
	if opts.InProcess {
		resolver, err := job.NewImageResolver(opts.Upload, opts.CloudinaryURL)
		if err != nil {
			return nil, err
		}
		r := job.NewRunner(site, job.SessionOpener(session, 8), resolver)
		r.Upload = opts.Upload
		if opts.Debug {
			r.Debug = job.NewDebugSink(opts.DebugDir, runID)
		}
		return orchestrator.InProcess{Runner: r}, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return orchestrator.NewSubprocess(exe, job.Config{
		SitesFile:      opts.SitesFile,
		Site:           site.Name,
		Upload:         opts.Upload,
		Debug:          opts.Debug,
		DebugDir:       opts.DebugDir,
		RunID:          runID,
		Headless:       opts.Headless,
		StateDir:       opts.StateDir,
		LogLevel:       opts.LogLevel,
		NavTimeout:     opts.NavTimeout,
		ConsentTimeout: opts.ConsentTimeout,
	}), nil
}

func serveMetrics(ctx context.Context, addr string, reg *metrics.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	log.Infof("metrics on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warnf("metrics server stopped: %v", err)
	}
}
