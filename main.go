package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"watch-harvest/pkg/config"
	"watch-harvest/pkg/job"
	"watch-harvest/pkg/logger"
	"watch-harvest/pkg/models"

	log "github.com/sirupsen/logrus"
)

const (
	exitOK     = 0
	exitFatal  = 1
	exitNoURLs = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches to a subcommand. Without one it crawls.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "crawl"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "crawl":
		return runCrawl(ctx, args, stdout, stderr)
	case "job":
		return runJob(ctx, args, stdout, stderr)
	case "serve":
		return runServe(ctx, args, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q (available: crawl, job, serve)\n", cmd)
		return exitFatal
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, models.ErrNoURLs):
		return exitNoURLs
	default:
		return exitFatal
	}
}

func flagExit(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	return exitFatal
}

func runCrawl(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := config.ParseCrawlFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		return flagExit(err)
	}
	if err := logger.Setup(opts.LogLevel, stderr); err != nil {
		log.Warn(err)
	}

	sites, err := config.LoadSiteConfigs(opts.SitesFile)
	if err != nil {
		log.Error(err)
		return exitFatal
	}
	site, _ := config.FindSite(sites, opts.Site)
	if err := opts.Validate(site); err != nil {
		log.Error(err)
		return exitFatal
	}

	err = crawl(ctx, opts, site, stdout)
	switch {
	case errors.Is(err, models.ErrNoURLs):
		log.WithField("site", site.Name).Error("discovery produced zero product urls")
	case err != nil:
		log.Error(err)
	}
	return exitCode(err)
}

func runJob(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := job.ParseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, err)
		}
		return flagExit(err)
	}
	if err := logger.Setup(cfg.LogLevel, stderr); err != nil {
		log.Warn(err)
	}
	if err := job.Main(ctx, cfg, stdout); err != nil {
		log.WithField("url", cfg.URL).Error(err)
		return exitFatal
	}
	return exitOK
}
