package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"watch-harvest/pkg/models"
)

// Options holds the crawl command line.
type Options struct {
	SitesFile      string
	Site           string
	All            bool
	Collections    []string
	MaxPerFamily   int
	Limit          int
	Concurrency    int
	Delay          time.Duration
	DelayJitter    time.Duration
	Resume         bool
	Write          bool
	Upload         bool
	Debug          bool
	Headless       bool
	URLsOnly       bool
	InProcess      bool
	OutFile        string
	DebugDir       string
	StateDir       string
	StoreDSN       string
	MetricsAddr    string
	LogLevel       string
	ChromePath     string
	KafkaBrokers   []string
	KafkaTopic     string
	CloudinaryURL  string
	NavTimeout     time.Duration
	ConsentTimeout time.Duration
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseCrawlFlags parses crawl arguments, falling back to environment
// variables for the infrastructure settings.
func ParseCrawlFlags(args []string, stderr io.Writer) (Options, error) {
	var (
		opts        Options
		collections string
		delayMs     int
		jitterMs    int
		navSec      int
		consentSec  int
	)
	fs := flag.NewFlagSet("crawl", flag.ContinueOnError)
	if stderr != nil {
		fs.SetOutput(stderr)
	}
	fs.StringVar(&opts.SitesFile, "sites", envString("HARVEST_SITES", "./sites.json"), "path to the site config JSON")
	fs.StringVar(&opts.Site, "site", "", "site name from the site config")
	fs.BoolVar(&opts.All, "all", false, "crawl every collection")
	fs.StringVar(&collections, "collections", "", "comma separated collections to keep")
	fs.IntVar(&opts.MaxPerFamily, "max", 0, "per collection cap (0 = unlimited)")
	fs.IntVar(&opts.Limit, "limit", 0, "global cap on scraped products (0 = unlimited)")
	fs.IntVar(&opts.Concurrency, "concurrency", 2, "parallel product jobs")
	fs.IntVar(&delayMs, "delay", 1000, "minimum delay between job launches in ms")
	fs.IntVar(&jitterMs, "delay-jitter", 1500, "random extra delay of up to this many ms per launch")
	fs.BoolVar(&opts.Resume, "resume", false, "skip products already in the dataset")
	fs.BoolVar(&opts.Write, "write", false, "persist records (dry run otherwise)")
	fs.BoolVar(&opts.Upload, "upload", false, "upload hero images to the object store")
	fs.BoolVar(&opts.Debug, "debug", false, "persist per-product diagnostics")
	fs.BoolVar(&opts.Headless, "headless", true, "run the browser headless")
	fs.BoolVar(&opts.URLsOnly, "urls-only", false, "only discover product urls")
	fs.BoolVar(&opts.InProcess, "in-process", false, "run jobs in-process instead of subprocesses")
	fs.StringVar(&opts.OutFile, "out", "urls.txt", "discovered url list for --urls-only")
	fs.StringVar(&opts.DebugDir, "debug-dir", envString("HARVEST_DEBUG_DIR", "./debug"), "diagnostics root")
	fs.StringVar(&opts.StateDir, "state-dir", envString("HARVEST_STATE_DIR", "./state"), "resume ledger directory")
	fs.StringVar(&opts.StoreDSN, "store", envString("HARVEST_STORE", "file:./data/products.jsonl"), "document store DSN")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", envString("HARVEST_METRICS_ADDR", ""), "serve prometheus metrics on this address")
	fs.StringVar(&opts.LogLevel, "loglevel", envString("HARVEST_LOG_LEVEL", "info"), "log level")
	fs.IntVar(&navSec, "nav-timeout", envInt("HARVEST_NAV_TIMEOUT_SEC", 45), "navigation timeout in seconds")
	fs.IntVar(&consentSec, "consent-timeout", envInt("HARVEST_CONSENT_TIMEOUT_SEC", 12), "consent banner polling budget in seconds")
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	opts.Collections = splitCSV(collections)
	opts.Delay = time.Duration(delayMs) * time.Millisecond
	opts.DelayJitter = time.Duration(jitterMs) * time.Millisecond
	opts.NavTimeout = time.Duration(navSec) * time.Second
	opts.ConsentTimeout = time.Duration(consentSec) * time.Second
	opts.ChromePath = envString("CHROME_PATH", "")
	opts.KafkaBrokers = splitCSV(envString("HARVEST_KAFKA_BROKERS", ""))
	opts.KafkaTopic = envString("HARVEST_KAFKA_TOPIC", "watch-records")
	opts.CloudinaryURL = envString("CLOUDINARY_URL", "")

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxPerFamily < 0 {
		opts.MaxPerFamily = 0
	}
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.DelayJitter < 0 {
		opts.DelayJitter = 0
	}
	return opts, nil
}

// Validate reports fatal configuration problems before any work starts.
func (o Options) Validate(site *SiteConfig) error {
	if o.Site == "" {
		return &models.ConfigurationError{Field: "site", Detail: "--site is required"}
	}
	if site == nil {
		return &models.ConfigurationError{Field: "site", Detail: fmt.Sprintf("unknown site %q", o.Site)}
	}
	if len(site.Seeds) == 0 {
		return &models.ConfigurationError{Field: "seeds", Detail: fmt.Sprintf("site %q has no seeds", site.Name)}
	}
	if !o.All && len(o.Collections) == 0 {
		return &models.ConfigurationError{Field: "collections", Detail: "pass --all or --collections=<csv>"}
	}
	if o.Upload && o.CloudinaryURL == "" && !o.URLsOnly {
		return &models.ConfigurationError{Field: "upload", Detail: "--upload needs CLOUDINARY_URL"}
	}
	return nil
}
