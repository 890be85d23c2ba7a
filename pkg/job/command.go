package job

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"watch-harvest/pkg/config"
	"watch-harvest/pkg/images"
	"watch-harvest/pkg/models"
	"watch-harvest/pkg/render"
)

// Config is the command line of a single product job.
type Config struct {
	SitesFile      string
	Site           string
	URL            string
	Upload         bool
	Debug          bool
	DebugDir       string
	RunID          string
	Headless       bool
	StateDir       string
	LogLevel       string
	NavTimeout     time.Duration
	ConsentTimeout time.Duration
	ChromePath     string
	CloudinaryURL  string
}

// Args renders the config back into flags understood by ParseFlags.
func (c Config) Args() []string {
	args := []string{
		"--sites", c.SitesFile,
		"--site", c.Site,
		"--url", c.URL,
		"--upload=" + strconv.FormatBool(c.Upload),
		"--debug=" + strconv.FormatBool(c.Debug),
		"--headless=" + strconv.FormatBool(c.Headless),
		"--nav-timeout", strconv.Itoa(int(c.NavTimeout / time.Second)),
		"--consent-timeout", strconv.Itoa(int(c.ConsentTimeout / time.Second)),
	}
	if c.DebugDir != "" {
		args = append(args, "--debug-dir", c.DebugDir)
	}
	if c.RunID != "" {
		args = append(args, "--run-id", c.RunID)
	}
	if c.StateDir != "" {
		args = append(args, "--state-dir", c.StateDir)
	}
	if c.LogLevel != "" {
		args = append(args, "--loglevel", c.LogLevel)
	}
	return args
}

func ParseFlags(args []string, stderr io.Writer) (Config, error) {
	var (
		cfg        Config
		navSec     int
		consentSec int
	)
	fs := flag.NewFlagSet("job", flag.ContinueOnError)
	if stderr != nil {
		fs.SetOutput(stderr)
	}
	fs.StringVar(&cfg.SitesFile, "sites", "./sites.json", "path to the site config JSON")
	fs.StringVar(&cfg.Site, "site", "", "site name")
	fs.StringVar(&cfg.URL, "url", "", "product page to harvest")
	fs.BoolVar(&cfg.Upload, "upload", false, "upload images to the object store")
	fs.BoolVar(&cfg.Debug, "debug", false, "persist diagnostics")
	fs.StringVar(&cfg.DebugDir, "debug-dir", "./debug", "diagnostics root")
	fs.StringVar(&cfg.RunID, "run-id", "adhoc", "run identifier for the diagnostics dir")
	fs.BoolVar(&cfg.Headless, "headless", true, "run the browser headless")
	fs.StringVar(&cfg.StateDir, "state-dir", "", "directory holding the browser storage state")
	fs.StringVar(&cfg.LogLevel, "loglevel", "info", "log level")
	fs.IntVar(&navSec, "nav-timeout", 45, "navigation timeout in seconds")
	fs.IntVar(&consentSec, "consent-timeout", 12, "consent banner polling budget in seconds")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.URL == "" {
		return Config{}, &models.ConfigurationError{Field: "url", Detail: "--url is required"}
	}
	if cfg.Site == "" {
		return Config{}, &models.ConfigurationError{Field: "site", Detail: "--site is required"}
	}
	cfg.NavTimeout = time.Duration(navSec) * time.Second
	cfg.ConsentTimeout = time.Duration(consentSec) * time.Second
	cfg.ChromePath = os.Getenv("CHROME_PATH")
	cfg.CloudinaryURL = os.Getenv("CLOUDINARY_URL")
	return cfg, nil
}

// StorageStatePath is where a site's browser cookies persist between jobs.
func StorageStatePath(stateDir, site string) string {
	if stateDir == "" {
		return ""
	}
	return filepath.Join(stateDir, site+"-cookies.json")
}

// NewImageResolver builds the resolver for a run. Without upload no object
// store is needed.
func NewImageResolver(upload bool, cloudinaryURL string) (*images.Resolver, error) {
	var uploader images.Uploader
	if upload {
		c, err := images.NewCloudinaryUploader(cloudinaryURL)
		if err != nil {
			return nil, &models.ConfigurationError{Field: "upload", Detail: err.Error()}
		}
		uploader = c
	}
	return images.NewResolver(images.NewDownloader(), uploader), nil
}

// Main runs one job and writes protocol events to stdout. A failed page is
// reported in the result, not as an error; errors mean the job could not run.
func Main(ctx context.Context, cfg Config, stdout io.Writer) error {
	enc := NewEncoder(stdout)
	fail := func(stage Stage, err error) error {
		if encErr := enc.Result(Failed(cfg.URL, stage, err)); encErr != nil {
			return errors.Join(err, encErr)
		}
		return err
	}

	sites, err := config.LoadSiteConfigs(cfg.SitesFile)
	if err != nil {
		return fail(StageQueued, &models.ConfigurationError{Field: "sites", Detail: err.Error()})
	}
	site, ok := config.FindSite(sites, cfg.Site)
	if !ok {
		return fail(StageQueued, &models.ConfigurationError{Field: "site", Detail: fmt.Sprintf("unknown site %q", cfg.Site)})
	}
	resolver, err := NewImageResolver(cfg.Upload, cfg.CloudinaryURL)
	if err != nil {
		return fail(StageQueued, err)
	}
	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			return fail(StageQueued, fmt.Errorf("create state dir: %w", err))
		}
	}

	session, err := render.NewSession(ctx, render.Options{
		Headless:       cfg.Headless,
		ChromePath:     cfg.ChromePath,
		NavTimeout:     cfg.NavTimeout,
		ConsentTimeout: cfg.ConsentTimeout,
		StorageState:   StorageStatePath(cfg.StateDir, site.Name),
	})
	if err != nil {
		return fail(StageRendering, &models.NavigationError{URL: cfg.URL, Err: err})
	}
	defer session.Close()

	runner := NewRunner(site, SessionOpener(session, 8), resolver)
	runner.Upload = cfg.Upload
	if cfg.Debug {
		runner.Debug = NewDebugSink(cfg.DebugDir, cfg.RunID)
	}

	var encErr error
	res := runner.Run(ctx, cfg.URL, func(s Stage) {
		if err := enc.Stage(s); err != nil && encErr == nil {
			encErr = err
		}
	})
	if encErr != nil {
		return encErr
	}
	return enc.Result(res)
}
