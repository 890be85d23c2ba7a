package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"
)

const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Options configures a browser Session.
type Options struct {
	Headless       bool
	UserAgent      string
	ChromePath     string
	WindowWidth    int
	WindowHeight   int
	NavTimeout     time.Duration
	ConsentTimeout time.Duration
	// StorageState is a cookie file restored on the first page and saved after
	// consent is dismissed. Empty disables it.
	StorageState string
}

func (o *Options) defaults() {
	if o.UserAgent == "" {
		o.UserAgent = DesktopUserAgent
	}
	if o.WindowWidth == 0 || o.WindowHeight == 0 {
		o.WindowWidth, o.WindowHeight = 1440, 900
	}
	if o.NavTimeout == 0 {
		o.NavTimeout = 45 * time.Second
	}
	if o.ConsentTimeout == 0 {
		o.ConsentTimeout = 12 * time.Second
	}
}

// Session owns one browser process. Pages opened from it are tabs of that
// browser and must be closed by the caller.
type Session struct {
	opts Options

	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc

	mu              sync.Mutex
	cookiesRestored bool
}

func NewSession(ctx context.Context, opts Options) (*Session, error) {
	opts.defaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
	)
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf))

	// Run with no actions starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Session{
		opts:          opts,
		allocCtx:      allocCtx,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}, nil
}

func (s *Session) Options() Options { return s.opts }

func (s *Session) Close() {
	s.cancelBrowser()
	s.cancelAlloc()
}

// newTab opens a blank tab that lives until its cancel func is called.
func (s *Session) newTab() (context.Context, context.CancelFunc, error) {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return tabCtx, cancel, nil
}
