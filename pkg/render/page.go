package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"watch-harvest/pkg/extract"
	"watch-harvest/pkg/models"

	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"
)

// Page is one browser tab. All calls on a Page are sequential.
type Page struct {
	URL string

	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
}

// Open navigates a new tab to rawURL. The first attempt waits for the load
// event and a quiet network; the second only for an interactive document.
func (s *Session) Open(ctx context.Context, rawURL string) (*Page, error) {
	tabCtx, cancel, err := s.newTab()
	if err != nil {
		return nil, &models.NavigationError{URL: rawURL, Err: err}
	}
	p := &Page{URL: rawURL, session: s, ctx: tabCtx, cancel: cancel}

	s.mu.Lock()
	restore := s.opts.StorageState != "" && !s.cookiesRestored
	s.cookiesRestored = true
	s.mu.Unlock()
	if restore {
		bound, cancelBound := p.bind(ctx)
		n, err := restoreCookies(bound, s.opts.StorageState)
		cancelBound()
		if err != nil {
			log.Debugf("cookie restore skipped: %v", err)
		} else if n > 0 {
			log.Debugf("restored %d cookies from %s", n, s.opts.StorageState)
		}
	}

	strictErr := p.run(ctx, s.opts.NavTimeout,
		chromedp.Navigate(rawURL),
		waitNetworkIdle(500*time.Millisecond),
	)
	if strictErr == nil {
		return p, nil
	}
	log.Warnf("strict navigation to %s failed (%v), retrying relaxed", rawURL, strictErr)

	var assigned bool
	relaxedErr := p.run(ctx, s.opts.NavTimeout,
		chromedp.Evaluate("window.location.assign("+jsString(rawURL)+"); true", &assigned),
		waitReadyState("interactive", "complete"),
	)
	if relaxedErr != nil {
		p.Close()
		return nil, &models.NavigationError{URL: rawURL, Err: errors.Join(strictErr, relaxedErr)}
	}
	return p, nil
}

// bind derives from the tab context and is also cancelled when ctx ends.
// Cancelling it does not close the tab.
func (p *Page) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return bound, func() {
		stop()
		cancel()
	}
}

func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancelBound := p.bind(ctx)
	defer cancelBound()
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Evaluate runs a script in the main frame.
func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, 30*time.Second, chromedp.Evaluate(script, out))
}

// Location is the current document URL after redirects.
func (p *Page) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, 10*time.Second, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Hrefs returns the raw href attribute of every anchor.
func (p *Page) Hrefs(ctx context.Context) ([]string, error) {
	var hrefs []string
	if err := p.Evaluate(ctx, hrefsJS, &hrefs); err != nil {
		return nil, fmt.Errorf("failed to collect links: %w", err)
	}
	return hrefs, nil
}

// ScrollStep scrolls to the bottom and clicks visible load-more controls.
func (p *Page) ScrollStep(ctx context.Context) error {
	var clicked int
	if err := p.Evaluate(ctx, scrollStepJS, &clicked); err != nil {
		return fmt.Errorf("scroll step failed: %w", err)
	}
	if clicked > 0 {
		log.Debugf("clicked %d load-more controls on %s", clicked, p.URL)
	}
	return nil
}

// WarmUp scrolls the page one viewport at a time so lazy images load, then
// returns to the top.
func (p *Page) WarmUp(ctx context.Context, steps int, pause time.Duration) error {
	for i := 0; i < steps; i++ {
		var atEnd bool
		if err := p.Evaluate(ctx, `(() => { window.scrollBy(0, window.innerHeight); return window.scrollY + window.innerHeight >= document.documentElement.scrollHeight - 2; })()`, &atEnd); err != nil {
			return err
		}
		if err := sleep(ctx, pause); err != nil {
			return err
		}
		if atEnd {
			break
		}
	}
	var ignored any
	return p.Evaluate(ctx, `window.scrollTo(0, 0)`, &ignored)
}

// Snapshot captures HTML and element geometry for extraction.
func (p *Page) Snapshot(ctx context.Context) (*extract.Snapshot, error) {
	var snap extract.Snapshot
	if err := p.run(ctx, 60*time.Second, chromedp.Evaluate(snapshotJS, &snap)); err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", p.URL, err)
	}
	if snap.URL == "" {
		snap.URL = p.URL
	}
	return &snap, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, 30*time.Second, chromedp.FullScreenshot(&buf, 80)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, 30*time.Second, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		return "", err
	}
	return html, nil
}

// SaveState writes the browser cookies to the session's storage state file.
func (p *Page) SaveState(ctx context.Context) error {
	path := p.session.opts.StorageState
	if path == "" {
		return nil
	}
	bound, cancel := p.bind(ctx)
	defer cancel()
	return saveCookies(bound, path)
}

// waitNetworkIdle polls until the document is complete and no new resource
// entries appeared for quiet.
func waitNetworkIdle(quiet time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var (
			last      = -1
			stableFor time.Duration
			tick      = 100 * time.Millisecond
		)
		for {
			var state struct {
				Ready     string `json:"ready"`
				Resources int    `json:"resources"`
			}
			if err := chromedp.Evaluate(`({ready: document.readyState, resources: performance.getEntriesByType("resource").length})`, &state).Do(ctx); err != nil {
				return err
			}
			if state.Ready == "complete" && state.Resources == last {
				stableFor += tick
				if stableFor >= quiet {
					return nil
				}
			} else {
				stableFor = 0
			}
			last = state.Resources
			if err := sleep(ctx, tick); err != nil {
				return err
			}
		}
	})
}

func waitReadyState(accepted ...string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var state struct {
				Ready string `json:"ready"`
				URL   string `json:"url"`
			}
			if err := chromedp.Evaluate(`({ready: document.readyState, url: document.URL})`, &state).Do(ctx); err == nil && state.URL != "about:blank" {
				for _, a := range accepted {
					if state.Ready == a {
						return nil
					}
				}
			}
			if err := sleep(ctx, 200*time.Millisecond); err != nil {
				return err
			}
		}
	})
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
