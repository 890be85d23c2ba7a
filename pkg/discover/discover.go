package discover

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"watch-harvest/pkg/logger"
	"watch-harvest/pkg/render"

	log "github.com/sirupsen/logrus"
)

// ListingPage is the part of a rendered page discovery needs.
type ListingPage interface {
	Hrefs(ctx context.Context) ([]string, error)
	ScrollStep(ctx context.Context) error
	Location(ctx context.Context) (string, error)
	Close()
}

// Opener opens a listing page ready for scrolling.
type Opener func(ctx context.Context, rawURL string) (ListingPage, error)

// SessionOpener opens pages in a browser session and dismisses consent
// banners before returning them.
func SessionOpener(s *render.Session) Opener {
	return func(ctx context.Context, rawURL string) (ListingPage, error) {
		p, err := s.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		render.DismissConsent(ctx, p)
		return p, nil
	}
}

// Discoverer collects product links from listing pages rendered in a browser.
type Discoverer struct {
	Open        Opener
	MaxScrolls  int
	StableTicks int
	Tick        time.Duration
}

func NewDiscoverer(open Opener, maxScrolls, stableTicks int) *Discoverer {
	return &Discoverer{Open: open, MaxScrolls: maxScrolls, StableTicks: stableTicks, Tick: 1200 * time.Millisecond}
}

// accumulator feeds every scroll iteration's anchors into one set.
type accumulator struct {
	page    ListingPage
	base    *url.URL
	pattern *regexp.Regexp
	links   *LinkSet
}

func (a *accumulator) ScrollStep(ctx context.Context) error { return a.page.ScrollStep(ctx) }

func (a *accumulator) LinkCount(ctx context.Context) (int, error) {
	hrefs, err := a.page.Hrefs(ctx)
	if err != nil {
		return a.links.Len(), err
	}
	if added := Collect(a.links, a.base, a.pattern, hrefs); added == 0 {
		logger.Dedup("no new product links on %s", a.base)
	} else {
		log.Debugf("%d new product links on %s (total %d)", added, a.base, a.links.Len())
	}
	return a.links.Len(), nil
}

// Discover returns the product URLs found on seedURL, in first-seen order.
// A listing that yields nothing after scrolling is treated as exhausted and
// returns an empty result without error.
func (d *Discoverer) Discover(ctx context.Context, seedURL string, pattern *regexp.Regexp) ([]string, error) {
	page, err := d.Open(ctx, seedURL)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	base, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed url %q: %w", seedURL, err)
	}
	if loc, err := page.Location(ctx); err == nil && loc != "" {
		if u, err := url.Parse(loc); err == nil {
			base = u
		}
	}

	acc := &accumulator{page: page, base: base, pattern: pattern, links: NewLinkSet()}
	iterations := render.ScrollExhaust(ctx, acc, d.MaxScrolls, d.StableTicks, d.Tick)
	logger.Flush()

	if acc.links.Len() == 0 {
		log.WithFields(log.Fields{"seed": seedURL, "scrolls": iterations}).Warn("listing exhausted without product links")
		return []string{}, nil
	}
	log.WithFields(log.Fields{"seed": seedURL, "scrolls": iterations, "links": acc.links.Len()}).Info("discovery finished")
	return acc.links.Links(), nil
}
