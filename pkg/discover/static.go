package discover

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"watch-harvest/pkg/render"

	"github.com/gocolly/colly/v2"
	log "github.com/sirupsen/logrus"
)

// StaticDiscoverer collects product links from server-rendered listings,
// following rel=next pagination up to MaxPages.
type StaticDiscoverer struct {
	UserAgent string
	MaxPages  int
	// AllowedDomains restricts the crawl. Empty means the seed's host only.
	AllowedDomains []string
}

func NewStaticDiscoverer(maxPages int) *StaticDiscoverer {
	return &StaticDiscoverer{UserAgent: render.DesktopUserAgent, MaxPages: maxPages}
}

func (s *StaticDiscoverer) collector(seed *url.URL) *colly.Collector {
	domains := s.AllowedDomains
	if len(domains) == 0 {
		domains = []string{seed.Hostname()}
	}
	return colly.NewCollector(
		colly.AllowedDomains(domains...),
		colly.UserAgent(s.UserAgent),
		colly.MaxDepth(s.MaxPages),
	)
}

func (s *StaticDiscoverer) Discover(ctx context.Context, seedURL string, pattern *regexp.Regexp) ([]string, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed url %q: %w", seedURL, err)
	}
	c := s.collector(seed)
	links := NewLinkSet()
	pages := 0

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		pages++
	})
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		Collect(links, e.Request.URL, pattern, []string{e.Attr("href")})
	})
	c.OnHTML(`a[rel="next"], link[rel="next"]`, func(e *colly.HTMLElement) {
		if s.MaxPages > 0 && pages >= s.MaxPages {
			return
		}
		next := e.Request.AbsoluteURL(e.Attr("href"))
		if next == "" {
			return
		}
		if err := e.Request.Visit(next); err != nil {
			log.Debugf("pagination stop at %s: %v", next, err)
		}
	})

	log.Printf("Navigating to %s", seedURL)
	if err := c.Visit(seedURL); err != nil {
		return nil, fmt.Errorf("failed to fetch listing %s: %w", seedURL, err)
	}
	c.Wait()

	if links.Len() == 0 {
		log.WithField("seed", seedURL).Warn("listing exhausted without product links")
		return []string{}, nil
	}
	return links.Links(), nil
}
