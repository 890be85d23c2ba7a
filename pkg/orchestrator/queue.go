package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"watch-harvest/pkg/config"
	"watch-harvest/pkg/discover"
	"watch-harvest/pkg/extract"
	"watch-harvest/pkg/models"
	"watch-harvest/pkg/resume"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Discoverer finds product links reachable from one listing seed.
type Discoverer interface {
	Discover(ctx context.Context, seedURL string, pattern *regexp.Regexp) ([]string, error)
}

// DiscoverAll runs discovery for every seed, at most parallel at a time, and
// returns the union of links in seed order then first-seen order. A failing
// seed is logged and skipped.
func DiscoverAll(ctx context.Context, d Discoverer, seeds []string, pattern *regexp.Regexp, parallel int) ([]string, error) {
	perSeed := make([][]string, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, seed := range seeds {
		g.Go(func() error {
			links, err := d.Discover(gctx, seed, pattern)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.WithField("seed", seed).Errorf("discovery failed: %v", err)
				return nil
			}
			log.WithField("seed", seed).Infof("discovered %d product links", len(links))
			perSeed[i] = links
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := discover.NewLinkSet()
	for _, links := range perSeed {
		for _, l := range links {
			set.Add(l)
		}
	}
	return set.Links(), nil
}

// QueueStats counts what each queue building step removed.
type QueueStats struct {
	Discovered    int
	FamilyDropped int
	CapDropped    int
	ResumeSkipped int
	LimitDropped  int
}

// BuildQueue filters by family, caps each family in first-seen order,
// applies the resume filter, sorts by URL and applies the global limit.
func BuildQueue(site *config.SiteConfig, urls []string, opts config.Options, filter *resume.Filter) ([]models.CrawlQueueEntry, QueueStats) {
	stats := QueueStats{Discovered: len(urls)}

	wanted := make(map[string]bool, len(opts.Collections))
	for _, c := range opts.Collections {
		wanted[extract.Slugify(c)] = true
	}

	perFamily := make(map[string]int)
	entries := make([]models.CrawlQueueEntry, 0, len(urls))
	for _, u := range urls {
		family := extract.FamilyOf(site, u)
		if !opts.All && len(wanted) > 0 {
			if family = requestedFamily(u, wanted); family == "" {
				stats.FamilyDropped++
				continue
			}
		}
		if opts.MaxPerFamily > 0 && perFamily[family] >= opts.MaxPerFamily {
			stats.CapDropped++
			continue
		}
		perFamily[family]++
		entries = append(entries, models.CrawlQueueEntry{
			URL:       u,
			Reference: extract.DeriveReference(site, u),
			Family:    family,
		})
	}

	if filter != nil {
		entries, stats.ResumeSkipped = filter.Apply(entries)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })

	if opts.Limit > 0 && len(entries) > opts.Limit {
		stats.LimitDropped = len(entries) - opts.Limit
		entries = entries[:opts.Limit]
	}
	return entries, stats
}

// requestedFamily returns the first path segment naming a wanted collection.
func requestedFamily(rawURL string, wanted map[string]bool) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg = extract.Slugify(strings.TrimSuffix(seg, ".html")); wanted[seg] {
			return seg
		}
	}
	return ""
}

// WriteURLList writes one URL per line.
func WriteURLList(path string, entries []models.CrawlQueueEntry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create url list: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := w.WriteString(strings.TrimSpace(e.URL) + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
