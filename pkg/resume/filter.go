package resume

import (
	"watch-harvest/pkg/models"

	log "github.com/sirupsen/logrus"
)

// Reason says why a queue entry was skipped.
type Reason string

const (
	Keep          Reason = ""
	SkipDerived   Reason = "reference derived from url is stored"
	SkipConfirmed Reason = "reference confirmed for url is stored"
)

// Filter decides which queue entries are already in the dataset. It only
// skips on a URL-pattern reference or a ledger-confirmed one; anything
// ambiguous is kept for re-processing.
type Filter struct {
	Stored map[string]bool
	Ledger *Ledger
}

func (f *Filter) Check(e models.CrawlQueueEntry) Reason {
	if ref := models.NormalizeReference(e.Reference); ref != "" && f.Stored[ref] {
		return SkipDerived
	}
	if f.Ledger == nil {
		return Keep
	}
	entry, ok, err := f.Ledger.Lookup(e.URL)
	if err != nil {
		log.Warnf("resume ledger lookup for %s failed: %v", e.URL, err)
		return Keep
	}
	if ok && f.Stored[entry.Reference] {
		return SkipConfirmed
	}
	return Keep
}

// Apply returns the entries to keep, preserving order, and how many were skipped.
func (f *Filter) Apply(entries []models.CrawlQueueEntry) ([]models.CrawlQueueEntry, int) {
	kept := make([]models.CrawlQueueEntry, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if reason := f.Check(e); reason != Keep {
			log.WithFields(log.Fields{"url": e.URL, "reference": e.Reference}).Debugf("resume skip: %s", reason)
			skipped++
			continue
		}
		kept = append(kept, e)
	}
	return kept, skipped
}
