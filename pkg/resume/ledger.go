package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"watch-harvest/pkg/models"

	"github.com/cockroachdb/pebble"
)

const urlPrefix = "url/"

// Entry records that a URL was extracted and produced a confirmed reference.
type Entry struct {
	Reference   string    `json:"reference"`
	Source      string    `json:"source"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// Ledger maps product URLs to references confirmed by real extraction.
// Title-slug references are never recorded.
type Ledger struct {
	db *pebble.DB
}

func OpenLedger(dir string) (*Ledger, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Ledger{db: d}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) Record(url string, e Entry) error {
	e.Reference = models.NormalizeReference(e.Reference)
	if url == "" || e.Reference == "" {
		return errors.New("ledger entry needs a url and a reference")
	}
	bytes, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return l.db.Set([]byte(urlPrefix+url), bytes, pebble.Sync)
}

func (l *Ledger) Lookup(url string) (Entry, bool, error) {
	v, closer, err := l.db.Get([]byte(urlPrefix + url))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	defer closer.Close()
	var e Entry
	if err := json.Unmarshal(v, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (l *Ledger) Forget(url string) error {
	return l.db.Delete([]byte(urlPrefix+url), pebble.Sync)
}

// Len counts ledger entries.
func (l *Ledger) Len() (int, error) {
	it, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(urlPrefix),
		UpperBound: []byte("url0"),
	})
	if err != nil {
		return 0, err
	}
	defer it.Close()
	n := 0
	for it.First(); it.Valid(); it.Next() {
		n++
	}
	return n, it.Error()
}
