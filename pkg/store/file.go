package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"watch-harvest/pkg/models"

	log "github.com/sirupsen/logrus"
)

// FileStore keeps the dataset in a JSON lines file, one record per line in
// first-insert order. The whole file is rewritten on every upsert.
type FileStore struct {
	mu      sync.Mutex
	path    string
	order   []string
	records map[string]models.ProductRecord
}

func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, records: map[string]models.ProductRecord{}}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec models.ProductRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warnf("dataset %s line %d skipped: %v", path, line, err)
			continue
		}
		ref := models.NormalizeReference(rec.Reference)
		if ref == "" {
			continue
		}
		normalizeLoaded(&rec)
		if existing, ok := s.records[ref]; ok {
			rec = models.Merge(existing, rec)
		} else {
			s.order = append(s.order, ref)
		}
		s.records[ref] = rec
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) FindByKey(_ context.Context, reference string) (*models.ProductRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[models.NormalizeReference(reference)]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &rec, nil
}

func (s *FileStore) Upsert(_ context.Context, rec models.ProductRecord) (models.ProductRecord, error) {
	ref, err := validate(rec)
	if err != nil {
		return models.ProductRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[ref]
	if !ok {
		existing = models.ProductRecord{Reference: ref, Price: models.UnknownPrice(), Movement: models.NewMovementSpec()}
	}
	merged := models.Merge(existing, rec)
	prevOrder := s.order
	s.records[ref] = merged
	if !ok {
		s.order = append(s.order, ref)
	}
	if err := s.flush(); err != nil {
		if ok {
			s.records[ref] = existing
		} else {
			delete(s.records, ref)
			s.order = prevOrder
		}
		return models.ProductRecord{}, err
	}
	return merged, nil
}

func (s *FileStore) ListAll(_ context.Context) ([]models.ProductRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProductRecord, 0, len(s.order))
	for _, ref := range s.order {
		out = append(out, s.records[ref])
	}
	return out, nil
}

func (s *FileStore) Close() error { return nil }

// flush writes to a temp file and renames it over the dataset.
func (s *FileStore) flush() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create dataset dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp dataset: %w", err)
	}
	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, ref := range s.order {
		if err := enc.Encode(s.records[ref]); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("failed to encode %s: %w", ref, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
