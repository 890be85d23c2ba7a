package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"watch-harvest/pkg/models"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one writer at a time; concurrent upserts queue on the pool
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			reference TEXT NOT NULL PRIMARY KEY,
			data TEXT NOT NULL,
			source_url TEXT NOT NULL,
			last_updated DATETIME NOT NULL,
			seq INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func scanRecord(data string) (models.ProductRecord, error) {
	var rec models.ProductRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return rec, err
	}
	normalizeLoaded(&rec)
	return rec, nil
}

func (s *SQLiteStore) FindByKey(ctx context.Context, reference string) (*models.ProductRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE reference = ?`,
		models.NormalizeReference(reference),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", reference, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec models.ProductRecord) (models.ProductRecord, error) {
	ref, err := validate(rec)
	if err != nil {
		return models.ProductRecord{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ProductRecord{}, err
	}
	defer tx.Rollback()

	existing := models.ProductRecord{Reference: ref, Price: models.UnknownPrice(), Movement: models.NewMovementSpec()}
	var data string
	switch err := tx.QueryRowContext(ctx, `SELECT data FROM records WHERE reference = ?`, ref).Scan(&data); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return models.ProductRecord{}, err
	default:
		if existing, err = scanRecord(data); err != nil {
			return models.ProductRecord{}, fmt.Errorf("failed to decode %s: %w", ref, err)
		}
	}

	merged := models.Merge(existing, rec)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return models.ProductRecord{}, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (reference, data, source_url, last_updated, seq)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM records))
		 ON CONFLICT(reference)
		 DO UPDATE SET data = excluded.data, last_updated = excluded.last_updated`,
		ref, string(encoded), merged.SourceURL, merged.LastUpdated,
	)
	if err != nil {
		return models.ProductRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.ProductRecord{}, err
	}
	return merged, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]models.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reference, data FROM records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProductRecord
	for rows.Next() {
		var ref, data string
		if err := rows.Scan(&ref, &data); err != nil {
			return nil, err
		}
		rec, err := scanRecord(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", ref, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
