package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"watch-harvest/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS watch_records (
    reference TEXT PRIMARY KEY,
    data JSONB NOT NULL,
    source_url TEXT NOT NULL,
    last_updated TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, reference string) (*models.ProductRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM watch_records WHERE reference = $1`,
		models.NormalizeReference(reference),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.ProductRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", reference, err)
	}
	normalizeLoaded(&rec)
	return &rec, nil
}

// Upsert locks the row, merges in Go and writes the merged document back.
func (s *PostgresStore) Upsert(ctx context.Context, rec models.ProductRecord) (models.ProductRecord, error) {
	ref, err := validate(rec)
	if err != nil {
		return models.ProductRecord{}, err
	}
	var merged models.ProductRecord
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		existing := models.ProductRecord{Reference: ref, Price: models.UnknownPrice(), Movement: models.NewMovementSpec()}
		var data []byte
		err := tx.QueryRow(ctx, `SELECT data FROM watch_records WHERE reference = $1 FOR UPDATE`, ref).Scan(&data)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("failed to decode %s: %w", ref, err)
			}
			normalizeLoaded(&existing)
		}

		merged = models.Merge(existing, rec)
		encoded, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO watch_records (reference, data, source_url, last_updated)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (reference)
			 DO UPDATE SET data = EXCLUDED.data, last_updated = EXCLUDED.last_updated`,
			ref, encoded, merged.SourceURL, merged.LastUpdated,
		)
		return err
	})
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("failed to upsert %s: %w", ref, err)
	}
	return merged, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]models.ProductRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM watch_records ORDER BY created_at, reference`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ProductRecord, error) {
		var data []byte
		if err := row.Scan(&data); err != nil {
			return models.ProductRecord{}, err
		}
		var rec models.ProductRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return rec, err
		}
		normalizeLoaded(&rec)
		return rec, nil
	})
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
