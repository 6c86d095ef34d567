package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ntanasko/floorsync/internal/listing"
)

// RunStore persists the bounded sync run log in Postgres.
type RunStore struct {
	pool querier
	max  int
}

// NewRunStore constructs a store keeping at most max runs.
func NewRunStore(pool querier, max int) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if max <= 0 {
		max = 50
	}
	return &RunStore{pool: pool, max: max}, nil
}

const insertRunSQL = `
INSERT INTO sync_runs (id, started_at, finished_at, status, status_text, stats)
VALUES ($1, $2, $3, $4, $5, $6)`

const pruneRunsSQL = `
DELETE FROM sync_runs
WHERE id NOT IN (SELECT id FROM sync_runs ORDER BY started_at DESC LIMIT $1)`

// SaveRun implements listing.RunStore, evicting beyond the bound.
func (s *RunStore) SaveRun(ctx context.Context, run listing.RunRecord) error {
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = s.pool.Exec(ctx, insertRunSQL,
		run.ID, run.StartedAt, run.FinishedAt, string(run.Status), run.StatusText, statsJSON)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err := s.pool.Exec(ctx, pruneRunsSQL, s.max); err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return nil
}

const listRunsSQL = `
SELECT id, started_at, finished_at, status, status_text, stats
FROM sync_runs ORDER BY started_at DESC LIMIT $1`

// ListRuns implements listing.RunStore, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]listing.RunRecord, error) {
	if limit <= 0 || limit > s.max {
		limit = s.max
	}
	rows, err := s.pool.Query(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []listing.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

const lastRunSQL = `
SELECT id, started_at, finished_at, status, status_text, stats
FROM sync_runs ORDER BY started_at DESC LIMIT 1`

// LastRun implements listing.RunStore.
func (s *RunStore) LastRun(ctx context.Context) (listing.RunRecord, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, lastRunSQL))
	if errors.Is(err, pgx.ErrNoRows) {
		return listing.RunRecord{}, listing.ErrNotFound
	}
	return run, err
}

func scanRun(row pgx.Row) (listing.RunRecord, error) {
	var (
		run       listing.RunRecord
		status    string
		statsJSON []byte
	)
	err := row.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &status, &run.StatusText, &statsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return listing.RunRecord{}, err
	}
	if err != nil {
		return listing.RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = listing.RunStatus(status)
	if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
		return listing.RunRecord{}, fmt.Errorf("unmarshal stats: %w", err)
	}
	return run, nil
}
