package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ntanasko/floorsync/internal/listing"
)

// ListingStore persists listings in Postgres, keyed by source_id.
type ListingStore struct {
	pool querier
}

// NewListingStore constructs a store from an existing pool.
func NewListingStore(pool querier) (*ListingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ListingStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertListingSQL = `
INSERT INTO listings (id, source_id, active, first_seen, last_seen, record)
VALUES ($1, $2, TRUE, now(), now(), $3)
ON CONFLICT (source_id) DO UPDATE
SET active = TRUE, last_seen = now(), record = EXCLUDED.record
RETURNING id`

// UpsertByKey implements listing.Store.
func (s *ListingStore) UpsertByKey(ctx context.Context, sourceID string, rec listing.Record) (string, error) {
	if sourceID == "" {
		return "", fmt.Errorf("source id is required")
	}
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	var localID string
	err = s.pool.QueryRow(ctx, upsertListingSQL, uuid.NewString(), sourceID, recordJSON).Scan(&localID)
	if err != nil {
		return "", fmt.Errorf("upsert listing: %w", err)
	}
	return localID, nil
}

const getListingSQL = `
SELECT id, source_id, active, first_seen, last_seen, record
FROM listings WHERE source_id = $1`

// GetByKey implements listing.Store.
func (s *ListingStore) GetByKey(ctx context.Context, sourceID string) (listing.Listing, error) {
	var (
		l          listing.Listing
		recordJSON []byte
	)
	err := s.pool.QueryRow(ctx, getListingSQL, sourceID).
		Scan(&l.LocalID, &l.SourceID, &l.Active, &l.FirstSeen, &l.LastSeen, &recordJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return listing.Listing{}, listing.ErrNotFound
	}
	if err != nil {
		return listing.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	if err := json.Unmarshal(recordJSON, &l.Record); err != nil {
		return listing.Listing{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return l, nil
}

const listKeysSQL = `SELECT source_id, id FROM listings`

// ListKeys implements listing.Store.
func (s *ListingStore) ListKeys(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, listKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]string)
	for rows.Next() {
		var sourceID, localID string
		if err := rows.Scan(&sourceID, &localID); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys[sourceID] = localID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

const setActiveSQL = `UPDATE listings SET active = $2 WHERE id = $1`

// SetActive implements listing.Store.
func (s *ListingStore) SetActive(ctx context.Context, localID string, active bool) error {
	tag, err := s.pool.Exec(ctx, setActiveSQL, localID, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return listing.ErrNotFound
	}
	return nil
}

const listListingsSQL = `
SELECT id, source_id, active, first_seen, last_seen, record
FROM listings
WHERE ($1 = FALSE OR active = TRUE)
ORDER BY first_seen DESC`

// ListListings implements listing.Store.
func (s *ListingStore) ListListings(ctx context.Context, activeOnly bool) ([]listing.Listing, error) {
	rows, err := s.pool.Query(ctx, listListingsSQL, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []listing.Listing
	for rows.Next() {
		var (
			l          listing.Listing
			recordJSON []byte
		)
		if err := rows.Scan(&l.LocalID, &l.SourceID, &l.Active, &l.FirstSeen, &l.LastSeen, &recordJSON); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if err := json.Unmarshal(recordJSON, &l.Record); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return out, nil
}
