package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ntanasko/floorsync/internal/listing"
)

// ImageStore persists image origins and attachments in Postgres.
type ImageStore struct {
	pool querier
}

// NewImageStore constructs a store from an existing pool.
func NewImageStore(pool querier) (*ImageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ImageStore{pool: pool}, nil
}

const findOriginSQL = `SELECT blob_uri FROM listing_images WHERE origin_url = $1`

// FindByOriginURL implements listing.ImageStore.
func (s *ImageStore) FindByOriginURL(ctx context.Context, url string) (string, error) {
	var blobURI string
	err := s.pool.QueryRow(ctx, findOriginSQL, url).Scan(&blobURI)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", listing.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find origin: %w", err)
	}
	return blobURI, nil
}

const saveOriginSQL = `
INSERT INTO listing_images (origin_url, blob_uri) VALUES ($1, $2)
ON CONFLICT (origin_url) DO NOTHING`

// SaveOrigin implements listing.ImageStore. A concurrent save of the
// same origin keeps the first blob.
func (s *ImageStore) SaveOrigin(ctx context.Context, url, blobURI string) error {
	if _, err := s.pool.Exec(ctx, saveOriginSQL, url, blobURI); err != nil {
		return fmt.Errorf("save origin: %w", err)
	}
	return nil
}

const attachSQL = `
INSERT INTO listing_image_attachments (listing_id, blob_uri) VALUES ($1, $2)
ON CONFLICT (listing_id, blob_uri) DO NOTHING`

// Attach implements listing.ImageStore.
func (s *ImageStore) Attach(ctx context.Context, localID, blobURI string) error {
	if _, err := s.pool.Exec(ctx, attachSQL, localID, blobURI); err != nil {
		return fmt.Errorf("attach image: %w", err)
	}
	return nil
}

const setPrimarySQL = `
UPDATE listing_image_attachments
SET is_primary = (blob_uri = $2)
WHERE listing_id = $1`

// SetPrimary implements listing.ImageStore. One statement both promotes
// the target and demotes any previous primary.
func (s *ImageStore) SetPrimary(ctx context.Context, localID, blobURI string) error {
	if _, err := s.pool.Exec(ctx, setPrimarySQL, localID, blobURI); err != nil {
		return fmt.Errorf("set primary: %w", err)
	}
	return nil
}

const hasPrimarySQL = `
SELECT EXISTS (
	SELECT 1 FROM listing_image_attachments
	WHERE listing_id = $1 AND is_primary
)`

// HasPrimary implements listing.ImageStore.
func (s *ImageStore) HasPrimary(ctx context.Context, localID string) (bool, error) {
	var has bool
	if err := s.pool.QueryRow(ctx, hasPrimarySQL, localID).Scan(&has); err != nil {
		return false, fmt.Errorf("has primary: %w", err)
	}
	return has, nil
}
