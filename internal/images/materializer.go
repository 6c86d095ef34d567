// Package images downloads listing photos into blob storage and records
// their attachment to listings.
package images

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/listing"
)

// maxImageBytes bounds a single download. Listing photos are a few
// hundred KB; anything larger is not worth storing.
const maxImageBytes = 20 << 20

// Config parameterizes the materializer.
type Config struct {
	// Prefix is the leading path segment for stored objects.
	Prefix string
	// Timeout bounds one image download.
	Timeout time.Duration
	// UserAgent is sent on image requests.
	UserAgent string
}

// Materializer downloads images once per origin URL and attaches the
// stored copies to listings.
type Materializer struct {
	cfg    Config
	blobs  listing.BlobStore
	store  listing.ImageStore
	client *http.Client
	logger *zap.Logger
	clock  listing.Clock
}

// New builds a Materializer.
func New(cfg Config, blobs listing.BlobStore, store listing.ImageStore, logger *zap.Logger) *Materializer {
	if cfg.Prefix == "" {
		cfg.Prefix = "images"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{
		cfg:    cfg,
		blobs:  blobs,
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("images"),
		clock:  listing.SystemClock{},
	}
}

// Materialize stores the record's primary image and gallery for a newly
// created listing. Each origin URL is downloaded at most once across the
// whole installation; repeat URLs reuse the stored blob. Failures on
// individual images are logged and counted, never fatal to the caller.
func (m *Materializer) Materialize(ctx context.Context, localID string, rec listing.Record) (stored, failed int) {
	urls := make([]string, 0, 1+len(rec.GalleryURLs))
	if rec.ImageURL != "" {
		urls = append(urls, rec.ImageURL)
	}
	for _, u := range rec.GalleryURLs {
		if u != rec.ImageURL {
			urls = append(urls, u)
		}
	}

	for _, u := range urls {
		blobURI, err := m.ensureStored(ctx, u)
		if err != nil {
			failed++
			m.logger.Warn("image materialization failed",
				zap.String("listing_id", localID),
				zap.String("url", u),
				zap.Error(err),
			)
			continue
		}
		if err := m.store.Attach(ctx, localID, blobURI); err != nil {
			failed++
			m.logger.Warn("image attach failed",
				zap.String("listing_id", localID),
				zap.Error(err),
			)
			continue
		}
		stored++
		// First image that actually lands becomes the primary. A dead
		// lead URL must not leave the listing without one.
		if err := m.setPrimaryIfUnset(ctx, localID, blobURI); err != nil {
			m.logger.Warn("set primary image failed",
				zap.String("listing_id", localID),
				zap.Error(err),
			)
		}
	}
	return stored, failed
}

// ensureStored returns the blob URI for an origin URL, downloading and
// storing it only when no prior download exists.
func (m *Materializer) ensureStored(ctx context.Context, originURL string) (string, error) {
	if blobURI, err := m.store.FindByOriginURL(ctx, originURL); err == nil {
		return blobURI, nil
	} else if err != listing.ErrNotFound {
		return "", fmt.Errorf("lookup origin: %w", err)
	}

	data, contentType, err := m.download(ctx, originURL)
	if err != nil {
		return "", err
	}

	objectPath := m.objectName(originURL, contentType)
	blobURI, err := m.blobs.PutObject(ctx, objectPath, contentType, data)
	if err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	if err := m.store.SaveOrigin(ctx, originURL, blobURI); err != nil {
		return "", fmt.Errorf("save origin: %w", err)
	}
	m.logger.Info("image stored",
		zap.String("url", originURL),
		zap.String("blob_uri", blobURI),
		zap.Int("bytes", len(data)),
	)
	return blobURI, nil
}

func (m *Materializer) setPrimaryIfUnset(ctx context.Context, localID, blobURI string) error {
	has, err := m.store.HasPrimary(ctx, localID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	return m.store.SetPrimary(ctx, localID, blobURI)
}

func (m *Materializer) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download image: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// objectName builds a collision-free storage path:
// <prefix>/<yyyy/mm/dd>/<uuid><ext>.
func (m *Materializer) objectName(originURL, contentType string) string {
	ext := path.Ext(strings.SplitN(path.Base(originURL), "?", 2)[0])
	if ext == "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	now := m.clock.Now()
	return fmt.Sprintf("%s/%s/%s%s", m.cfg.Prefix, now.Format("2006/01/02"), uuid.NewString(), ext)
}
