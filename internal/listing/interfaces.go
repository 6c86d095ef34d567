package listing

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a key has no entry.
var ErrNotFound = errors.New("not found")

// Fetcher retrieves one HTML document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Store persists listings keyed by their stable source identity.
type Store interface {
	// UpsertByKey creates or updates the listing for sourceID and returns
	// its opaque local handle. An upsert always marks the listing active.
	UpsertByKey(ctx context.Context, sourceID string, rec Record) (string, error)
	GetByKey(ctx context.Context, sourceID string) (Listing, error)
	// ListKeys returns every known source_id mapped to its local handle,
	// active and inactive alike.
	ListKeys(ctx context.Context) (map[string]string, error)
	SetActive(ctx context.Context, localID string, active bool) error
	// ListListings returns listings for the read API, newest first.
	// When activeOnly is set, deactivated listings are omitted.
	ListListings(ctx context.Context, activeOnly bool) ([]Listing, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// ImageStore records blob handles for downloaded images and their
// attachment to listings. Uniqueness is on the origin URL: the same
// remote image is stored once no matter how many listings reference it.
type ImageStore interface {
	FindByOriginURL(ctx context.Context, url string) (string, error)
	SaveOrigin(ctx context.Context, url, blobURI string) error
	Attach(ctx context.Context, localID, blobURI string) error
	// SetPrimary designates blobURI as the listing's primary image.
	// It is idempotent and demotes any previous primary.
	SetPrimary(ctx context.Context, localID, blobURI string) error
	HasPrimary(ctx context.Context, localID string) (bool, error)
}

// RunStore appends run records to a bounded log, evicting the oldest.
type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	LastRun(ctx context.Context) (RunRecord, error)
}

// Lease grants time-boxed exclusivity for a sync run. It is advisory:
// the reconciler's diff algorithm stays safe if a watchdog bypasses it.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// ProgressPublisher exposes run progress to concurrent readers.
type ProgressPublisher interface {
	Publish(p Progress)
	Snapshot() Progress
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
