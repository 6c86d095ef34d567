// Package listing defines core types shared across subsystems.
package listing

import (
	"time"
)

// Record is one rental unit as extracted from source markup. Every field
// except SourceID is best-effort: an empty value means the markup did not
// carry it, never that extraction failed.
type Record struct {
	Title        string   `json:"title,omitempty"`
	Price        *int     `json:"price,omitempty"`
	Bedrooms     *float64 `json:"bedrooms,omitempty"`
	Bathrooms    *float64 `json:"bathrooms,omitempty"`
	Sqft         *float64 `json:"sqft,omitempty"`
	Address      string   `json:"address,omitempty"`
	Availability string   `json:"availability,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	GalleryURLs  []string `json:"gallery_urls,omitempty"`
	DetailURL    string   `json:"detail_url,omitempty"`
	UnitLabel    string   `json:"unit,omitempty"`

	// SourceID is assigned by the identity resolver, not the extractor.
	SourceID string `json:"source_id"`
}

// Listing is the persisted form of a Record. SourceID is unique across
// active and inactive listings combined and never changes once assigned.
type Listing struct {
	LocalID   string    `json:"local_id"`
	SourceID  string    `json:"source_id"`
	Active    bool      `json:"active"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Record    Record    `json:"record"`
}

// GalleryImage ties a stored blob to a listing. SourceURL is globally
// unique across all listings; the same remote image is stored once and
// referenced from every listing that carries it.
type GalleryImage struct {
	ListingID string `json:"listing_id"`
	SourceURL string `json:"source_url"`
	BlobURI   string `json:"blob_uri"`
	Primary   bool   `json:"primary"`
}

// RunStatus is the terminal state of a sync run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SyncStats counts the outcomes of one run.
type SyncStats struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Deactivated int `json:"deactivated"`
	Errors      int `json:"errors"`
	Extracted   int `json:"extracted"`
	KnownBefore int `json:"known_before"`
}

// RunRecord is persisted for every sync run, success or failure.
type RunRecord struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	StatusText string     `json:"status_text"`
	Stats      SyncStats  `json:"stats"`
}

// Progress is the snapshot a polling caller reads while a run advances.
// Percentage is monotonically non-decreasing within one run and resets to
// zero only when a new run starts.
type Progress struct {
	Percentage int       `json:"percentage"`
	Status     string    `json:"status"`
	Running    bool      `json:"running"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Page is the result of fetching one URL.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// IntPtr returns a pointer to v. Convenience for building Records.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v. Convenience for building Records.
func FloatPtr(v float64) *float64 { return &v }
