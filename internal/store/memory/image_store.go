package memory

import (
	"context"
	"sync"

	"github.com/ntanasko/floorsync/internal/listing"
)

// ImageStore tracks downloaded images and their listing attachments in
// memory. Safe for concurrent use.
type ImageStore struct {
	mu       sync.RWMutex
	byOrigin map[string]string
	attached map[string][]listing.GalleryImage
	primary  map[string]string
}

// NewImageStore builds an empty ImageStore.
func NewImageStore() *ImageStore {
	return &ImageStore{
		byOrigin: make(map[string]string),
		attached: make(map[string][]listing.GalleryImage),
		primary:  make(map[string]string),
	}
}

// FindByOriginURL implements listing.ImageStore.
func (s *ImageStore) FindByOriginURL(_ context.Context, url string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blobURI, ok := s.byOrigin[url]
	if !ok {
		return "", listing.ErrNotFound
	}
	return blobURI, nil
}

// SaveOrigin implements listing.ImageStore.
func (s *ImageStore) SaveOrigin(_ context.Context, url, blobURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOrigin[url] = blobURI
	return nil
}

// Attach implements listing.ImageStore. Attaching the same blob twice
// is a no-op.
func (s *ImageStore) Attach(_ context.Context, localID, blobURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.attached[localID] {
		if img.BlobURI == blobURI {
			return nil
		}
	}
	s.attached[localID] = append(s.attached[localID], listing.GalleryImage{
		ListingID: localID,
		BlobURI:   blobURI,
	})
	return nil
}

// SetPrimary implements listing.ImageStore.
func (s *ImageStore) SetPrimary(_ context.Context, localID, blobURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primary[localID] = blobURI
	return nil
}

// HasPrimary implements listing.ImageStore.
func (s *ImageStore) HasPrimary(_ context.Context, localID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.primary[localID]
	return ok, nil
}

// Attached returns the images attached to a listing, for tests and the
// read API.
func (s *ImageStore) Attached(localID string) []listing.GalleryImage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]listing.GalleryImage, len(s.attached[localID]))
	copy(out, s.attached[localID])
	primary := s.primary[localID]
	for i := range out {
		out[i].Primary = out[i].BlobURI == primary
	}
	return out
}
