// Package memory provides in-memory store implementations used in
// development mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ntanasko/floorsync/internal/listing"
)

// ListingStore keeps listings in maps keyed by source and local IDs.
// Safe for concurrent use.
type ListingStore struct {
	mu       sync.RWMutex
	bySource map[string]*listing.Listing
	byLocal  map[string]*listing.Listing
	clock    listing.Clock
}

// NewListingStore builds an empty ListingStore.
func NewListingStore(clock listing.Clock) *ListingStore {
	if clock == nil {
		clock = listing.SystemClock{}
	}
	return &ListingStore{
		bySource: make(map[string]*listing.Listing),
		byLocal:  make(map[string]*listing.Listing),
		clock:    clock,
	}
}

// UpsertByKey implements listing.Store.
func (s *ListingStore) UpsertByKey(_ context.Context, sourceID string, rec listing.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if l, ok := s.bySource[sourceID]; ok {
		l.Record = rec
		l.Active = true
		l.LastSeen = now
		return l.LocalID, nil
	}
	l := &listing.Listing{
		LocalID:   uuid.NewString(),
		SourceID:  sourceID,
		Active:    true,
		FirstSeen: now,
		LastSeen:  now,
		Record:    rec,
	}
	s.bySource[sourceID] = l
	s.byLocal[l.LocalID] = l
	return l.LocalID, nil
}

// GetByKey implements listing.Store.
func (s *ListingStore) GetByKey(_ context.Context, sourceID string) (listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.bySource[sourceID]
	if !ok {
		return listing.Listing{}, listing.ErrNotFound
	}
	return *l, nil
}

// ListKeys implements listing.Store.
func (s *ListingStore) ListKeys(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(map[string]string, len(s.bySource))
	for sourceID, l := range s.bySource {
		keys[sourceID] = l.LocalID
	}
	return keys, nil
}

// SetActive implements listing.Store.
func (s *ListingStore) SetActive(_ context.Context, localID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byLocal[localID]
	if !ok {
		return listing.ErrNotFound
	}
	l.Active = active
	return nil
}

// ListListings implements listing.Store.
func (s *ListingStore) ListListings(_ context.Context, activeOnly bool) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]listing.Listing, 0, len(s.bySource))
	for _, l := range s.bySource {
		if activeOnly && !l.Active {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FirstSeen.After(out[j].FirstSeen)
	})
	return out, nil
}
