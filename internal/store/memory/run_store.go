package memory

import (
	"context"
	"sync"

	"github.com/ntanasko/floorsync/internal/listing"
)

const defaultRunLogSize = 50

// RunStore keeps a bounded log of sync runs, newest last. When the log
// is full the oldest run is evicted.
type RunStore struct {
	mu   sync.RWMutex
	runs []listing.RunRecord
	max  int
}

// NewRunStore builds a RunStore holding up to max runs.
func NewRunStore(max int) *RunStore {
	if max <= 0 {
		max = defaultRunLogSize
	}
	return &RunStore{max: max}
}

// SaveRun implements listing.RunStore.
func (s *RunStore) SaveRun(_ context.Context, run listing.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	if len(s.runs) > s.max {
		s.runs = s.runs[len(s.runs)-s.max:]
	}
	return nil
}

// ListRuns implements listing.RunStore, newest first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]listing.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.runs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]listing.RunRecord, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, s.runs[n-1-i])
	}
	return out, nil
}

// LastRun implements listing.RunStore.
func (s *RunStore) LastRun(_ context.Context) (listing.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return listing.RunRecord{}, listing.ErrNotFound
	}
	return s.runs[len(s.runs)-1], nil
}
