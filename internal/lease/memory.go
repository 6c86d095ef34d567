// Package lease implements the advisory run lease in memory and on
// Postgres.
package lease

import (
	"context"
	"sync"
	"time"
)

// Memory is a single-process lease. Acquire succeeds when the lease is
// free or its TTL has lapsed, which is how a crashed run's lock ages out.
type Memory struct {
	mu      sync.Mutex
	held    bool
	expires time.Time
	now     func() time.Time
}

// NewMemory builds a Memory lease.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Acquire implements listing.Lease.
func (m *Memory) Acquire(_ context.Context, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.held && now.Before(m.expires) {
		return false, nil
	}
	m.held = true
	m.expires = now.Add(ttl)
	return true, nil
}

// Release implements listing.Lease.
func (m *Memory) Release(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = false
	return nil
}
