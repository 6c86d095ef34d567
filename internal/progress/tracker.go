// Package progress tracks sync run progress and fans updates out to
// registered sinks.
package progress

import (
	"sync"
	"time"

	"github.com/ntanasko/floorsync/internal/listing"
)

// Sink receives every accepted progress update.
type Sink interface {
	Record(p listing.Progress)
}

// Tracker implements listing.ProgressPublisher. Updates are applied
// synchronously so a snapshot taken after Publish returns always
// reflects it. Within a running sync the percentage is monotonic:
// a lower percentage than the current one is clamped up, never shown.
type Tracker struct {
	mu      sync.Mutex
	current listing.Progress
	sinks   []Sink
	now     func() time.Time
}

// NewTracker builds a Tracker fanning out to the given sinks.
func NewTracker(sinks ...Sink) *Tracker {
	return &Tracker{sinks: sinks, now: time.Now}
}

// Publish records a progress update and notifies all sinks.
func (t *Tracker) Publish(p listing.Progress) {
	t.mu.Lock()
	if p.Running && t.current.Running && p.Percentage < t.current.Percentage {
		p.Percentage = t.current.Percentage
	}
	p.UpdatedAt = t.now()
	t.current = p
	sinks := t.sinks
	t.mu.Unlock()

	for _, s := range sinks {
		s.Record(p)
	}
}

// Snapshot returns the latest progress.
func (t *Tracker) Snapshot() listing.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Stalled reports whether a run is marked in-flight but has not moved
// within the given window. The watchdog uses this to decide whether a
// crashed run's lease may be broken.
func (t *Tracker) Stalled(after time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.current.Running {
		return false
	}
	return t.now().Sub(t.current.UpdatedAt) > after
}
