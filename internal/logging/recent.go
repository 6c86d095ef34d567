package logging

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Entry is one captured log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// RecentBuffer is a zapcore.Core that keeps the most recent entries in a
// fixed-size ring. Oldest entries are evicted once the ring is full. It
// is safe for concurrent use.
type RecentBuffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	level   zapcore.Level
}

const defaultRecentCapacity = 200

// NewRecentBuffer creates a ring holding up to capacity entries.
func NewRecentBuffer(capacity int) *RecentBuffer {
	if capacity <= 0 {
		capacity = defaultRecentCapacity
	}
	return &RecentBuffer{
		entries: make([]Entry, capacity),
		level:   zapcore.InfoLevel,
	}
}

// Enabled implements zapcore.Core.
func (b *RecentBuffer) Enabled(lvl zapcore.Level) bool {
	return lvl >= b.level
}

// With implements zapcore.Core. Structured fields are not retained in
// the ring; the message line is what operators read.
func (b *RecentBuffer) With([]zapcore.Field) zapcore.Core { return b }

// Check implements zapcore.Core.
func (b *RecentBuffer) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if b.Enabled(ent.Level) {
		return ce.AddCore(ent, b)
	}
	return ce
}

// Write implements zapcore.Core.
func (b *RecentBuffer) Write(ent zapcore.Entry, _ []zapcore.Field) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = Entry{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Message: ent.Message,
	}
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.full = true
	}
	return nil
}

// Sync implements zapcore.Core; it performs no action.
func (b *RecentBuffer) Sync() error { return nil }

// Recent returns up to n entries, newest first.
func (b *RecentBuffer) Recent(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	size := b.next
	if b.full {
		size = len(b.entries)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := b.next - 1 - i
		if idx < 0 {
			idx += len(b.entries)
		}
		out = append(out, b.entries[idx])
	}
	return out
}
