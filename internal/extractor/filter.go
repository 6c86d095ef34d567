package extractor

import (
	"strings"

	"github.com/ntanasko/floorsync/internal/listing"
)

// Filter keeps only records belonging to one building. Matching is a
// case-insensitive substring test over the record's address, title, and
// unit label. An empty filter text admits everything.
type Filter struct {
	text string
}

// NewFilter builds a Filter for the given building text.
func NewFilter(text string) *Filter {
	return &Filter{text: strings.ToLower(strings.TrimSpace(text))}
}

// Matches reports whether the record belongs to the configured building.
func (f *Filter) Matches(rec listing.Record) bool {
	if f.text == "" {
		return true
	}
	haystack := strings.ToLower(rec.Address + " " + rec.Title + " " + rec.UnitLabel)
	return strings.Contains(haystack, f.text)
}

// Apply returns the records admitted by the filter, preserving order.
func (f *Filter) Apply(records []listing.Record) []listing.Record {
	if f.text == "" {
		return records
	}
	kept := records[:0:0]
	for _, rec := range records {
		if f.Matches(rec) {
			kept = append(kept, rec)
		}
	}
	return kept
}
