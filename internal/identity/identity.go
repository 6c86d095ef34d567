// Package identity assigns stable source identifiers to extracted
// records and collapses duplicates within one extraction pass.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/listing"
)

// Detail URLs embed the source system's listing UUID; it is the one
// identifier that survives price changes and relistings.
var uuidRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// hashPrefix distinguishes derived identifiers from native UUIDs in
// stored keys.
const hashPrefix = "h:"

// Resolver derives the source identifier for a record.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver builds a Resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Resolve returns the stable identifier for a record: the UUID found in
// the detail URL when present, otherwise a content hash over the fields
// least likely to change between runs. Records with no detail URL and no
// hashable content get no identifier at all.
func (r *Resolver) Resolve(rec listing.Record) (string, bool) {
	if rec.DetailURL != "" {
		if id := uuidRe.FindString(rec.DetailURL); id != "" {
			return strings.ToLower(id), true
		}
	}
	if rec.Address == "" && rec.UnitLabel == "" && rec.Price == nil && rec.Bedrooms == nil {
		r.logger.Warn("record has no identity material", zap.String("title", rec.Title))
		return "", false
	}
	return hashPrefix + contentHash(rec), true
}

// contentHash joins the stable fields with a separator that cannot
// appear in them, so "1 Main|2" and "1 Main 2|" never collide.
func contentHash(rec listing.Record) string {
	parts := []string{
		rec.Address,
		rec.UnitLabel,
		formatInt(rec.Price),
		formatFloat(rec.Bedrooms),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func formatInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func formatFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

// Dedupe drops records whose identifier was already seen earlier in the
// slice. The first occurrence wins. Records that could not be assigned
// an identifier are kept as-is; they cannot be compared, and dropping
// them would hide extraction problems from run stats.
func Dedupe(records []listing.Record) []listing.Record {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, rec := range records {
		if rec.SourceID == "" {
			out = append(out, rec)
			continue
		}
		if _, dup := seen[rec.SourceID]; dup {
			continue
		}
		seen[rec.SourceID] = struct{}{}
		out = append(out, rec)
	}
	return out
}
