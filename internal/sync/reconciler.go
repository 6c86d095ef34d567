// Package sync implements the scrape-diff-persist reconciliation run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/extractor"
	"github.com/ntanasko/floorsync/internal/identity"
	"github.com/ntanasko/floorsync/internal/listing"
	"github.com/ntanasko/floorsync/internal/metrics"
)

// ErrAlreadyRunning means another run holds the lease.
var ErrAlreadyRunning = errors.New("a sync run is already in progress")

// Extractor parses fetched pages into records.
type Extractor interface {
	Extract(html []byte) []listing.Record
	ExtractGallery(html []byte) []string
}

// Resolver assigns stable identifiers to records.
type Resolver interface {
	Resolve(rec listing.Record) (string, bool)
}

// Materializer stores a created listing's images.
type Materializer interface {
	Materialize(ctx context.Context, localID string, rec listing.Record) (stored, failed int)
}

// Config parameterizes a run.
type Config struct {
	ListURL string
	// LeaseTTL caps how long a crashed run blocks the next one.
	LeaseTTL time.Duration
	// FetchGallery enables detail-page gallery scraping on create.
	FetchGallery bool
	// Topic is the completion event topic; empty disables publishing.
	Topic string
}

// Reconciler drives one full sync: fetch, extract, diff against the
// store, upsert survivors, deactivate the missing, record the run.
type Reconciler struct {
	cfg       Config
	fetcher   listing.Fetcher
	ext       Extractor
	filter    *extractor.Filter
	resolver  Resolver
	store     listing.Store
	images    Materializer
	runs      listing.RunStore
	lease     listing.Lease
	progress  listing.ProgressPublisher
	publisher listing.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	clock     listing.Clock
}

// Deps carries the reconciler's collaborators.
type Deps struct {
	Fetcher   listing.Fetcher
	Extractor Extractor
	Filter    *extractor.Filter
	Resolver  Resolver
	Store     listing.Store
	Images    Materializer
	Runs      listing.RunStore
	Lease     listing.Lease
	Progress  listing.ProgressPublisher
	Publisher listing.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Clock     listing.Clock
}

// New builds a Reconciler.
func New(cfg Config, deps Deps) *Reconciler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = listing.SystemClock{}
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 15 * time.Minute
	}
	return &Reconciler{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		ext:       deps.Extractor,
		filter:    deps.Filter,
		resolver:  deps.Resolver,
		store:     deps.Store,
		images:    deps.Images,
		runs:      deps.Runs,
		lease:     deps.Lease,
		progress:  deps.Progress,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger.Named("sync"),
		clock:     deps.Clock,
	}
}

// Run executes one sync end to end. The lease is released on every exit
// path. Listings are never deleted: a listing absent from the source is
// deactivated and revives on its next appearance.
func (r *Reconciler) Run(ctx context.Context) (listing.RunRecord, error) {
	acquired, err := r.lease.Acquire(ctx, r.cfg.LeaseTTL)
	if err != nil {
		return listing.RunRecord{}, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		r.logger.Info("sync skipped, lease is held")
		return listing.RunRecord{}, ErrAlreadyRunning
	}
	defer func() {
		if err := r.lease.Release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("lease release failed", zap.Error(err))
		}
	}()

	run := listing.RunRecord{
		ID:        uuid.NewString(),
		StartedAt: r.clock.Now(),
	}
	r.report(0, "starting")

	stats, runErr := r.execute(ctx, &run)
	run.Stats = stats
	finished := r.clock.Now()
	run.FinishedAt = &finished

	if runErr != nil {
		run.Status = listing.RunStatusFailed
		run.StatusText = runErr.Error()
		r.reportDone("failed: " + runErr.Error())
	} else {
		run.Status = listing.RunStatusCompleted
		run.StatusText = fmt.Sprintf("created %d, updated %d, deactivated %d",
			stats.Created, stats.Updated, stats.Deactivated)
		r.reportDone("done")
	}

	if err := r.runs.SaveRun(ctx, run); err != nil {
		r.logger.Error("saving run record failed", zap.Error(err))
	}
	r.observeRun(run, finished.Sub(run.StartedAt))
	r.notify(ctx, run)
	r.gaugeActive(ctx)

	r.logger.Info("sync finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("deactivated", stats.Deactivated),
		zap.Int("errors", stats.Errors),
		zap.Duration("dur", finished.Sub(run.StartedAt)),
	)
	return run, runErr
}

func (r *Reconciler) execute(ctx context.Context, run *listing.RunRecord) (listing.SyncStats, error) {
	var stats listing.SyncStats

	r.report(10, "fetching listings page")
	page, err := r.fetcher.Fetch(ctx, r.cfg.ListURL)
	if err != nil {
		r.countFetch("error")
		stats.Errors++
		return stats, fmt.Errorf("fetch listings page: %w", err)
	}
	r.countFetch("ok")

	r.report(20, "extracting records")
	records := r.ext.Extract(page.Body)
	if r.filter != nil {
		records = r.filter.Apply(records)
	}
	for i := range records {
		if id, ok := r.resolver.Resolve(records[i]); ok {
			records[i].SourceID = id
		}
	}
	records = identity.Dedupe(records)
	stats.Extracted = len(records)
	if len(records) == 0 {
		// Every known listing will be deactivated below. Legitimate when
		// the building empties out, alarming when the markup changed.
		r.logger.Warn("zero records extracted, all known listings will be deactivated",
			zap.String("run_id", run.ID))
	}

	r.report(30, "loading known listings")
	remaining, err := r.store.ListKeys(ctx)
	if err != nil {
		return stats, fmt.Errorf("list known listings: %w", err)
	}
	stats.KnownBefore = len(remaining)

	for i, rec := range records {
		r.report(30+(50*i)/max(len(records), 1), fmt.Sprintf("processing record %d of %d", i+1, len(records)))
		if rec.SourceID == "" {
			r.createAnonymous(ctx, rec, &stats)
			continue
		}
		_, known := remaining[rec.SourceID]
		localID, err := r.upsert(ctx, rec, known)
		if err != nil {
			stats.Errors++
			r.countRecord("error")
			r.logger.Error("record upsert failed",
				zap.String("source_id", rec.SourceID),
				zap.Error(err),
			)
			continue
		}
		delete(remaining, rec.SourceID)
		if known {
			stats.Updated++
			r.countRecord("updated")
			continue
		}
		stats.Created++
		r.countRecord("created")
		r.materialize(ctx, localID, rec, &stats)
	}

	r.report(85, "deactivating missing listings")
	for sourceID, localID := range remaining {
		if err := r.store.SetActive(ctx, localID, false); err != nil {
			stats.Errors++
			r.logger.Error("deactivation failed",
				zap.String("source_id", sourceID),
				zap.Error(err),
			)
			continue
		}
		stats.Deactivated++
		r.countRecord("deactivated")
	}
	r.report(95, "finalizing")
	return stats, nil
}

func (r *Reconciler) upsert(ctx context.Context, rec listing.Record, known bool) (string, error) {
	if known {
		// The gallery is only scraped at create time, but the upsert
		// replaces the whole record. Carry the stored URL list forward so
		// updates leave it intact.
		if len(rec.GalleryURLs) == 0 {
			if prior, err := r.store.GetByKey(ctx, rec.SourceID); err == nil {
				rec.GalleryURLs = prior.Record.GalleryURLs
			}
		}
		return r.store.UpsertByKey(ctx, rec.SourceID, rec)
	}
	if r.cfg.FetchGallery && rec.DetailURL != "" {
		// Gallery URLs ride on the record so the materializer sees them.
		// A detail-page failure costs only the gallery, not the listing.
		if detail, err := r.fetcher.Fetch(ctx, rec.DetailURL); err != nil {
			r.logger.Warn("detail page fetch failed, skipping gallery",
				zap.String("url", rec.DetailURL),
				zap.Error(err),
			)
		} else {
			rec.GalleryURLs = r.ext.ExtractGallery(detail.Body)
		}
	}
	return r.store.UpsertByKey(ctx, rec.SourceID, rec)
}

// createAnonymous stores a record that carries no stable identity under
// a one-off key. It can never match on the next run's diff, so it ages
// out through the normal deactivation path instead of being dropped.
func (r *Reconciler) createAnonymous(ctx context.Context, rec listing.Record, stats *listing.SyncStats) {
	rec.SourceID = "anon:" + uuid.NewString()
	r.logger.Warn("record has no stable identity, creating one-off entry",
		zap.String("title", rec.Title),
	)
	localID, err := r.store.UpsertByKey(ctx, rec.SourceID, rec)
	if err != nil {
		stats.Errors++
		r.countRecord("error")
		r.logger.Error("one-off create failed", zap.Error(err))
		return
	}
	stats.Created++
	r.countRecord("created")
	r.materialize(ctx, localID, rec, stats)
}

// materialize downloads images for a newly created listing. Updated
// listings keep the images from their first appearance.
func (r *Reconciler) materialize(ctx context.Context, localID string, rec listing.Record, stats *listing.SyncStats) {
	if r.images == nil {
		return
	}
	stored, failed := r.images.Materialize(ctx, localID, rec)
	stats.Errors += failed
	if r.metrics != nil {
		r.metrics.ImagesStored.Add(float64(stored))
		r.metrics.ImagesFailed.Add(float64(failed))
	}
}

func (r *Reconciler) report(pct int, status string) {
	if r.progress == nil {
		return
	}
	r.progress.Publish(listing.Progress{Percentage: pct, Status: status, Running: true})
}

func (r *Reconciler) reportDone(status string) {
	if r.progress == nil {
		return
	}
	r.progress.Publish(listing.Progress{Percentage: 100, Status: status, Running: false})
}

func (r *Reconciler) notify(ctx context.Context, run listing.RunRecord) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	if _, err := r.publisher.Publish(ctx, r.cfg.Topic, run); err != nil {
		r.logger.Warn("completion event publish failed",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}
}

func (r *Reconciler) observeRun(run listing.RunRecord, dur time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	r.metrics.RunDuration.Observe(dur.Seconds())
}

func (r *Reconciler) countRecord(outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordsTotal.WithLabelValues(outcome).Inc()
}

func (r *Reconciler) gaugeActive(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	active, err := r.store.ListListings(ctx, true)
	if err != nil {
		r.logger.Warn("active listing count failed", zap.Error(err))
		return
	}
	r.metrics.ActiveListings.Set(float64(len(active)))
}

func (r *Reconciler) countFetch(result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.FetchesTotal.WithLabelValues(result).Inc()
}
