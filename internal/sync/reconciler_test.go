package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/extractor"
	"github.com/ntanasko/floorsync/internal/lease"
	"github.com/ntanasko/floorsync/internal/listing"
	"github.com/ntanasko/floorsync/internal/progress"
	pubmemory "github.com/ntanasko/floorsync/internal/publisher/memory"
	storememory "github.com/ntanasko/floorsync/internal/store/memory"
)

type fakeFetcher struct {
	pages map[string][]byte
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (listing.Page, error) {
	if f.err != nil {
		return listing.Page{}, f.err
	}
	body, ok := f.pages[url]
	if !ok {
		return listing.Page{}, errors.New("no page for " + url)
	}
	return listing.Page{URL: url, StatusCode: 200, Body: body}, nil
}

// fakeExtractor bypasses HTML and returns canned records so tests drive
// the reconciler directly.
type fakeExtractor struct {
	records []listing.Record
	gallery []string
}

func (f *fakeExtractor) Extract([]byte) []listing.Record { return f.records }
func (f *fakeExtractor) ExtractGallery([]byte) []string  { return f.gallery }

type passthroughResolver struct{}

func (passthroughResolver) Resolve(rec listing.Record) (string, bool) {
	return rec.SourceID, rec.SourceID != ""
}

type fakeMaterializer struct {
	calls []string
}

func (f *fakeMaterializer) Materialize(_ context.Context, localID string, _ listing.Record) (int, int) {
	f.calls = append(f.calls, localID)
	return 1, 0
}

type env struct {
	store     *storememory.ListingStore
	runs      *storememory.RunStore
	fetcher   *fakeFetcher
	ext       *fakeExtractor
	images    *fakeMaterializer
	publisher *pubmemory.Publisher
	lease     *lease.Memory
	tracker   *progress.Tracker
	rec       *Reconciler
}

const listURL = "https://example.com/listings"

func newEnv() *env {
	e := &env{
		store:     storememory.NewListingStore(nil),
		runs:      storememory.NewRunStore(10),
		fetcher:   &fakeFetcher{pages: map[string][]byte{listURL: []byte("<html/>")}},
		ext:       &fakeExtractor{},
		images:    &fakeMaterializer{},
		publisher: pubmemory.New(),
		lease:     lease.NewMemory(),
		tracker:   progress.NewTracker(),
	}
	e.rec = New(Config{
		ListURL:  listURL,
		LeaseTTL: time.Minute,
		Topic:    "listings-synced",
	}, Deps{
		Fetcher:   e.fetcher,
		Extractor: e.ext,
		Filter:    extractor.NewFilter(""),
		Resolver:  passthroughResolver{},
		Store:     e.store,
		Images:    e.images,
		Runs:      e.runs,
		Lease:     e.lease,
		Progress:  e.tracker,
		Publisher: e.publisher,
		Logger:    zap.NewNop(),
	})
	return e
}

func record(id string) listing.Record {
	return listing.Record{SourceID: id, Title: "unit " + id, Price: listing.IntPtr(1000)}
}

func TestRunCreatesUpdatesDeactivates(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()

	e.ext.records = []listing.Record{record("a"), record("b")}
	run, err := e.rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, listing.RunStatusCompleted, run.Status)
	require.Equal(t, 2, run.Stats.Created)
	require.Zero(t, run.Stats.Updated)
	require.Zero(t, run.Stats.Deactivated)

	// Second pass: only "a" survives on the source.
	e.ext.records = []listing.Record{record("a")}
	run, err = e.rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, run.Stats.Updated)
	require.Equal(t, 1, run.Stats.Deactivated)
	require.Zero(t, run.Stats.Created)

	b, err := e.store.GetByKey(ctx, "b")
	require.NoError(t, err)
	require.False(t, b.Active)

	// Third pass: "b" reappears and revives under the same local ID.
	e.ext.records = []listing.Record{record("a"), record("b")}
	run, err = e.rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, run.Stats.Updated)
	require.Zero(t, run.Stats.Created)

	revived, err := e.store.GetByKey(ctx, "b")
	require.NoError(t, err)
	require.True(t, revived.Active)
	require.Equal(t, b.LocalID, revived.LocalID)
}

// TestRunIdempotent verifies an unchanged source yields updates only and
// leaves the listing set untouched.
func TestRunIdempotent(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()
	e.ext.records = []listing.Record{record("a"), record("b")}

	_, err := e.rec.Run(ctx)
	require.NoError(t, err)
	run, err := e.rec.Run(ctx)
	require.NoError(t, err)

	require.Zero(t, run.Stats.Created)
	require.Equal(t, 2, run.Stats.Updated)
	require.Zero(t, run.Stats.Deactivated)

	listings, err := e.store.ListListings(ctx, true)
	require.NoError(t, err)
	require.Len(t, listings, 2)
}

func TestRunFetchFailureDeactivatesNothing(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()
	e.ext.records = []listing.Record{record("a")}
	_, err := e.rec.Run(ctx)
	require.NoError(t, err)

	e.fetcher.err = errors.New("connection refused")
	run, err := e.rec.Run(ctx)
	require.Error(t, err)
	require.Equal(t, listing.RunStatusFailed, run.Status)
	require.Zero(t, run.Stats.Deactivated)
	require.Equal(t, 1, run.Stats.Errors)

	a, err := e.store.GetByKey(ctx, "a")
	require.NoError(t, err)
	require.True(t, a.Active)

	// The failure still lands in the run log, error count included.
	last, err := e.runs.LastRun(ctx)
	require.NoError(t, err)
	require.Equal(t, listing.RunStatusFailed, last.Status)
	require.Equal(t, 1, last.Stats.Errors)

	snap := e.tracker.Snapshot()
	require.False(t, snap.Running)
	require.Equal(t, 100, snap.Percentage)
}

func TestRunZeroRecordsDeactivatesAll(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()
	e.ext.records = []listing.Record{record("a"), record("b")}
	_, err := e.rec.Run(ctx)
	require.NoError(t, err)

	e.ext.records = nil
	run, err := e.rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, listing.RunStatusCompleted, run.Status)
	require.Equal(t, 2, run.Stats.Deactivated)

	active, err := e.store.ListListings(ctx, true)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestRunLeaseHeld(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()
	acquired, err := e.lease.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = e.rec.Run(ctx)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	_, err = e.runs.LastRun(ctx)
	require.ErrorIs(t, err, listing.ErrNotFound)
}

func TestRunReleasesLease(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()
	e.ext.records = []listing.Record{record("a")}
	_, err := e.rec.Run(ctx)
	require.NoError(t, err)

	acquired, err := e.lease.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

// TestRunImagesOnlyOnCreate verifies updated listings never re-download
// their images.
func TestRunImagesOnlyOnCreate(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()
	e.ext.records = []listing.Record{record("a")}

	_, err := e.rec.Run(ctx)
	require.NoError(t, err)
	require.Len(t, e.images.calls, 1)

	_, err = e.rec.Run(ctx)
	require.NoError(t, err)
	require.Len(t, e.images.calls, 1)
}

func TestRunDuplicateRecordsCollapse(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()
	e.ext.records = []listing.Record{record("a"), record("a")}

	run, err := e.rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, run.Stats.Created)
	require.Equal(t, 1, run.Stats.Extracted)
}

// TestRunRecordWithoutIdentityCreatedOneOff verifies an unidentifiable
// record is still persisted under a throwaway key rather than dropped,
// and ages out through deactivation on the following run.
func TestRunRecordWithoutIdentityCreatedOneOff(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()
	e.ext.records = []listing.Record{{Title: "no identity"}, record("a")}

	run, err := e.rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, run.Stats.Created)
	require.Zero(t, run.Stats.Errors)
	require.Len(t, e.images.calls, 2)

	active, err := e.store.ListListings(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// The throwaway key can never match again, so the next run retires it.
	run, err = e.rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, run.Stats.Created)
	require.Equal(t, 1, run.Stats.Updated)
	require.Equal(t, 1, run.Stats.Deactivated)
}

func TestRunPublishesCompletionEvent(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.ext.records = []listing.Record{record("a")}
	run, err := e.rec.Run(context.Background())
	require.NoError(t, err)

	msgs := e.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "listings-synced", msgs[0].Topic)
	published, ok := msgs[0].Payload.(listing.RunRecord)
	require.True(t, ok)
	require.Equal(t, run.ID, published.ID)
}

// TestRunFetchesGalleryOnCreate verifies the detail page is consulted
// for new listings when gallery fetching is on.
func TestRunFetchesGalleryOnCreate(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.rec.cfg.FetchGallery = true
	detailURL := "https://example.com/listings/detail/1"
	e.fetcher.pages[detailURL] = []byte("<html/>")
	e.ext.gallery = []string{"https://images.example.com/1/large.jpg"}

	rec := record("a")
	rec.DetailURL = detailURL
	e.ext.records = []listing.Record{rec}

	_, err := e.rec.Run(context.Background())
	require.NoError(t, err)

	stored, err := e.store.GetByKey(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, e.ext.gallery, stored.Record.GalleryURLs)
}

// TestRunGalleryPreservedOnUpdate verifies the URL list captured on
// create survives later runs, which never revisit the detail page.
func TestRunGalleryPreservedOnUpdate(t *testing.T) {
	t.Parallel()

	e := newEnv()
	ctx := context.Background()
	e.rec.cfg.FetchGallery = true
	detailURL := "https://example.com/listings/detail/1"
	e.fetcher.pages[detailURL] = []byte("<html/>")
	e.ext.gallery = []string{"https://images.example.com/1/large.jpg"}

	rec := record("a")
	rec.DetailURL = detailURL
	e.ext.records = []listing.Record{rec}

	_, err := e.rec.Run(ctx)
	require.NoError(t, err)

	run, err := e.rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, run.Stats.Updated)

	stored, err := e.store.GetByKey(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, e.ext.gallery, stored.Record.GalleryURLs)
}
