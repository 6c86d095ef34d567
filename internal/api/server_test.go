package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ntanasko/floorsync/internal/listing"
	"github.com/ntanasko/floorsync/internal/logging"
	"github.com/ntanasko/floorsync/internal/progress"
	storememory "github.com/ntanasko/floorsync/internal/store/memory"
)

type stubTrigger struct {
	fired int
}

func (s *stubTrigger) TriggerAsync() { s.fired++ }

type testServer struct {
	store   *storememory.ListingStore
	runs    *storememory.RunStore
	tracker *progress.Tracker
	trigger *stubTrigger
	srv     *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		store:   storememory.NewListingStore(nil),
		runs:    storememory.NewRunStore(10),
		tracker: progress.NewTracker(),
		trigger: &stubTrigger{},
	}
	recent := logging.NewRecentBuffer(10)
	ts.srv = NewServer(ts.store, ts.runs, ts.tracker, ts.trigger, recent, nil, zap.NewNop())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerSyncAccepted(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/v1/sync")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, 1, ts.trigger.fired)
}

func TestTriggerSyncConflictWhileRunning(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.tracker.Publish(listing.Progress{Percentage: 40, Status: "processing", Running: true})

	w := ts.do(t, http.MethodPost, "/v1/sync")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Zero(t, ts.trigger.fired)
}

func TestGetProgress(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.tracker.Publish(listing.Progress{Percentage: 65, Status: "processing record 7 of 10", Running: true})

	w := ts.do(t, http.MethodGet, "/v1/sync/progress")
	require.Equal(t, http.StatusOK, w.Code)

	var got listing.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, 65, got.Percentage)
	require.True(t, got.Running)
}

func TestGetStatsEmpty(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/v1/sync/stats")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStatsLastRun(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	require.NoError(t, ts.runs.SaveRun(context.Background(), listing.RunRecord{
		ID:     "run-1",
		Status: listing.RunStatusCompleted,
		Stats:  listing.SyncStats{Created: 3},
	}))

	w := ts.do(t, http.MethodGet, "/v1/sync/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var got listing.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "run-1", got.ID)
	require.Equal(t, 3, got.Stats.Created)
}

func TestListListingsActiveFilter(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ctx := context.Background()
	_, err := ts.store.UpsertByKey(ctx, "a", listing.Record{Title: "active"})
	require.NoError(t, err)
	inactiveID, err := ts.store.UpsertByKey(ctx, "b", listing.Record{Title: "inactive"})
	require.NoError(t, err)
	require.NoError(t, ts.store.SetActive(ctx, inactiveID, false))

	var payload struct {
		Listings []listing.Listing `json:"listings"`
	}
	w := ts.do(t, http.MethodGet, "/v1/listings")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Len(t, payload.Listings, 1)

	// ?all=1 widens the result set to deactivated listings.
	w = ts.do(t, http.MethodGet, "/v1/listings?all=1")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Len(t, payload.Listings, 2)
}

// TestRequestIDLogged verifies the ID handed to the client in
// X-Request-ID is the one the access log carries.
func TestRequestIDLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	srv := NewServer(
		storememory.NewListingStore(nil),
		storememory.NewRunStore(10),
		progress.NewTracker(),
		&stubTrigger{},
		nil,
		nil,
		zap.New(core),
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	reqID := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, reqID)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	require.Equal(t, reqID, entries[0].ContextMap()["request_id"])
}

func TestGetListingBySourceID(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	_, err := ts.store.UpsertByKey(context.Background(), "src-9", listing.Record{Title: "Unit 9"})
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/v1/listings/src-9")
	require.Equal(t, http.StatusOK, w.Code)

	var got listing.Listing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "Unit 9", got.Record.Title)

	w = ts.do(t, http.MethodGet, "/v1/listings/nope")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetLogs(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/v1/logs")
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Entries []logging.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Empty(t, payload.Entries)
}
