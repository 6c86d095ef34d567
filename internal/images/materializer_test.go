package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blobmemory "github.com/ntanasko/floorsync/internal/blob/memory"
	"github.com/ntanasko/floorsync/internal/listing"
	storememory "github.com/ntanasko/floorsync/internal/store/memory"
)

func newImageServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMaterializeStoresAndSetsPrimary(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newImageServer(t, &hits)
	blobs := blobmemory.New()
	imageStore := storememory.NewImageStore()
	m := New(Config{Prefix: "images"}, blobs, imageStore, zap.NewNop())

	rec := listing.Record{
		ImageURL:    srv.URL + "/primary.jpg",
		GalleryURLs: []string{srv.URL + "/two.jpg", srv.URL + "/three.jpg"},
	}
	stored, failed := m.Materialize(context.Background(), "l1", rec)
	require.Equal(t, 3, stored)
	require.Zero(t, failed)
	require.Equal(t, 3, blobs.Len())

	has, err := imageStore.HasPrimary(context.Background(), "l1")
	require.NoError(t, err)
	require.True(t, has)

	attached := imageStore.Attached("l1")
	require.Len(t, attached, 3)
	require.True(t, attached[0].Primary)
}

// TestMaterializeDedupesByOrigin verifies a URL already downloaded for
// one listing is reused for the next without another fetch.
func TestMaterializeDedupesByOrigin(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newImageServer(t, &hits)
	blobs := blobmemory.New()
	imageStore := storememory.NewImageStore()
	m := New(Config{}, blobs, imageStore, zap.NewNop())

	rec := listing.Record{ImageURL: srv.URL + "/shared.jpg"}
	_, _ = m.Materialize(context.Background(), "l1", rec)
	_, _ = m.Materialize(context.Background(), "l2", rec)

	require.Equal(t, int64(1), hits.Load())
	require.Equal(t, 1, blobs.Len())

	// Both listings still get the attachment.
	require.Len(t, imageStore.Attached("l1"), 1)
	require.Len(t, imageStore.Attached("l2"), 1)
}

func TestMaterializeFailureCounted(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newImageServer(t, &hits)
	blobs := blobmemory.New()
	imageStore := storememory.NewImageStore()
	m := New(Config{}, blobs, imageStore, zap.NewNop())

	rec := listing.Record{
		ImageURL:    srv.URL + "/missing.jpg",
		GalleryURLs: []string{srv.URL + "/ok.jpg"},
	}
	stored, failed := m.Materialize(context.Background(), "l1", rec)
	require.Equal(t, 1, stored)
	require.Equal(t, 1, failed)

	// The primary slot falls to the first image that actually stored,
	// not the dead lead URL.
	has, err := imageStore.HasPrimary(context.Background(), "l1")
	require.NoError(t, err)
	require.True(t, has)

	attached := imageStore.Attached("l1")
	require.Len(t, attached, 1)
	require.True(t, attached[0].Primary)
}

func TestObjectNameExtension(t *testing.T) {
	t.Parallel()

	m := New(Config{Prefix: "photos"}, blobmemory.New(), storememory.NewImageStore(), zap.NewNop())
	name := m.objectName("https://cdn.example.com/a/b/medium.jpg?cb=1", "image/jpeg")
	require.Contains(t, name, "photos/")
	require.Contains(t, name, ".jpg")
}
