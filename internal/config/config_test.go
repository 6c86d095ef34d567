package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  list_url: https://cityblockprop.appfolio.com/listings
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "0 3 * * *", cfg.Sync.Schedule)
	require.Equal(t, 30*time.Second, cfg.FetchTimeout())
	require.Equal(t, 15*time.Minute, cfg.LeaseTTL())
	require.Equal(t, time.Minute, cfg.StallAfter())
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.True(t, cfg.Source.FetchGallery)
}

func TestLoadRequiresListURL(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "source.list_url")
}

func TestValidateStorageBackends(t *testing.T) {
	base := Config{
		Server: ServerConfig{Port: 8080},
		Source: SourceConfig{ListURL: "https://example.com/listings"},
		Sync:   SyncConfig{LeaseTTLMinutes: 15},
		HTTP:   HTTPConfig{TimeoutSeconds: 30},
	}

	cfg := base
	cfg.Storage.Backend = "gcs"
	require.ErrorContains(t, cfg.Validate(), "storage.gcs_bucket")

	cfg.Storage.GCSBucket = "floorsync-images"
	require.NoError(t, cfg.Validate())

	cfg = base
	cfg.Storage.Backend = "local"
	require.ErrorContains(t, cfg.Validate(), "storage.local_dir")

	cfg = base
	cfg.Storage.Backend = "s3"
	require.ErrorContains(t, cfg.Validate(), "unknown storage.backend")
}

func TestImageTimeoutFallsBackToFetchTimeout(t *testing.T) {
	cfg := Config{HTTP: HTTPConfig{TimeoutSeconds: 25}}
	require.Equal(t, 25*time.Second, cfg.ImageTimeout())

	cfg.HTTP.ImageTimeoutSeconds = 90
	require.Equal(t, 90*time.Second, cfg.ImageTimeout())
}
