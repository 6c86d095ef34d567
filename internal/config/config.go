// Package config loads and validates floorsync configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Source  SourceConfig  `mapstructure:"source"`
	Sync    SyncConfig    `mapstructure:"sync"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig identifies the remote listing site and the building filter.
type SourceConfig struct {
	ListURL        string `mapstructure:"list_url"`
	BaseURL        string `mapstructure:"base_url"`
	BuildingFilter string `mapstructure:"building_filter"`
	FetchGallery   bool   `mapstructure:"fetch_gallery"`
}

// SyncConfig governs scheduling and the run lease.
type SyncConfig struct {
	Schedule        string `mapstructure:"schedule"`
	LeaseTTLMinutes int    `mapstructure:"lease_ttl_minutes"`
	StallSeconds    int    `mapstructure:"stall_seconds"`
	RunLogSize      int    `mapstructure:"run_log_size"`
}

// HTTPConfig configures outbound fetch behavior.
type HTTPConfig struct {
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	ImageTimeoutSeconds int    `mapstructure:"image_timeout_seconds"`
	UserAgent           string `mapstructure:"user_agent"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory stores (development mode).
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// StorageConfig selects and parameterizes the image blob store.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for sync-completed notifications. Both
// fields empty disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features and sizes the
// operator-visible recent-entries buffer.
type LoggingConfig struct {
	Development   bool `mapstructure:"development"`
	RecentEntries int  `mapstructure:"recent_entries"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOORSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.base_url", "")
	v.SetDefault("source.building_filter", "")
	v.SetDefault("source.fetch_gallery", true)
	v.SetDefault("sync.schedule", "0 3 * * *")
	v.SetDefault("sync.lease_ttl_minutes", 15)
	v.SetDefault("sync.stall_seconds", 60)
	v.SetDefault("sync.run_log_size", 50)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.image_timeout_seconds", 60)
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "images")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.recent_entries", 200)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.ListURL == "" {
		return fmt.Errorf("source.list_url is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Sync.LeaseTTLMinutes <= 0 {
		return fmt.Errorf("sync.lease_ttl_minutes must be > 0")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

// FetchTimeout converts the configured page timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ImageTimeout converts the configured image timeout into a duration.
func (c Config) ImageTimeout() time.Duration {
	if c.HTTP.ImageTimeoutSeconds <= 0 {
		return c.FetchTimeout()
	}
	return time.Duration(c.HTTP.ImageTimeoutSeconds) * time.Second
}

// LeaseTTL converts the configured lease window into a duration.
func (c Config) LeaseTTL() time.Duration {
	return time.Duration(c.Sync.LeaseTTLMinutes) * time.Minute
}

// StallAfter is how long progress may sit unchanged before a watchdog
// may re-enter a run.
func (c Config) StallAfter() time.Duration {
	if c.Sync.StallSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Sync.StallSeconds) * time.Second
}
