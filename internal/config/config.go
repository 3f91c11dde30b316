// Package config manages the recvault server configuration.
// Settings come from an optional TOML file, overridden by environment
// variables; flags in main take final precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DatabaseFile is the index database filename under the db root.
	DatabaseFile = "recordings.db"

	// DefaultPendingGrace is how long a pending index entry may live before
	// the recovery scanner treats it as abandoned.
	DefaultPendingGrace = time.Hour
)

// Duration wraps time.Duration so TOML values can be written as "30s" or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// IndexConfig selects the metadata index driver.
type IndexConfig struct {
	// Driver is "bolt" or "sqlite".
	Driver string `toml:"driver"`
}

// S3Config holds object store connection settings.
type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// StorageConfig selects the blob storage backend.
type StorageConfig struct {
	// Backend is "fs" or "s3".
	Backend string   `toml:"backend"`
	S3      S3Config `toml:"s3"`
}

// Config is the full server configuration.
type Config struct {
	Listen         string `toml:"listen"`
	RecordingsRoot string `toml:"recordings_root"`
	DBRoot         string `toml:"db_root"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	MaxUploadBytes    int64    `toml:"max_upload_bytes"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
	PendingGrace      Duration `toml:"pending_grace"`
	ShutdownGrace     Duration `toml:"shutdown_grace"`

	WebhookURLs []string `toml:"webhook_urls"`

	Index   IndexConfig   `toml:"index"`
	Storage StorageConfig `toml:"storage"`
}

// Default returns the configuration used when no file or environment is set.
func Default() *Config {
	return &Config{
		Listen:            ":8000",
		RecordingsRoot:    "/var/lib/recvault/recordings",
		DBRoot:            "/var/lib/recvault/db",
		LogLevel:          "info",
		LogFormat:         "json",
		MaxUploadBytes:    512 * 1024 * 1024, // 512MB
		RequestsPerMinute: 300,
		PendingGrace:      Duration(DefaultPendingGrace),
		ShutdownGrace:     Duration(30 * time.Second),
		Index:             IndexConfig{Driver: "bolt"},
		Storage:           StorageConfig{Backend: "fs"},
	}
}

// Load builds the configuration from defaults, an optional TOML file, and
// environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from RECVAULT_* environment variables.
func (c *Config) applyEnv() {
	setString(&c.Listen, "RECVAULT_LISTEN")
	setString(&c.RecordingsRoot, "RECVAULT_RECORDINGS_ROOT")
	setString(&c.DBRoot, "RECVAULT_DB_ROOT")
	setString(&c.LogLevel, "RECVAULT_LOG_LEVEL")
	setString(&c.LogFormat, "RECVAULT_LOG_FORMAT")
	setString(&c.Index.Driver, "RECVAULT_INDEX_DRIVER")
	setString(&c.Storage.Backend, "RECVAULT_STORAGE_BACKEND")
	setString(&c.Storage.S3.Endpoint, "RECVAULT_S3_ENDPOINT")
	setString(&c.Storage.S3.AccessKey, "RECVAULT_S3_ACCESS_KEY")
	setString(&c.Storage.S3.SecretKey, "RECVAULT_S3_SECRET_KEY")
	setString(&c.Storage.S3.Bucket, "RECVAULT_S3_BUCKET")

	if v := os.Getenv("RECVAULT_S3_USE_SSL"); v != "" {
		c.Storage.S3.UseSSL = v == "true" || v == "1"
	}
	if v := os.Getenv("RECVAULT_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("RECVAULT_PENDING_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PendingGrace = Duration(d)
		}
	}
	if v := os.Getenv("RECVAULT_WEBHOOK_URLS"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		c.WebhookURLs = urls
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// validate rejects settings the server cannot start with.
func (c *Config) validate() error {
	switch c.Index.Driver {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("unknown index driver %q (want bolt or sqlite)", c.Index.Driver)
	}

	switch c.Storage.Backend {
	case "fs":
	case "s3":
		if c.Storage.S3.Endpoint == "" || c.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 storage backend requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want fs or s3)", c.Storage.Backend)
	}

	if c.RecordingsRoot == "" {
		return fmt.Errorf("recordings_root must be set")
	}
	if c.DBRoot == "" {
		return fmt.Errorf("db_root must be set")
	}
	return nil
}

// DatabasePath returns the path of the index database under the db root.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DBRoot, DatabaseFile)
}

// EnsureDirs creates the recordings and db roots if they do not exist.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.RecordingsRoot, 0o755); err != nil {
		return fmt.Errorf("create recordings root: %w", err)
	}
	if err := os.MkdirAll(c.DBRoot, 0o755); err != nil {
		return fmt.Errorf("create db root: %w", err)
	}
	return nil
}
