// Package config provides environment-driven defaults for cubist.
//
// Every setting has a CUBIST_* variable; CLI flags override them.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/store"
)

// Config holds all cubist settings.
type Config struct {
	Store       StoreConfig
	Materialize MaterializeConfig
	Server      ServerConfig
	Log         LogConfig
}

// StoreConfig selects the artifact store backend.
type StoreConfig struct {
	// Backend is one of sqlite, dir or s3.
	Backend string

	// Path is the SQLite database file.
	Path string

	// Dir is the Parquet artifact directory.
	Dir string

	S3 S3Config
}

// S3Config holds object storage settings.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

// MaterializeConfig holds run settings.
type MaterializeConfig struct {
	// Workers bounds concurrent subsets; 0 means one per CPU.
	Workers int

	// MaxDimensions is the catalog dimension ceiling.
	MaxDimensions int

	// Schedule is a cron spec for periodic runs; empty runs once.
	Schedule string
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string

	// Format is text or json.
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Store: StoreConfig{
			Backend: getEnv("CUBIST_STORE_BACKEND", store.BackendSQLite),
			Path:    getEnv("CUBIST_DB_PATH", "cubist.db"),
			Dir:     getEnv("CUBIST_ARTIFACT_DIR", "artifacts"),
			S3: S3Config{
				Endpoint:  getEnv("CUBIST_S3_ENDPOINT", "localhost:9000"),
				AccessKey: getEnv("CUBIST_S3_ACCESS_KEY", "minioadmin"),
				SecretKey: getEnv("CUBIST_S3_SECRET_KEY", "minioadmin"),
				Bucket:    getEnv("CUBIST_S3_BUCKET", "cubist"),
				Prefix:    getEnv("CUBIST_S3_PREFIX", ""),
				Region:    getEnv("CUBIST_S3_REGION", ""),
				UseSSL:    getBoolEnv("CUBIST_S3_USE_SSL", false),
			},
		},

		Materialize: MaterializeConfig{
			Workers:       getIntEnv("CUBIST_WORKERS", 0),
			MaxDimensions: getIntEnv("CUBIST_MAX_DIMENSIONS", catalog.DefaultMaxDimensions),
			Schedule:      getEnv("CUBIST_SCHEDULE", ""),
		},

		Server: ServerConfig{
			ListenAddr:      getEnv("CUBIST_LISTEN_ADDR", ":8080"),
			ReadTimeout:     getDurationEnv("CUBIST_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationEnv("CUBIST_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getDurationEnv("CUBIST_SHUTDOWN_TIMEOUT", 10*time.Second),
		},

		Log: LogConfig{
			Level:  getEnv("CUBIST_LOG_LEVEL", "info"),
			Format: getEnv("CUBIST_LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that do not depend on a catalog.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendSQLite, store.BackendDir, store.BackendS3:
	default:
		return cube.NewConfigError("unknown store backend %q (want %s, %s or %s)",
			c.Store.Backend, store.BackendSQLite, store.BackendDir, store.BackendS3)
	}
	if c.Materialize.Workers < 0 {
		return cube.NewConfigError("workers must not be negative, got %d", c.Materialize.Workers)
	}
	if c.Materialize.MaxDimensions < 1 || c.Materialize.MaxDimensions > catalog.HardMaxDimensions {
		return cube.NewConfigError("max dimensions must be between 1 and %d, got %d",
			catalog.HardMaxDimensions, c.Materialize.MaxDimensions)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return cube.NewConfigError("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// StoreOptions converts the store settings for store.OpenBackend.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend: c.Store.Backend,
		Path:    c.Store.Path,
		Dir:     c.Store.Dir,
		S3: store.S3Config{
			Endpoint:  c.Store.S3.Endpoint,
			AccessKey: c.Store.S3.AccessKey,
			SecretKey: c.Store.S3.SecretKey,
			UseSSL:    c.Store.S3.UseSSL,
			Region:    c.Store.S3.Region,
			Bucket:    c.Store.S3.Bucket,
			Prefix:    c.Store.S3.Prefix,
		},
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, cube.NewConfigError("unknown log level %q: %v", s, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// String summarizes the config without credentials.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "store=%s", c.Store.Backend)
	switch c.Store.Backend {
	case store.BackendSQLite:
		fmt.Fprintf(&b, " path=%s", c.Store.Path)
	case store.BackendDir:
		fmt.Fprintf(&b, " dir=%s", c.Store.Dir)
	case store.BackendS3:
		fmt.Fprintf(&b, " endpoint=%s bucket=%s", c.Store.S3.Endpoint, c.Store.S3.Bucket)
	}
	fmt.Fprintf(&b, " workers=%d max_dimensions=%d", c.Materialize.Workers, c.Materialize.MaxDimensions)
	return b.String()
}
