package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/store"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Backend != store.BackendSQLite {
		t.Errorf("Store.Backend = %v, want %v", cfg.Store.Backend, store.BackendSQLite)
	}
	if cfg.Store.Path != "cubist.db" {
		t.Errorf("Store.Path = %v, want %v", cfg.Store.Path, "cubist.db")
	}
	if cfg.Materialize.MaxDimensions != 16 {
		t.Errorf("Materialize.MaxDimensions = %v, want %v", cfg.Materialize.MaxDimensions, 16)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %v, want %v", cfg.Server.ListenAddr, ":8080")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("CUBIST_STORE_BACKEND", "s3")
	t.Setenv("CUBIST_S3_BUCKET", "collisions")
	t.Setenv("CUBIST_S3_USE_SSL", "true")
	t.Setenv("CUBIST_WORKERS", "4")
	t.Setenv("CUBIST_MAX_DIMENSIONS", "20")
	t.Setenv("CUBIST_SCHEDULE", "@hourly")
	t.Setenv("CUBIST_READ_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, store.BackendS3, cfg.Store.Backend)
	assert.Equal(t, "collisions", cfg.Store.S3.Bucket)
	assert.True(t, cfg.Store.S3.UseSSL)
	assert.Equal(t, 4, cfg.Materialize.Workers)
	assert.Equal(t, 20, cfg.Materialize.MaxDimensions)
	assert.Equal(t, "@hourly", cfg.Materialize.Schedule)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	opts := cfg.StoreOptions()
	assert.Equal(t, store.BackendS3, opts.Backend)
	assert.Equal(t, "collisions", opts.S3.Bucket)
	assert.True(t, opts.S3.UseSSL)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CUBIST_WORKERS", "many")
	t.Setenv("CUBIST_S3_USE_SSL", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Materialize.Workers)
	assert.False(t, cfg.Store.S3.UseSSL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"backend", "CUBIST_STORE_BACKEND", "redis"},
		{"workers", "CUBIST_WORKERS", "-2"},
		{"max dimensions too high", "CUBIST_MAX_DIMENSIONS", "21"},
		{"max dimensions zero", "CUBIST_MAX_DIMENSIONS", "0"},
		{"log level", "CUBIST_LOG_LEVEL", "loud"},
		{"log format", "CUBIST_LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.True(t, cube.IsConfigError(err))
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "key", "borough")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"borough"`)
}

func TestString_OmitsCredentials(t *testing.T) {
	t.Setenv("CUBIST_STORE_BACKEND", "s3")
	t.Setenv("CUBIST_S3_SECRET_KEY", "hunter2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotContains(t, cfg.String(), "hunter2")
	assert.Contains(t, cfg.String(), "bucket=cubist")
}
