package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Storage.Endpoint = "r2.example.com"
	cfg.Storage.AccessKeyID = "key"
	cfg.Storage.SecretAccessKey = "secret"
	cfg.Storage.Bucket = "media"
	cfg.Storage.PublicBaseURL = "https://pub.example.com"
	return cfg
}

func TestDefaultConfig_RequiresStorage(t *testing.T) {
	err := DefaultConfig().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.endpoint is required")
	assert.Contains(t, err.Error(), "storage.bucket is required")
	assert.Contains(t, err.Error(), "storage.public_base_url")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero concurrency", mutate: func(c *Config) { c.Jobs.Concurrency = 0 }, wantErr: "jobs.concurrency"},
		{name: "default page above cap", mutate: func(c *Config) { c.Jobs.DefaultPageSize = 11 }, wantErr: "jobs.default_page_size"},
		{name: "unknown mode", mutate: func(c *Config) { c.Jobs.DefaultMode = "torrent" }, wantErr: "jobs.default_mode"},
		{name: "empty mode", mutate: func(c *Config) { c.Jobs.DefaultMode = "" }, wantErr: "jobs.default_mode"},
		{name: "small part size", mutate: func(c *Config) { c.Storage.PartSizeMiB = 1 }, wantErr: "part_size_mib"},
		{name: "relative public base", mutate: func(c *Config) { c.Storage.PublicBaseURL = "/media" }, wantErr: "public_base_url"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "listing cap below page cap", mutate: func(c *Config) { c.Jobs.MaxListingItems = 5 }, wantErr: "jobs.max_listing_items"},
		{name: "zero rate", mutate: func(c *Config) { c.Extractor.RateLimit = 0 }, wantErr: "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediabatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  write_timeout: 20m
storage:
  endpoint: minio:9000
  bucket: from-file
  use_ssl: false
jobs:
  concurrency: 5
  default_mode: archive
`), 0o600))

	t.Setenv("MEDIABATCH_STORAGE_BUCKET", "from-env")
	t.Setenv("MEDIABATCH_EXTRACTOR_RATE_LIMIT", "0.5")
	t.Setenv("MEDIABATCH_TRANSFER_READ_TIMEOUT", "90s")
	t.Setenv("MEDIABATCH_JOBS_MAX_LISTING_ITEMS", "300")
	t.Setenv("MEDIABATCH_SERVER_READ_HEADER_TIMEOUT", "7s")
	t.Setenv("MEDIABATCH_SERVER_IDLE_TIMEOUT", "3m")
	t.Setenv("MEDIABATCH_EXTRACTOR_RETRY_BACKOFF", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 20*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "minio:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "from-env", cfg.Storage.Bucket)
	assert.False(t, cfg.Storage.UseSSL)
	assert.Equal(t, 5, cfg.Jobs.Concurrency)
	assert.Equal(t, "archive", cfg.Jobs.DefaultMode)
	assert.InDelta(t, 0.5, cfg.Extractor.RateLimit, 1e-9)
	assert.Equal(t, 90*time.Second, cfg.Transfer.ReadTimeout)
	assert.Equal(t, 300, cfg.Jobs.MaxListingItems)
	assert.Equal(t, 7*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, 3*time.Minute, cfg.Server.IdleTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Extractor.RetryBackoff)
	// untouched defaults survive
	assert.Equal(t, 10, cfg.Jobs.MaxPageSize)
	assert.Equal(t, 16, cfg.Storage.PartSizeMiB)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Jobs, cfg.Jobs)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("jobs:\n  workers: 4\n"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("MEDIABATCH_JOBS_CONCURRENCY", "many")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MEDIABATCH_JOBS_CONCURRENCY")
	})
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}
