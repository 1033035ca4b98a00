package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgconfig "github.com/goran-ethernal/MilestoneIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	cfg, err := LoadFromYAML("../../config.example.yaml")
	require.NoError(t, err)

	validateConfig(t, cfg, "YAML")
}

func TestLoadFromJSON(t *testing.T) {
	cfg, err := LoadFromJSON("../../config.example.json")
	require.NoError(t, err)

	validateConfig(t, cfg, "JSON")
}

func TestLoadFromTOML(t *testing.T) {
	cfg, err := LoadFromTOML("../../config.example.toml")
	require.NoError(t, err)

	validateConfig(t, cfg, "TOML")
}

func TestLoadFromFile_AutoDetect(t *testing.T) {
	for _, path := range []string{
		"../../config.example.yaml",
		"../../config.example.json",
		"../../config.example.toml",
	} {
		cfg, err := LoadFromFile(path)
		require.NoError(t, err, path)
		validateConfig(t, cfg, filepath.Ext(path))
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	_, err := LoadFromFile("config.txt")
	require.ErrorContains(t, err, "unsupported config file format")
}

// validateConfig checks that the loaded config has expected values
func validateConfig(t *testing.T, cfg *pkgconfig.Config, format string) {
	t.Helper()

	require.NotEmpty(t, cfg.RPC.URLs, "[%s] rpc.urls should not be empty", format)
	require.NotEmpty(t, cfg.Oracle.URLs, "[%s] oracle.urls should not be empty", format)
	require.NotEmpty(t, cfg.DB.Path, "[%s] db.path should not be empty", format)

	// defaults applied
	require.NotZero(t, cfg.BlockIndexer.BatchSize, "[%s] block_indexer.batch_size should have default", format)
	require.NotZero(t, cfg.MilestoneIndexer.SeenCacheSize, "[%s] milestone_indexer.seen_cache_size should have default", format)
	require.NotZero(t, cfg.FeeBackfill.MaxSaneBlockTime.Duration, "[%s] fee_backfill.max_sane_block_time should have default", format)
	require.NotEmpty(t, cfg.DB.JournalMode, "[%s] db.journal_mode should have default", format)
	require.NotNil(t, cfg.Logging, "[%s] logging should be populated", format)
	require.NotNil(t, cfg.Metrics, "[%s] metrics should be populated", format)
	require.NotEmpty(t, cfg.Metrics.ListenAddress, "[%s] metrics.listen_address should have default", format)

	// durations parsed from strings
	require.Equal(t, 2*time.Second, cfg.BlockIndexer.PollInterval.Duration, "[%s] block_indexer.poll_interval", format)
	require.Equal(t, 500*time.Millisecond, cfg.RPC.RetryDelay.Duration, "[%s] rpc.retry_delay", format)
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv(pkgconfig.EnvRPCURLs, "https://rpc-a.example.com, https://rpc-b.example.com")
	t.Setenv(pkgconfig.EnvDBPath, "/tmp/override.db")
	t.Setenv(pkgconfig.EnvBlockBatchSize, "25")
	t.Setenv(pkgconfig.EnvBackfillTargetBlock, "12345678")

	cfg, err := LoadFromFile("../../config.example.yaml")
	require.NoError(t, err)

	require.Equal(t, []string{"https://rpc-a.example.com", "https://rpc-b.example.com"}, cfg.RPC.URLs)
	require.Equal(t, "/tmp/override.db", cfg.DB.Path)
	require.Equal(t, 25, cfg.BlockIndexer.BatchSize)
	require.Equal(t, uint64(12345678), cfg.Backfill.TargetBlock)
}

func TestLoadFromFile_InvalidEnvOverride(t *testing.T) {
	t.Setenv(pkgconfig.EnvBlockBatchSize, "not-a-number")

	_, err := LoadFromFile("../../config.example.yaml")
	require.ErrorContains(t, err, "invalid environment override")
}

func TestLoadFromFile_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db:\n  path: ./test.db\n"), 0o600))

	_, err := LoadFromFile(path)
	require.ErrorContains(t, err, "rpc.urls")
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "failed to read config file")
}

func TestConfigDefaults(t *testing.T) {
	cfg := &pkgconfig.Config{
		RPC:    pkgconfig.RPCConfig{URLs: []string{"https://test.example.com"}},
		Oracle: pkgconfig.OracleConfig{URLs: []string{"https://oracle.example.com"}},
		DB:     pkgconfig.DatabaseConfig{Path: "./test.db"},
	}

	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	require.Equal(t, 3, cfg.RPC.MaxRetries)
	require.Equal(t, 10, cfg.BlockIndexer.BatchSize)
	require.Equal(t, 1000, cfg.MilestoneIndexer.SeenCacheSize)
	require.Equal(t, 30*time.Second, cfg.FeeBackfill.MaxSaneBlockTime.Duration)
	require.Equal(t, 5, cfg.Oracle.Retry.MaxAttempts)
	require.Equal(t, "info", cfg.Logging.DefaultLevel)
	require.Equal(t, ":9090", cfg.Metrics.ListenAddress)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
}
