package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "poll", cfg.Mode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Scan.Interval())
	assert.Equal(t, 10*time.Second, cfg.Scan.FetchTimeout())
	assert.Equal(t, 0.05, cfg.Scan.MinProfitPct)
	assert.Equal(t, 256, cfg.Scan.BufferSize)

	assert.True(t, cfg.Exchanges.Kraken.Enabled)
	assert.True(t, cfg.Exchanges.Bybit.Enabled)
	assert.True(t, cfg.Exchanges.Kucoin.Enabled)
	assert.True(t, cfg.Exchanges.Bibox.Enabled)
	assert.Equal(t, "spot", cfg.Exchanges.Bybit.Category)

	assert.False(t, cfg.Postgres.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.QuoteTTL())

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "poll", cfg.Mode)
	assert.Equal(t, 30, cfg.Scan.IntervalSeconds)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
mode = "full"
log_level = "debug"

[scan]
interval_seconds = 5
min_profit_pct = 0.5

[exchanges.bibox]
enabled = false

[redis]
enabled = true
addr = "localhost:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Scan.IntervalSeconds)
	assert.Equal(t, 0.5, cfg.Scan.MinProfitPct)
	assert.False(t, cfg.Exchanges.Bibox.Enabled)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Scan.FetchTimeoutSeconds)
	assert.True(t, cfg.Exchanges.Kraken.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "poll"`), 0o644))

	t.Setenv("ARBISCAN_MODE", "stream")
	t.Setenv("ARBISCAN_SCAN_MIN_PROFIT_PCT", "1.25")
	t.Setenv("ARBISCAN_KRAKEN_STREAM", "false")
	t.Setenv("ARBISCAN_POSTGRES_PASSWORD", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "stream", cfg.Mode)
	assert.Equal(t, 1.25, cfg.Scan.MinProfitPct)
	assert.False(t, cfg.Exchanges.Kraken.Stream)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = [broken`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(*Config) {},
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Mode = "batch" },
			wantErr: "unsupported mode",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Scan.IntervalSeconds = 0 },
			wantErr: "interval_seconds",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.Scan.MinProfitPct = -1 },
			wantErr: "min_profit_pct",
		},
		{
			name: "no exchanges",
			mutate: func(c *Config) {
				c.Exchanges.Kraken.Enabled = false
				c.Exchanges.Bybit.Enabled = false
				c.Exchanges.Kucoin.Enabled = false
				c.Exchanges.Bibox.Enabled = false
			},
			wantErr: "at least one exchange",
		},
		{
			name:    "postgres without address",
			mutate:  func(c *Config) { c.Postgres.Enabled = true },
			wantErr: "neither dsn nor host",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Redis.Enabled = true },
			wantErr: "redis enabled but addr not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
