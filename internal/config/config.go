// Package config defines the top-level configuration for arbiscan and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBISCAN_* environment
// variables.
type Config struct {
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	Scan      ScanConfig      `toml:"scan"`
	Exchanges ExchangesConfig `toml:"exchanges"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Notify    NotifyConfig    `toml:"notify"`
}

// ScanConfig holds scan loop timing and threshold parameters.
type ScanConfig struct {
	IntervalSeconds     int     `toml:"interval_seconds"`
	FetchTimeoutSeconds int     `toml:"fetch_timeout_seconds"`
	MinProfitPct        float64 `toml:"min_profit_pct"`
	BufferSize          int     `toml:"buffer_size"`
}

// Interval returns the poll cycle period.
func (s ScanConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// FetchTimeout returns the per-exchange fetch deadline.
func (s ScanConfig) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

// ExchangesConfig enables and points at the venue adapters.
type ExchangesConfig struct {
	Kraken KrakenConfig `toml:"kraken"`
	Bybit  BybitConfig  `toml:"bybit"`
	Kucoin KucoinConfig `toml:"kucoin"`
	Bibox  BiboxConfig  `toml:"bibox"`
}

// KrakenConfig holds Kraken endpoints. Stream switches the venue from REST
// polling to the v2 WebSocket book channel in stream/full modes.
type KrakenConfig struct {
	Enabled bool   `toml:"enabled"`
	RestURL string `toml:"rest_url"`
	WsURL   string `toml:"ws_url"`
	Stream  bool   `toml:"stream"`
	Depth   int    `toml:"depth"`
}

// BybitConfig holds Bybit endpoints and market category.
type BybitConfig struct {
	Enabled  bool   `toml:"enabled"`
	RestURL  string `toml:"rest_url"`
	WsURL    string `toml:"ws_url"`
	Stream   bool   `toml:"stream"`
	Category string `toml:"category"`
	Depth    int    `toml:"depth"`
}

// KucoinConfig holds KuCoin endpoints. KuCoin is REST-only here.
type KucoinConfig struct {
	Enabled bool   `toml:"enabled"`
	RestURL string `toml:"rest_url"`
	Depth   int    `toml:"depth"`
}

// BiboxConfig holds Bibox endpoints. Bibox is REST-only here.
type BiboxConfig struct {
	Enabled bool   `toml:"enabled"`
	RestURL string `toml:"rest_url"`
}

// PostgresConfig holds PostgreSQL connection parameters for the book sink.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the quote cache.
type RedisConfig struct {
	Enabled         bool   `toml:"enabled"`
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	QuoteTTLSeconds int    `toml:"quote_ttl_seconds"`
}

// QuoteTTL returns how long cached quotes stay valid.
func (r RedisConfig) QuoteTTL() time.Duration {
	return time.Duration(r.QuoteTTLSeconds) * time.Second
}

// NotifyConfig holds alert channel credentials and the alert threshold.
type NotifyConfig struct {
	MinProfitPct      float64 `toml:"min_profit_pct"`
	TelegramToken     string  `toml:"telegram_token"`
	TelegramChatID    string  `toml:"telegram_chat_id"`
	DiscordWebhookURL string  `toml:"discord_webhook_url"`
}

// Defaults returns the built-in configuration: all four venues enabled over
// REST, a 30-second poll cycle, and a 0.05% profit threshold to filter
// venue-fee noise.
func Defaults() Config {
	return Config{
		Mode:     "poll",
		LogLevel: "info",
		Scan: ScanConfig{
			IntervalSeconds:     30,
			FetchTimeoutSeconds: 10,
			MinProfitPct:        0.05,
			BufferSize:          256,
		},
		Exchanges: ExchangesConfig{
			Kraken: KrakenConfig{Enabled: true, Stream: true, Depth: 25},
			Bybit:  BybitConfig{Enabled: true, Stream: true, Category: "spot", Depth: 50},
			Kucoin: KucoinConfig{Enabled: true, Depth: 20},
			Bibox:  BiboxConfig{Enabled: true},
		},
		Redis: RedisConfig{
			QuoteTTLSeconds: 120,
		},
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later at runtime.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "poll", "stream", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q (want poll, stream, or full)", c.Mode)
	}

	if c.Scan.IntervalSeconds <= 0 {
		return fmt.Errorf("config: scan.interval_seconds must be positive, got %d", c.Scan.IntervalSeconds)
	}
	if c.Scan.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("config: scan.fetch_timeout_seconds must be positive, got %d", c.Scan.FetchTimeoutSeconds)
	}
	if c.Scan.MinProfitPct < 0 {
		return fmt.Errorf("config: scan.min_profit_pct must not be negative, got %g", c.Scan.MinProfitPct)
	}

	ex := c.Exchanges
	if !ex.Kraken.Enabled && !ex.Bybit.Enabled && !ex.Kucoin.Enabled && !ex.Bibox.Enabled {
		return fmt.Errorf("config: at least one exchange must be enabled")
	}

	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		return fmt.Errorf("config: postgres enabled but neither dsn nor host set")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis enabled but addr not set")
	}

	return nil
}
