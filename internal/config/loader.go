package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBISCAN_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the defaults plus
// environment are enough to run the scanner. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	// Load .env if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBISCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "ARBISCAN_MODE")
	setStr(&cfg.LogLevel, "ARBISCAN_LOG_LEVEL")

	setInt(&cfg.Scan.IntervalSeconds, "ARBISCAN_SCAN_INTERVAL_SECONDS")
	setInt(&cfg.Scan.FetchTimeoutSeconds, "ARBISCAN_SCAN_FETCH_TIMEOUT_SECONDS")
	setFloat(&cfg.Scan.MinProfitPct, "ARBISCAN_SCAN_MIN_PROFIT_PCT")
	setInt(&cfg.Scan.BufferSize, "ARBISCAN_SCAN_BUFFER_SIZE")

	setBool(&cfg.Exchanges.Kraken.Enabled, "ARBISCAN_KRAKEN_ENABLED")
	setStr(&cfg.Exchanges.Kraken.RestURL, "ARBISCAN_KRAKEN_REST_URL")
	setStr(&cfg.Exchanges.Kraken.WsURL, "ARBISCAN_KRAKEN_WS_URL")
	setBool(&cfg.Exchanges.Kraken.Stream, "ARBISCAN_KRAKEN_STREAM")

	setBool(&cfg.Exchanges.Bybit.Enabled, "ARBISCAN_BYBIT_ENABLED")
	setStr(&cfg.Exchanges.Bybit.RestURL, "ARBISCAN_BYBIT_REST_URL")
	setStr(&cfg.Exchanges.Bybit.WsURL, "ARBISCAN_BYBIT_WS_URL")
	setBool(&cfg.Exchanges.Bybit.Stream, "ARBISCAN_BYBIT_STREAM")
	setStr(&cfg.Exchanges.Bybit.Category, "ARBISCAN_BYBIT_CATEGORY")

	setBool(&cfg.Exchanges.Kucoin.Enabled, "ARBISCAN_KUCOIN_ENABLED")
	setStr(&cfg.Exchanges.Kucoin.RestURL, "ARBISCAN_KUCOIN_REST_URL")

	setBool(&cfg.Exchanges.Bibox.Enabled, "ARBISCAN_BIBOX_ENABLED")
	setStr(&cfg.Exchanges.Bibox.RestURL, "ARBISCAN_BIBOX_REST_URL")

	setBool(&cfg.Postgres.Enabled, "ARBISCAN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBISCAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBISCAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBISCAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBISCAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBISCAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBISCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBISCAN_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "ARBISCAN_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "ARBISCAN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBISCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBISCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBISCAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBISCAN_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ARBISCAN_REDIS_TLS_ENABLED")

	setFloat(&cfg.Notify.MinProfitPct, "ARBISCAN_NOTIFY_MIN_PROFIT_PCT")
	setStr(&cfg.Notify.TelegramToken, "ARBISCAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBISCAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBISCAN_NOTIFY_DISCORD_WEBHOOK_URL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
