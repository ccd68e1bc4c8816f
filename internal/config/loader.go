package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CHAINARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		// A [[chains]] table in the file replaces the default route table
		// instead of appending to it.
		var probe struct {
			Chains []ChainConfig `toml:"chains"`
		}
		md, err := toml.DecodeFile(path, &probe)
		if err != nil {
			return nil, err
		}
		if md.IsDefined("chains") {
			cfg.Chains = nil
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CHAINARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Scanner ──
	setStr(&cfg.Scanner.BaseSymbol, "CHAINARB_SCANNER_BASE_SYMBOL")
	setStr(&cfg.Scanner.StableSymbol, "CHAINARB_SCANNER_STABLE_SYMBOL")
	setStr(&cfg.Scanner.PriceSymbol, "CHAINARB_SCANNER_PRICE_SYMBOL")
	setFloat64(&cfg.Scanner.USDBudget, "CHAINARB_SCANNER_USD_BUDGET")
	setDuration(&cfg.Scanner.Interval, "CHAINARB_SCANNER_INTERVAL")
	setDuration(&cfg.Scanner.PriceTTL, "CHAINARB_SCANNER_PRICE_TTL")
	setDuration(&cfg.Scanner.RequestTimeout, "CHAINARB_SCANNER_REQUEST_TIMEOUT")
	setDuration(&cfg.Scanner.CycleTimeout, "CHAINARB_SCANNER_CYCLE_TIMEOUT")
	setInt(&cfg.Scanner.FeedCapacity, "CHAINARB_SCANNER_FEED_CAPACITY")
	setInt(&cfg.Scanner.MaxParallelChains, "CHAINARB_SCANNER_MAX_PARALLEL_CHAINS")
	setBool(&cfg.Scanner.UseGasOracle, "CHAINARB_SCANNER_USE_GAS_ORACLE")

	// ── Providers ──
	setStr(&cfg.OneInch.BaseURL, "CHAINARB_ONEINCH_BASE_URL")
	setStr(&cfg.OneInch.APIKey, "CHAINARB_ONEINCH_API_KEY")
	setStr(&cfg.Prices.BaseURL, "CHAINARB_PRICES_BASE_URL")
	setStr(&cfg.Prices.APIKey, "CHAINARB_PRICES_API_KEY")

	// ── Chain RPC endpoints: CHAINARB_RPC_<CHAIN ID> ──
	for i := range cfg.Chains {
		setStr(&cfg.Chains[i].RPCURL, "CHAINARB_RPC_"+strconv.FormatInt(cfg.Chains[i].ID, 10))
	}

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CHAINARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CHAINARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CHAINARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CHAINARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CHAINARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CHAINARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CHAINARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CHAINARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CHAINARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CHAINARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CHAINARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CHAINARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CHAINARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CHAINARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CHAINARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CHAINARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CHAINARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CHAINARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Channel, "CHAINARB_REDIS_CHANNEL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CHAINARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CHAINARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CHAINARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CHAINARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CHAINARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CHAINARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CHAINARB_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CHAINARB_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "CHAINARB_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "CHAINARB_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CHAINARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CHAINARB_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform-injected port
	setStringSlice(&cfg.Server.CORSOrigins, "CHAINARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CHAINARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "CHAINARB_SERVER_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.Server.DefaultListLimit, "CHAINARB_SERVER_DEFAULT_LIST_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CHAINARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CHAINARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CHAINARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CHAINARB_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinProfitUSD, "CHAINARB_NOTIFY_MIN_PROFIT_USD")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "CHAINARB_METRICS_ENABLED")
	setStr(&cfg.Metrics.Namespace, "CHAINARB_METRICS_NAMESPACE")

	// ── Top-level ──
	setStr(&cfg.Mode, "CHAINARB_MODE")
	setStr(&cfg.LogLevel, "CHAINARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setFloat64(dst *float64, key string) {
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
