// Package config defines the top-level configuration for the chain arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CHAINARB_* environment variables.
type Config struct {
	Scanner  ScannerConfig  `toml:"scanner"`
	Chains   []ChainConfig  `toml:"chains"`
	OneInch  OneInchConfig  `toml:"oneinch"`
	Prices   PricesConfig   `toml:"prices"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ScannerConfig holds the scan loop parameters.
type ScannerConfig struct {
	BaseSymbol   string `toml:"base_symbol"`
	StableSymbol string `toml:"stable_symbol"`
	// PriceSymbol is the symbol used to price the base asset upstream
	// (e.g. "WETH"); defaults to BaseSymbol.
	PriceSymbol       string   `toml:"price_symbol"`
	USDBudget         float64  `toml:"usd_budget"`
	Interval          duration `toml:"interval"`
	PriceTTL          duration `toml:"price_ttl"`
	RequestTimeout    duration `toml:"request_timeout"`
	CycleTimeout      duration `toml:"cycle_timeout"`
	FeedCapacity      int      `toml:"feed_capacity"`
	MaxParallelChains int      `toml:"max_parallel_chains"`
	// UseGasOracle multiplies provider gas units by each chain's RPC gas
	// price when the chain has an rpc_url.
	UseGasOracle bool `toml:"use_gas_oracle"`
}

// TokenConfig is one asset deployment on a chain.
type TokenConfig struct {
	Address  string `toml:"address"`
	Decimals int    `toml:"decimals"`
}

// ChainConfig describes one chain to scan and its address table.
type ChainConfig struct {
	ID             int64                  `toml:"id"`
	Name           string                 `toml:"name"`
	NativeSymbol   string                 `toml:"native_symbol"`
	NativeDecimals int                    `toml:"native_decimals"`
	RPCURL         string                 `toml:"rpc_url"`
	Tokens         map[string]TokenConfig `toml:"tokens"`
}

// OneInchConfig holds the swap-quote provider endpoint and credentials.
type OneInchConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// PricesConfig holds the USD price provider endpoint and credentials.
type PricesConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// Channel is the pub/sub channel opportunity batches are published on.
	Channel string `toml:"channel"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls moving old opportunity history to S3.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "15s", "24h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimitPerMinute caps requests per client IP; 0 disables limiting.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
	// DefaultListLimit is how many items GET /opportunities returns when
	// no limit is given.
	DefaultListLimit int `toml:"default_list_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MinProfitUSD suppresses alerts for opportunities below this profit.
	MinProfitUSD float64 `toml:"min_profit_usd"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Scanner: ScannerConfig{
			BaseSymbol:        "WETH",
			StableSymbol:      "USDC",
			PriceSymbol:       "WETH",
			USDBudget:         60_000,
			Interval:          duration{15 * time.Second},
			PriceTTL:          duration{30 * time.Second},
			RequestTimeout:    duration{10 * time.Second},
			CycleTimeout:      duration{2 * time.Minute},
			FeedCapacity:      100,
			MaxParallelChains: 1,
		},
		Chains: DefaultChains(),
		OneInch: OneInchConfig{
			BaseURL: "https://api.1inch.dev/swap/v6.1",
		},
		Prices: PricesConfig{
			BaseURL: "https://min-api.cryptocompare.com",
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Channel:    "arb",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "chainarb-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             3000,
			CORSOrigins:      []string{"*"},
			DefaultListLimit: 20,
		},
		Notify: NotifyConfig{
			Events: []string{"arb_detected", "cycle_failed"},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "chainarb",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// DefaultChains returns the WETH/USDC route table for Ethereum, Polygon and
// Arbitrum.
func DefaultChains() []ChainConfig {
	return []ChainConfig{
		{
			ID: 1, Name: "ethereum", NativeSymbol: "ETH", NativeDecimals: 18,
			Tokens: map[string]TokenConfig{
				"WETH": {Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
				"USDC": {Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
			},
		},
		{
			ID: 137, Name: "polygon", NativeSymbol: "MATIC", NativeDecimals: 18,
			Tokens: map[string]TokenConfig{
				"WETH": {Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
				"USDC": {Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6},
			},
		},
		{
			ID: 42161, Name: "arbitrum", NativeSymbol: "ETH", NativeDecimals: 18,
			Tokens: map[string]TokenConfig{
				"WETH": {Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
				"USDC": {Address: "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8", Decimals: 6},
			},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true,
	"scan":    true,
	"server":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// maxDecimals bounds token and native decimals. ERC-20 tokens in practice
// use at most 18.
const maxDecimals = 36

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, scan, server, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Scanner
	if c.Scanner.BaseSymbol == "" || c.Scanner.StableSymbol == "" {
		errs = append(errs, "scanner: base_symbol and stable_symbol must be set")
	}
	if c.Scanner.PriceSymbol == "" {
		errs = append(errs, "scanner: price_symbol must not be empty")
	}
	if b := c.Scanner.USDBudget; math.IsNaN(b) || math.IsInf(b, 0) || b < 0 {
		errs = append(errs, "scanner: usd_budget must be a finite number >= 0")
	}
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0")
	}
	if c.Scanner.PriceTTL.Duration <= 0 {
		errs = append(errs, "scanner: price_ttl must be > 0")
	}
	if c.Scanner.RequestTimeout.Duration <= 0 {
		errs = append(errs, "scanner: request_timeout must be > 0")
	}
	if c.Scanner.FeedCapacity < 1 {
		errs = append(errs, "scanner: feed_capacity must be >= 1")
	}
	if c.Scanner.MaxParallelChains < 1 {
		errs = append(errs, "scanner: max_parallel_chains must be >= 1")
	}

	// Chains
	scanning := mode == "full" || mode == "scan"
	if scanning && len(c.Chains) == 0 {
		errs = append(errs, "chains: at least one chain is required for mode "+c.Mode)
	}
	seen := make(map[int64]bool, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.ID <= 0 {
			errs = append(errs, fmt.Sprintf("chains: %q: id must be positive", ch.Name))
			continue
		}
		if seen[ch.ID] {
			errs = append(errs, fmt.Sprintf("chains: duplicate id %d", ch.ID))
		}
		seen[ch.ID] = true
		if ch.NativeSymbol == "" {
			errs = append(errs, fmt.Sprintf("chains: %d: native_symbol must not be empty", ch.ID))
		}
		if ch.NativeDecimals < 0 || ch.NativeDecimals > maxDecimals {
			errs = append(errs, fmt.Sprintf("chains: %d: native_decimals must be within 0..%d", ch.ID, maxDecimals))
		}
		for _, sym := range []string{c.Scanner.BaseSymbol, c.Scanner.StableSymbol} {
			tok, ok := lookupToken(ch.Tokens, sym)
			if !ok {
				errs = append(errs, fmt.Sprintf("chains: %d: missing token %s", ch.ID, sym))
				continue
			}
			if !common.IsHexAddress(tok.Address) {
				errs = append(errs, fmt.Sprintf("chains: %d: token %s has invalid address %q", ch.ID, sym, tok.Address))
			}
			if tok.Decimals < 0 || tok.Decimals > maxDecimals {
				errs = append(errs, fmt.Sprintf("chains: %d: token %s decimals must be within 0..%d", ch.ID, sym, maxDecimals))
			}
		}
	}

	// Providers
	if scanning {
		if c.OneInch.BaseURL == "" {
			errs = append(errs, "oneinch: base_url must not be empty")
		}
		if c.OneInch.APIKey == "" {
			errs = append(errs, "oneinch: api_key is required for mode "+c.Mode)
		}
		if c.Prices.BaseURL == "" {
			errs = append(errs, "prices: base_url must not be empty")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if mode == "server" && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled for mode server (feed is bridged from the scanner)")
	}

	// Postgres
	needsPostgres := c.Postgres.Enabled || mode == "archive" || c.Archive.Enabled
	if needsPostgres {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Archive
	if c.Archive.Enabled || mode == "archive" {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.DefaultListLimit < 1 {
			errs = append(errs, "server: default_list_limit must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// lookupToken finds a token by symbol, ignoring case.
func lookupToken(tokens map[string]TokenConfig, symbol string) (TokenConfig, bool) {
	for k, v := range tokens {
		if strings.EqualFold(k, symbol) {
			return v, true
		}
	}
	return TokenConfig{}, false
}
