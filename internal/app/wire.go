package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/chainarb/internal/blob/s3"
	"github.com/alanyoungcy/chainarb/internal/cache/redis"
	"github.com/alanyoungcy/chainarb/internal/config"
	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/notify"
	"github.com/alanyoungcy/chainarb/internal/observability"
	"github.com/alanyoungcy/chainarb/internal/server/handler"
	"github.com/alanyoungcy/chainarb/internal/store/postgres"
)

// redisKeyPrefix namespaces every Redis key and channel the scanner uses.
const redisKeyPrefix = "chainarb:"

// Dependencies bundles the infrastructure the application modes need. Any
// field may be nil when the backing service is not configured.
type Dependencies struct {
	// Stores
	OpportunityStore domain.OpportunityStore
	AuditStore       domain.AuditStore

	// Shared state
	PriceStore  domain.PriceStore
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	History     domain.HistoryLog

	// Blob storage
	Archiver domain.Archiver

	Notifier *notify.Notifier
	Metrics  *observability.Metrics

	// Checks feeds GET /api/health, one entry per connected backend.
	Checks map[string]handler.Check
}

// needsPostgres reports whether the configuration requires a database.
func needsPostgres(cfg *config.Config) bool {
	return cfg.Postgres.Enabled || needsS3(cfg)
}

// needsS3 reports whether the configuration requires object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled || strings.EqualFold(cfg.Mode, "archive")
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		deps.Metrics = observability.NewMetrics(cfg.Metrics.Namespace, reg)
	}

	// --- PostgreSQL ---
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "migrations applied", slog.Any("files", applied))
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  redisKeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		// Shared prices outlive the local TTL so a restarted replica can still
		// see when the last refresh happened.
		deps.PriceStore = redis.NewPriceStore(redisClient, 10*cfg.Scanner.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		bus := redis.NewSignalBus(redisClient, int64(cfg.Scanner.FeedCapacity*10))
		deps.SignalBus = bus
		deps.History = bus
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewOpportunityArchiver(
			s3blob.NewReader(s3Client),
			s3blob.NewWriter(s3Client),
			deps.OpportunityStore,
			deps.AuditStore,
		)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.MinProfitUSD, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("postgres", deps.OpportunityStore != nil),
		slog.Bool("redis", deps.SignalBus != nil),
		slog.Bool("s3", deps.Archiver != nil),
		slog.Int("notify_senders", len(senders)),
	)
	return deps, cleanup, nil
}
