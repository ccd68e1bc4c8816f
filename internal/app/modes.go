package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/chainarb/internal/feed"
	"github.com/alanyoungcy/chainarb/internal/pipeline"
	"github.com/alanyoungcy/chainarb/internal/server"
	"github.com/alanyoungcy/chainarb/internal/server/handler"
	"github.com/alanyoungcy/chainarb/internal/server/ws"
)

// shutdownTimeout bounds how long in-flight HTTP requests may drain.
const shutdownTimeout = 5 * time.Second

// FullMode runs the scanner and the HTTP/WebSocket API in one process, plus
// the archive job when it is enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering full mode")

	fd := feed.New(a.cfg.Scanner.FeedCapacity, deps.Metrics)
	a.seedFeed(ctx, deps, fd)

	stack, err := a.buildScanner(deps, fd)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	defer stack.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return stack.scheduler.Run(ctx)
	})
	a.startArchiver(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, fd, stack.scheduler, stack.prices)
	}
	return g.Wait()
}

// ScanMode runs the scanner without an HTTP surface. Batches reach API
// replicas through the Redis bus and the history store.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering scan mode")
	if deps.SignalBus == nil && deps.OpportunityStore == nil {
		a.logger.WarnContext(ctx, "scan mode without redis or postgres: opportunities are only logged")
	}

	fd := feed.New(a.cfg.Scanner.FeedCapacity, deps.Metrics)
	stack, err := a.buildScanner(deps, fd)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	defer stack.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return stack.scheduler.Run(ctx)
	})
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// ServerMode serves the API only. The feed is seeded from history and then
// kept current from the bus channel the scanners publish to.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering server mode")
	if deps.SignalBus == nil {
		return fmt.Errorf("server mode: redis is required")
	}

	fd := feed.New(a.cfg.Scanner.FeedCapacity, deps.Metrics)
	a.seedFeed(ctx, deps, fd)

	g, ctx := errgroup.WithContext(ctx)
	bridge := feed.NewBridge(deps.SignalBus, a.cfg.Redis.Channel, fd, a.logger)
	g.Go(func() error {
		return bridge.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, fd, nil, nil)
	return g.Wait()
}

// ArchiveMode runs the archive job loop only.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "entering archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: s3 archiver is not configured")
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// seedFeed restores recent history so a restarted process does not serve an
// empty feed. Postgres wins over the Redis history stream. Failures are
// logged and leave the feed empty.
func (a *App) seedFeed(ctx context.Context, deps *Dependencies, fd *feed.Feed) {
	limit := fd.Capacity()
	var source string
	var err error
	switch {
	case deps.OpportunityStore != nil:
		source = "postgres"
		opps, lerr := deps.OpportunityStore.ListRecent(ctx, limit)
		if err = lerr; err == nil {
			fd.Seed(opps)
		}
	case deps.History != nil:
		source = "redis"
		opps, lerr := feed.LoadHistory(ctx, deps.History, a.cfg.Redis.Channel, limit)
		if err = lerr; err == nil {
			fd.Seed(opps)
		}
	default:
		return
	}
	if err != nil {
		a.logger.WarnContext(ctx, "feed seed failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.InfoContext(ctx, "feed seeded",
		slog.String("source", source),
		slog.Int("opportunities", fd.Len()),
	)
}

// startArchiver adds the archive loop to g when archiving is configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	arch := pipeline.NewArchiver(
		deps.Archiver,
		a.cfg.Archive.RetentionDays,
		a.cfg.Archive.Interval.Duration,
		deps.Metrics,
		a.logger,
	)
	g.Go(func() error {
		return arch.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to g.
// scanner and prices are nil on API-only replicas. The server is shut down
// gracefully when ctx is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	fd *feed.Feed,
	scanner handler.StatusSource,
	prices handler.PriceSnapshotter,
) {
	status := handler.NewStatusHandler(a.cfg.Mode, a.startedAt, scanner, prices, fd)
	if deps.AuditStore != nil {
		status.WithAudit(deps.AuditStore)
	}
	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(deps.Checks, a.logger),
		Opportunities: handler.NewOpportunityHandler(fd, a.cfg.Server.DefaultListLimit),
		Status:        status,
	}
	if deps.Metrics != nil {
		handlers.Metrics = deps.Metrics.Handler()
	}

	hub := ws.NewHub(fd, a.cfg.Server.CORSOrigins, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
