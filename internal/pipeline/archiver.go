// Package pipeline runs background maintenance jobs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/observability"
)

// Archiver periodically moves old opportunity history to cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	interval      time.Duration
	metrics       *observability.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates an Archiver. interval <= 0 defaults to 24h.
func NewArchiver(
	blobArchiver domain.Archiver,
	retentionDays int,
	interval time.Duration,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Archiver {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		interval:      interval,
		metrics:       metrics,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           time.Now,
	}
}

// Cutoff returns the retention boundary for a run at now.
func (a *Archiver) Cutoff(now time.Time) time.Time {
	return now.UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// RunOnce archives everything older than the retention window.
func (a *Archiver) RunOnce(ctx context.Context) (int64, error) {
	cutoff := a.Cutoff(a.now())
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blobArchiver.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pipeline: archive opportunities before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	a.metrics.RecordArchived(n)
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("archived", n))
	return n, nil
}

// Run performs a pass immediately and then every interval until ctx is
// cancelled. Failed passes are logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started", slog.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return nil
		case <-ticker.C:
		}
	}
}
