// Package scanner runs the quote round-trip scan: size a trade, probe every
// chain for forward and reverse quotes, net out gas and publish the
// profitable results.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/observability"
)

// TradeSizer converts a USD budget into a base-asset amount.
type TradeSizer interface {
	ComputeTradeSize(ctx context.Context, usdBudget float64) (*big.Int, error)
}

// QuoteSource gathers one cycle's quotes for a trade size.
type QuoteSource interface {
	GatherQuotes(ctx context.Context, amount *big.Int) []domain.Quote
}

// OpportunityFinder turns a cycle's quotes into opportunities.
type OpportunityFinder interface {
	FindOpportunities(quotes []domain.Quote, now time.Time) []domain.Opportunity
}

// Publisher receives each cycle's non-empty batch of opportunities.
type Publisher interface {
	Publish(opps []domain.Opportunity)
}

// Sink is a best-effort consumer of published batches (history, bus,
// alerts). Sink errors are logged and never fail a cycle.
type Sink interface {
	Name() string
	Consume(ctx context.Context, opps []domain.Opportunity) error
}

// SchedulerConfig holds the scan loop parameters.
type SchedulerConfig struct {
	Mode         string
	USDBudget    float64
	Interval     time.Duration
	CycleTimeout time.Duration
	// LockKey and LockTTL are used when a distributed lock is configured.
	LockKey string
	LockTTL time.Duration
}

// SchedulerOption configures optional collaborators.
type SchedulerOption func(*Scheduler)

// WithLocker makes every cycle hold a distributed lock so only one replica
// scans at a time. A cycle that cannot take the lock is skipped.
func WithLocker(l domain.LockManager) SchedulerOption {
	return func(s *Scheduler) { s.locker = l }
}

// WithAudit records one audit row per completed or failed cycle.
func WithAudit(a domain.AuditStore) SchedulerOption {
	return func(s *Scheduler) { s.audit = a }
}

// WithSinks adds batch consumers invoked after the feed is updated.
func WithSinks(sinks ...Sink) SchedulerOption {
	return func(s *Scheduler) { s.sinks = append(s.sinks, sinks...) }
}

// WithMetrics records cycle metrics.
func WithMetrics(m *observability.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithFailureHook is called after every failed cycle.
func WithFailureHook(fn func(ctx context.Context, err error)) SchedulerOption {
	return func(s *Scheduler) { s.onFailure = fn }
}

// WithSchedulerClock injects the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler runs scan cycles one at a time, waiting Interval after each
// cycle finishes before starting the next.
type Scheduler struct {
	sizer     TradeSizer
	quotes    QuoteSource
	finder    OpportunityFinder
	feed      Publisher
	sinks     []Sink
	locker    domain.LockManager
	audit     domain.AuditStore
	metrics   *observability.Metrics
	onFailure func(ctx context.Context, err error)
	cfg       SchedulerConfig
	logger    *slog.Logger
	now       func() time.Time

	running atomic.Bool

	mu     sync.RWMutex
	status domain.ScanStatus
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	sizer TradeSizer,
	quotes QuoteSource,
	finder OpportunityFinder,
	feed Publisher,
	cfg SchedulerConfig,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "scan-cycle"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.CycleTimeout + cfg.Interval
	}
	s := &Scheduler{
		sizer:  sizer,
		quotes: quotes,
		finder: finder,
		feed:   feed,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scheduler")),
		now:    time.Now,
		status: domain.ScanStatus{Mode: cfg.Mode},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes a cycle immediately and then one cycle per Interval, measured
// from the end of the previous cycle, until ctx is cancelled. A failed cycle
// is logged and never stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Float64("usd_budget", s.cfg.USDBudget),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}

		// Failures are logged by RunCycle.
		if _, err := s.RunCycle(ctx); errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "cycle skipped, another replica holds the scan lock")
		}
		timer.Reset(s.cfg.Interval)
	}
}

// RunCycle performs one size -> quotes -> evaluate -> publish pass and
// returns the opportunities it published. It returns domain.ErrCycleRunning
// if a cycle is already in flight.
func (s *Scheduler) RunCycle(ctx context.Context) (opps []domain.Opportunity, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrCycleRunning
	}
	defer s.running.Store(false)

	if s.locker != nil {
		unlock, lerr := s.locker.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if lerr != nil {
			if errors.Is(lerr, domain.ErrLockHeld) {
				return nil, lerr
			}
			s.logger.WarnContext(ctx, "scan lock unavailable, running unlocked", slog.String("error", lerr.Error()))
		} else {
			defer unlock()
		}
	}

	cycleCtx := ctx
	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}

	start := s.now()
	stage := "size"
	stats := cycleStats{}
	defer func() {
		if r := recover(); r != nil {
			opps = nil
			err = fmt.Errorf("scanner: cycle: %w: panic in %s: %v", domain.ErrCycleAborted, stage, r)
		}
		s.finish(ctx, start, stage, stats, err)
	}()

	amount, err := s.sizer.ComputeTradeSize(cycleCtx, s.cfg.USDBudget)
	if err != nil {
		return nil, fmt.Errorf("scanner: cycle: %w: %w", domain.ErrCycleAborted, err)
	}
	stats.tradeSize = amount.String()

	stage = "quotes"
	quotes := s.quotes.GatherQuotes(cycleCtx, amount)
	stats.quotes = len(quotes)

	stage = "evaluate"
	opps = s.finder.FindOpportunities(quotes, s.now())
	stats.opportunities = len(opps)

	if len(opps) > 0 {
		stage = "publish"
		s.feed.Publish(opps)
		for _, o := range opps {
			s.metrics.RecordOpportunity(o.ChainID, o.ExpectedProfitUSD)
		}
		for _, sink := range s.sinks {
			if serr := sink.Consume(cycleCtx, opps); serr != nil {
				s.logger.WarnContext(ctx, "sink failed",
					slog.String("sink", sink.Name()),
					slog.String("error", serr.Error()),
				)
			}
		}
	}
	return opps, nil
}

type cycleStats struct {
	tradeSize     string
	quotes        int
	opportunities int
}

// finish records status, metrics and the audit row for a cycle.
func (s *Scheduler) finish(ctx context.Context, start time.Time, stage string, stats cycleStats, err error) {
	end := s.now()
	elapsed := end.Sub(start)

	s.mu.Lock()
	s.status.Cycles++
	if err != nil {
		s.status.FailedCycles++
		s.status.LastError = err.Error()
	} else {
		s.status.LastUpdated = end
		s.status.LastError = ""
		s.status.Opportunities += int64(stats.opportunities)
	}
	s.mu.Unlock()

	detail := map[string]any{
		"duration_ms":   elapsed.Milliseconds(),
		"trade_size":    stats.tradeSize,
		"quotes":        stats.quotes,
		"opportunities": stats.opportunities,
	}
	event := "scan_cycle"
	if err != nil {
		event = "scan_cycle_failed"
		detail["stage"] = stage
		detail["error"] = err.Error()
		s.metrics.RecordCycle("error", elapsed)
		s.logger.ErrorContext(ctx, "scan cycle failed", slog.String("stage", stage), slog.String("error", err.Error()))
		if s.onFailure != nil {
			s.onFailure(ctx, err)
		}
	} else {
		s.metrics.RecordCycle("ok", elapsed)
		s.logger.InfoContext(ctx, "cycle complete",
			slog.Int("quotes", stats.quotes),
			slog.Int("opportunities", stats.opportunities),
			slog.Duration("elapsed", elapsed),
		)
	}

	if s.audit != nil {
		if aerr := s.audit.Log(ctx, event, detail); aerr != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", aerr.Error()))
		}
	}
}

// Status returns a snapshot of the scheduler's progress.
func (s *Scheduler) Status() domain.ScanStatus {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	st.Running = s.running.Load()
	return st
}
