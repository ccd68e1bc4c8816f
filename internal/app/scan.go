package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/chainarb/internal/config"
	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/feed"
	"github.com/alanyoungcy/chainarb/internal/platform/cryptocompare"
	"github.com/alanyoungcy/chainarb/internal/platform/evm"
	"github.com/alanyoungcy/chainarb/internal/platform/oneinch"
	"github.com/alanyoungcy/chainarb/internal/pricing"
	"github.com/alanyoungcy/chainarb/internal/scanner"
)

// scanStack is the assembled scan pipeline.
type scanStack struct {
	prices    *pricing.Cache
	scheduler *scanner.Scheduler
	closers   []func()
}

func (s *scanStack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildAddressBook loads the configured chain table.
func buildAddressBook(chains []config.ChainConfig) (*domain.AddressBook, error) {
	book := domain.NewAddressBook()
	for _, ch := range chains {
		book.AddChain(domain.Chain{
			ID:             ch.ID,
			Name:           ch.Name,
			NativeSymbol:   ch.NativeSymbol,
			NativeDecimals: ch.NativeDecimals,
			RPCURL:         ch.RPCURL,
		})
		for sym, tok := range ch.Tokens {
			if err := book.AddToken(ch.ID, sym, tok.Address, tok.Decimals); err != nil {
				return nil, fmt.Errorf("app: chain %d: %w", ch.ID, err)
			}
		}
	}
	return book, nil
}

// buildScanner assembles the price cache, sizer, gatherer, evaluator and
// scheduler. Every published batch goes to fd plus whichever of the history
// store, bus and notifier are wired.
func (a *App) buildScanner(deps *Dependencies, fd *feed.Feed) (*scanStack, error) {
	sc := a.cfg.Scanner
	book, err := buildAddressBook(a.cfg.Chains)
	if err != nil {
		return nil, err
	}
	chains := book.Chains()
	if len(chains) == 0 {
		return nil, fmt.Errorf("app: no chains configured")
	}
	base, err := book.Token(chains[0].ID, sc.BaseSymbol)
	if err != nil {
		return nil, fmt.Errorf("app: base asset: %w", err)
	}

	stack := &scanStack{}

	priceOpts := []pricing.Option{
		pricing.WithTTL(sc.PriceTTL.Duration),
		pricing.WithMetrics(deps.Metrics),
	}
	if deps.PriceStore != nil {
		priceOpts = append(priceOpts, pricing.WithStore(deps.PriceStore))
	}
	stack.prices = pricing.NewCache(
		cryptocompare.NewClient(a.cfg.Prices.BaseURL, a.cfg.Prices.APIKey),
		a.logger,
		priceOpts...,
	)

	var gas scanner.GasPricer
	if sc.UseGasOracle {
		endpoints := make(map[int64]string, len(chains))
		for _, ch := range chains {
			endpoints[ch.ID] = ch.RPCURL
		}
		oracle := evm.NewGasOracle(endpoints, a.logger)
		stack.closers = append(stack.closers, oracle.Close)
		gas = oracle
	}

	gatherer := scanner.NewGatherer(
		book,
		oneinch.NewClient(a.cfg.OneInch.BaseURL, a.cfg.OneInch.APIKey),
		stack.prices,
		gas,
		scanner.GathererConfig{
			BaseSymbol:        sc.BaseSymbol,
			StableSymbol:      sc.StableSymbol,
			RequestTimeout:    sc.RequestTimeout.Duration,
			MaxParallelChains: sc.MaxParallelChains,
		},
		deps.Metrics,
		a.logger,
	)
	evaluator := scanner.NewEvaluator(book, sc.StableSymbol, uuid.NewString)

	opts := []scanner.SchedulerOption{
		scanner.WithMetrics(deps.Metrics),
		scanner.WithSinks(a.sinks(deps)...),
	}
	if deps.LockManager != nil {
		opts = append(opts, scanner.WithLocker(deps.LockManager))
	}
	if deps.AuditStore != nil {
		opts = append(opts, scanner.WithAudit(deps.AuditStore))
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		opts = append(opts, scanner.WithFailureHook(deps.Notifier.CycleFailed))
	}

	stack.scheduler = scanner.NewScheduler(
		scanner.NewSizer(stack.prices, sc.PriceSymbol, base.Decimals),
		gatherer,
		evaluator,
		fd,
		scanner.SchedulerConfig{
			Mode:         a.cfg.Mode,
			USDBudget:    sc.USDBudget,
			Interval:     sc.Interval.Duration,
			CycleTimeout: sc.CycleTimeout.Duration,
		},
		a.logger,
		opts...,
	)

	a.logger.Info("scanner assembled",
		slog.Int("chains", len(chains)),
		slog.String("pair", sc.BaseSymbol+"/"+sc.StableSymbol),
		slog.Float64("usd_budget", sc.USDBudget),
		slog.Bool("gas_oracle", gas != nil),
	)
	return stack, nil
}

// sinks returns the batch consumers available with the wired backends.
func (a *App) sinks(deps *Dependencies) []scanner.Sink {
	var out []scanner.Sink
	if deps.OpportunityStore != nil {
		out = append(out, historySink{store: deps.OpportunityStore})
	}
	if deps.SignalBus != nil {
		out = append(out, feed.NewBusSink(deps.SignalBus, a.cfg.Redis.Channel, deps.History))
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		out = append(out, deps.Notifier)
	}
	return out
}

// historySink persists every published batch.
type historySink struct {
	store domain.OpportunityStore
}

func (historySink) Name() string { return "history" }

func (h historySink) Consume(ctx context.Context, opps []domain.Opportunity) error {
	return h.store.InsertBatch(ctx, opps)
}
