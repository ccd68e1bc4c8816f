package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/observability"
)

// QuoteProvider prices a single swap on one chain.
type QuoteProvider interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (domain.QuoteResponse, error)
}

// GasPricer returns a chain's current gas price in native smallest units.
type GasPricer interface {
	Supports(chainID int64) bool
	GasPrice(ctx context.Context, chainID int64) (*big.Int, error)
}

// GathererConfig holds the gatherer's tunables.
type GathererConfig struct {
	BaseSymbol     string
	StableSymbol   string
	RequestTimeout time.Duration
	// MaxParallelChains bounds concurrent chain probes; 1 probes chains
	// strictly one after another.
	MaxParallelChains int
}

// Gatherer issues forward and reverse quote requests per chain.
type Gatherer struct {
	book    *domain.AddressBook
	quotes  QuoteProvider
	prices  PriceLookup
	gas     GasPricer
	cfg     GathererConfig
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewGatherer creates a Gatherer. gas may be nil, in which case the
// provider's gas estimate is taken as already denominated in native units.
func NewGatherer(
	book *domain.AddressBook,
	quotes QuoteProvider,
	prices PriceLookup,
	gas GasPricer,
	cfg GathererConfig,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Gatherer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxParallelChains < 1 {
		cfg.MaxParallelChains = 1
	}
	return &Gatherer{
		book:    book,
		quotes:  quotes,
		prices:  prices,
		gas:     gas,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "gatherer")),
		now:     time.Now,
	}
}

// cycleCache holds per-chain gas pricing inputs for the duration of one
// cycle so each chain is priced at most once.
type cycleCache struct {
	mu       sync.Mutex
	native   map[int64]*big.Int // round(nativeUsd * 1e6)
	gasPrice map[int64]*big.Int
}

func newCycleCache() *cycleCache {
	return &cycleCache{
		native:   make(map[int64]*big.Int),
		gasPrice: make(map[int64]*big.Int),
	}
}

// FetchQuote requests one leg on chainID selling amount of fromSymbol for
// toSymbol. Every failure wraps domain.ErrQuoteUnavailable.
func (g *Gatherer) FetchQuote(ctx context.Context, chainID int64, fromSymbol, toSymbol string, amount *big.Int) (domain.Quote, error) {
	return g.fetchQuote(ctx, newCycleCache(), chainID, fromSymbol, toSymbol, amount)
}

// GatherQuotes probes every configured chain: the forward leg sells amount
// of the base asset, and on success the reverse leg sells exactly the
// forward leg's output back. A chain contributes zero, one or two quotes.
// Results keep configured chain order.
func (g *Gatherer) GatherQuotes(ctx context.Context, amount *big.Int) []domain.Quote {
	if amount == nil || amount.Sign() <= 0 {
		g.logger.WarnContext(ctx, "trade size is zero, skipping quotes")
		return nil
	}

	chains := g.book.Chains()
	perChain := make([][]domain.Quote, len(chains))
	cc := newCycleCache()

	var eg errgroup.Group
	eg.SetLimit(g.cfg.MaxParallelChains)
	for i, ch := range chains {
		eg.Go(func() error {
			perChain[i] = g.roundTrip(ctx, cc, ch, amount)
			return nil
		})
	}
	_ = eg.Wait()

	var out []domain.Quote
	for _, qs := range perChain {
		out = append(out, qs...)
	}
	return out
}

func (g *Gatherer) roundTrip(ctx context.Context, cc *cycleCache, ch domain.Chain, amount *big.Int) []domain.Quote {
	fwd, err := g.fetchQuote(ctx, cc, ch.ID, g.cfg.BaseSymbol, g.cfg.StableSymbol, amount)
	if err != nil {
		return nil
	}
	rev, err := g.fetchQuote(ctx, cc, ch.ID, g.cfg.StableSymbol, g.cfg.BaseSymbol, fwd.OutputAmount)
	if err != nil {
		return []domain.Quote{fwd}
	}
	return []domain.Quote{fwd, rev}
}

func (g *Gatherer) fetchQuote(ctx context.Context, cc *cycleCache, chainID int64, fromSymbol, toSymbol string, amount *big.Int) (domain.Quote, error) {
	leg := domain.LegStableToBase
	if fromSymbol == g.cfg.BaseSymbol {
		leg = domain.LegBaseToStable
	}
	log := g.logger.With(
		slog.Int64("chain_id", chainID),
		slog.String("pair", fromSymbol+"->"+toSymbol),
	)

	start := g.now()
	q, err := g.doFetch(ctx, cc, chainID, fromSymbol, toSymbol, leg, amount)
	elapsed := g.now().Sub(start)
	g.metrics.RecordQuote(chainID, string(leg), elapsed, err)
	if err != nil {
		log.WarnContext(ctx, "quote failed", slog.String("error", err.Error()))
		return domain.Quote{}, err
	}
	q.LatencyMs = elapsed.Milliseconds()
	log.DebugContext(ctx, "quote fetched",
		slog.String("in", q.InputAmount.String()),
		slog.String("out", q.OutputAmount.String()),
		slog.String("gas_usd_scaled", q.GasUSDScaled.String()),
		slog.Int64("latency_ms", q.LatencyMs),
	)
	return q, nil
}

func (g *Gatherer) doFetch(ctx context.Context, cc *cycleCache, chainID int64, fromSymbol, toSymbol string, leg domain.Leg, amount *big.Int) (domain.Quote, error) {
	chain, err := g.book.Chain(chainID)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("scanner: quote: %w: %w", domain.ErrQuoteUnavailable, err)
	}
	from, err := g.book.Token(chainID, fromSymbol)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("scanner: quote: %w: %w", domain.ErrQuoteUnavailable, err)
	}
	to, err := g.book.Token(chainID, toSymbol)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("scanner: quote: %w: %w", domain.ErrQuoteUnavailable, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	resp, err := g.quotes.Quote(reqCtx, domain.QuoteRequest{
		ChainID: chainID,
		Src:     from.Address,
		Dst:     to.Address,
		Amount:  new(big.Int).Set(amount),
	})
	if err != nil {
		return domain.Quote{}, asQuoteUnavailable(err)
	}
	if resp.DstAmount == nil {
		return domain.Quote{}, fmt.Errorf("scanner: quote: %w: empty output amount", domain.ErrQuoteUnavailable)
	}

	gasUnits := resp.Gas
	if gasUnits == nil {
		gasUnits = new(big.Int)
	}
	gasNative, err := g.gasNative(reqCtx, cc, chainID, gasUnits)
	if err != nil {
		return domain.Quote{}, asQuoteUnavailable(err)
	}
	nativeScaled, err := g.nativeScaled(reqCtx, cc, chain)
	if err != nil {
		return domain.Quote{}, asQuoteUnavailable(err)
	}

	return domain.Quote{
		ChainID:      chainID,
		ChainName:    chain.Name,
		Leg:          leg,
		FromToken:    from.Symbol,
		ToToken:      to.Symbol,
		InputAmount:  new(big.Int).Set(amount),
		OutputAmount: new(big.Int).Set(resp.DstAmount),
		GasNative:    gasNative,
		GasUSDScaled: GasUSDScaled(nativeScaled, gasNative, chain.NativeDecimals),
		FetchedAt:    g.now(),
	}, nil
}

// gasNative converts the provider's gas figure to native smallest units.
func (g *Gatherer) gasNative(ctx context.Context, cc *cycleCache, chainID int64, gasUnits *big.Int) (*big.Int, error) {
	if g.gas == nil || !g.gas.Supports(chainID) {
		return new(big.Int).Set(gasUnits), nil
	}
	cc.mu.Lock()
	price, ok := cc.gasPrice[chainID]
	cc.mu.Unlock()
	if !ok {
		p, err := g.gas.GasPrice(ctx, chainID)
		if err != nil {
			return nil, err
		}
		price = p
		cc.mu.Lock()
		cc.gasPrice[chainID] = p
		cc.mu.Unlock()
	}
	return new(big.Int).Mul(gasUnits, price), nil
}

// nativeScaled returns round(nativeUsd * 1e6) for the chain's native asset.
func (g *Gatherer) nativeScaled(ctx context.Context, cc *cycleCache, chain domain.Chain) (*big.Int, error) {
	cc.mu.Lock()
	v, ok := cc.native[chain.ID]
	cc.mu.Unlock()
	if ok {
		return v, nil
	}
	usd, err := g.prices.GetUSDPrice(ctx, chain.NativeSymbol)
	if err != nil {
		return nil, err
	}
	v = big.NewInt(int64(math.Round(usd * domain.USDScale)))
	cc.mu.Lock()
	cc.native[chain.ID] = v
	cc.mu.Unlock()
	return v, nil
}

// GasUSDScaled converts a native gas cost to 6-decimal fixed-point USD:
// nativeScaled * gasNative / 10^nativeDecimals.
func GasUSDScaled(nativeScaled, gasNative *big.Int, nativeDecimals int) *big.Int {
	out := new(big.Int).Mul(nativeScaled, gasNative)
	return out.Quo(out, pow10(nativeDecimals))
}

func asQuoteUnavailable(err error) error {
	if errors.Is(err, domain.ErrQuoteUnavailable) {
		return err
	}
	return fmt.Errorf("scanner: quote: %w: %w", domain.ErrQuoteUnavailable, err)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
