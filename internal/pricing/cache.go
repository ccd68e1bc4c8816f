// Package pricing provides a TTL-bounded USD price cache in front of an
// upstream price provider, with an optional shared tier for replicas.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/observability"
)

// DefaultTTL is how long a fetched price stays fresh.
const DefaultTTL = 30 * time.Second

// Source fetches the current USD price of an asset from upstream.
type Source interface {
	USDPrice(ctx context.Context, symbol string) (float64, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the time source used for freshness checks.
func WithClock(c Clock) Option {
	return func(pc *Cache) { pc.now = c }
}

// WithStore adds a shared price tier consulted before the upstream source.
func WithStore(s domain.PriceStore) Option {
	return func(pc *Cache) { pc.store = s }
}

// WithMetrics counts upstream refreshes. Cache hits are not counted.
func WithMetrics(m *observability.Metrics) Option {
	return func(pc *Cache) { pc.metrics = m }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(pc *Cache) {
		if ttl > 0 {
			pc.ttl = ttl
		}
	}
}

// Cache returns USD prices, refreshing an entry from upstream only when it is
// older than the TTL. Safe for concurrent use.
type Cache struct {
	source  Source
	store   domain.PriceStore
	now     Clock
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]domain.PriceEntry
	group   singleflight.Group
}

// NewCache creates a Cache backed by source.
func NewCache(source Source, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		source:  source,
		now:     time.Now,
		ttl:     DefaultTTL,
		logger:  logger.With(slog.String("component", "price_cache")),
		entries: make(map[string]domain.PriceEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUSDPrice returns the USD price of symbol. A cached entry younger than
// the TTL is returned without any upstream call. A failed refresh leaves the
// previous entry in place and returns an error wrapping
// domain.ErrPriceUnavailable.
func (c *Cache) GetUSDPrice(ctx context.Context, symbol string) (float64, error) {
	sym := strings.ToUpper(symbol)
	if e, ok := c.local(sym); ok && e.Fresh(c.now(), c.ttl) {
		return e.PriceUSD, nil
	}

	v, err, _ := c.group.Do(sym, func() (any, error) {
		// Another caller may have refreshed while we waited.
		if e, ok := c.local(sym); ok && e.Fresh(c.now(), c.ttl) {
			return e.PriceUSD, nil
		}
		if price, ok := c.fromStore(ctx, sym); ok {
			return price, nil
		}
		return c.refresh(ctx, sym)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Snapshot returns every locally cached entry sorted by symbol.
func (c *Cache) Snapshot() []domain.PriceEntry {
	c.mu.RLock()
	out := make([]domain.PriceEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (c *Cache) local(sym string) (domain.PriceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sym]
	return e, ok
}

func (c *Cache) put(e domain.PriceEntry) {
	c.mu.Lock()
	c.entries[e.Symbol] = e
	c.mu.Unlock()
}

// fromStore consults the shared tier. Errors are logged and treated as a miss.
func (c *Cache) fromStore(ctx context.Context, sym string) (float64, bool) {
	if c.store == nil {
		return 0, false
	}
	price, ts, err := c.store.GetPrice(ctx, sym)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WarnContext(ctx, "shared price tier read failed",
				slog.String("symbol", sym), slog.String("error", err.Error()))
		}
		return 0, false
	}
	e := domain.PriceEntry{Symbol: sym, PriceUSD: price, FetchedAt: ts}
	if price <= 0 || !e.Fresh(c.now(), c.ttl) {
		return 0, false
	}
	c.put(e)
	return price, true
}

// refresh fetches sym from upstream and records the outcome.
func (c *Cache) refresh(ctx context.Context, sym string) (float64, error) {
	price, err := c.fetch(ctx, sym)
	c.metrics.RecordPriceFetch(err)
	if err != nil {
		return 0, err
	}

	e := domain.PriceEntry{Symbol: sym, PriceUSD: price, FetchedAt: c.now()}
	c.put(e)
	if c.store != nil {
		if err := c.store.SetPrice(ctx, sym, price, e.FetchedAt); err != nil {
			c.logger.WarnContext(ctx, "shared price tier write failed",
				slog.String("symbol", sym), slog.String("error", err.Error()))
		}
	}
	c.logger.DebugContext(ctx, "price refreshed",
		slog.String("symbol", sym), slog.Float64("usd", price))
	return price, nil
}

func (c *Cache) fetch(ctx context.Context, sym string) (float64, error) {
	price, err := c.source.USDPrice(ctx, sym)
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			return 0, fmt.Errorf("pricing: get %s: %w", sym, err)
		}
		return 0, fmt.Errorf("pricing: get %s: %w: %v", sym, domain.ErrPriceUnavailable, err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("pricing: get %s: %w: invalid price %v", sym, domain.ErrPriceUnavailable, price)
	}
	return price, nil
}
