package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/observability"
)

type fakeSource struct {
	calls atomic.Int32
	price float64
	err   error
	delay time.Duration
}

func (s *fakeSource) USDPrice(ctx context.Context, symbol string) (float64, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.price, s.err
}

type memStore struct {
	mu     sync.Mutex
	prices map[string]domain.PriceEntry
}

func newMemStore() *memStore { return &memStore{prices: map[string]domain.PriceEntry{}} }

func (m *memStore) SetPrice(_ context.Context, symbol string, price float64, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = domain.PriceEntry{Symbol: symbol, PriceUSD: price, FetchedAt: ts}
	return nil
}

func (m *memStore) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return e.PriceUSD, e.FetchedAt, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGetUSDPrice_ServesFreshEntryFromCache(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &fakeSource{price: 3000}
	c := NewCache(src, discard(), WithClock(clock.Now))
	ctx := context.Background()

	p, err := c.GetUSDPrice(ctx, "WETH")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, p)

	clock.Advance(10 * time.Second)
	src.price = 3100
	p, err = c.GetUSDPrice(ctx, "weth")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, p, "entry is 10s old, within the 30s ttl")
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestGetUSDPrice_RefreshesStaleEntry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &fakeSource{price: 3000}
	c := NewCache(src, discard(), WithClock(clock.Now))
	ctx := context.Background()

	_, err := c.GetUSDPrice(ctx, "WETH")
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	src.price = 3100
	p, err := c.GetUSDPrice(ctx, "WETH")
	require.NoError(t, err)
	assert.Equal(t, 3100.0, p)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestGetUSDPrice_ExactlyTTLIsStale(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &fakeSource{price: 1}
	c := NewCache(src, discard(), WithClock(clock.Now), WithTTL(30*time.Second))
	ctx := context.Background()

	_, err := c.GetUSDPrice(ctx, "MATIC")
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = c.GetUSDPrice(ctx, "MATIC")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestGetUSDPrice_NonPositiveIsUnavailable(t *testing.T) {
	for _, price := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		src := &fakeSource{price: price}
		c := NewCache(src, discard())

		_, err := c.GetUSDPrice(context.Background(), "WETH")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
		assert.Empty(t, c.Snapshot(), "invalid prices are not cached")
	}
}

func TestGetUSDPrice_MetricsCountUpstreamRefreshesOnly(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &fakeSource{price: 3000}
	m := observability.NewMetrics("test", nil)
	c := NewCache(src, discard(), WithClock(clock.Now), WithMetrics(m))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.GetUSDPrice(ctx, "WETH")
		require.NoError(t, err)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceFetchTotal.WithLabelValues("ok")), "cache hits are not refreshes")

	clock.Advance(time.Minute)
	src.err = errors.New("upstream 503")
	_, err := c.GetUSDPrice(ctx, "WETH")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceFetchTotal.WithLabelValues("error")))
}

func TestGetUSDPrice_FailedRefreshKeepsPreviousEntry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &fakeSource{price: 3000}
	c := NewCache(src, discard(), WithClock(clock.Now))
	ctx := context.Background()

	_, err := c.GetUSDPrice(ctx, "WETH")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	src.err = errors.New("upstream 503")
	_, err = c.GetUSDPrice(ctx, "WETH")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 3000.0, snap[0].PriceUSD)
}

func TestGetUSDPrice_SharedTier(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := newMemStore()
	require.NoError(t, store.SetPrice(context.Background(), "ETH", 2500, clock.Now().Add(-5*time.Second)))

	src := &fakeSource{price: 9999}
	c := NewCache(src, discard(), WithClock(clock.Now), WithStore(store))

	p, err := c.GetUSDPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, 2500.0, p, "fresh shared entry wins over upstream")
	assert.Zero(t, src.calls.Load())

	// A stale shared entry falls through to upstream, which writes back.
	clock.Advance(time.Minute)
	p, err = c.GetUSDPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, 9999.0, p)
	got, ts, err := store.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, 9999.0, got)
	assert.Equal(t, clock.Now(), ts)
}

func TestGetUSDPrice_CollapsesConcurrentMisses(t *testing.T) {
	src := &fakeSource{price: 1.1, delay: 50 * time.Millisecond}
	c := NewCache(src, discard())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.GetUSDPrice(context.Background(), "MATIC")
			assert.NoError(t, err)
			assert.Equal(t, 1.1, p)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}
