package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// setupRedis starts a throwaway Redis container and returns a namespaced
// client.
func setupRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{Addr: endpoint, KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPriceStore_RoundTrip(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	ps := NewPriceStore(c, time.Minute)

	_, _, err := ps.GetPrice(ctx, "ETH")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ts := time.Unix(1_700_000_000, 123)
	require.NoError(t, ps.SetPrice(ctx, "eth", 3012.55, ts))

	price, got, err := ps.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, 3012.55, price)
	assert.True(t, ts.Equal(got))

	ttl, err := c.Underlying().TTL(ctx, "test:price:ETH").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestLockManager_ExclusiveUntilUnlocked(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "scan-cycle", 10*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "scan-cycle", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "scan-cycle", 10*time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestLockManager_StaleUnlockKeepsNewHolder(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	stale, err := lm.Acquire(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	_, err = lm.Acquire(ctx, "k", 10*time.Second)
	require.NoError(t, err)

	stale()
	_, err = lm.Acquire(ctx, "k", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "client-b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	now = now.Add(61 * time.Second)
	ok, err = rl.Allow(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window slid past old requests")
}

func TestSignalBus_PublishSubscribe(t *testing.T) {
	c := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c, 0)

	ch, err := bus.Subscribe(ctx, "arb")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "arb", []byte(`{"event":"arb-opportunity"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"event":"arb-opportunity"}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSignalBus_HistoryNewestFirst(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	bus := NewSignalBus(c, 10)

	got, err := bus.Latest(ctx, "arb:history", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, p := range []string{"one", "two", "three"} {
		require.NoError(t, bus.Append(ctx, "arb:history", []byte(p)))
	}
	got, err = bus.Latest(ctx, "arb:history", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", string(got[0]))
	assert.Equal(t, "two", string(got[1]))
}

func TestWrap_UsesPrefix(t *testing.T) {
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"}), "ns:")
	defer c.Close()
	assert.Equal(t, "ns:price:ETH", c.key("price", "ETH"))
}
