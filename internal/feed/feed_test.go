package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func opp(id string) domain.Opportunity {
	return domain.Opportunity{ID: id, ChainID: 1, Chain: "ethereum", ExpectedProfitUSD: 0.0001, NetProfitScaled: "100"}
}

func ids(opps []domain.Opportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.ID
	}
	return out
}

func TestPublish_NewestFirstBatchOrderKept(t *testing.T) {
	f := New(10, nil)
	f.Publish([]domain.Opportunity{opp("a"), opp("b")})
	f.Publish([]domain.Opportunity{opp("c"), opp("d")})

	assert.Equal(t, []string{"c", "d", "a", "b"}, ids(f.List(0)))
	assert.Equal(t, []string{"c", "d"}, ids(f.List(2)))
}

func TestPublish_NeverExceedsCapacity(t *testing.T) {
	const capacity = 5
	f := New(capacity, nil)
	for i := 0; i < capacity+1; i++ {
		f.Publish([]domain.Opportunity{opp(fmt.Sprint(i))})
	}

	got := f.List(capacity + 5)
	require.Len(t, got, capacity)
	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, ids(got))
}

func TestPublish_OversizedBatch(t *testing.T) {
	f := New(2, nil)
	f.Publish([]domain.Opportunity{opp("a"), opp("b"), opp("c")})
	assert.Equal(t, []string{"a", "b"}, ids(f.List(0)))
}

func TestList_ReturnsCopy(t *testing.T) {
	f := New(3, nil)
	f.Publish([]domain.Opportunity{opp("a")})

	got := f.List(1)
	got[0].ID = "mutated"
	assert.Equal(t, "a", f.List(1)[0].ID)
}

func TestPublish_EmptyBatchIsIgnored(t *testing.T) {
	f := New(3, nil)
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Publish(nil)
	assert.Zero(t, f.Len())
	select {
	case <-ch:
		t.Fatal("empty batch delivered")
	default:
	}
}

func TestSubscribe_DeliversBatches(t *testing.T) {
	f := New(3, nil)
	ch1, cancel1 := f.Subscribe()
	ch2, cancel2 := f.Subscribe()
	defer cancel2()

	f.Publish([]domain.Opportunity{opp("a")})
	assert.Equal(t, []string{"a"}, ids(<-ch1))
	assert.Equal(t, []string{"a"}, ids(<-ch2))

	cancel1()
	cancel1() // idempotent
	_, open := <-ch1
	assert.False(t, open)

	f.Publish([]domain.Opportunity{opp("b")})
	assert.Equal(t, []string{"b"}, ids(<-ch2))
}

func TestSubscribe_BatchesAreIndependentCopies(t *testing.T) {
	f := New(3, nil)
	ch1, cancel1 := f.Subscribe()
	defer cancel1()
	ch2, cancel2 := f.Subscribe()
	defer cancel2()

	f.Publish([]domain.Opportunity{opp("a")})
	got1 := <-ch1
	got1[0].ID = "mutated"

	assert.Equal(t, []string{"a"}, ids(<-ch2))
	assert.Equal(t, "a", f.List(1)[0].ID)
}

func TestSubscribe_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	f := New(3, nil)
	_, cancel := f.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+5; i++ {
			f.Publish([]domain.Opportunity{opp(fmt.Sprint(i))})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, uint64(5), f.Dropped())
}

func TestSeed(t *testing.T) {
	f := New(2, nil)
	f.Seed([]domain.Opportunity{opp("x"), opp("y"), opp("z")})
	assert.Equal(t, []string{"x", "y"}, ids(f.List(0)))

	f.Publish([]domain.Opportunity{opp("n")})
	assert.Equal(t, []string{"n", "x"}, ids(f.List(0)))
}

func TestConcurrentPublishAndList(t *testing.T) {
	f := New(50, nil)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				f.Publish([]domain.Opportunity{opp("p")})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				assert.LessOrEqual(t, len(f.List(0)), 50)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, f.Len())
}

// memBus is an in-process SignalBus.
type memBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newMemBus() *memBus { return &memBus{subs: map[string][]chan []byte{}} }

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 8)
	b.subs[channel] = append(b.subs[channel], ch)
	return ch, nil
}

func (b *memBus) subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func TestBridge_MirrorsBusIntoFeed(t *testing.T) {
	bus := newMemBus()
	local := New(10, nil)
	bridge := NewBridge(bus, "arb", local, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bridge.Run(ctx) }()
	require.Eventually(t, func() bool { return bus.subscribers("arb") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, "arb", []byte("not json")))
	require.NoError(t, bus.Publish(ctx, "arb", []byte(`{"event":"other","data":[{"id":"ignored"}]}`)))
	sink := NewBusSink(bus, "arb", nil)
	require.NoError(t, sink.Consume(ctx, []domain.Opportunity{opp("a"), opp("b")}))

	require.Eventually(t, func() bool { return local.Len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, ids(local.List(0)))
	assert.Equal(t, "bus", sink.Name())
}

// memHistory is an in-process HistoryLog.
type memHistory struct {
	mu      sync.Mutex
	streams map[string][][]byte
}

func (h *memHistory) Append(_ context.Context, stream string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams == nil {
		h.streams = map[string][][]byte{}
	}
	h.streams[stream] = append(h.streams[stream], payload)
	return nil
}

func (h *memHistory) Latest(_ context.Context, stream string, count int) ([][]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := h.streams[stream]
	var out [][]byte
	for i := len(all) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func TestBusSink_AppendsHistoryAndReloads(t *testing.T) {
	ctx := context.Background()
	hist := &memHistory{}
	sink := NewBusSink(newMemBus(), "arb", hist)

	require.NoError(t, hist.Append(ctx, HistoryStream("arb"), []byte("garbage")))
	require.NoError(t, sink.Consume(ctx, []domain.Opportunity{opp("a"), opp("b")}))
	require.NoError(t, sink.Consume(ctx, []domain.Opportunity{opp("c")}))

	got, err := LoadHistory(ctx, hist, "arb", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(got))

	got, err = LoadHistory(ctx, hist, "arb", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(got))

	got, err = LoadHistory(ctx, hist, "arb", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
