// Package feed holds the bounded, newest-first history of published
// opportunities and fans new batches out to subscribers.
package feed

import (
	"sync"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/observability"
)

// DefaultCapacity is the number of opportunities kept in memory.
const DefaultCapacity = 100

// subscriberBuffer is how many undelivered batches a subscriber may hold
// before further batches are dropped for it.
const subscriberBuffer = 16

// Feed is safe for concurrent use. Publishing never blocks on a slow
// subscriber: a batch that does not fit in a subscriber's buffer is dropped
// for that subscriber only.
type Feed struct {
	capacity int
	metrics  *observability.Metrics

	mu      sync.RWMutex
	items   []domain.Opportunity // newest first
	subs    map[uint64]chan []domain.Opportunity
	nextID  uint64
	dropped uint64
}

// New creates a Feed holding at most capacity opportunities.
func New(capacity int, metrics *observability.Metrics) *Feed {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Feed{
		capacity: capacity,
		metrics:  metrics,
		items:    make([]domain.Opportunity, 0, capacity),
		subs:     make(map[uint64]chan []domain.Opportunity),
	}
}

// Publish prepends opps, keeping their order, truncates the history to
// capacity and delivers the batch to every subscriber. Each subscriber
// receives its own copy. Empty batches are ignored.
func (f *Feed) Publish(opps []domain.Opportunity) {
	if len(opps) == 0 {
		return
	}
	batch := make([]domain.Opportunity, len(opps))
	copy(batch, opps)

	f.mu.Lock()
	defer f.mu.Unlock()

	next := make([]domain.Opportunity, 0, f.capacity)
	next = append(next, batch...)
	next = append(next, f.items...)
	if len(next) > f.capacity {
		next = next[:f.capacity]
	}
	f.items = next

	for _, ch := range f.subs {
		select {
		case ch <- append([]domain.Opportunity(nil), batch...):
		default:
			f.dropped++
			f.metrics.RecordDropped()
		}
	}
}

// Seed replaces the history with opps (newest first), truncated to capacity.
// Subscribers are not notified.
func (f *Feed) Seed(opps []domain.Opportunity) {
	n := len(opps)
	if n > f.capacity {
		n = f.capacity
	}
	items := make([]domain.Opportunity, n, f.capacity)
	copy(items, opps[:n])

	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
}

// List returns up to limit of the most recent opportunities, newest first.
// A limit <= 0 returns everything. The result is a copy.
func (f *Feed) List(limit int) []domain.Opportunity {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Opportunity, n)
	copy(out, f.items[:n])
	return out
}

// Len returns the number of opportunities held.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

// Capacity returns the configured capacity.
func (f *Feed) Capacity() int { return f.capacity }

// Subscribe registers a subscriber. Each published batch is delivered on the
// returned channel; cancel unregisters and closes it.
func (f *Feed) Subscribe() (<-chan []domain.Opportunity, func()) {
	ch := make(chan []domain.Opportunity, subscriberBuffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	n := len(f.subs)
	f.mu.Unlock()
	f.metrics.SetSubscribers(n)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			n := len(f.subs)
			f.mu.Unlock()
			close(ch)
			f.metrics.SetSubscribers(n)
		})
	}
	return ch, cancel
}

// Dropped returns how many batches were dropped for slow subscribers.
func (f *Feed) Dropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}
