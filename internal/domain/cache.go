package domain

import (
	"context"
	"time"
)

// PriceStore is a shared price tier (Redis) sitting behind the in-process
// price cache. Implementations return ErrNotFound for unknown symbols.
type PriceStore interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub between scanner and API replicas.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// HistoryLog is a bounded, ordered log of published payloads that lets a
// late-starting replica catch up without the database.
type HistoryLog interface {
	Append(ctx context.Context, stream string, payload []byte) error
	// Latest returns up to count payloads, newest first.
	Latest(ctx context.Context, stream string, count int) ([][]byte, error)
}
