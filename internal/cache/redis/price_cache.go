package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// PriceStore implements domain.PriceStore using Redis hashes. Each symbol's
// price is stored at "price:{SYMBOL}" with fields "price" and "ts" (Unix
// nanoseconds). Keys expire after retention so dead symbols do not linger.
type PriceStore struct {
	c         *Client
	rdb       *redis.Client
	retention time.Duration
}

// NewPriceStore creates a PriceStore. retention <= 0 keeps keys forever.
func NewPriceStore(c *Client, retention time.Duration) *PriceStore {
	return &PriceStore{c: c, rdb: c.Underlying(), retention: retention}
}

func (ps *PriceStore) priceKey(symbol string) string {
	return ps.c.key("price", strings.ToUpper(symbol))
}

// SetPrice stores the latest USD price and its fetch time for a symbol.
func (ps *PriceStore) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	key := ps.priceKey(symbol)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := ps.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ps.retention > 0 {
		pipe.Expire(ctx, key, ps.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice retrieves the latest price and fetch time for a symbol.
// It returns domain.ErrNotFound when the key does not exist.
func (ps *PriceStore) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	vals, err := ps.rdb.HGetAll(ctx, ps.priceKey(symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceStore = (*PriceStore)(nil)
