package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// PriceLookup resolves an asset symbol to a USD price.
type PriceLookup interface {
	GetUSDPrice(ctx context.Context, symbol string) (float64, error)
}

// ErrInvalidBudget is returned for a USD budget that is negative or not a
// finite number.
var ErrInvalidBudget = errors.New("scanner: usd budget must be a finite number >= 0")

// Sizer converts a USD budget into a base-asset amount in smallest units.
type Sizer struct {
	prices   PriceLookup
	symbol   string
	decimals int32
}

// NewSizer creates a Sizer that prices symbol, an asset with the given
// number of decimals.
func NewSizer(prices PriceLookup, symbol string, decimals int) *Sizer {
	return &Sizer{prices: prices, symbol: symbol, decimals: int32(decimals)}
}

// ComputeTradeSize returns floor(budget / price * 10^decimals). A zero
// budget yields zero. A failed price lookup is returned unchanged so callers
// can match domain.ErrPriceUnavailable.
func (s *Sizer) ComputeTradeSize(ctx context.Context, usdBudget float64) (*big.Int, error) {
	if math.IsNaN(usdBudget) || math.IsInf(usdBudget, 0) || usdBudget < 0 {
		return nil, ErrInvalidBudget
	}
	price, err := s.prices.GetUSDPrice(ctx, s.symbol)
	if err != nil {
		return nil, fmt.Errorf("scanner: size trade: %w", err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return nil, fmt.Errorf("scanner: size trade: %w: invalid price %v for %s", domain.ErrPriceUnavailable, price, s.symbol)
	}
	if usdBudget == 0 {
		return new(big.Int), nil
	}

	// QuoRem truncates at the asset's precision, which is floor for
	// positive operands.
	q, _ := decimal.NewFromFloat(usdBudget).QuoRem(decimal.NewFromFloat(price), s.decimals)
	return q.Shift(s.decimals).BigInt(), nil
}
