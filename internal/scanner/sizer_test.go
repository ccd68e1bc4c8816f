package scanner

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func TestComputeTradeSize(t *testing.T) {
	cases := []struct {
		name   string
		budget float64
		price  float64
		want   string
	}{
		{"even division", 60_000, 3_000, "20000000000000000000"},
		{"floors fractional wei", 1, 3, "333333333333333333"},
		{"zero budget", 0, 3_000, "0"},
		{"non-round price", 60_000, 3012.55, "19916681880798658943"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSizer(staticPrices{"WETH": tc.price}, "WETH", 18)
			got, err := s.ComputeTradeSize(context.Background(), tc.budget)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
			assert.GreaterOrEqual(t, got.Sign(), 0)
		})
	}
}

func TestComputeTradeSize_PriceUnavailable(t *testing.T) {
	s := NewSizer(staticPrices{}, "WETH", 18)
	_, err := s.ComputeTradeSize(context.Background(), 60_000)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestComputeTradeSize_NonPositivePrice(t *testing.T) {
	s := NewSizer(staticPrices{"WETH": 0}, "WETH", 18)
	_, err := s.ComputeTradeSize(context.Background(), 60_000)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestComputeTradeSize_InvalidBudget(t *testing.T) {
	s := NewSizer(staticPrices{"WETH": 3000}, "WETH", 18)
	for _, budget := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		t.Run(fmt.Sprint(budget), func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = s.ComputeTradeSize(context.Background(), budget)
			})
			assert.ErrorIs(t, err, ErrInvalidBudget)
		})
	}
}

func TestComputeTradeSize_NonFinitePrice(t *testing.T) {
	for _, price := range []float64{math.NaN(), math.Inf(1)} {
		s := NewSizer(staticPrices{"WETH": price}, "WETH", 18)
		var err error
		require.NotPanics(t, func() {
			_, err = s.ComputeTradeSize(context.Background(), 60_000)
		})
		assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	}
}
