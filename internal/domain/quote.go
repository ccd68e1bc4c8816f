package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// USDScale is the fixed-point scale used for USD amounts in profit math
// (6 decimal places).
const USDScale = 1_000_000

// Leg identifies the direction of one swap quote within a round trip.
type Leg string

const (
	LegBaseToStable Leg = "BASE_TO_STABLE"
	LegStableToBase Leg = "STABLE_TO_BASE"
)

// PriceEntry is one cached USD price for an asset symbol.
type PriceEntry struct {
	Symbol    string    `json:"symbol"`
	PriceUSD  float64   `json:"usdPrice"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Fresh reports whether the entry is still usable at now under ttl.
func (e PriceEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return !e.FetchedAt.IsZero() && now.Sub(e.FetchedAt) < ttl
}

// Quote is a single swap quote obtained during one scan cycle. All amounts
// are in the smallest unit of their asset; GasUSDScaled is USD * 1e6.
// Quotes are immutable once returned by the gatherer.
type Quote struct {
	ChainID      int64
	ChainName    string
	Leg          Leg
	FromToken    string
	ToToken      string
	InputAmount  *big.Int
	OutputAmount *big.Int
	GasNative    *big.Int
	GasUSDScaled *big.Int
	LatencyMs    int64
	FetchedAt    time.Time
}

// QuoteRequest asks a swap-quote provider to price selling Amount of Src for
// Dst on one chain.
type QuoteRequest struct {
	ChainID int64
	Src     common.Address
	Dst     common.Address
	Amount  *big.Int
}

// QuoteResponse is a provider's answer: the output amount in Dst smallest
// units and the estimated gas, in gas units.
type QuoteResponse struct {
	DstAmount *big.Int
	Gas       *big.Int
}
