package scanner

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// Evaluate returns the net profit of a round trip in 6-decimal fixed-point
// USD:
//
//	stableOut    = scaled(fwd.Output)
//	backInStable = scaled(rev.Output * fwd.Output / fwd.Input)
//	net          = backInStable - stableOut - (fwd.Gas + rev.Gas)
//
// The reverse leg's base output is valued at the forward leg's realised
// rate. stableDecimals is the stable asset's decimals on that chain. The
// result is negative for a losing round trip.
func Evaluate(fwd, rev domain.Quote, stableDecimals int) *big.Int {
	stableOut := toUSDScale(fwd.OutputAmount, stableDecimals)

	backInStable := new(big.Int)
	if fwd.InputAmount != nil && fwd.InputAmount.Sign() > 0 {
		backInStable.Mul(orZero(rev.OutputAmount), orZero(fwd.OutputAmount))
		backInStable.Quo(backInStable, fwd.InputAmount)
		backInStable = toUSDScale(backInStable, stableDecimals)
	}

	gas := new(big.Int).Add(orZero(fwd.GasUSDScaled), orZero(rev.GasUSDScaled))

	net := new(big.Int).Sub(backInStable, stableOut)
	return net.Sub(net, gas)
}

// toUSDScale rescales an amount with the given decimals to 6 decimals.
func toUSDScale(amount *big.Int, decimals int) *big.Int {
	out := new(big.Int).Set(orZero(amount))
	switch {
	case decimals > 6:
		return out.Quo(out, pow10(decimals-6))
	case decimals < 6:
		return out.Mul(out, pow10(6-decimals))
	default:
		return out
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Evaluator pairs a cycle's quotes by chain and turns profitable round trips
// into opportunities.
type Evaluator struct {
	book         *domain.AddressBook
	stableSymbol string
	newID        func() string
}

// NewEvaluator creates an Evaluator. newID supplies opportunity ids.
func NewEvaluator(book *domain.AddressBook, stableSymbol string, newID func() string) *Evaluator {
	return &Evaluator{book: book, stableSymbol: stableSymbol, newID: newID}
}

// FindOpportunities emits at most one opportunity per chain, for chains whose
// forward and reverse legs are both present and whose net profit is
// positive. Output follows the order chains first appear in quotes.
func (e *Evaluator) FindOpportunities(quotes []domain.Quote, now time.Time) []domain.Opportunity {
	type pair struct {
		fwd, rev *domain.Quote
	}
	var order []int64
	pairs := make(map[int64]*pair)
	for i := range quotes {
		q := &quotes[i]
		p, ok := pairs[q.ChainID]
		if !ok {
			p = &pair{}
			pairs[q.ChainID] = p
			order = append(order, q.ChainID)
		}
		switch q.Leg {
		case domain.LegBaseToStable:
			p.fwd = q
		case domain.LegStableToBase:
			p.rev = q
		}
	}

	var out []domain.Opportunity
	for _, id := range order {
		p := pairs[id]
		if p.fwd == nil || p.rev == nil {
			continue
		}
		stable, err := e.book.Token(id, e.stableSymbol)
		if err != nil {
			continue
		}
		net := Evaluate(*p.fwd, *p.rev, stable.Decimals)
		if net.Sign() <= 0 {
			continue
		}
		out = append(out, domain.Opportunity{
			ID:                e.newID(),
			Timestamp:         now,
			ChainID:           id,
			Chain:             p.fwd.ChainName,
			ExpectedProfitUSD: decimal.NewFromBigInt(net, -6).InexactFloat64(),
			NetProfitScaled:   net.String(),
			LatencyMs:         p.fwd.LatencyMs + p.rev.LatencyMs,
		})
	}
	return out
}
