package scanner

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func newTestGatherer(t *testing.T, book *domain.AddressBook, p QuoteProvider, gas GasPricer, parallel int) *Gatherer {
	t.Helper()
	return NewGatherer(book, p, staticPrices{"ETH": 3000, "MATIC": 0.5}, gas, GathererConfig{
		BaseSymbol:        "WETH",
		StableSymbol:      "USDC",
		RequestTimeout:    time.Second,
		MaxParallelChains: parallel,
	}, nil, discard())
}

func TestGatherQuotes_ReverseLegSellsForwardOutput(t *testing.T) {
	book := testBook(t)
	p := newFakeProvider()
	p.on(1, token(t, book, 1, "WETH"), "59700000000", "150000")
	p.on(1, token(t, book, 1, "USDC"), "19990000000000000000", "120000")

	g := newTestGatherer(t, book, p, nil, 1)
	amount := bi("20000000000000000000")
	quotes := g.GatherQuotes(context.Background(), amount)

	require.Len(t, quotes, 2)
	fwd, rev := quotes[0], quotes[1]
	assert.Equal(t, domain.LegBaseToStable, fwd.Leg)
	assert.Equal(t, domain.LegStableToBase, rev.Leg)
	assert.Equal(t, amount.String(), fwd.InputAmount.String())
	assert.Equal(t, fwd.OutputAmount.String(), rev.InputAmount.String())

	reqs := p.requestsFor(1)
	require.Len(t, reqs, 2)
	assert.Equal(t, "59700000000", reqs[1].Amount.String())
	assert.Equal(t, token(t, book, 1, "USDC"), reqs[1].Src)
	assert.Equal(t, token(t, book, 1, "WETH"), reqs[1].Dst)
}

func TestGatherQuotes_GasToUSD(t *testing.T) {
	book := testBook(t)
	p := newFakeProvider()
	// 0.01 ETH of gas at $3000 is $30.
	p.on(1, token(t, book, 1, "WETH"), "100", "10000000000000000")
	p.on(1, token(t, book, 1, "USDC"), "100", "0")

	quotes := newTestGatherer(t, book, p, nil, 1).GatherQuotes(context.Background(), big.NewInt(1))
	require.Len(t, quotes, 2)
	assert.Equal(t, "10000000000000000", quotes[0].GasNative.String())
	assert.Equal(t, "30000000", quotes[0].GasUSDScaled.String())
	assert.Equal(t, "0", quotes[1].GasUSDScaled.String())
}

func TestGatherQuotes_ForwardFailureSkipsChain(t *testing.T) {
	book := testBook(t)
	p := newFakeProvider()
	p.fail(1, token(t, book, 1, "WETH"), errors.New("HTTP 500: internal error"))
	p.on(137, token(t, book, 137, "WETH"), "59000000000", "1")
	p.on(137, token(t, book, 137, "USDC"), "1", "1")
	p.on(42161, token(t, book, 42161, "WETH"), "59000000000", "1")
	p.on(42161, token(t, book, 42161, "USDC"), "1", "1")

	quotes := newTestGatherer(t, book, p, nil, 1).GatherQuotes(context.Background(), big.NewInt(10))

	require.Len(t, quotes, 4)
	for _, q := range quotes {
		assert.NotEqual(t, int64(1), q.ChainID)
	}
	assert.Len(t, p.requestsFor(1), 1, "no reverse leg after a failed forward leg")
}

func TestGatherQuotes_ReverseFailureKeepsForward(t *testing.T) {
	book := testBook(t)
	p := newFakeProvider()
	p.on(137, token(t, book, 137, "WETH"), "59000000000", "1")
	p.fail(137, token(t, book, 137, "USDC"), errors.New("HTTP 400: insufficient liquidity"))

	quotes := newTestGatherer(t, book, p, nil, 1).GatherQuotes(context.Background(), big.NewInt(10))
	require.Len(t, quotes, 1)
	assert.Equal(t, domain.LegBaseToStable, quotes[0].Leg)
}

func TestGatherQuotes_ParallelKeepsChainOrder(t *testing.T) {
	book := testBook(t)
	p := newFakeProvider()
	for _, id := range []int64{1, 137, 42161} {
		p.on(id, token(t, book, id, "WETH"), "5", "1")
		p.on(id, token(t, book, id, "USDC"), "6", "1")
	}

	quotes := newTestGatherer(t, book, p, nil, 3).GatherQuotes(context.Background(), big.NewInt(10))
	require.Len(t, quotes, 6)
	var order []int64
	for _, q := range quotes {
		order = append(order, q.ChainID)
	}
	assert.Equal(t, []int64{1, 1, 137, 137, 42161, 42161}, order)
}

func TestGatherQuotes_ZeroAmount(t *testing.T) {
	book := testBook(t)
	p := newFakeProvider()
	assert.Empty(t, newTestGatherer(t, book, p, nil, 1).GatherQuotes(context.Background(), big.NewInt(0)))
	assert.Empty(t, p.requests)
}

type slowProvider struct{}

func (slowProvider) Quote(ctx context.Context, _ domain.QuoteRequest) (domain.QuoteResponse, error) {
	<-ctx.Done()
	return domain.QuoteResponse{}, ctx.Err()
}

func TestFetchQuote_TimeoutIsQuoteUnavailable(t *testing.T) {
	book := testBook(t)
	g := NewGatherer(book, slowProvider{}, staticPrices{"ETH": 1}, nil, GathererConfig{
		BaseSymbol: "WETH", StableSymbol: "USDC", RequestTimeout: 20 * time.Millisecond,
	}, nil, discard())

	_, err := g.FetchQuote(context.Background(), 1, "WETH", "USDC", big.NewInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchQuote_NativePriceFailure(t *testing.T) {
	book := testBook(t)
	p := newFakeProvider()
	p.on(1, token(t, book, 1, "WETH"), "5", "1")
	g := NewGatherer(book, p, staticPrices{}, nil, GathererConfig{BaseSymbol: "WETH", StableSymbol: "USDC"}, nil, discard())

	_, err := g.FetchQuote(context.Background(), 1, "WETH", "USDC", big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestFetchQuote_UnknownChain(t *testing.T) {
	g := newTestGatherer(t, testBook(t), newFakeProvider(), nil, 1)
	_, err := g.FetchQuote(context.Background(), 10, "WETH", "USDC", big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	assert.ErrorIs(t, err, domain.ErrUnknownChain)
}

type fakeGas struct {
	calls atomic.Int32
	price *big.Int
}

func (f *fakeGas) Supports(chainID int64) bool { return chainID == 137 }

func (f *fakeGas) GasPrice(context.Context, int64) (*big.Int, error) {
	f.calls.Add(1)
	return f.price, nil
}

func TestGatherQuotes_GasOraclePricedOncePerCycle(t *testing.T) {
	book := testBook(t)
	p := newFakeProvider()
	p.on(137, token(t, book, 137, "WETH"), "5", "200000")
	p.on(137, token(t, book, 137, "USDC"), "6", "100000")
	gas := &fakeGas{price: big.NewInt(50_000_000_000)} // 50 gwei

	quotes := newTestGatherer(t, book, p, gas, 1).GatherQuotes(context.Background(), big.NewInt(10))
	require.Len(t, quotes, 2)
	assert.Equal(t, int32(1), gas.calls.Load())

	// 200000 * 50 gwei = 0.01 MATIC; at $0.50 that is $0.005.
	assert.Equal(t, "10000000000000000", quotes[0].GasNative.String())
	assert.Equal(t, "5000", quotes[0].GasUSDScaled.String())
	assert.Equal(t, "2500", quotes[1].GasUSDScaled.String())
}

func TestGasUSDScaled(t *testing.T) {
	// round(3000.123456 * 1e6) * 1e18 / 1e18
	assert.Equal(t, "3000123456", GasUSDScaled(big.NewInt(3000123456), bi("1000000000000000000"), 18).String())
	// 6-decimal native asset
	assert.Equal(t, "1500000", GasUSDScaled(big.NewInt(1_500_000), big.NewInt(1_000_000), 6).String())
}
