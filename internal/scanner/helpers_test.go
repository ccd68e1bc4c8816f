package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int " + s)
	}
	return v
}

// testBook registers Ethereum, Polygon and Arbitrum with WETH (18) and
// USDC (6).
func testBook(t *testing.T) *domain.AddressBook {
	t.Helper()
	book := domain.NewAddressBook()
	chains := []struct {
		id           int64
		name, native string
		weth, usdc   string
	}{
		{1, "ethereum", "ETH", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
		{137, "polygon", "MATIC", "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"},
		{42161, "arbitrum", "ETH", "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"},
	}
	for _, c := range chains {
		book.AddChain(domain.Chain{ID: c.id, Name: c.name, NativeSymbol: c.native, NativeDecimals: 18})
		require.NoError(t, book.AddToken(c.id, "WETH", c.weth, 18))
		require.NoError(t, book.AddToken(c.id, "USDC", c.usdc, 6))
	}
	return book
}

type staticPrices map[string]float64

func (p staticPrices) GetUSDPrice(_ context.Context, symbol string) (float64, error) {
	v, ok := p[symbol]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return v, nil
}

type legKey struct {
	chainID int64
	src     common.Address
}

// fakeProvider answers quotes from a table keyed by chain and source token
// and records every request.
type fakeProvider struct {
	mu        sync.Mutex
	responses map[legKey]domain.QuoteResponse
	failures  map[legKey]error
	requests  []domain.QuoteRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		responses: make(map[legKey]domain.QuoteResponse),
		failures:  make(map[legKey]error),
	}
}

func (f *fakeProvider) on(chainID int64, src common.Address, dst, gas string) {
	f.responses[legKey{chainID, src}] = domain.QuoteResponse{DstAmount: bi(dst), Gas: bi(gas)}
}

func (f *fakeProvider) fail(chainID int64, src common.Address, err error) {
	f.failures[legKey{chainID, src}] = err
}

func (f *fakeProvider) Quote(_ context.Context, req domain.QuoteRequest) (domain.QuoteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	k := legKey{req.ChainID, req.Src}
	if err, ok := f.failures[k]; ok {
		return domain.QuoteResponse{}, err
	}
	resp, ok := f.responses[k]
	if !ok {
		return domain.QuoteResponse{}, errors.New("HTTP 500: no route")
	}
	return resp, nil
}

func (f *fakeProvider) requestsFor(chainID int64) []domain.QuoteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.QuoteRequest
	for _, r := range f.requests {
		if r.ChainID == chainID {
			out = append(out, r)
		}
	}
	return out
}

func token(t *testing.T, book *domain.AddressBook, chainID int64, symbol string) common.Address {
	t.Helper()
	tok, err := book.Token(chainID, symbol)
	require.NoError(t, err)
	return tok.Address
}
