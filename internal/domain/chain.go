package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is one asset deployment on a chain.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
}

// Chain describes a chain the scanner probes.
type Chain struct {
	ID             int64
	Name           string
	NativeSymbol   string
	NativeDecimals int
	RPCURL         string
}

// AddressBook maps (chain id, asset symbol) to a token deployment. It is
// loaded once at startup and read-only afterwards.
type AddressBook struct {
	chains []Chain
	tokens map[int64]map[string]Token
}

// NewAddressBook creates an empty AddressBook.
func NewAddressBook() *AddressBook {
	return &AddressBook{tokens: make(map[int64]map[string]Token)}
}

// AddChain registers a chain. Chains are probed in registration order.
func (b *AddressBook) AddChain(c Chain) {
	b.chains = append(b.chains, c)
	if _, ok := b.tokens[c.ID]; !ok {
		b.tokens[c.ID] = make(map[string]Token)
	}
}

// AddToken registers a token deployment on a previously added chain. The
// address must be a 0x-prefixed 20-byte hex string.
func (b *AddressBook) AddToken(chainID int64, symbol, address string, decimals int) error {
	byChain, ok := b.tokens[chainID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("domain: chain %d token %s: invalid address %q", chainID, symbol, address)
	}
	if decimals < 0 || decimals > 36 {
		return fmt.Errorf("domain: chain %d token %s: decimals %d out of range", chainID, symbol, decimals)
	}
	sym := strings.ToUpper(symbol)
	byChain[sym] = Token{
		Symbol:   sym,
		Address:  common.HexToAddress(address),
		Decimals: decimals,
	}
	return nil
}

// Chains returns the registered chains in order.
func (b *AddressBook) Chains() []Chain {
	out := make([]Chain, len(b.chains))
	copy(out, b.chains)
	return out
}

// Chain returns the chain with the given id.
func (b *AddressBook) Chain(chainID int64) (Chain, error) {
	for _, c := range b.chains {
		if c.ID == chainID {
			return c, nil
		}
	}
	return Chain{}, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
}

// Token looks up a token deployment by chain and symbol.
func (b *AddressBook) Token(chainID int64, symbol string) (Token, error) {
	byChain, ok := b.tokens[chainID]
	if !ok {
		return Token{}, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	tok, ok := byChain[strings.ToUpper(symbol)]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s on chain %d", ErrUnknownToken, symbol, chainID)
	}
	return tok, nil
}
