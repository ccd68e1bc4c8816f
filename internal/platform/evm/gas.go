// Package evm reads chain state over JSON-RPC.
package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
)

// GasOracle returns the current gas price per chain from each chain's RPC
// endpoint. Connections are dialed lazily on first use.
type GasOracle struct {
	endpoints map[int64]string
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

// NewGasOracle creates an oracle for the given chain id to RPC URL map.
// Chains with an empty URL are ignored.
func NewGasOracle(endpoints map[int64]string, logger *slog.Logger) *GasOracle {
	eps := make(map[int64]string, len(endpoints))
	for id, u := range endpoints {
		if u != "" {
			eps[id] = u
		}
	}
	return &GasOracle{
		endpoints: eps,
		logger:    logger.With(slog.String("component", "gas_oracle")),
		clients:   make(map[int64]*ethclient.Client),
	}
}

// Supports reports whether an RPC endpoint is configured for chainID.
func (o *GasOracle) Supports(chainID int64) bool {
	_, ok := o.endpoints[chainID]
	return ok
}

// GasPrice returns the suggested gas price for chainID in wei.
func (o *GasOracle) GasPrice(ctx context.Context, chainID int64) (*big.Int, error) {
	client, err := o.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: gas price chain %d: %w", chainID, err)
	}
	return price, nil
}

func (o *GasOracle) client(ctx context.Context, chainID int64) (*ethclient.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if c, ok := o.clients[chainID]; ok {
		return c, nil
	}
	url, ok := o.endpoints[chainID]
	if !ok {
		return nil, fmt.Errorf("evm: no rpc endpoint for chain %d", chainID)
	}
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("evm: dial chain %d: %w", chainID, err)
	}
	o.clients[chainID] = c
	o.logger.Info("rpc connected", slog.Int64("chain_id", chainID))
	return c, nil
}

// Close releases every dialed connection.
func (o *GasOracle) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, c := range o.clients {
		c.Close()
		delete(o.clients, id)
	}
}
