package evm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers eth_gasPrice with the given hex quantity.
func rpcServer(t *testing.T, result string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if req.Method != "eth_gasPrice" {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":"` + result + `"}`))
	}))
}

func TestGasOracle_GasPrice(t *testing.T) {
	var calls atomic.Int32
	srv := rpcServer(t, "0x3b9aca00", &calls)
	defer srv.Close()

	o := NewGasOracle(map[int64]string{137: srv.URL, 1: ""}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer o.Close()

	assert.True(t, o.Supports(137))
	assert.False(t, o.Supports(1), "empty urls are dropped")

	price, err := o.GasPrice(context.Background(), 137)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), price.Int64())

	_, err = o.GasPrice(context.Background(), 137)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGasOracle_UnknownChain(t *testing.T) {
	o := NewGasOracle(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := o.GasPrice(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rpc endpoint for chain 10")
}
