package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/arb?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "arb"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	assert.Equal(t, "postgres://u:p@db:6543/arb?sslmode=require",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "arb", SSLMode: "require"}))
}

func TestRunMigrations_Idempotent(t *testing.T) {
	client := setupTestDB(t)
	applied, err := client.RunMigrations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied, "second run applies nothing")
}

func TestOpportunityStore_InsertListDelete(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	store := NewOpportunityStore(client.Pool())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opps := []domain.Opportunity{
		{ID: "old", Timestamp: base.Add(-48 * time.Hour), ChainID: 1, Chain: "ethereum", ExpectedProfitUSD: 0.5, NetProfitScaled: "500000", LatencyMs: 310},
		{ID: "mid", Timestamp: base.Add(-time.Hour), ChainID: 137, Chain: "polygon", ExpectedProfitUSD: 0.0001, NetProfitScaled: "100", LatencyMs: 120},
		{ID: "new", Timestamp: base, ChainID: 42161, Chain: "arbitrum", ExpectedProfitUSD: 12.345678, NetProfitScaled: "12345678", LatencyMs: 90},
	}
	require.NoError(t, store.InsertBatch(ctx, opps))
	require.NoError(t, store.InsertBatch(ctx, opps[:1]), "duplicate ids are skipped")
	require.NoError(t, store.InsertBatch(ctx, nil))

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].ID)
	assert.Equal(t, "mid", recent[1].ID)
	assert.Equal(t, "12345678", recent[0].NetProfitScaled)
	assert.Equal(t, int64(42161), recent[0].ChainID)
	assert.True(t, base.Equal(recent[0].Timestamp))

	older, err := store.ListBefore(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "old", older[0].ID)

	n, err := store.DeleteBefore(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAuditStore_LogAndList(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	store := NewAuditStore(client.Pool())

	require.NoError(t, store.Log(ctx, "scan_cycle", map[string]any{"quotes": 6, "opportunities": 1}))
	require.NoError(t, store.Log(ctx, "scan_cycle_failed", map[string]any{"stage": "size"}))

	entries, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "scan_cycle_failed", entries[0].Event)
	assert.Equal(t, "size", entries[0].Detail["stage"])
	assert.Equal(t, float64(6), entries[1].Detail["quotes"])
}
