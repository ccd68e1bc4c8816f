package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityColumns = `id, ts, chain_id, chain, expected_profit_usd, net_profit_scaled::TEXT, latency_ms`

// InsertBatch writes a batch in one round trip. Rows whose id already exists
// are skipped, so replaying a batch is harmless.
func (s *OpportunityStore) InsertBatch(ctx context.Context, opps []domain.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}
	const query = `
		INSERT INTO opportunities (id, ts, chain_id, chain, expected_profit_usd, net_profit_scaled, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, o := range opps {
		batch.Queue(query, o.ID, o.Timestamp, o.ChainID, o.Chain, o.ExpectedProfitUSD, o.NetProfitScaled, o.LatencyMs)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert opportunities: %w", err)
	}
	return nil
}

// ListRecent returns up to limit opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities ORDER BY ts DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	return collectOpportunities(rows)
}

// ListBefore returns every opportunity older than before, oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE ts < $1 ORDER BY ts, id`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return collectOpportunities(rows)
}

// DeleteBefore removes opportunities older than before and returns how many
// rows were deleted.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Opportunity, error) {
		var o domain.Opportunity
		err := row.Scan(&o.ID, &o.Timestamp, &o.ChainID, &o.Chain, &o.ExpectedProfitUSD, &o.NetProfitScaled, &o.LatencyMs)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
