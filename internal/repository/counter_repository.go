package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepository issues monotonically increasing sequence numbers per
// partition key.
type CounterRepository interface {
	// Next atomically increments and returns the sequence for key,
	// creating the counter on first use. For a fixed key no two calls
	// ever return the same value.
	Next(ctx context.Context, key string) (int64, error)
}

type counterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository builds repository.
func NewCounterRepository(pool *pgxpool.Pool) CounterRepository {
	return &counterRepository{pool: pool}
}

func (r *counterRepository) Next(ctx context.Context, key string) (int64, error) {
	// Upsert and increment in one statement; contention stays on the
	// single counter row for this key.
	const query = `
        INSERT INTO counters (key, seq) VALUES ($1, 1)
        ON CONFLICT (key) DO UPDATE SET seq = counters.seq + 1
        RETURNING seq`
	var seq int64
	if err := r.pool.QueryRow(ctx, query, key).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}
