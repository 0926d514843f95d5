package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"videoexpress/internal/credit"
	"videoexpress/internal/domain"
)

// CreditRepositoryPG persists the credit counter as a single row, replacing
// the counter file with the same relational store the jobs live in.
type CreditRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a credit counter store backed by PostgreSQL.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepositoryPG {
	return &CreditRepositoryPG{pool: pool}
}

// Load reads the counter row. No row yet means no counter.
func (r *CreditRepositoryPG) Load(ctx context.Context) (*domain.CreditCounter, error) {
	query := `
SELECT real_videos_generated, credit_limit, last_reset, history
FROM video_credits
WHERE id = 1;
`
	row := r.pool.QueryRow(ctx, query)
	var counter domain.CreditCounter
	var history []byte
	if err := row.Scan(&counter.RealVideosGenerated, &counter.Limit, &counter.LastReset, &history); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &counter.History); err != nil {
			return nil, fmt.Errorf("decode credit history: %w", err)
		}
	}
	return &counter, nil
}

// Save upserts the counter row.
func (r *CreditRepositoryPG) Save(ctx context.Context, counter *domain.CreditCounter) error {
	history, err := json.Marshal(counter.History)
	if err != nil {
		return fmt.Errorf("encode credit history: %w", err)
	}
	query := `
INSERT INTO video_credits (id, real_videos_generated, credit_limit, last_reset, history, updated_at)
VALUES (1, $1, $2, $3, $4, NOW())
ON CONFLICT (id) DO UPDATE
SET real_videos_generated = EXCLUDED.real_videos_generated,
    credit_limit = EXCLUDED.credit_limit,
    last_reset = EXCLUDED.last_reset,
    history = EXCLUDED.history,
    updated_at = NOW();
`
	_, err = r.pool.Exec(ctx, query, counter.RealVideosGenerated, counter.Limit, counter.LastReset, history)
	return err
}

var _ credit.Store = (*CreditRepositoryPG)(nil)
