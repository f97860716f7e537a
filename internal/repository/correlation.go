package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promopulse/coupon-service/internal/domain"
)

// CorrelationStore is a durable TTL key/value map bridging the gateway and
// the redemption engine. Overwriting a key is legal and resets its TTL.
type CorrelationStore interface {
	Put(ctx context.Context, key string, record domain.CorrelationRecord, ttl time.Duration) error
	Get(ctx context.Context, key string) (domain.CorrelationRecord, bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type correlationStore struct {
	pool *pgxpool.Pool
}

func NewCorrelationStore(pool *pgxpool.Pool) CorrelationStore {
	return &correlationStore{pool: pool}
}

func (s *correlationStore) Put(ctx context.Context, key string, record domain.CorrelationRecord, ttl time.Duration) error {
	const stmt = `
INSERT INTO correlation_records (key, status, message, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE
SET status = EXCLUDED.status, message = EXCLUDED.message, expires_at = EXCLUDED.expires_at`

	_, err := s.pool.Exec(ctx, stmt, key, record.Status, record.Message, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("put correlation record: %w", err)
	}
	return nil
}

func (s *correlationStore) Get(ctx context.Context, key string) (domain.CorrelationRecord, bool, error) {
	const query = `
SELECT status, message
FROM correlation_records
WHERE key = $1 AND expires_at > now()`

	var record domain.CorrelationRecord
	err := s.pool.QueryRow(ctx, query, key).Scan(&record.Status, &record.Message)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CorrelationRecord{}, false, nil
		}
		return domain.CorrelationRecord{}, false, fmt.Errorf("get correlation record: %w", err)
	}
	return record, true, nil
}

// DeleteExpired reclaims records past their TTL. Get already filters them
// out, so this only bounds table growth.
func (s *correlationStore) DeleteExpired(ctx context.Context) (int64, error) {
	const stmt = `DELETE FROM correlation_records WHERE expires_at <= now()`
	tag, err := s.pool.Exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("delete expired correlation records: %w", err)
	}
	return tag.RowsAffected(), nil
}
