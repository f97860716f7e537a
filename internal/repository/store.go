package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promopulse/coupon-service/internal/domain"
)

// Store is the durable entity store for coupons and their usages.
type Store interface {
	ExecTx(ctx context.Context, fn func(Querier) error) error
	CouponExists(ctx context.Context, code string) (bool, error)
	InsertCoupon(ctx context.Context, coupon domain.Coupon) error
}

// Querier is the transaction-scoped slice of the store used by the
// redemption path. GetCouponForUpdate holds a row-level exclusive lock
// until the surrounding transaction commits or rolls back.
type Querier interface {
	GetCouponForUpdate(ctx context.Context, code string) (domain.Coupon, error)
	UsageExists(ctx context.Context, couponID uuid.UUID, userID string) (bool, error)
	InsertUsage(ctx context.Context, usage domain.CouponUsage) error
	IncrementUses(ctx context.Context, couponID uuid.UUID) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type store struct {
	pool *pgxpool.Pool
	queries
}

func New(pool *pgxpool.Pool) Store {
	return &store{
		pool:    pool,
		queries: queries{db: pool},
	}
}

func (s *store) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	q := queries{db: tx}
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type queries struct {
	db dbtx
}

func (q queries) CouponExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`
	var exists bool
	if err := q.db.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("coupon exists: %w", err)
	}
	return exists, nil
}

func (q queries) InsertCoupon(ctx context.Context, coupon domain.Coupon) error {
	const stmt = `
INSERT INTO coupons (id, code, country_code, max_uses, current_uses, created_at)
VALUES ($1, $2, $3, $4, $5, now())`

	_, err := q.db.Exec(ctx, stmt,
		coupon.ID,
		coupon.Code,
		coupon.CountryCode,
		coupon.MaxUses,
		coupon.CurrentUses,
	)
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

func (q queries) GetCouponForUpdate(ctx context.Context, code string) (domain.Coupon, error) {
	const query = `
SELECT id, code, country_code, max_uses, current_uses, created_at
FROM coupons
WHERE code = $1
FOR UPDATE`

	var c domain.Coupon
	err := q.db.QueryRow(ctx, query, code).
		Scan(&c.ID, &c.Code, &c.CountryCode, &c.MaxUses, &c.CurrentUses, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Coupon{}, pgx.ErrNoRows
		}
		return domain.Coupon{}, fmt.Errorf("get coupon for update: %w", err)
	}
	return c, nil
}

func (q queries) UsageExists(ctx context.Context, couponID uuid.UUID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2)`
	var exists bool
	if err := q.db.QueryRow(ctx, query, couponID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("usage exists: %w", err)
	}
	return exists, nil
}

func (q queries) InsertUsage(ctx context.Context, usage domain.CouponUsage) error {
	const stmt = `
INSERT INTO coupon_usages (id, coupon_id, user_id, user_country_code, used_at)
VALUES ($1, $2, $3, $4, now())`

	_, err := q.db.Exec(ctx, stmt,
		usage.ID,
		usage.CouponID,
		usage.UserID,
		usage.UserCountryCode,
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

func (q queries) IncrementUses(ctx context.Context, couponID uuid.UUID) error {
	const stmt = `
UPDATE coupons
SET current_uses = current_uses + 1
WHERE id = $1 AND current_uses < max_uses`

	tag, err := q.db.Exec(ctx, stmt, couponID)
	if err != nil {
		return fmt.Errorf("increment uses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("increment uses: %w", pgx.ErrNoRows)
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, the backstop for create/use races that slip past pre-checks.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
