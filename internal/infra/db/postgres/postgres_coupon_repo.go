package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
)

var _ repository.CouponRepository = (*couponRepo)(nil)

type couponRepo struct{ pool *pgxpool.Pool }

func NewCouponRepo(pool *pgxpool.Pool) *couponRepo {
	return &couponRepo{pool: pool}
}

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	const q = `
INSERT INTO coupons (code, discount_type, value, valid_from, valid_until, usage_limit, usage_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (code) DO UPDATE SET
  discount_type=$2, value=$3, valid_from=$4, valid_until=$5, usage_limit=$6;`

	_, err := execSQL(ctx, r.pool, tx, q, c.Code, c.Type, c.Value, c.ValidFrom, c.ValidUntil, c.UsageLimit, c.UsageCount, c.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *couponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	const q = `SELECT code, discount_type, value, valid_from, valid_until, usage_limit, usage_count, created_at FROM coupons WHERE code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	c := &model.Coupon{}
	if err := row.Scan(&c.Code, &c.Type, &c.Value, &c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsageCount, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

// IncrementUsageIfAvailable bumps usage_count atomically while below the
// limit. The WHERE clause is the guard: a concurrent completion that takes
// the last use leaves RowsAffected at zero for everyone else.
func (r *couponRepo) IncrementUsageIfAvailable(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	const q = `
    UPDATE coupons
       SET usage_count = usage_count + 1
     WHERE code = $1
       AND usage_count < usage_limit;`

	cmd, err := execSQL(ctx, r.pool, tx, q, code)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}
