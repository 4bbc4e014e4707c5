package repository

import (
	"context"

	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
)

type CouponRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Coupon) error
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)
	// IncrementUsageIfAvailable atomically bumps usage_count while it is
	// below usage_limit. Returns false when the limit was already reached;
	// callers must treat that as the coupon no longer applying. Only the
	// Confirmation Processor calls this, inside the completing transaction.
	IncrementUsageIfAvailable(ctx context.Context, tx Tx, code string) (bool, error)
}
