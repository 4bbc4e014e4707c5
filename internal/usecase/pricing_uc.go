package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/metrics"
)

// Compile-time check
var _ PricingUseCase = (*pricingUC)(nil)

// Quote is the server-side derived price for a checkout or confirmation.
// Coupon is nil when no discount applies.
type Quote struct {
	Amount   decimal.Decimal
	Currency string
	Coupon   *model.Coupon
}

// PricingUseCase derives the expected amount for a course, optionally
// discounted by a coupon. It never mutates anything: coupon usage is
// incremented only inside the transaction that completes a payment.
type PricingUseCase interface {
	Quote(ctx context.Context, course *model.Course, couponCode string) (*Quote, error)
}

type pricingUC struct {
	coupons repository.CouponRepository
	log     *zerolog.Logger
}

func NewPricingUseCase(coupons repository.CouponRepository, logger *zerolog.Logger) *pricingUC {
	return &pricingUC{coupons: coupons, log: logger}
}

// Quote prices the course. Coupon failure is never fatal: an unknown,
// expired, or exhausted coupon silently degrades to the full list price.
// A paid course without a usable price configuration is fatal, since no
// correct amount can be computed from it.
func (u *pricingUC) Quote(ctx context.Context, course *model.Course, couponCode string) (*Quote, error) {
	if course == nil {
		return nil, domain.ErrNotFound
	}
	if !course.Payable() {
		return nil, fmt.Errorf("course %s: %w", course.Code, domain.ErrCourseNotPayable)
	}
	if !course.Paid {
		return &Quote{Amount: decimal.Zero, Currency: course.Currency}, nil
	}

	q := &Quote{Amount: course.Price, Currency: course.Currency}
	if couponCode == "" {
		return q, nil
	}

	coupon, err := u.coupons.FindByCode(ctx, nil, couponCode)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		u.log.Debug().Str("coupon", couponCode).Str("course", course.Code).Msg("coupon not found; charging full price")
		metrics.IncCouponApplication("unknown")
		return q, nil
	}
	if !coupon.UsableAt(time.Now()) {
		u.log.Debug().Str("coupon", couponCode).Str("course", course.Code).Msg("coupon expired or exhausted; charging full price")
		metrics.IncCouponApplication("degraded")
		return q, nil
	}

	q.Amount = coupon.Apply(course.Price)
	q.Coupon = coupon
	metrics.IncCouponApplication("applied")
	return q, nil
}
