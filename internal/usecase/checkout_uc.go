package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/adapter"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutLocker serializes begin-checkout per (user, course) as a fast
// path against double-clicks. The storage-level compare-and-set remains the
// correctness anchor; losing this lock is only an inconvenience.
type CheckoutLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// CheckoutUseCase owns the payment lifecycle up to (but not including)
// confirmation: creating or resuming the pending payment and registering
// the order with the gateway.
type CheckoutUseCase interface {
	// Begin starts (or resumes) checkout. For free and audit paths the
	// returned payment is already completed at amount zero and the
	// enrollment is granted; no gateway round-trip happens. For the paid
	// path the returned URL is where the buyer approves the order.
	Begin(ctx context.Context, userID, courseCode, couponCode string, audit bool) (*model.Payment, string, error)
	// Resume re-enters an unfinished pending payment.
	Resume(ctx context.Context, paymentID string) (*model.Payment, error)
}

type checkoutUC struct {
	entitlement EntitlementUseCase
	pricing     PricingUseCase
	payments    repository.PaymentRepository
	coupons     repository.CouponRepository
	grant       GrantUseCase
	gateway     adapter.PaymentGateway
	tm          repository.TransactionManager
	locker      CheckoutLocker
	log         *zerolog.Logger
}

func NewCheckoutUseCase(
	entitlement EntitlementUseCase,
	pricing PricingUseCase,
	payments repository.PaymentRepository,
	coupons repository.CouponRepository,
	grant GrantUseCase,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	locker CheckoutLocker,
	logger *zerolog.Logger,
) *checkoutUC {
	return &checkoutUC{
		entitlement: entitlement,
		pricing:     pricing,
		payments:    payments,
		coupons:     coupons,
		grant:       grant,
		gateway:     gateway,
		tm:          tm,
		locker:      locker,
		log:         logger,
	}
}

const checkoutLockTTL = 30 * time.Second

func (u *checkoutUC) Begin(ctx context.Context, userID, courseCode, couponCode string, audit bool) (*model.Payment, string, error) {
	if userID == "" || courseCode == "" {
		return nil, "", domain.ErrInvalidArgument
	}

	decision, err := u.entitlement.Resolve(ctx, userID, courseCode, audit)
	if err != nil {
		return nil, "", err
	}
	if decision.AlreadyEntitled {
		return nil, "", fmt.Errorf("user %s already entitled to %s: %w", userID, courseCode, domain.ErrAlreadyExists)
	}

	switch decision.Path {
	case model.AccessFree, model.AccessAudit:
		return u.beginZeroAmount(ctx, userID, decision)
	default:
		return u.beginPaid(ctx, userID, couponCode, decision)
	}
}

// beginZeroAmount covers free courses and audit mode: the payment is
// created directly in completed state with amount zero and the enrollment
// is granted in the same transaction.
func (u *checkoutUC) beginZeroAmount(ctx context.Context, userID string, decision *AccessDecision) (*model.Payment, string, error) {
	now := time.Now()
	p := &model.Payment{
		ID:          ulid.Make().String(),
		UserID:      userID,
		CourseCode:  decision.Course.Code,
		Amount:      decimal.Zero,
		Currency:    decision.Course.Currency,
		Method:      "free",
		Audit:       decision.Path == model.AccessAudit,
		Status:      model.PaymentStatusCompleted,
		Description: fmt.Sprintf("%s access to %s", decision.Path, decision.Course.Code),
		CreatedAt:   now,
		UpdatedAt:   now,
		PaidAt:      &now,
	}

	var enrollment *model.Enrollment
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.payments.Save(ctx, tx, p); err != nil {
			return err
		}
		e, err := u.grant.Grant(ctx, tx, userID, decision.Course.Code, p.Audit, p.ID)
		if err != nil {
			return err
		}
		if err := u.payments.SetEnrollment(ctx, tx, p.ID, e.ID); err != nil {
			return err
		}
		enrollment = e
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	p.EnrollmentID = &enrollment.ID
	u.grant.InitializeProgress(ctx, enrollment)
	metrics.IncPayment(string(p.Status))
	metrics.IncEnrollment(string(decision.Path))
	u.log.Info().Str("payment_id", p.ID).Str("user_id", userID).Str("course", p.CourseCode).Str("path", string(decision.Path)).Msg("zero-amount enrollment granted")
	return p, "", nil
}

func (u *checkoutUC) beginPaid(ctx context.Context, userID, couponCode string, decision *AccessDecision) (*model.Payment, string, error) {
	course := decision.Course
	lockKey := fmt.Sprintf("checkout:%s:%s", userID, course.Code)
	token, err := u.locker.TryLock(ctx, lockKey, checkoutLockTTL)
	if err != nil {
		return nil, "", domain.ErrLockBusy
	}
	defer func() { _ = u.locker.Unlock(ctx, lockKey, token) }()

	// Resumption: while a pending payment exists for the pair, begin is
	// idempotent and returns the existing record.
	if existing, err := u.payments.FindPendingByUserCourse(ctx, nil, userID, course.Code); err == nil {
		approveURL, aerr := u.ensureOrder(ctx, existing)
		if aerr != nil {
			return nil, "", aerr
		}
		return existing, approveURL, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, "", err
	}

	quote, err := u.pricing.Quote(ctx, course, couponCode)
	if err != nil {
		return nil, "", err
	}

	// A coupon covering the whole list price leaves nothing to charge:
	// complete at zero right here, no gateway round-trip.
	if quote.Coupon != nil && !quote.Amount.IsPositive() {
		p, err := u.beginCouponCovered(ctx, userID, course, quote)
		if err == nil {
			return p, "", nil
		}
		if !errors.Is(err, domain.ErrCouponExhausted) {
			return nil, "", err
		}
		// The coupon's last use disappeared between pricing and
		// completion; degrade to the list price as any other coupon
		// failure does.
		if quote, err = u.pricing.Quote(ctx, course, ""); err != nil {
			return nil, "", err
		}
	}

	now := time.Now()
	p := &model.Payment{
		ID:          ulid.Make().String(),
		UserID:      userID,
		CourseCode:  course.Code,
		Amount:      quote.Amount,
		Currency:    quote.Currency,
		Method:      u.gateway.Name(),
		Status:      model.PaymentStatusPending,
		Description: fmt.Sprintf("purchase of %s", course.Code),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if quote.Coupon != nil {
		code := quote.Coupon.Code
		p.CouponCode = &code
		p.Description = fmt.Sprintf("purchase of %s, coupon %s applied", course.Code, code)
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, "", err
	}
	metrics.IncPayment(string(p.Status))

	approveURL, err := u.ensureOrder(ctx, p)
	if err != nil {
		// The pending payment survives; a later begin or resume retries
		// the order creation.
		return nil, "", err
	}
	u.log.Info().Str("payment_id", p.ID).Str("user_id", userID).Str("course", course.Code).Str("amount", p.Amount.String()).Str("currency", p.Currency).Msg("checkout started")
	return p, approveURL, nil
}

// beginCouponCovered completes a fully discounted purchase: the coupon use
// is consumed and the enrollment granted in the same transaction that
// stores the completed zero-amount payment.
func (u *checkoutUC) beginCouponCovered(ctx context.Context, userID string, course *model.Course, quote *Quote) (*model.Payment, error) {
	now := time.Now()
	code := quote.Coupon.Code
	p := &model.Payment{
		ID:          ulid.Make().String(),
		UserID:      userID,
		CourseCode:  course.Code,
		Amount:      decimal.Zero,
		Currency:    quote.Currency,
		Method:      "coupon",
		CouponCode:  &code,
		Status:      model.PaymentStatusCompleted,
		Description: fmt.Sprintf("purchase of %s, coupon %s applied", course.Code, code),
		CreatedAt:   now,
		UpdatedAt:   now,
		PaidAt:      &now,
	}

	var enrollment *model.Enrollment
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.coupons.IncrementUsageIfAvailable(ctx, tx, code)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("coupon %s: %w", code, domain.ErrCouponExhausted)
		}
		if err := u.payments.Save(ctx, tx, p); err != nil {
			return err
		}
		e, err := u.grant.Grant(ctx, tx, userID, course.Code, false, p.ID)
		if err != nil {
			return err
		}
		if err := u.payments.SetEnrollment(ctx, tx, p.ID, e.ID); err != nil {
			return err
		}
		enrollment = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.EnrollmentID = &enrollment.ID
	u.grant.InitializeProgress(ctx, enrollment)
	metrics.IncPayment(string(p.Status))
	metrics.IncEnrollment("paid")
	u.log.Info().Str("payment_id", p.ID).Str("user_id", userID).Str("course", course.Code).Str("coupon", code).Msg("coupon covered the full price; enrollment granted")
	return p, nil
}

// ensureOrder registers the payment with the gateway when no order is
// attached yet. Resumed payments that already carry a reference are
// returned as-is: the buyer re-drives the gateway with the same order.
func (u *checkoutUC) ensureOrder(ctx context.Context, p *model.Payment) (string, error) {
	if p.Reference != nil {
		return "", nil
	}
	orderID, approveURL, err := u.gateway.CreateOrder(ctx, p.Amount, p.Currency, p.Description)
	if err != nil {
		return "", err
	}
	if err := u.payments.AttachReference(ctx, nil, p.ID, orderID); err != nil {
		return "", err
	}
	p.Reference = &orderID
	return approveURL, nil
}

func (u *checkoutUC) Resume(ctx context.Context, paymentID string) (*model.Payment, error) {
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case model.PaymentStatusPending:
		if _, err := u.ensureOrder(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	case model.PaymentStatusCompleted:
		return p, nil
	default:
		return nil, fmt.Errorf("payment %s is failed and not resumable: %w", paymentID, domain.ErrAlreadyFinalized)
	}
}
