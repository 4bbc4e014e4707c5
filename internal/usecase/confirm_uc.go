package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/adapter"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/metrics"
)

// Compile-time check
var _ ConfirmUseCase = (*confirmUC)(nil)

type ConfirmStatus string

const (
	ConfirmGranted   ConfirmStatus = "granted"
	ConfirmDuplicate ConfirmStatus = "duplicate"
	ConfirmRejected  ConfirmStatus = "rejected"
)

// ConfirmRequest is the gateway-reported confirmation payload. Reference is
// the gateway order id; Amount and Currency are what the client claims was
// charged and are never trusted: the expected price is re-derived server
// side and compared with zero tolerance.
type ConfirmRequest struct {
	Reference string
	PayerID   string
	Amount    decimal.Decimal
	Currency  string
}

type ConfirmResult struct {
	Status       ConfirmStatus
	Payment      *model.Payment
	EnrollmentID string
}

// ConfirmUseCase is the confirmation state machine: replay lookup, payload
// validation, server-side repricing, gateway verification, then one unit of
// work that compare-and-sets the payment to completed, increments coupon
// usage and grants the enrollment.
type ConfirmUseCase interface {
	Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error)
	// Reconcile re-drives confirmation for a pending payment from its
	// stored state, trusting the gateway's verified amount instead of a
	// client payload. Used by the janitor for stale pendings.
	Reconcile(ctx context.Context, reference string) (*ConfirmResult, error)
}

type confirmUC struct {
	payments      repository.PaymentRepository
	courses       repository.CourseRepository
	coupons       repository.CouponRepository
	pricing       PricingUseCase
	grant         GrantUseCase
	gateway       adapter.PaymentGateway
	tm            repository.TransactionManager
	verifyTimeout time.Duration
	log           *zerolog.Logger
}

func NewConfirmUseCase(
	payments repository.PaymentRepository,
	courses repository.CourseRepository,
	coupons repository.CouponRepository,
	pricing PricingUseCase,
	grant GrantUseCase,
	gateway adapter.PaymentGateway,
	tm repository.TransactionManager,
	verifyTimeout time.Duration,
	logger *zerolog.Logger,
) *confirmUC {
	if verifyTimeout <= 0 {
		verifyTimeout = 15 * time.Second
	}
	return &confirmUC{
		payments:      payments,
		courses:       courses,
		coupons:       coupons,
		pricing:       pricing,
		grant:         grant,
		gateway:       gateway,
		tm:            tm,
		verifyTimeout: verifyTimeout,
		log:           logger,
	}
}

// errLostRace signals that the compare-and-set saw the payment already
// finalized by a concurrent confirmation; it never leaves this package.
var errLostRace = errors.New("lost completion race")

func (u *confirmUC) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if req.Reference == "" {
		return rejected(nil), fmt.Errorf("missing reference: %w", domain.ErrInvalidPayload)
	}

	p, err := u.payments.FindByReference(ctx, nil, req.Reference)
	if err != nil {
		return rejected(nil), err
	}
	if res, done, err := u.shortCircuit(p); done {
		return res, err
	}

	if err := validatePayload(req); err != nil {
		// Local validation failure: the payment stays pending and the
		// caller may resubmit a corrected payload.
		return rejected(p), err
	}

	quote, err := u.expectedQuote(ctx, p)
	if err != nil {
		return rejected(p), err
	}
	if !req.Amount.Equal(quote.Amount) || !strings.EqualFold(req.Currency, quote.Currency) {
		return u.rejectTampered(ctx, p, quote, req.Amount, req.Currency)
	}

	return u.verifyAndFinalize(ctx, p, quote)
}

func (u *confirmUC) Reconcile(ctx context.Context, reference string) (*ConfirmResult, error) {
	p, err := u.payments.FindByReference(ctx, nil, reference)
	if err != nil {
		return rejected(nil), err
	}
	if res, done, err := u.shortCircuit(p); done {
		return res, err
	}
	quote, err := u.expectedQuote(ctx, p)
	if err != nil {
		return rejected(p), err
	}
	return u.verifyAndFinalize(ctx, p, quote)
}

// shortCircuit handles the idempotent-replay and dead-payment paths.
func (u *confirmUC) shortCircuit(p *model.Payment) (*ConfirmResult, bool, error) {
	switch p.Status {
	case model.PaymentStatusCompleted:
		metrics.IncConfirmation("duplicate")
		res := &ConfirmResult{Status: ConfirmDuplicate, Payment: p}
		if p.EnrollmentID != nil {
			res.EnrollmentID = *p.EnrollmentID
		}
		return res, true, nil
	case model.PaymentStatusFailed:
		return rejected(p), true, fmt.Errorf("payment %s: %w", p.ID, domain.ErrAlreadyFinalized)
	default:
		return nil, false, nil
	}
}

func validatePayload(req ConfirmRequest) error {
	switch {
	case req.PayerID == "":
		return fmt.Errorf("missing payer id: %w", domain.ErrInvalidPayload)
	case !req.Amount.IsPositive():
		return fmt.Errorf("missing or non-positive amount: %w", domain.ErrInvalidPayload)
	case len(req.Currency) != 3:
		return fmt.Errorf("malformed currency %q: %w", req.Currency, domain.ErrInvalidPayload)
	}
	return nil
}

// expectedQuote re-derives the price the payment must settle at, from the
// catalog and the coupon recorded at checkout time.
func (u *confirmUC) expectedQuote(ctx context.Context, p *model.Payment) (*Quote, error) {
	course, err := u.courses.FindByCode(ctx, nil, p.CourseCode)
	if err != nil {
		return nil, err
	}
	coupon := ""
	if p.CouponCode != nil {
		coupon = *p.CouponCode
	}
	return u.pricing.Quote(ctx, course, coupon)
}

// rejectTampered fails the payment permanently and logs the mismatch as a
// potential-tampering signal, distinctly from ordinary failures.
func (u *confirmUC) rejectTampered(ctx context.Context, p *model.Payment, quote *Quote, gotAmount decimal.Decimal, gotCurrency string) (*ConfirmResult, error) {
	u.failPending(ctx, p)
	metrics.IncConfirmation("tampered")
	u.log.Warn().
		Str("payment_id", p.ID).
		Str("reference", deref(p.Reference)).
		Str("expected_amount", quote.Amount.String()).
		Str("expected_currency", quote.Currency).
		Str("reported_amount", gotAmount.String()).
		Str("reported_currency", gotCurrency).
		Msg("amount mismatch on confirmation; possible tampering")
	return rejected(p), fmt.Errorf("payment %s: %w", p.ID, domain.ErrAmountMismatch)
}

func (u *confirmUC) verifyAndFinalize(ctx context.Context, p *model.Payment, quote *Quote) (*ConfirmResult, error) {
	vctx, cancel := context.WithTimeout(ctx, u.verifyTimeout)
	defer cancel()
	verified, err := u.gateway.VerifyOrder(vctx, deref(p.Reference))
	if err != nil {
		if errors.Is(err, domain.ErrGatewayDeclined) {
			u.failPending(ctx, p)
			metrics.IncConfirmation("declined")
			return rejected(p), err
		}
		// Transient: the payment stays pending and the same confirmation
		// may be retried.
		metrics.IncConfirmation("transient_error")
		return nil, fmt.Errorf("verify order %s: %w", deref(p.Reference), err)
	}
	if !verified.Authorized {
		u.failPending(ctx, p)
		metrics.IncConfirmation("declined")
		return rejected(p), fmt.Errorf("order %s not authorized: %w", deref(p.Reference), domain.ErrGatewayDeclined)
	}
	if !verified.Amount.Equal(quote.Amount) || !strings.EqualFold(verified.Currency, quote.Currency) {
		return u.rejectTampered(ctx, p, quote, verified.Amount, verified.Currency)
	}

	return u.finalize(ctx, p, quote)
}

// finalize is the sole serialization point: the compare-and-set on the
// payment row decides the single winner, and the enrollment grant plus the
// coupon usage increment commit in the same transaction or not at all.
func (u *confirmUC) finalize(ctx context.Context, p *model.Payment, quote *Quote) (*ConfirmResult, error) {
	now := time.Now()
	var enrollment *model.Enrollment
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		won, err := u.payments.UpdateStatusIfPending(ctx, tx, p.ID, model.PaymentStatusCompleted, &now)
		if err != nil {
			return err
		}
		if !won {
			return errLostRace
		}
		if quote.Coupon != nil {
			ok, err := u.coupons.IncrementUsageIfAvailable(ctx, tx, quote.Coupon.Code)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("coupon %s: %w", quote.Coupon.Code, domain.ErrCouponExhausted)
			}
		}
		e, err := u.grant.Grant(ctx, tx, p.UserID, p.CourseCode, p.Audit, p.ID)
		if err != nil {
			return err
		}
		if err := u.payments.SetEnrollment(ctx, tx, p.ID, e.ID); err != nil {
			return err
		}
		enrollment = e
		return nil
	})

	switch {
	case err == nil:
		p.Status = model.PaymentStatusCompleted
		p.PaidAt = &now
		p.UpdatedAt = now
		p.EnrollmentID = &enrollment.ID
		u.grant.InitializeProgress(ctx, enrollment)
		metrics.IncConfirmation("granted")
		metrics.IncPayment(string(model.PaymentStatusCompleted))
		metrics.AddPaymentRevenue(p.Currency, p.Amount)
		path := "paid"
		if enrollment.Audit {
			path = "audit"
		}
		metrics.IncEnrollment(path)
		u.log.Info().Str("payment_id", p.ID).Str("enrollment_id", enrollment.ID).Str("user_id", p.UserID).Str("course", p.CourseCode).Msg("payment confirmed and enrollment granted")
		return &ConfirmResult{Status: ConfirmGranted, Payment: p, EnrollmentID: enrollment.ID}, nil

	case errors.Is(err, errLostRace):
		// A concurrent confirmation won; resolve to its outcome.
		winner, ferr := u.payments.FindByID(ctx, nil, p.ID)
		if ferr != nil {
			return nil, ferr
		}
		if res, done, rerr := u.shortCircuit(winner); done {
			return res, rerr
		}
		return nil, domain.ErrConflict

	case errors.Is(err, domain.ErrCouponExhausted):
		// The coupon ran out between pricing and completion: the priced
		// amount no longer holds, so the confirmation is rejected and the
		// payment fails. A new checkout reprices at full list price.
		u.failPending(ctx, p)
		metrics.IncConfirmation("coupon_exhausted")
		return rejected(p), err

	default:
		return nil, err
	}
}

// failPending moves a pending payment to failed through the same CAS used
// for completion; losing the race here means a concurrent confirmation
// succeeded, which the caller discovers on its own replay.
func (u *confirmUC) failPending(ctx context.Context, p *model.Payment) {
	won, err := u.payments.UpdateStatusIfPending(ctx, nil, p.ID, model.PaymentStatusFailed, nil)
	if err != nil {
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("failed to mark payment failed")
		return
	}
	if won {
		p.Status = model.PaymentStatusFailed
		p.UpdatedAt = time.Now()
		metrics.IncPayment(string(model.PaymentStatusFailed))
	}
}

func rejected(p *model.Payment) *ConfirmResult {
	return &ConfirmResult{Status: ConfirmRejected, Payment: p}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
