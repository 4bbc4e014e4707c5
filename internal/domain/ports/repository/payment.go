package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
)

// PaymentRepository is the durable record of every payment attempt. It owns
// the uniqueness and idempotency guarantees: the gateway reference is unique
// when present, and status leaves `pending` exactly once.
type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByReference(ctx context.Context, tx Tx, reference string) (*model.Payment, error)
	// FindPendingByUserCourse returns the open pending payment for the pair,
	// or domain.ErrNotFound. Used for checkout resumption.
	FindPendingByUserCourse(ctx context.Context, tx Tx, userID, courseCode string) (*model.Payment, error)
	// AttachReference sets the gateway order id. Returns domain.ErrConflict
	// when the reference is already attached to a different payment.
	AttachReference(ctx context.Context, tx Tx, paymentID, reference string) error
	// UpdateStatusIfPending atomically transitions status only when the
	// current status is 'pending'. Returns false when the compare-and-set
	// lost (the payment was already finalized by a concurrent caller).
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error)
	// SetEnrollment links the granted enrollment; called inside the same
	// transaction that completed the payment.
	SetEnrollment(ctx context.Context, tx Tx, paymentID, enrollmentID string) error
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	// SumCompletedByPeriod totals completed payments since the start of the
	// given date_trunc period ("day", "month", ...), per currency.
	SumCompletedByPeriod(ctx context.Context, tx Tx, period string) (map[string]decimal.Decimal, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.PaymentStatus]int, error)
}
