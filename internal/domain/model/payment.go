package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // awaiting gateway approval/verification
	PaymentStatusCompleted PaymentStatus = "completed" // verified OK; enrollment granted
	PaymentStatusFailed    PaymentStatus = "failed"    // verification failed, tampered, or declined
)

// Payment records one attempt to pay for one course by one user.
// Reference holds the gateway order id and is unique across payments when
// set; it is the idempotency anchor that collapses duplicate confirmations
// into a single outcome.
type Payment struct {
	ID          string // ULID
	UserID      string
	CourseCode  string
	Amount      decimal.Decimal
	Currency    string
	Method      string  // gateway name, or "free" for zero-amount grants
	Reference   *string // gateway order id; nil until an order is created
	CouponCode  *string // coupon applied at checkout time, if any
	Audit       bool
	Status      PaymentStatus
	Description string // human-readable, e.g. "coupon SAVE20 applied"
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time // set when completed
	// Link to the granted enrollment (set inside the completing transaction):
	EnrollmentID *string
}

// Finalized reports whether the payment reached a terminal state.
// Transitions out of a terminal state are never allowed.
func (p *Payment) Finalized() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}
