package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccessPath is the closed set of ways a user can be entitled to a course.
type AccessPath string

const (
	AccessFree  AccessPath = "free"  // course is not paid; no money involved
	AccessPaid  AccessPath = "paid"  // full access after a verified payment
	AccessAudit AccessPath = "audit" // content access without certificate eligibility
)

// Course carries the pricing configuration the entitlement engine needs.
// Catalog content (sections, resources, rendering) lives elsewhere.
type Course struct {
	Code      string // unique short code, e.g. "go-101"
	Title     string
	Paid      bool
	Price     decimal.Decimal
	Currency  string
	Auditable bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Payable reports whether the course has a usable price configuration.
// A paid course without a positive price or a currency cannot produce a
// correct expected amount, which is fatal for checkout.
func (c *Course) Payable() bool {
	if !c.Paid {
		return true
	}
	return c.Price.IsPositive() && c.Currency != ""
}
