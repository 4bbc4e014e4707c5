package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a named, rate-limited, time-bounded discount rule.
// UsageCount is incremented only inside the transaction that completes a
// payment referencing the coupon, never at pricing time.
type Coupon struct {
	Code       string
	Type       DiscountType
	Value      decimal.Decimal // percent (0-100) or fixed amount
	ValidFrom  time.Time
	ValidUntil time.Time
	UsageLimit int
	UsageCount int
	CreatedAt  time.Time
}

// UsableAt reports whether the coupon can be applied at t: inside its
// validity window and with remaining uses.
func (c *Coupon) UsableAt(t time.Time) bool {
	if t.Before(c.ValidFrom) || t.After(c.ValidUntil) {
		return false
	}
	return c.UsageCount < c.UsageLimit
}

// Apply returns the discounted amount, floored at zero.
func (c *Coupon) Apply(base decimal.Decimal) decimal.Decimal {
	var out decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		hundred := decimal.NewFromInt(100)
		out = base.Mul(hundred.Sub(c.Value)).Div(hundred)
	case DiscountFixed:
		out = base.Sub(c.Value)
	default:
		return base
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
