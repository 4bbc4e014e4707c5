package adapter

import (
	"context"

	"github.com/shopspring/decimal"
)

// VerifyResult captures a minimal, provider-agnostic view of a gateway
// order's verified state.
type VerifyResult struct {
	Authorized bool
	Amount     decimal.Decimal
	Currency   string
	PayerID    string
}

// PaymentGateway is the hex port for payment providers. It never owns
// business state: order ids and verification results are recorded on the
// Payment by the caller.
//
// Implementations must distinguish transient from terminal failures by
// wrapping domain.ErrGatewayUnavailable (timeouts, 5xx, throttling) or
// domain.ErrGatewayDeclined (order invalid/expired/declined) respectively.
type PaymentGateway interface {
	Name() string

	// CreateOrder registers a payment intent with the provider and returns
	// the provider order id plus the URL the buyer is redirected to.
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (orderID string, approveURL string, err error)

	// VerifyOrder confirms whether the order is genuinely authorized and for
	// what amount. It is safe to call repeatedly for the same order.
	VerifyOrder(ctx context.Context, orderID string) (VerifyResult, error)
}
