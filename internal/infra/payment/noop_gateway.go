package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway is a simple in-memory gateway for dev mode and tests. Every
// created order verifies as authorized for the requested amount.
type NoopGateway struct {
	mu     sync.Mutex
	seq    int64
	orders map[string]adapter.VerifyResult
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{orders: make(map[string]adapter.VerifyResult)}
}

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	orderID := fmt.Sprintf("noop-%d", g.seq)
	g.orders[orderID] = adapter.VerifyResult{
		Authorized: true,
		Amount:     amount,
		Currency:   currency,
		PayerID:    "noop-payer",
	}
	return orderID, "https://example.test/pay/" + orderID, nil
}

func (g *NoopGateway) VerifyOrder(ctx context.Context, orderID string) (adapter.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.orders[orderID]
	if !ok {
		return adapter.VerifyResult{}, fmt.Errorf("noop: unknown order %s: %w", orderID, domain.ErrGatewayDeclined)
	}
	return res, nil
}
