//go:build !integration

package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
)

// newSandboxGateway points the gateway at a local httptest server.
func newSandboxGateway(url string) *PayPalGateway {
	g := NewPayPalGateway("client-id", "secret", true)
	g.baseURL = url
	return g
}

func tokenHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"access_token":"tok-123","expires_in":3600}`))
}

func TestPayPalGateway_CreateOrder(t *testing.T) {
	t.Run("should create an order and return the approve link", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1/oauth2/token":
				tokenHandler(w, r)
			case "/v2/checkout/orders":
				gotAuth = r.Header.Get("Authorization")
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{
					"id": "ORDER-1",
					"status": "CREATED",
					"links": [
						{"href": "https://paypal.test/self", "rel": "self"},
						{"href": "https://paypal.test/approve", "rel": "approve"}
					]
				}`))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()
		g := newSandboxGateway(srv.URL)

		orderID, approveURL, err := g.CreateOrder(context.Background(), decimal.RequireFromString("49.00"), "usd", "purchase of go-201")

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if orderID != "ORDER-1" {
			t.Errorf("expected order id ORDER-1, got %q", orderID)
		}
		if approveURL != "https://paypal.test/approve" {
			t.Errorf("expected the approve link, got %q", approveURL)
		}
		if gotAuth != "Bearer tok-123" {
			t.Errorf("expected the cached bearer token, got %q", gotAuth)
		}
	})

	t.Run("should classify a 5xx as transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/oauth2/token" {
				tokenHandler(w, r)
				return
			}
			http.Error(w, "internal", http.StatusInternalServerError)
		}))
		defer srv.Close()
		g := newSandboxGateway(srv.URL)

		_, _, err := g.CreateOrder(context.Background(), decimal.NewFromInt(49), "USD", "desc")

		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
		}
	})

	t.Run("should classify a 4xx as terminal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/oauth2/token" {
				tokenHandler(w, r)
				return
			}
			http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()
		g := newSandboxGateway(srv.URL)

		_, _, err := g.CreateOrder(context.Background(), decimal.NewFromInt(49), "USD", "desc")

		if !errors.Is(err, domain.ErrGatewayDeclined) {
			t.Fatalf("expected ErrGatewayDeclined, got %v", err)
		}
	})

	t.Run("should classify a 429 as transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/oauth2/token" {
				tokenHandler(w, r)
				return
			}
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()
		g := newSandboxGateway(srv.URL)

		_, _, err := g.CreateOrder(context.Background(), decimal.NewFromInt(49), "USD", "desc")

		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
		}
	})
}

func TestPayPalGateway_VerifyOrder(t *testing.T) {
	t.Run("should report a completed order as authorized", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1/oauth2/token":
				tokenHandler(w, r)
			case "/v2/checkout/orders/ORDER-1":
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{
					"id": "ORDER-1",
					"status": "COMPLETED",
					"purchase_units": [{"amount": {"currency_code": "USD", "value": "49.00"}}],
					"payer": {"payer_id": "PAYER-9"}
				}`))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()
		g := newSandboxGateway(srv.URL)

		res, err := g.VerifyOrder(context.Background(), "ORDER-1")

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !res.Authorized {
			t.Error("expected the order to be authorized")
		}
		if !res.Amount.Equal(decimal.RequireFromString("49.00")) || res.Currency != "USD" {
			t.Errorf("unexpected settled amount %s %s", res.Amount, res.Currency)
		}
		if res.PayerID != "PAYER-9" {
			t.Errorf("expected payer id PAYER-9, got %q", res.PayerID)
		}
	})

	t.Run("should capture an approved order before reporting it", func(t *testing.T) {
		captured := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1/oauth2/token":
				tokenHandler(w, r)
			case "/v2/checkout/orders/ORDER-1":
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id": "ORDER-1", "status": "APPROVED"}`))
			case "/v2/checkout/orders/ORDER-1/capture":
				captured = true
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{
					"id": "ORDER-1",
					"status": "COMPLETED",
					"purchase_units": [{"amount": {"currency_code": "USD", "value": "49.00"}}],
					"payer": {"payer_id": "PAYER-9"}
				}`))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()
		g := newSandboxGateway(srv.URL)

		res, err := g.VerifyOrder(context.Background(), "ORDER-1")

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !captured {
			t.Error("expected the approved order to be captured")
		}
		if !res.Authorized {
			t.Error("expected the captured order to be authorized")
		}
	})

	t.Run("should report a created order as not authorized", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1/oauth2/token":
				tokenHandler(w, r)
			case "/v2/checkout/orders/ORDER-1":
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id": "ORDER-1", "status": "CREATED"}`))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()
		g := newSandboxGateway(srv.URL)

		res, err := g.VerifyOrder(context.Background(), "ORDER-1")

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if res.Authorized {
			t.Error("expected the order to not be authorized")
		}
	})
}

func TestPayPalGateway_TokenReuse(t *testing.T) {
	tokens := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			tokens++
			tokenHandler(w, r)
		case "/v2/checkout/orders/ORDER-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "ORDER-1", "status": "CREATED"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	g := newSandboxGateway(srv.URL)

	for i := 0; i < 3; i++ {
		if _, err := g.VerifyOrder(context.Background(), "ORDER-1"); err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
	}
	if tokens != 1 {
		t.Fatalf("expected a single token fetch, got %d", tokens)
	}
}
