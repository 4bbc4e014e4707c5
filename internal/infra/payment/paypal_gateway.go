package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*PayPalGateway)(nil)

// PayPalGateway implements the PaymentGateway port against the PayPal
// Orders v2 API using direct HTTP calls.
type PayPalGateway struct {
	clientID string
	secret   string
	sandbox  bool
	baseURL  string
	client   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalGateway creates a new direct PayPal gateway.
func NewPayPalGateway(clientID, secret string, sandbox bool) *PayPalGateway {
	var baseURL string
	switch sandbox {
	case true:
		baseURL = "https://api-m.sandbox.paypal.com"
	case false:
		baseURL = "https://api-m.paypal.com"
	}

	return &PayPalGateway{
		clientID: clientID,
		secret:   secret,
		sandbox:  sandbox,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *PayPalGateway) Name() string { return "paypal" }

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		Amount paypalAmount `json:"amount"`
	} `json:"purchase_units"`
	Payer struct {
		PayerID string `json:"payer_id"`
	} `json:"payer"`
}

// token fetches (or reuses) an OAuth2 client-credentials access token.
func (g *PayPalGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(g.clientID, g.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %v: %w", err, domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, "oauth token")
	}

	var tok paypalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	g.accessToken = tok.AccessToken
	// Refresh one minute before the provider expiry.
	g.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return g.accessToken, nil
}

// CreateOrder registers a CAPTURE-intent order and returns its id and the
// buyer approval URL.
func (g *PayPalGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (string, string, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"description": description,
			"amount": paypalAmount{
				CurrencyCode: strings.ToUpper(currency),
				Value:        amount.StringFixed(2),
			},
		}},
	}

	var order paypalOrderResponse
	if err := g.call(ctx, http.MethodPost, "/v2/checkout/orders", body, &order); err != nil {
		return "", "", err
	}

	approveURL := ""
	for _, l := range order.Links {
		if l.Rel == "approve" {
			approveURL = l.Href
		}
	}
	if order.ID == "" || approveURL == "" {
		return "", "", fmt.Errorf("order response missing id or approve link: %w", domain.ErrGatewayDeclined)
	}
	return order.ID, approveURL, nil
}

// VerifyOrder reads the order state; an APPROVED order is captured so the
// funds move. Both capture paths are idempotent on PayPal's side, which is
// what makes re-verification of the same order safe.
func (g *PayPalGateway) VerifyOrder(ctx context.Context, orderID string) (adapter.VerifyResult, error) {
	var order paypalOrderResponse
	if err := g.call(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil, &order); err != nil {
		return adapter.VerifyResult{}, err
	}

	if order.Status == "APPROVED" {
		var captured paypalOrderResponse
		if err := g.call(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &captured); err != nil {
			return adapter.VerifyResult{}, err
		}
		order.Status = captured.Status
		if len(captured.PurchaseUnits) > 0 {
			order.PurchaseUnits = captured.PurchaseUnits
		}
		if captured.Payer.PayerID != "" {
			order.Payer = captured.Payer
		}
	}

	res := adapter.VerifyResult{
		Authorized: order.Status == "COMPLETED",
		PayerID:    order.Payer.PayerID,
	}
	if len(order.PurchaseUnits) > 0 {
		amt, err := decimal.NewFromString(order.PurchaseUnits[0].Amount.Value)
		if err != nil {
			return adapter.VerifyResult{}, fmt.Errorf("parse order amount %q: %w", order.PurchaseUnits[0].Amount.Value, err)
		}
		res.Amount = amt
		res.Currency = order.PurchaseUnits[0].Amount.CurrencyCode
	}
	return res, nil
}

func (g *PayPalGateway) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	tok, err := g.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unmarshal response: %w, body: %s", err, string(raw))
		}
	}
	return nil
}

// classifyStatus maps provider HTTP statuses onto the transient/terminal
// split the confirmation processor relies on.
func classifyStatus(status int, detail string) error {
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return fmt.Errorf("paypal status %d: %s: %w", status, detail, domain.ErrGatewayUnavailable)
	}
	return fmt.Errorf("paypal status %d: %s: %w", status, detail, domain.ErrGatewayDeclined)
}
