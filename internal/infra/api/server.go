package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/logging"
	"github.com/bmosoluciones/now-lms-payments/internal/usecase"
)

// Server exposes the payment & entitlement engine over HTTP.
type Server struct {
	checkout usecase.CheckoutUseCase
	confirm  usecase.ConfirmUseCase
	stats    usecase.StatsUseCase
	apiKey   string
	log      *zerolog.Logger
}

func NewServer(
	checkout usecase.CheckoutUseCase,
	confirm usecase.ConfirmUseCase,
	stats usecase.StatsUseCase,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{checkout: checkout, confirm: confirm, stats: stats, apiKey: apiKey, log: logger}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(traceContext)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", s.handleBeginCheckout)
		r.Post("/checkout/{paymentID}/resume", s.handleResumeCheckout)
		r.Post("/payments/confirm", s.handleConfirmPayment)
		r.With(s.requireAPIKey).Get("/admin/stats", s.handleStats)
	})
	return r
}

type beginCheckoutRequest struct {
	UserID string `json:"user_id"`
	Course string `json:"course"`
	Coupon string `json:"coupon,omitempty"`
	Audit  bool   `json:"audit,omitempty"`
}

type checkoutResponse struct {
	PaymentID    string          `json:"payment_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
	Reference    string          `json:"reference,omitempty"`
	ApproveURL   string          `json:"approve_url,omitempty"`
	EnrollmentID string          `json:"enrollment_id,omitempty"`
}

func checkoutBody(p *model.Payment, approveURL string) checkoutResponse {
	out := checkoutResponse{
		PaymentID:  p.ID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     string(p.Status),
		ApproveURL: approveURL,
	}
	if p.Reference != nil {
		out.Reference = *p.Reference
	}
	if p.EnrollmentID != nil {
		out.EnrollmentID = *p.EnrollmentID
	}
	return out
}

func (s *Server) handleBeginCheckout(w http.ResponseWriter, r *http.Request) {
	var req beginCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	ctx := logging.WithUserID(r.Context(), req.UserID)
	p, approveURL, err := s.checkout.Begin(ctx, req.UserID, req.Course, req.Coupon, req.Audit)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, checkoutBody(p, approveURL))
}

func (s *Server) handleResumeCheckout(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	p, err := s.checkout.Resume(logging.WithPaymentID(r.Context(), paymentID), paymentID)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, checkoutBody(p, ""))
}

type confirmPaymentRequest struct {
	Reference string          `json:"reference"`
	PayerID   string          `json:"payer_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type confirmPaymentResponse struct {
	Status       string `json:"status"` // granted | duplicate | rejected
	EnrollmentID string `json:"enrollment_id,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	res, err := s.confirm.Confirm(r.Context(), usecase.ConfirmRequest{
		Reference: req.Reference,
		PayerID:   req.PayerID,
		Amount:    req.Amount,
		Currency:  req.Currency,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrGatewayUnavailable):
			// Safe to retry: the idempotent replay path absorbs
			// resubmissions of a confirmation that actually landed.
			w.Header().Set("Retry-After", "5")
			s.writeJSON(w, http.StatusServiceUnavailable, confirmPaymentResponse{Status: "rejected", Retryable: true, Reason: "gateway unavailable"})
		case errors.Is(err, domain.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "unknown payment reference")
		case errors.Is(err, domain.ErrInvalidPayload):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeJSON(w, http.StatusUnprocessableEntity, confirmPaymentResponse{Status: "rejected", Reason: rejectionReason(err)})
		}
		return
	}

	s.writeJSON(w, http.StatusOK, confirmPaymentResponse{
		Status:       string(res.Status),
		EnrollmentID: res.EnrollmentID,
	})
}

// rejectionReason gives callers enough to react without leaking internals.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount mismatch"
	case errors.Is(err, domain.ErrCouponExhausted):
		return "coupon no longer available"
	case errors.Is(err, domain.ErrGatewayDeclined):
		return "payment declined"
	case errors.Is(err, domain.ErrAlreadyFinalized):
		return "payment is not confirmable"
	default:
		return "confirmation rejected"
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.stats.Summary(r.Context())
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		s.writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, domain.ErrAlreadyExists):
		s.writeError(w, http.StatusConflict, "already entitled")
	case errors.Is(err, domain.ErrLockBusy):
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusConflict, "checkout already in progress")
	case errors.Is(err, domain.ErrAlreadyFinalized):
		s.writeError(w, http.StatusUnprocessableEntity, "payment is finalized")
	case errors.Is(err, domain.ErrCourseNotPayable):
		s.writeError(w, http.StatusUnprocessableEntity, "course has no usable pricing")
	case errors.Is(err, domain.ErrGatewayUnavailable):
		w.Header().Set("Retry-After", "5")
		s.writeError(w, http.StatusServiceUnavailable, "payment gateway unavailable")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
