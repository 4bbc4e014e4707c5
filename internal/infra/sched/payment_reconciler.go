package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
	"github.com/bmosoluciones/now-lms-payments/internal/usecase"
)

// PaymentReconciler periodically scans for stale pending payments and tries to
// finalize them through the normal confirmation path. This covers cases where
// the gateway return trip never arrived or the process crashed mid-confirm.
type PaymentReconciler struct {
	uc         usecase.ConfirmUseCase
	payments   repository.PaymentRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to retry
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.ConfirmUseCase, payments repository.PaymentRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &PaymentReconciler{uc: uc, payments: payments, interval: interval, staleAfter: staleAfter, log: logger}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("payment-reconciler: list pending failed")
		return
	}
	for _, p := range pending {
		if p.Reference == nil || *p.Reference == "" {
			// Never reached the gateway; checkout resumption owns these.
			continue
		}
		res, err := w.uc.Reconcile(ctx, *p.Reference)
		if err != nil {
			w.log.Warn().Err(err).Str("payment_id", p.ID).Str("reference", *p.Reference).Msg("payment-reconciler: reconcile failed")
			continue
		}
		w.log.Info().Str("payment_id", p.ID).Str("status", string(res.Status)).Msg("payment-reconciler: reconciled")
	}
}
