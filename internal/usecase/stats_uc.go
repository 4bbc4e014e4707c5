package usecase

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type Summary struct {
	Payments       map[model.PaymentStatus]int `json:"payments"`
	RevenueMonth   map[string]decimal.Decimal  `json:"revenue_month"` // per currency
	EnrollmentPaid int                         `json:"enrollments_paid"`
	EnrollmentAud  int                         `json:"enrollments_audit"`
}

// StatsUseCase backs the admin stats endpoint.
type StatsUseCase interface {
	Summary(ctx context.Context) (*Summary, error)
}

type statsUC struct {
	payments    repository.PaymentRepository
	enrollments repository.EnrollmentRepository
	log         *zerolog.Logger
}

func NewStatsUseCase(payments repository.PaymentRepository, enrollments repository.EnrollmentRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{payments: payments, enrollments: enrollments, log: logger}
}

func (u *statsUC) Summary(ctx context.Context) (*Summary, error) {
	byStatus, err := u.payments.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	revenue, err := u.payments.SumCompletedByPeriod(ctx, nil, "month")
	if err != nil {
		return nil, err
	}
	byAudit, err := u.enrollments.CountByAudit(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Payments:       byStatus,
		RevenueMonth:   revenue,
		EnrollmentPaid: byAudit[false],
		EnrollmentAud:  byAudit[true],
	}, nil
}
