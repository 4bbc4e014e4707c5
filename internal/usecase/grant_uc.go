package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/adapter"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ GrantUseCase = (*grantUC)(nil)

// GrantUseCase creates the enrollment for a completed payment. Grant runs
// inside the caller's transaction so the enrollment and the payment's state
// transition commit together or not at all. InitializeProgress runs after
// commit: the enrollment is the authoritative entitlement signal and
// progress indexing is eventually-consistent bookkeeping.
type GrantUseCase interface {
	Grant(ctx context.Context, tx repository.Tx, userID, courseCode string, audit bool, paymentID string) (*model.Enrollment, error)
	InitializeProgress(ctx context.Context, e *model.Enrollment)
}

type grantUC struct {
	enrollments repository.EnrollmentRepository
	progress    adapter.ProgressIndex
	log         *zerolog.Logger
}

func NewGrantUseCase(enrollments repository.EnrollmentRepository, progress adapter.ProgressIndex, logger *zerolog.Logger) *grantUC {
	return &grantUC{enrollments: enrollments, progress: progress, log: logger}
}

func (u *grantUC) Grant(ctx context.Context, tx repository.Tx, userID, courseCode string, audit bool, paymentID string) (*model.Enrollment, error) {
	now := time.Now()
	existing, err := u.enrollments.FindByUserCourse(ctx, tx, userID, courseCode)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	e := existing
	if e == nil {
		e = &model.Enrollment{
			ID:         ulid.Make().String(),
			UserID:     userID,
			CourseCode: courseCode,
			Audit:      audit,
			GrantedAt:  now,
		}
	} else {
		// Upgrade in place: once a grant is non-audit it stays non-audit.
		e.Audit = e.Audit && audit
	}
	e.PaymentID = &paymentID
	e.UpdatedAt = now

	if err := u.enrollments.Upsert(ctx, tx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (u *grantUC) InitializeProgress(ctx context.Context, e *model.Enrollment) {
	if err := u.progress.Initialize(ctx, e); err != nil {
		u.log.Warn().Err(err).Str("enrollment_id", e.ID).Str("course", e.CourseCode).Msg("progress index initialization failed; enrollment stands")
	}
}
