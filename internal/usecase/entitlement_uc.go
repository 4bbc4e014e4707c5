package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

// AccessDecision is the outcome of resolving what access a user may have to
// a course. When AlreadyEntitled is set, callers short-circuit checkout.
type AccessDecision struct {
	AlreadyEntitled bool
	Enrollment      *model.Enrollment // non-nil when an enrollment row exists
	Course          *model.Course
	Path            model.AccessPath
}

// EntitlementUseCase is a pure decision function over current state plus
// course pricing configuration. It has no side effects.
type EntitlementUseCase interface {
	Resolve(ctx context.Context, userID, courseCode string, wantAudit bool) (*AccessDecision, error)
}

type entitlementUC struct {
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	log         *zerolog.Logger
}

func NewEntitlementUseCase(courses repository.CourseRepository, enrollments repository.EnrollmentRepository, logger *zerolog.Logger) *entitlementUC {
	return &entitlementUC{courses: courses, enrollments: enrollments, log: logger}
}

func (u *entitlementUC) Resolve(ctx context.Context, userID, courseCode string, wantAudit bool) (*AccessDecision, error) {
	course, err := u.courses.FindByCode(ctx, nil, courseCode)
	if err != nil {
		return nil, err
	}

	existing, err := u.enrollments.FindByUserCourse(ctx, nil, userID, courseCode)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	d := &AccessDecision{Enrollment: existing, Course: course}
	switch {
	case !course.Paid:
		d.Path = model.AccessFree
	case wantAudit:
		if !course.Auditable {
			return nil, fmt.Errorf("course %s does not allow audit access: %w", courseCode, domain.ErrInvalidArgument)
		}
		d.Path = model.AccessAudit
	default:
		d.Path = model.AccessPaid
	}

	if existing != nil {
		// An audit enrollment does not satisfy a request for full paid
		// access; the caller proceeds to payment and the grant upgrades
		// the existing row in place.
		d.AlreadyEntitled = !existing.Audit || d.Path != model.AccessPaid
	}
	return d, nil
}
