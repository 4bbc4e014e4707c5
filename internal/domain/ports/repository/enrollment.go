package repository

import (
	"context"

	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
)

type EnrollmentRepository interface {
	// Upsert inserts the enrollment or, when a row for (user, course)
	// already exists, updates it in place. The unique index on the pair is
	// the at-most-one guarantee.
	Upsert(ctx context.Context, tx Tx, e *model.Enrollment) error
	FindByUserCourse(ctx context.Context, tx Tx, userID, courseCode string) (*model.Enrollment, error)
	CountByAudit(ctx context.Context, tx Tx) (map[bool]int, error)
}
