package adapter

import (
	"context"

	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
)

// ProgressIndex is the course-progress collaborator. The entitlement engine
// only guarantees initialization happens once per enrollment; maintenance of
// the index belongs to the course-progress subsystem. Initialization failure
// is logged by callers but never rolls back a granted enrollment.
type ProgressIndex interface {
	Initialize(ctx context.Context, enrollment *model.Enrollment) error
}
