package repository

import (
	"context"

	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
)

// CourseRepository exposes the pricing slice of the course catalog.
type CourseRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Course) error
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Course, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Course, error)
	Delete(ctx context.Context, tx Tx, code string) error
}
