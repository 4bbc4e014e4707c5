package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/adapter"
)

var _ adapter.ProgressIndex = (*progressIndex)(nil)

// progressIndex creates the per-enrollment course-progress row. The
// ON CONFLICT DO NOTHING makes initialization idempotent: exactly one row
// per enrollment regardless of how many grants touch it.
type progressIndex struct{ pool *pgxpool.Pool }

func NewProgressIndex(pool *pgxpool.Pool) *progressIndex {
	return &progressIndex{pool: pool}
}

func (p *progressIndex) Initialize(ctx context.Context, e *model.Enrollment) error {
	const q = `
INSERT INTO course_progress (enrollment_id, user_id, course_code, completed_lessons, created_at)
VALUES ($1,$2,$3,0,$4)
ON CONFLICT (enrollment_id) DO NOTHING;`

	if _, err := p.pool.Exec(ctx, q, e.ID, e.UserID, e.CourseCode, time.Now()); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}
