package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/bmosoluciones/now-lms-payments/internal/domain"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
)

var _ repository.EnrollmentRepository = (*enrollmentRepo)(nil)

type enrollmentRepo struct{ pool *pgxpool.Pool }

func NewEnrollmentRepo(pool *pgxpool.Pool) *enrollmentRepo {
	return &enrollmentRepo{pool: pool}
}

// Upsert targets the unique (user_id, course_code) index, so a concurrent
// duplicate grant collapses into an update of the existing row.
func (r *enrollmentRepo) Upsert(ctx context.Context, tx repository.Tx, e *model.Enrollment) error {
	const q = `
INSERT INTO enrollments (id, user_id, course_code, audit, payment_id, granted_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (user_id, course_code) DO UPDATE SET
  audit=$4, payment_id=$5, updated_at=$7;`

	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.UserID, e.CourseCode, e.Audit, e.PaymentID, e.GrantedAt, e.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *enrollmentRepo) FindByUserCourse(ctx context.Context, tx repository.Tx, userID, courseCode string) (*model.Enrollment, error) {
	q := `SELECT id, user_id, course_code, audit, payment_id, granted_at, updated_at FROM enrollments WHERE user_id=$1 AND course_code=$2`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", userID, courseCode)
	if err != nil {
		return nil, err
	}
	e := &model.Enrollment{}
	if err := row.Scan(&e.ID, &e.UserID, &e.CourseCode, &e.Audit, &e.PaymentID, &e.GrantedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return e, nil
}

func (r *enrollmentRepo) CountByAudit(ctx context.Context, tx repository.Tx) (map[bool]int, error) {
	const q = `SELECT audit, COUNT(*) FROM enrollments GROUP BY audit;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	out := make(map[bool]int)
	for rows.Next() {
		var audit bool
		var n int
		if err := rows.Scan(&audit, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[audit] = n
	}
	return out, rows.Err()
}
