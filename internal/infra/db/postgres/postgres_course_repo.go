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

var _ repository.CourseRepository = (*courseRepo)(nil)

type courseRepo struct{ pool *pgxpool.Pool }

func NewCourseRepo(pool *pgxpool.Pool) *courseRepo {
	return &courseRepo{pool: pool}
}

const courseCols = `code, title, paid, price, currency, auditable, created_at, updated_at`

func scanCourse(row pgx.Row) (*model.Course, error) {
	c := &model.Course{}
	if err := row.Scan(&c.Code, &c.Title, &c.Paid, &c.Price, &c.Currency, &c.Auditable, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

func (r *courseRepo) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	const q = `
INSERT INTO courses (code, title, paid, price, currency, auditable, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (code) DO UPDATE SET
  title=$2, paid=$3, price=$4, currency=$5, auditable=$6, updated_at=$8;`

	_, err := execSQL(ctx, r.pool, tx, q, c.Code, c.Title, c.Paid, c.Price, c.Currency, c.Auditable, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *courseRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Course, error) {
	const q = `SELECT ` + courseCols + ` FROM courses WHERE code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	return scanCourse(row)
}

func (r *courseRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Course, error) {
	const q = `SELECT ` + courseCols + ` FROM courses ORDER BY code;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *courseRepo) Delete(ctx context.Context, tx repository.Tx, code string) error {
	const q = `DELETE FROM courses WHERE code=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, code)
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}
