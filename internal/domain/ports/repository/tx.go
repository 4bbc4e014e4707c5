package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type is infra-defined
// (pgx.Tx for Postgres); repositories must gracefully accept nil for the
// non-transactional path.
type Tx interface{}

// NoTX marks an explicitly non-transactional call.
var NoTX Tx = nil

// TransactionManager executes a function within a database transaction,
// passing the underlying handle to repositories via `tx`.
//
// Keeping the handle opaque keeps use-case interfaces clean while still
// letting repository implementations detect a transaction and use tx-bound
// Exec/Query (e.g. SELECT ... FOR UPDATE).
//
// Usage:
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		p, err := payments.FindByID(ctx, tx, id)
//		...
//		return err
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
