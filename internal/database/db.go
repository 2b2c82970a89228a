package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mpaulsen/trustgate/internal/models"
)

// MapPostgresError translates driver-level failures into domain sentinels.
// Anything that looks like the store itself being unreachable becomes
// ErrStorageUnavailable so callers fail closed.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	if pgErr, ok := err.(*pgconn.PgError); ok {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrDuplicateUser
		case "23503", "23502": // foreign_key_violation, not_null_violation
			return models.ErrInternalServer
		}
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// Connection-level failures (dial errors, closed pool) reach us without
	// a PgError.
	return models.ErrStorageUnavailable
}

// WithTransaction runs fn inside a transaction.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return MapPostgresError(err)
	}
	return settleTx(ctx, tx, fn)
}

// settleTx runs fn and commits or rolls back. The named return is load
// bearing: the deferred commit must be able to surface its own failure,
// otherwise a rolled-back transaction would be reported as success.
func settleTx(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = MapPostgresError(tx.Commit(ctx))
		}
	}()

	return fn(tx)
}
