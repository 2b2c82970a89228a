package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mpaulsen/trustgate/internal/database"
	"github.com/mpaulsen/trustgate/internal/models"
)

// SessionRepository handles database operations for session records. The
// read-then-refresh on validation is one transaction, so two concurrent
// validations of the same token cannot lose an activity update.
type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var session models.Session

	err := scanner.Scan(
		&session.Token, &session.Username, &session.Attributes,
		&session.CreatedAt, &session.LastActivityAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &session, nil
}

// Create stores a new session record with created_at = last_activity_at.
func (r *SessionRepository) Create(ctx context.Context, token, username string, attrs models.SessionAttributes, now time.Time) (*models.Session, error) {
	query := `
		INSERT INTO sessions (token, username, attributes, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING token, username, attributes, created_at, last_activity_at
	`

	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, token, username, attrs, now))
}

// ValidateAndTouch refreshes last_activity_at and returns the record iff the
// session is still inside the timeout. An expired record is deleted in the
// same transaction and reported as an ExpiredSessionError, which unwraps to
// ErrNotFound so callers cannot tell it apart from a token that never
// existed.
func (r *SessionRepository) ValidateAndTouch(ctx context.Context, token string, now time.Time, timeout time.Duration) (*models.Session, error) {
	var session *models.Session
	var expired *models.ExpiredSessionError

	// The expired signal travels outside the transaction error: returning
	// it from the closure would roll back the very delete it reports.
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE sessions SET last_activity_at = $2
			WHERE token = $1 AND last_activity_at >= $3
			RETURNING token, username, attributes, created_at, last_activity_at
		`

		s, err := scanSessionRow(tx.QueryRow(ctx, query, token, now, now.Add(-timeout)))
		if err == nil {
			session = s
			return nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		// Missing or expired; drop any stale row so validation never
		// leaves an expired record behind. A deleted row means the token
		// was real but idle too long.
		var owner string
		delErr := tx.QueryRow(ctx,
			`DELETE FROM sessions WHERE token = $1 RETURNING username`, token).Scan(&owner)
		if delErr == nil {
			expired = &models.ExpiredSessionError{Username: owner}
			return nil
		}
		if mapped := database.MapPostgresError(delErr); !errors.Is(mapped, models.ErrNotFound) {
			return mapped
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	if expired != nil {
		return nil, expired
	}
	if session == nil {
		return nil, models.ErrNotFound
	}
	return session, nil
}

// UpdateAttributes merges the given attributes into the record and touches
// last_activity_at. Returns false when the token is unknown.
func (r *SessionRepository) UpdateAttributes(ctx context.Context, token string, attrs models.SessionAttributes, now time.Time) (bool, error) {
	query := `
		UPDATE sessions SET attributes = attributes || $2, last_activity_at = $3
		WHERE token = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, token, attrs, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() > 0, nil
}

// Delete removes a session unconditionally. Returns false (not an error)
// when the token is unknown, so destroy is idempotent.
func (r *SessionRepository) Delete(ctx context.Context, token string) (bool, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() > 0, nil
}

// Get returns the raw record without touching timestamps. Used by the
// destroy path to attribute the audit event to its owner.
func (r *SessionRepository) Get(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT token, username, attributes, created_at, last_activity_at
		FROM sessions WHERE token = $1
	`

	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, token))
}

// DeleteExpired removes every record idle for longer than the timeout.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time, timeout time.Duration) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM sessions WHERE last_activity_at < $1`, now.Add(-timeout))
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// Count reports the number of stored sessions.
func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}
