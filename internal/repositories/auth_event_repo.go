package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mpaulsen/trustgate/internal/database"
	"github.com/mpaulsen/trustgate/internal/models"
)

// AuthEventRepository persists the audit trail emitted by the trust layer.
type AuthEventRepository struct {
	db *database.DB
}

func NewAuthEventRepository(db *database.DB) *AuthEventRepository {
	return &AuthEventRepository{db: db}
}

func scanAuthEventRow(scanner rowScanner) (*models.AuthEvent, error) {
	var event models.AuthEvent

	err := scanner.Scan(
		&event.ID, &event.EventType, &event.Username, &event.Outcome,
		&event.Reason, &event.IPAddress, &event.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

// Create appends an audit event.
func (r *AuthEventRepository) Create(ctx context.Context, event *models.AuthEvent) (*models.AuthEvent, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	query := `
		INSERT INTO auth_events (id, event_type, username, outcome, reason, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, event_type, username, outcome, reason, ip_address, created_at
	`

	created, err := scanAuthEventRow(r.db.Pool.QueryRow(ctx, query,
		event.ID, event.EventType, event.Username, event.Outcome,
		event.Reason, event.IPAddress, event.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth event: %w", err)
	}

	return created, nil
}

// ListByUsername returns the most recent events for a username.
func (r *AuthEventRepository) ListByUsername(ctx context.Context, username string, limit int) ([]*models.AuthEvent, error) {
	query := `
		SELECT id, event_type, username, outcome, reason, ip_address, created_at
		FROM auth_events
		WHERE username = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, username, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return scanAuthEventRows(rows)
}

func scanAuthEventRows(rows pgx.Rows) ([]*models.AuthEvent, error) {
	defer rows.Close()

	events := make([]*models.AuthEvent, 0)
	for rows.Next() {
		event, err := scanAuthEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auth event rows: %w", err)
	}

	return events, nil
}

// DeleteOlderThan trims the audit trail, keeping the table bounded.
func (r *AuthEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM auth_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
