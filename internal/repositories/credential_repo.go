package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mpaulsen/trustgate/internal/database"
	"github.com/mpaulsen/trustgate/internal/models"
)

// CredentialRepository handles database operations for credential records.
// Every mutation is a single statement, so concurrent writers to different
// usernames never race and writers to the same username serialize in the
// database rather than losing updates.
type CredentialRepository struct {
	db *database.DB
}

func NewCredentialRepository(db *database.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// rowScanner interface for scanning rows (single row and rows iterators)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredentialRow(scanner rowScanner) (*models.Credential, error) {
	var cred models.Credential

	err := scanner.Scan(
		&cred.ID, &cred.Username, &cred.PasswordHash,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &cred, nil
}

func (r *CredentialRepository) GetByUsername(ctx context.Context, username string) (*models.Credential, error) {
	query := `
		SELECT id, username, password_hash, created_at, updated_at
		FROM credentials WHERE username = $1
	`

	return scanCredentialRow(r.db.Pool.QueryRow(ctx, query, username))
}

// Create inserts a new credential record. The unique constraint on username
// surfaces as models.ErrDuplicateUser.
func (r *CredentialRepository) Create(ctx context.Context, username, passwordHash string) (*models.Credential, error) {
	now := time.Now()

	query := `
		INSERT INTO credentials (id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, password_hash, created_at, updated_at
	`

	return scanCredentialRow(r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), username, passwordHash, now, now,
	))
}

// UpdateHash replaces the stored hash for a username.
func (r *CredentialRepository) UpdateHash(ctx context.Context, username, passwordHash string) error {
	query := `
		UPDATE credentials SET password_hash = $2, updated_at = $3
		WHERE username = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, username, passwordHash, time.Now())
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, username string) error {
	query := `DELETE FROM credentials WHERE username = $1`

	result, err := r.db.Pool.Exec(ctx, query, username)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ListUsernames returns every registered username in creation order.
func (r *CredentialRepository) ListUsernames(ctx context.Context) ([]string, error) {
	query := `SELECT username FROM credentials ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	usernames := make([]string, 0)
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		usernames = append(usernames, username)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return usernames, nil
}
