package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mpaulsen/trustgate/internal/models"
	pkglogger "github.com/mpaulsen/trustgate/pkg/logger"
)

// MockCredentialRepository implements CredentialRepository for testing
type MockCredentialRepository struct {
	GetByUsernameFunc func(ctx context.Context, username string) (*models.Credential, error)
	CreateFunc        func(ctx context.Context, username, passwordHash string) (*models.Credential, error)
	UpdateHashFunc    func(ctx context.Context, username, passwordHash string) error
	DeleteFunc        func(ctx context.Context, username string) error
	ListUsernamesFunc func(ctx context.Context) ([]string, error)
}

func (m *MockCredentialRepository) GetByUsername(ctx context.Context, username string) (*models.Credential, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialRepository) Create(ctx context.Context, username, passwordHash string) (*models.Credential, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, username, passwordHash)
	}
	return NewTestCredential(username, passwordHash), nil
}

func (m *MockCredentialRepository) UpdateHash(ctx context.Context, username, passwordHash string) error {
	if m.UpdateHashFunc != nil {
		return m.UpdateHashFunc(ctx, username, passwordHash)
	}
	return nil
}

func (m *MockCredentialRepository) Delete(ctx context.Context, username string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, username)
	}
	return nil
}

func (m *MockCredentialRepository) ListUsernames(ctx context.Context) ([]string, error) {
	if m.ListUsernamesFunc != nil {
		return m.ListUsernamesFunc(ctx)
	}
	return []string{}, nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc           func(ctx context.Context, token, username string, attrs models.SessionAttributes, now time.Time) (*models.Session, error)
	ValidateAndTouchFunc func(ctx context.Context, token string, now time.Time, timeout time.Duration) (*models.Session, error)
	UpdateAttributesFunc func(ctx context.Context, token string, attrs models.SessionAttributes, now time.Time) (bool, error)
	DeleteFunc           func(ctx context.Context, token string) (bool, error)
	GetFunc              func(ctx context.Context, token string) (*models.Session, error)
	DeleteExpiredFunc    func(ctx context.Context, now time.Time, timeout time.Duration) (int64, error)
	CountFunc            func(ctx context.Context) (int, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, token, username string, attrs models.SessionAttributes, now time.Time) (*models.Session, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token, username, attrs, now)
	}
	return &models.Session{Token: token, Username: username, Attributes: attrs, CreatedAt: now, LastActivityAt: now}, nil
}

func (m *MockSessionRepository) ValidateAndTouch(ctx context.Context, token string, now time.Time, timeout time.Duration) (*models.Session, error) {
	if m.ValidateAndTouchFunc != nil {
		return m.ValidateAndTouchFunc(ctx, token, now, timeout)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) UpdateAttributes(ctx context.Context, token string, attrs models.SessionAttributes, now time.Time) (bool, error) {
	if m.UpdateAttributesFunc != nil {
		return m.UpdateAttributesFunc(ctx, token, attrs, now)
	}
	return false, nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, token string) (bool, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, token)
	}
	return false, nil
}

func (m *MockSessionRepository) Get(ctx context.Context, token string) (*models.Session, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time, timeout time.Duration) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now, timeout)
	}
	return 0, nil
}

func (m *MockSessionRepository) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

// MockAuthEventRepository implements AuthEventRepository for testing. Created
// events are collected so assertions can inspect what was emitted.
type MockAuthEventRepository struct {
	CreateFunc          func(ctx context.Context, event *models.AuthEvent) (*models.AuthEvent, error)
	ListByUsernameFunc  func(ctx context.Context, username string, limit int) ([]*models.AuthEvent, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
	CreatedEvents       []*models.AuthEvent
}

func (m *MockAuthEventRepository) Create(ctx context.Context, event *models.AuthEvent) (*models.AuthEvent, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, event)
	}
	m.CreatedEvents = append(m.CreatedEvents, event)
	return event, nil
}

func (m *MockAuthEventRepository) ListByUsername(ctx context.Context, username string, limit int) ([]*models.AuthEvent, error) {
	if m.ListByUsernameFunc != nil {
		return m.ListByUsernameFunc(ctx, username, limit)
	}
	return []*models.AuthEvent{}, nil
}

func (m *MockAuthEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockCredentialStore implements CredentialStore for trust service tests
type MockCredentialStore struct {
	AddFunc            func(ctx context.Context, username, password string) error
	VerifyFunc         func(ctx context.Context, username, password string) (bool, error)
	ChangePasswordFunc func(ctx context.Context, username, oldPassword, newPassword string) error
	DeleteFunc         func(ctx context.Context, username string) error
	ListFunc           func(ctx context.Context) ([]string, error)
}

func (m *MockCredentialStore) Add(ctx context.Context, username, password string) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, username, password)
	}
	return nil
}

func (m *MockCredentialStore) Verify(ctx context.Context, username, password string) (bool, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, username, password)
	}
	return false, nil
}

func (m *MockCredentialStore) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, username, oldPassword, newPassword)
	}
	return nil
}

func (m *MockCredentialStore) Delete(ctx context.Context, username string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, username)
	}
	return nil
}

func (m *MockCredentialStore) List(ctx context.Context) ([]string, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return []string{}, nil
}

// MockSessionStore implements SessionStore for trust service tests
type MockSessionStore struct {
	CreateFunc      func(ctx context.Context, username string, attrs models.SessionAttributes) (string, error)
	ValidateFunc    func(ctx context.Context, token string) (*models.Session, error)
	DestroyFunc     func(ctx context.Context, token string) (bool, error)
	CountActiveFunc func(ctx context.Context) (int, error)
}

func (m *MockSessionStore) Create(ctx context.Context, username string, attrs models.SessionAttributes) (string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, username, attrs)
	}
	return "mock_token_" + username, nil
}

func (m *MockSessionStore) Validate(ctx context.Context, token string) (*models.Session, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, token)
	}
	return nil, models.ErrNotAuthenticated
}

func (m *MockSessionStore) Destroy(ctx context.Context, token string) (bool, error) {
	if m.DestroyFunc != nil {
		return m.DestroyFunc(ctx, token)
	}
	return false, nil
}

func (m *MockSessionStore) CountActive(ctx context.Context) (int, error) {
	if m.CountActiveFunc != nil {
		return m.CountActiveFunc(ctx)
	}
	return 0, nil
}

// NewTestCredential builds a stored credential record
func NewTestCredential(username, passwordHash string) *models.Credential {
	now := time.Now()
	return &models.Credential{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestSession builds a session record with the given activity timestamp
func NewTestSession(token, username string, lastActivity time.Time) *models.Session {
	return &models.Session{
		Token:          token,
		Username:       username,
		Attributes:     models.SessionAttributes{},
		CreatedAt:      lastActivity,
		LastActivityAt: lastActivity,
	}
}

// newTestLogger discards output so tests stay quiet
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAuditService wires an AuditService around a collecting mock repo
func newTestAuditService(repo *MockAuthEventRepository) *AuditService {
	logger := newTestLogger()
	return NewAuditService(repo, pkglogger.NewAuditLogger(logger), logger)
}
