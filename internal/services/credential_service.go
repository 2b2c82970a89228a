package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"

	"github.com/mpaulsen/trustgate/internal/auth"
	"github.com/mpaulsen/trustgate/internal/models"
)

// usernamePattern: 3-20 characters, letters, digits and underscore only.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// CredentialRepository defines the interface for credential persistence
type CredentialRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.Credential, error)
	Create(ctx context.Context, username, passwordHash string) (*models.Credential, error)
	UpdateHash(ctx context.Context, username, passwordHash string) error
	Delete(ctx context.Context, username string) error
	ListUsernames(ctx context.Context) ([]string, error)
}

// CredentialService owns the username -> password hash mapping and its
// shape rules.
type CredentialService struct {
	repo           CredentialRepository
	adminUsername  string
	minPasswordLen int
	logger         *slog.Logger
}

func NewCredentialService(repo CredentialRepository, adminUsername string, minPasswordLen int, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		repo:           repo,
		adminUsername:  adminUsername,
		minPasswordLen: minPasswordLen,
		logger:         logger,
	}
}

// ValidUsername reports whether a username satisfies the format rule.
func (s *CredentialService) ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// ValidPassword reports whether a password satisfies the minimum length.
func (s *CredentialService) ValidPassword(password string) bool {
	return len(password) >= s.minPasswordLen
}

// Add registers a new credential. The database unique constraint decides
// duplicates, so two concurrent registrations of the same name cannot both
// succeed.
func (s *CredentialService) Add(ctx context.Context, username, password string) error {
	if !s.ValidUsername(username) || !s.ValidPassword(password) {
		return models.ErrInvalidFormat
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.repo.Create(ctx, username, hash); err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			return models.ErrDuplicateUser
		}
		s.logger.Error("failed to store credential", slog.Any("error", err))
		return storageOr(err, models.ErrInternalServer)
	}

	return nil
}

// Verify reports whether the username exists and the password matches its
// stored hash. A missing user burns the same hashing cost as a mismatch, so
// the two are indistinguishable from outside. The error return is reserved
// for storage failures, which must fail closed.
func (s *CredentialService) Verify(ctx context.Context, username, password string) (bool, error) {
	cred, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			auth.DummyCompare(password)
			return false, nil
		}
		s.logger.Error("failed to load credential", slog.Any("error", err))
		return false, storageOr(err, models.ErrInternalServer)
	}

	if err := auth.ComparePassword(cred.PasswordHash, password); err != nil {
		return false, nil
	}

	return true, nil
}

// ChangePassword replaces the stored hash after re-verifying the old
// password.
func (s *CredentialService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if !s.ValidPassword(newPassword) {
		return models.ErrInvalidFormat
	}

	ok, err := s.Verify(ctx, username, oldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrWrongPassword
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repo.UpdateHash(ctx, username, hash); err != nil {
		s.logger.Error("failed to update credential", slog.Any("error", err))
		return storageOr(err, models.ErrInternalServer)
	}

	s.logger.Info("password changed", slog.String("username", username))
	return nil
}

// Delete removes a credential. The designated administrator account can
// never be deleted.
func (s *CredentialService) Delete(ctx context.Context, username string) error {
	if username == s.adminUsername {
		return models.ErrProtectedAccount
	}

	if err := s.repo.Delete(ctx, username); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete credential", slog.Any("error", err))
		return storageOr(err, models.ErrInternalServer)
	}

	s.logger.Info("credential deleted", slog.String("username", username))
	return nil
}

// List returns every registered username.
func (s *CredentialService) List(ctx context.Context) ([]string, error) {
	usernames, err := s.repo.ListUsernames(ctx)
	if err != nil {
		return nil, storageOr(err, models.ErrInternalServer)
	}
	return usernames, nil
}

// storageOr keeps ErrStorageUnavailable intact so callers fail closed, and
// hides everything else behind the fallback.
func storageOr(err, fallback error) error {
	if errors.Is(err, models.ErrStorageUnavailable) {
		return models.ErrStorageUnavailable
	}
	return fallback
}
