package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/mpaulsen/trustgate/internal/lockout"
	"github.com/mpaulsen/trustgate/internal/models"
	"github.com/mpaulsen/trustgate/internal/ratelimit"
)

// CredentialStore is the credential surface the trust façade composes.
type CredentialStore interface {
	Add(ctx context.Context, username, password string) error
	Verify(ctx context.Context, username, password string) (bool, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]string, error)
}

// SessionStore is the session surface the trust façade composes.
type SessionStore interface {
	Create(ctx context.Context, username string, attrs models.SessionAttributes) (string, error)
	Validate(ctx context.Context, token string) (*models.Session, error)
	Destroy(ctx context.Context, token string) (bool, error)
	CountActive(ctx context.Context) (int, error)
}

// TrustService orchestrates login: lockout check, credential verification,
// lockout bookkeeping, session issuance. It is the single answer to "can
// this login succeed" and "is this caller authenticated".
type TrustService struct {
	credentials CredentialStore
	sessions    SessionStore
	tracker     *lockout.Tracker
	limiter     *ratelimit.Limiter
	audit       *AuditService
	logger      *slog.Logger

	now func() time.Time
}

func NewTrustService(
	credentials CredentialStore,
	sessions SessionStore,
	tracker *lockout.Tracker,
	limiter *ratelimit.Limiter,
	audit *AuditService,
	logger *slog.Logger,
) *TrustService {
	return &TrustService{
		credentials: credentials,
		sessions:    sessions,
		tracker:     tracker,
		limiter:     limiter,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// LoginRetryAfter is the hint handed to rate-limited callers.
func (s *TrustService) LoginRetryAfter() time.Duration {
	return s.limiter.Window()
}

// Login authenticates a user and mints a session. Failures are uniform:
// whether the username is unknown or the password wrong, the caller sees
// ErrInvalidCredentials.
func (s *TrustService) Login(ctx context.Context, username, password, ipAddress string) (string, error) {
	now := s.now()

	if ipAddress != "" && !s.limiter.Allow("login:"+ipAddress, now) {
		s.logger.Warn("login rate limited", slog.String("ip_address", ipAddress))
		return "", models.ErrRateLimited
	}

	if info := s.tracker.LockoutInfo(username, now); info != nil {
		s.audit.Emit(ctx, models.EventTypeLogin, username, models.OutcomeDenied, "account_locked", ipAddress)
		return "", &models.AccountLockedError{
			RemainingMinutes: remainingMinutes(info.Remaining),
			UnlockAt:         info.UnlockAt,
		}
	}

	ok, err := s.credentials.Verify(ctx, username, password)
	if err != nil {
		// Storage trouble: deny rather than guess.
		s.audit.Emit(ctx, models.EventTypeLogin, username, models.OutcomeFailure, "storage_unavailable", ipAddress)
		return "", err
	}

	if !ok {
		locked := s.tracker.RecordFailure(username, now)
		s.audit.Emit(ctx, models.EventTypeLogin, username, models.OutcomeFailure, "invalid_credentials", ipAddress)
		if locked {
			s.logger.Warn("account locked after repeated failures", slog.String("username", username))
			s.audit.Emit(ctx, models.EventTypeLockout, username, models.OutcomeDenied, "threshold_exceeded", ipAddress)
		}
		return "", models.ErrInvalidCredentials
	}

	s.tracker.RecordSuccess(username)

	token, err := s.sessions.Create(ctx, username, models.SessionAttributes{"login_ip": ipAddress})
	if err != nil {
		return "", err
	}

	s.logger.Info("user logged in", slog.String("username", username))
	s.audit.Emit(ctx, models.EventTypeLogin, username, models.OutcomeSuccess, "", ipAddress)

	return token, nil
}

// Logout destroys the caller's session. Unknown tokens are a no-op.
func (s *TrustService) Logout(ctx context.Context, token string) (bool, error) {
	return s.sessions.Destroy(ctx, token)
}

// Register creates a new credential. The confirmation copy must match.
func (s *TrustService) Register(ctx context.Context, username, password, confirm string) error {
	if password != confirm {
		return models.ErrInvalidFormat
	}

	if err := s.credentials.Add(ctx, username, password); err != nil {
		s.audit.Emit(ctx, models.EventTypeRegister, username, models.OutcomeFailure, reasonFor(err), "")
		return err
	}

	s.audit.Emit(ctx, models.EventTypeRegister, username, models.OutcomeSuccess, "", "")
	return nil
}

// ChangePassword swaps the stored hash after verifying the old password.
func (s *TrustService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if err := s.credentials.ChangePassword(ctx, username, oldPassword, newPassword); err != nil {
		s.audit.Emit(ctx, models.EventTypePasswordChange, username, models.OutcomeFailure, reasonFor(err), "")
		return err
	}

	s.audit.Emit(ctx, models.EventTypePasswordChange, username, models.OutcomeSuccess, "", "")
	return nil
}

// DeleteAccount removes a credential; the admin account is protected.
func (s *TrustService) DeleteAccount(ctx context.Context, username string) error {
	if err := s.credentials.Delete(ctx, username); err != nil {
		s.audit.Emit(ctx, models.EventTypeAccountDelete, username, models.OutcomeFailure, reasonFor(err), "")
		return err
	}

	s.audit.Emit(ctx, models.EventTypeAccountDelete, username, models.OutcomeSuccess, "", "")
	return nil
}

// Authenticate resolves a session token to its record. Missing, expired and
// malformed tokens all come back as ErrNotAuthenticated.
func (s *TrustService) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	return s.sessions.Validate(ctx, token)
}

// IsAuthenticated is the boolean form of Authenticate.
func (s *TrustService) IsAuthenticated(ctx context.Context, token string) bool {
	_, err := s.Authenticate(ctx, token)
	return err == nil
}

// ListUsers exposes the registered usernames to administrative callers.
func (s *TrustService) ListUsers(ctx context.Context) ([]string, error) {
	return s.credentials.List(ctx)
}

// ActiveSessionCount sweeps and counts live sessions.
func (s *TrustService) ActiveSessionCount(ctx context.Context) (int, error) {
	return s.sessions.CountActive(ctx)
}

// remainingMinutes rounds a lockout remainder up so "29m30s" reads as 30,
// never as an optimistic 29.
func remainingMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, models.ErrDuplicateUser):
		return "duplicate_user"
	case errors.Is(err, models.ErrWrongPassword):
		return "wrong_password"
	case errors.Is(err, models.ErrProtectedAccount):
		return "protected_account"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}
