package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mpaulsen/trustgate/internal/auth"
	"github.com/mpaulsen/trustgate/internal/models"
)

// SessionRepository defines the interface for session persistence
type SessionRepository interface {
	Create(ctx context.Context, token, username string, attrs models.SessionAttributes, now time.Time) (*models.Session, error)
	ValidateAndTouch(ctx context.Context, token string, now time.Time, timeout time.Duration) (*models.Session, error)
	UpdateAttributes(ctx context.Context, token string, attrs models.SessionAttributes, now time.Time) (bool, error)
	Delete(ctx context.Context, token string) (bool, error)
	Get(ctx context.Context, token string) (*models.Session, error)
	DeleteExpired(ctx context.Context, now time.Time, timeout time.Duration) (int64, error)
	Count(ctx context.Context) (int, error)
}

// SessionService manages session lifecycle against the durable store.
type SessionService struct {
	repo    SessionRepository
	timeout time.Duration
	logger  *slog.Logger
	audit   *AuditService

	now func() time.Time
}

func NewSessionService(repo SessionRepository, timeout time.Duration, audit *AuditService, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
		audit:   audit,
		now:     time.Now,
	}
}

// Create mints a fresh high-entropy token and stores the session record.
func (s *SessionService) Create(ctx context.Context, username string, attrs models.SessionAttributes) (string, error) {
	token, err := auth.NewSessionToken()
	if err != nil {
		s.logger.Error("failed to mint session token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if attrs == nil {
		attrs = models.SessionAttributes{}
	}

	if _, err := s.repo.Create(ctx, token, username, attrs, s.now().UTC()); err != nil {
		s.logger.Error("failed to store session", slog.Any("error", err))
		return "", storageOr(err, models.ErrInternalServer)
	}

	s.logger.Info("session created", slog.String("username", username))
	return token, nil
}

// Validate returns the session for a token, refreshing its activity
// timestamp. Expired sessions are destroyed as a side effect; the caller
// sees ErrNotAuthenticated whether the token was expired, bogus, or never
// issued.
func (s *SessionService) Validate(ctx context.Context, token string) (*models.Session, error) {
	if !auth.ValidTokenShape(token) {
		return nil, models.ErrNotAuthenticated
	}

	session, err := s.repo.ValidateAndTouch(ctx, token, s.now().UTC(), s.timeout)
	if err != nil {
		var expired *models.ExpiredSessionError
		if errors.As(err, &expired) {
			s.audit.Emit(ctx, models.EventTypeSessionExpired, expired.Username, models.OutcomeDenied, "idle_timeout", "")
			return nil, models.ErrNotAuthenticated
		}
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotAuthenticated
		}
		s.logger.Error("failed to validate session", slog.Any("error", err))
		return nil, storageOr(err, models.ErrInternalServer)
	}

	return session, nil
}

// Update merges attributes into an existing session. Returns false when the
// token is unknown.
func (s *SessionService) Update(ctx context.Context, token string, attrs models.SessionAttributes) (bool, error) {
	if !auth.ValidTokenShape(token) || len(attrs) == 0 {
		return false, nil
	}

	ok, err := s.repo.UpdateAttributes(ctx, token, attrs, s.now().UTC())
	if err != nil {
		s.logger.Error("failed to update session", slog.Any("error", err))
		return false, storageOr(err, models.ErrInternalServer)
	}

	return ok, nil
}

// Destroy removes a session unconditionally and emits the audit event.
// Destroying an unknown token returns false, not an error.
func (s *SessionService) Destroy(ctx context.Context, token string) (bool, error) {
	if !auth.ValidTokenShape(token) {
		return false, nil
	}

	// Look the owner up first so the audit event can name them.
	username := ""
	if session, err := s.repo.Get(ctx, token); err == nil {
		username = session.Username
	}

	ok, err := s.repo.Delete(ctx, token)
	if err != nil {
		s.logger.Error("failed to destroy session", slog.Any("error", err))
		return false, storageOr(err, models.ErrInternalServer)
	}

	if ok {
		s.audit.Emit(ctx, models.EventTypeLogout, username, models.OutcomeSuccess, "", "")
	}

	return ok, nil
}

// Sweep removes every session idle past the timeout.
func (s *SessionService) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.now().UTC(), s.timeout)
	if err != nil {
		s.logger.Error("session sweep failed", slog.Any("error", err))
		return 0, storageOr(err, models.ErrInternalServer)
	}

	if removed > 0 {
		s.logger.Info("swept expired sessions", slog.Int64("removed", removed))
	}

	return removed, nil
}

// CountActive sweeps, then reports how many live sessions remain.
func (s *SessionService) CountActive(ctx context.Context) (int, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return 0, err
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, storageOr(err, models.ErrInternalServer)
	}

	return count, nil
}
