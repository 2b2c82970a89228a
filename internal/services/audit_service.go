package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/mpaulsen/trustgate/internal/models"
	pkglogger "github.com/mpaulsen/trustgate/pkg/logger"
)

// AuthEventRepository defines the interface for persisting audit events
type AuthEventRepository interface {
	Create(ctx context.Context, event *models.AuthEvent) (*models.AuthEvent, error)
	ListByUsername(ctx context.Context, username string, limit int) ([]*models.AuthEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditService fans every security event out to the structured log and the
// durable event table. Persistence is best-effort: a failing audit sink must
// never turn a successful login into a failure.
type AuditService struct {
	repo        AuthEventRepository
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

func NewAuditService(repo AuthEventRepository, auditLogger *pkglogger.AuditLogger, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// Emit records one event with the given type, username and outcome.
func (s *AuditService) Emit(ctx context.Context, eventType, username, outcome, reason, ipAddress string) {
	s.auditLogger.Log(pkglogger.AuditEvent{
		EventType: eventType,
		Username:  username,
		Outcome:   outcome,
		Reason:    reason,
		IPAddress: ipAddress,
	})

	if s.repo == nil {
		return
	}

	event := &models.AuthEvent{
		EventType: eventType,
		Username:  username,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	if reason != "" {
		event.Reason = &reason
	}
	if ipAddress != "" {
		event.IPAddress = &ipAddress
	}

	if _, err := s.repo.Create(ctx, event); err != nil {
		s.logger.Error("failed to persist audit event",
			slog.String("event_type", eventType),
			slog.Any("error", err))
	}
}

// History returns the most recent persisted events for a username, newest
// first. Limits outside (0, 500] fall back to 100.
func (s *AuditService) History(ctx context.Context, username string, limit int) ([]*models.AuthEvent, error) {
	if s.repo == nil {
		return []*models.AuthEvent{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByUsername(ctx, username, limit)
}

// TrimBefore drops persisted events older than the cutoff.
func (s *AuditService) TrimBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, cutoff)
}
