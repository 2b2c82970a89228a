package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/mpaulsen/trustgate/internal/metrics"
)

// SessionSweeper is the session lifecycle surface the sweeper drives.
type SessionSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// AuditTrimmer removes audit events older than a cutoff.
type AuditTrimmer interface {
	TrimBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically removes expired sessions and trims old audit events.
// Expired sessions are also destroyed lazily on validation; the sweeper just
// keeps abandoned ones from accumulating.
type Sweeper struct {
	sessions       SessionSweeper
	audit          AuditTrimmer
	logger         *slog.Logger
	interval       time.Duration
	auditRetention time.Duration
	stopCh         chan struct{}
}

// NewSweeper creates a new background sweeper. auditRetention of zero
// disables audit trimming.
func NewSweeper(
	sessions SessionSweeper,
	audit AuditTrimmer,
	logger *slog.Logger,
	interval time.Duration,
	auditRetention time.Duration,
) *Sweeper {
	return &Sweeper{
		sessions:       sessions,
		audit:          audit,
		logger:         logger,
		interval:       interval,
		auditRetention: auditRetention,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the periodic sweep loop
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopCh:
			s.logger.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled")
			return
		}
	}
}

// runSweep performs one expiry pass
func (s *Sweeper) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := s.sessions.Sweep(sweepCtx)
	if err != nil {
		s.logger.Error("session sweep failed", slog.Any("error", err))
	} else if removed > 0 {
		metrics.AddSweptSessions(removed)
		s.logger.Info("session sweep completed", slog.Int64("removed", removed))
	}

	if s.audit == nil || s.auditRetention <= 0 {
		return
	}

	cutoff := time.Now().UTC().Add(-s.auditRetention)
	trimmed, err := s.audit.TrimBefore(sweepCtx, cutoff)
	if err != nil {
		s.logger.Error("audit trim failed", slog.Any("error", err))
	} else if trimmed > 0 {
		s.logger.Info("audit trim completed", slog.Int64("trimmed", trimmed))
	}
}

// Stop signals the sweeper to stop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
