package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is the structured record emitted for every security-relevant
// action: login success/failure, lockout transitions, session destroys,
// account changes.
type AuditEvent struct {
	EventType string
	Username  string
	Outcome   string
	Reason    string
	IPAddress string
}

// AuditLogger writes audit events through slog. Storage and format are the
// sink's concern, not the trust layer's.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log emits one audit event. Failures log at Warn so they stand out in
// aggregated output.
func (al *AuditLogger) Log(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "trust"),
		slog.String("event_type", event.EventType),
		slog.String("outcome", event.Outcome),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}

	level := slog.LevelInfo
	if event.Outcome != "success" {
		level = slog.LevelWarn
	}

	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
