package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the trust layer
const (
	EventTypeLogin          = "login"
	EventTypeLogout         = "logout"
	EventTypeRegister       = "register"
	EventTypePasswordChange = "password_change"
	EventTypeAccountDelete  = "account_delete"
	EventTypeLockout        = "lockout"
	EventTypeSessionExpired = "session_expired"
)

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// AuthEvent is the structured audit record emitted on every login
// success/failure, lockout transition, and session destroy. The trust layer
// produces these; it does not decide where or how they are kept.
type AuthEvent struct {
	ID        uuid.UUID
	EventType string
	Username  string
	Outcome   string
	Reason    *string
	IPAddress *string
	CreatedAt time.Time
}
