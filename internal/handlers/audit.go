package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mpaulsen/trustgate/internal/models"
	pkghttp "github.com/mpaulsen/trustgate/pkg/http"
)

// AuditHistoryProvider exposes the persisted audit trail
type AuditHistoryProvider interface {
	History(ctx context.Context, username string, limit int) ([]*models.AuthEvent, error)
}

// AuditHandler handles audit trail HTTP requests
type AuditHandler struct {
	audit AuditHistoryProvider
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audit AuditHistoryProvider) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// AuthEventResponse represents one audit event in HTTP responses
type AuthEventResponse struct {
	ID        string  `json:"id"`
	EventType string  `json:"event_type"`
	Username  string  `json:"username"`
	Outcome   string  `json:"outcome"`
	Reason    *string `json:"reason,omitempty"`
	IPAddress *string `json:"ip_address,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// EventHistoryResponse wraps a user's most recent audit events
type EventHistoryResponse struct {
	Username string               `json:"username"`
	Events   []*AuthEventResponse `json:"events"`
	Count    int                  `json:"count"`
}

// EventHistory handles GET /admin/events/{username}. An optional ?limit=N
// caps the number of events returned, newest first.
func (h *AuditHandler) EventHistory(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		pkghttp.WriteBadRequest(w, "username is required")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			pkghttp.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.audit.History(r.Context(), username, limit)
	if err != nil {
		if errors.Is(err, models.ErrStorageUnavailable) {
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	response := EventHistoryResponse{
		Username: username,
		Events:   make([]*AuthEventResponse, len(events)),
		Count:    len(events),
	}
	for i, event := range events {
		response.Events[i] = authEventToResponse(event)
	}

	pkghttp.WriteJSON(w, http.StatusOK, response)
}

func authEventToResponse(event *models.AuthEvent) *AuthEventResponse {
	return &AuthEventResponse{
		ID:        event.ID.String(),
		EventType: event.EventType,
		Username:  event.Username,
		Outcome:   event.Outcome,
		Reason:    event.Reason,
		IPAddress: event.IPAddress,
		CreatedAt: event.CreatedAt.Format(time.RFC3339),
	}
}
