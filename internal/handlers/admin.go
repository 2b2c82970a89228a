package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mpaulsen/trustgate/internal/metrics"
	"github.com/mpaulsen/trustgate/internal/models"
	pkghttp "github.com/mpaulsen/trustgate/pkg/http"
)

// AdminServiceInterface defines the administrative surface of the trust layer
type AdminServiceInterface interface {
	ListUsers(ctx context.Context) ([]string, error)
	DeleteAccount(ctx context.Context, username string) error
	ActiveSessionCount(ctx context.Context) (int, error)
}

// RateLimiterResetter clears accumulated rate-limit state for a key
type RateLimiterResetter interface {
	Reset(key string)
}

// AdminHandler handles administrative HTTP requests
type AdminHandler struct {
	service AdminServiceInterface
	limiter RateLimiterResetter
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminServiceInterface, limiter RateLimiterResetter) *AdminHandler {
	return &AdminHandler{
		service: service,
		limiter: limiter,
	}
}

// UserListResponse wraps the registered usernames
type UserListResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// SessionCountResponse reports how many sessions are currently live
type SessionCountResponse struct {
	ActiveSessions int `json:"active_sessions"`
}

// ResetRateLimitRequest names the rate-limit key to clear
type ResetRateLimitRequest struct {
	Key string `json:"key" validate:"required"`
}

// ListUsers handles GET /admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrStorageUnavailable) {
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UserListResponse{Users: users, Count: len(users)})
}

// DeleteUser handles DELETE /admin/users/{username}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		pkghttp.WriteBadRequest(w, "username is required")
		return
	}

	if err := h.service.DeleteAccount(r.Context(), username); err != nil {
		switch {
		case errors.Is(err, models.ErrProtectedAccount):
			pkghttp.WriteForbidden(w, "The administrator account cannot be deleted")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrStorageUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SessionCount handles GET /admin/sessions/count
func (h *AdminHandler) SessionCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ActiveSessionCount(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrStorageUnavailable) {
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	metrics.SetActiveSessions(count)
	pkghttp.WriteJSON(w, http.StatusOK, SessionCountResponse{ActiveSessions: count})
}

// ResetRateLimit handles POST /admin/rate-limit/reset, clearing the sliding
// window for one key (for example "login:203.0.113.9").
func (h *AdminHandler) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	var req ResetRateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	h.limiter.Reset(req.Key)
	w.WriteHeader(http.StatusNoContent)
}
