package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mpaulsen/trustgate/internal/auth"
	"github.com/mpaulsen/trustgate/internal/metrics"
	"github.com/mpaulsen/trustgate/internal/models"
	pkghttp "github.com/mpaulsen/trustgate/pkg/http"
)

// TrustServiceInterface defines the trust layer surface the handlers need
type TrustServiceInterface interface {
	Login(ctx context.Context, username, password, ipAddress string) (string, error)
	Logout(ctx context.Context, token string) (bool, error)
	Register(ctx context.Context, username, password, confirm string) error
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	LoginRetryAfter() time.Duration
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  TrustServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service TrustServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=20"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// LoginResponse carries the session token back to the caller
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// SessionResponse describes the caller's current session
type SessionResponse struct {
	Username       string                   `json:"username"`
	CreatedAt      time.Time                `json:"created_at"`
	LastActivityAt time.Time                `json:"last_activity_at"`
	Attributes     models.SessionAttributes `json:"attributes"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	token, err := h.service.Login(r.Context(), req.Username, req.Password, ipAddress)
	if err != nil {
		var lockedErr *models.AccountLockedError
		switch {
		case errors.Is(err, models.ErrRateLimited):
			metrics.RecordLogin("rate_limited")
			pkghttp.WriteTooManyRequests(w, "Too many login attempts. Please try again later.", h.service.LoginRetryAfter())
		case errors.As(err, &lockedErr):
			metrics.RecordLogin("locked")
			pkghttp.WriteLocked(w, lockedErr.RemainingMinutes)
		case errors.Is(err, models.ErrInvalidCredentials):
			// One message for unknown users and wrong passwords alike.
			metrics.RecordLogin("failure")
			pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		case errors.Is(err, models.ErrStorageUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	metrics.RecordLogin("success")
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{Token: token, Username: req.Username})
}

// Logout handles POST /auth/logout. Destroying an already-dead session is
// still a successful logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
		return
	}

	if _, err := h.service.Logout(r.Context(), token); err != nil {
		if errors.Is(err, models.ErrStorageUnavailable) {
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Register(r.Context(), req.Username, req.Password, req.ConfirmPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidFormat):
			pkghttp.WriteBadRequest(w, "Username must be 3-20 characters (letters, digits, underscore) and passwords must match")
		case errors.Is(err, models.ErrDuplicateUser):
			pkghttp.WriteConflict(w, "Username already taken")
		case errors.Is(err, models.ErrStorageUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

// ChangePassword handles POST /auth/change-password for the authenticated user
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "not authenticated")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ChangePassword(r.Context(), session.Username, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidFormat):
			pkghttp.WriteBadRequest(w, "New password does not meet the length requirement")
		case errors.Is(err, models.ErrWrongPassword):
			pkghttp.WriteError(w, http.StatusUnauthorized, "wrong_password", "Old password is incorrect")
		case errors.Is(err, models.ErrStorageUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /auth/session, echoing the caller's validated session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "not authenticated")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{
		Username:       session.Username,
		CreatedAt:      session.CreatedAt,
		LastActivityAt: session.LastActivityAt,
		Attributes:     session.Attributes,
	})
}
