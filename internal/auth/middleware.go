package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mpaulsen/trustgate/internal/models"
	pkghttp "github.com/mpaulsen/trustgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing the validated session in context
	SessionContextKey contextKey = "session"
)

// SessionValidator resolves a bearer token to a live session.
type SessionValidator interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
}

// BearerToken extracts the token from the Authorization header. Returns ""
// when the header is missing or not a Bearer scheme.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return parts[1]
}

// SessionMiddleware validates the bearer token and injects the session into
// the request context. Validation refreshes the session's activity
// timestamp, so every authenticated request extends the idle window.
func SessionMiddleware(validator SessionValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			session, err := validator.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, models.ErrStorageUnavailable) {
					pkghttp.WriteServiceUnavailable(w, "session store unavailable")
					return
				}
				pkghttp.WriteUnauthorized(w, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser enforces that the session belongs to the given username.
// Must run after SessionMiddleware.
func RequireUser(username string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r)
			if session == nil {
				pkghttp.WriteUnauthorized(w, "not authenticated")
				return
			}

			if session.Username != username {
				pkghttp.WriteForbidden(w, "insufficient privileges")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext returns the validated session, or nil when the request
// did not pass SessionMiddleware.
func SessionFromContext(r *http.Request) *models.Session {
	session, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}
