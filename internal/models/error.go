package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInternalServer = errors.New("internal server error")

	// Credential errors
	ErrInvalidFormat    = errors.New("username or password does not meet format requirements")
	ErrDuplicateUser    = errors.New("username already exists")
	ErrWrongPassword    = errors.New("current password is incorrect")
	ErrProtectedAccount = errors.New("account is protected and cannot be deleted")

	// Login errors. ErrInvalidCredentials is deliberately uniform: callers
	// must not be able to tell "no such user" from "wrong password".
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrRateLimited        = errors.New("too many requests")

	// Session errors. Expired and never-existed collapse to one signal.
	ErrNotAuthenticated = errors.New("not authenticated")

	// Durable store unreadable/unwritable. The only fatal class: every
	// operation that hits it fails closed.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// AccountLockedError is returned when a username has exceeded the failed
// attempt threshold inside the lockout window.
type AccountLockedError struct {
	RemainingMinutes int
	UnlockAt         time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked, try again in %d minutes", e.RemainingMinutes)
}

// Is makes errors.Is(err, &AccountLockedError{}) match regardless of fields.
func (e *AccountLockedError) Is(target error) bool {
	_, ok := target.(*AccountLockedError)
	return ok
}

// ExpiredSessionError reports a validation that found the record but past
// its idle timeout. It unwraps to ErrNotFound so callers still treat an
// expired token exactly like one that never existed; the username exists
// only so the audit trail can name the owner.
type ExpiredSessionError struct {
	Username string
}

func (e *ExpiredSessionError) Error() string {
	return "session expired"
}

func (e *ExpiredSessionError) Unwrap() error {
	return ErrNotFound
}
