package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Session is a token-addressable record proving a prior successful login.
// It stays valid while now - LastActivityAt <= the configured timeout.
type Session struct {
	Token          string
	Username       string
	Attributes     SessionAttributes
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// SessionAttributes is the opaque key/value payload callers may attach to a
// session. Stored as JSONB.
type SessionAttributes map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (sa *SessionAttributes) Scan(value interface{}) error {
	if value == nil {
		*sa = make(SessionAttributes)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrInternalServer
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*sa = SessionAttributes(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (sa SessionAttributes) Value() (driver.Value, error) {
	if sa == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(sa)
}
