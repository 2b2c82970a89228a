package models

import "time"

// Credential is the durable record mapping a username to its password hash.
// A record always holds exactly one current hash.
type Credential struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
