package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the entropy of a session token. 32 random bytes encoded as
// 64 hex characters; collisions are birthday-bound negligible.
const TokenBytes = 32

// TokenLength is the encoded length every valid token has.
const TokenLength = TokenBytes * 2

// NewSessionToken mints an unguessable, fixed-length session token.
func NewSessionToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidTokenShape reports whether a caller-supplied token even resembles one
// we minted, letting handlers reject garbage before touching the store.
func ValidTokenShape(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
