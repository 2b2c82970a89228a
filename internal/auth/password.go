package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2-HMAC-SHA256 parameters. The iteration count matches the
	// 100k-round profile this scheme was deployed with; changing it would
	// invalidate stored hashes without a migration.
	PBKDF2Iterations = 100_000
	SaltLength       = 32
	KeyLength        = 32

	hashScheme = "pbkdf2"
	hashDigest = "sha256"
)

// HashPassword derives a salted PBKDF2 hash of the password and encodes it
// as pbkdf2$sha256$<iterations>$<salt b64>$<key b64>. Every credential uses
// this single algorithm; there is no unsalted fallback.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, KeyLength, sha256.New)

	return strings.Join([]string{
		hashScheme,
		hashDigest,
		strconv.Itoa(PBKDF2Iterations),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	}, "$"), nil
}

// ComparePassword re-derives the key with the stored salt and parameters and
// compares in constant time. Returns nil on match.
func ComparePassword(encodedHash, password string) error {
	salt, iterations, storedKey, err := decodeHash(encodedHash)
	if err != nil {
		return err
	}

	key := pbkdf2.Key([]byte(password), salt, iterations, len(storedKey), sha256.New)

	if subtle.ConstantTimeCompare(storedKey, key) != 1 {
		return fmt.Errorf("password does not match")
	}
	return nil
}

// DummyCompare burns the same PBKDF2 cost as a real comparison. Used when
// the username does not exist so lookup misses and hash mismatches are
// indistinguishable by timing.
func DummyCompare(password string) {
	salt := make([]byte, SaltLength)
	_ = pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, KeyLength, sha256.New)
}

func decodeHash(encodedHash string) (salt []byte, iterations int, key []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 || parts[0] != hashScheme || parts[1] != hashDigest {
		return nil, 0, nil, fmt.Errorf("malformed password hash")
	}

	iterations, err = strconv.Atoi(parts[2])
	if err != nil || iterations < 1 {
		return nil, 0, nil, fmt.Errorf("malformed password hash: bad iteration count")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, 0, nil, fmt.Errorf("malformed password hash: bad salt encoding")
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return nil, 0, nil, fmt.Errorf("malformed password hash: bad key encoding")
	}

	return salt, iterations, key, nil
}
