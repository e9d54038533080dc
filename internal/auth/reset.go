// ABOUTME: One-time password-reset tokens
// ABOUTME: Plaintext goes to the principal once, only the SHA-256 hash is stored

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ResetTokenTTL is how long a password-reset token stays valid.
const ResetTokenTTL = 10 * time.Minute

// NewResetToken generates a reset token. The plaintext is handed to the
// principal exactly once; the hash is what gets persisted and compared.
func NewResetToken() (plaintext, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating reset token: %w", err)
	}
	plaintext = hex.EncodeToString(buf)
	return plaintext, HashResetToken(plaintext), nil
}

// HashResetToken returns the hex SHA-256 of a reset token plaintext.
func HashResetToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
