package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// ResetTokenLength is the number of random bytes in a reset token (256 bits).
	ResetTokenLength = 32
	// ResetTokenTTL is how long a reset token stays redeemable.
	ResetTokenTTL = 30 * time.Minute
)

// GenerateResetToken returns a new reset token and the hash to store for it.
// Format: base64url(32 random bytes), no padding.
func GenerateResetToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, ResetTokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = base64.RawURLEncoding.EncodeToString(randomBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken computes the SHA256 hash of a token for lookup.
func HashResetToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidResetTokenFormat reports whether token could have come from
// GenerateResetToken. It lets callers skip a store lookup for garbage input.
func ValidResetTokenFormat(token string) bool {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(decoded) == ResetTokenLength
}
