package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// MinSecretEntropy is the smallest accepted secret size in bytes
	MinSecretEntropy = 20
	// DefaultSecretEntropy yields 40 base32 characters
	DefaultSecretEntropy = 25
)

var ErrInsufficientEntropy = errors.New("secret entropy below minimum")

var secretEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// GenerateSecret returns entropyBytes of crypto/rand output encoded as
// lowercase unpadded base32, safe for URLs and cookies
func GenerateSecret(entropyBytes int) (string, error) {
	if entropyBytes < MinSecretEntropy {
		return "", fmt.Errorf("%w: %d < %d bytes", ErrInsufficientEntropy, entropyBytes, MinSecretEntropy)
	}

	b := make([]byte, entropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	return secretEncoding.EncodeToString(b), nil
}

// Fingerprint is the hex encoded SHA-256 of secret. Only fingerprints are
// ever stored, so a leaked table does not expose usable tokens.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// looksLikeSecret is a cheap shape check before touching a store
func looksLikeSecret(s string) bool {
	if len(s) < 32 || len(s) > 128 {
		return false
	}
	return strings.Trim(s, "abcdefghijklmnopqrstuvwxyz234567") == ""
}
