package auth

import (
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
)

var ErrInvalidCookie = errors.New("invalid session cookie")

// sealPurpose binds sealed values to this use so they cannot be replayed
// as any other PASETO issued with the same key
var sealPurpose = []byte("session-cookie")

// CookieSealer protects the session id carried in the cookie value
type CookieSealer interface {
	Seal(sessionID string, expiresAt time.Time) (string, error)
	Open(value string) (string, error)
}

// PasetoSealer wraps session ids in PASETO v4.local tokens
// (XChaCha20-Poly1305 with a symmetric key)
type PasetoSealer struct {
	symmetricKey paseto.V4SymmetricKey
	now          func() time.Time
}

func NewPasetoSealer(symmetricKey []byte) (*PasetoSealer, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoSealer{symmetricKey: key, now: time.Now}, nil
}

// Seal encrypts the session id with the session expiry as the token expiry
func (s *PasetoSealer) Seal(sessionID string, expiresAt time.Time) (string, error) {
	if sessionID == "" {
		return "", errors.New("empty session id")
	}

	token := paseto.NewToken()
	token.SetIssuedAt(s.now())
	token.SetExpiration(expiresAt)
	token.SetString("sid", sessionID)

	return token.V4Encrypt(s.symmetricKey, sealPurpose), nil
}

// Open decrypts a sealed value. Tampered, foreign, and expired values all
// return ErrInvalidCookie.
func (s *PasetoSealer) Open(value string) (string, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.symmetricKey, value, sealPurpose)
	if err != nil {
		return "", ErrInvalidCookie
	}

	sessionID, err := token.GetString("sid")
	if err != nil || sessionID == "" {
		return "", ErrInvalidCookie
	}

	return sessionID, nil
}
