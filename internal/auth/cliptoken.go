package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ClipTokenService hashes and verifies bookmarklet clip tokens. The
// plaintext secret is shown to the user exactly once at issue time; only
// the bcrypt hash is stored.
type ClipTokenService struct {
	cost int
}

// NewClipTokenService uses the default bcrypt cost.
func NewClipTokenService() *ClipTokenService {
	return &ClipTokenService{cost: bcrypt.DefaultCost}
}

// NewClipTokenServiceWithCost allows a lower cost in tests, where the
// default cost makes every login-path test pay ~100ms.
func NewClipTokenServiceWithCost(cost int) *ClipTokenService {
	return &ClipTokenService{cost: cost}
}

// GenerateSecret returns a fresh random clip secret: 24 bytes of entropy,
// URL-safe base64 so it can live inside a bookmarklet URL without escaping.
func (s *ClipTokenService) GenerateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generating clip secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash bcrypt-hashes a clip secret for storage.
func (s *ClipTokenService) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("auth: clip secret cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing clip secret: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether secret matches the stored hash.
func (s *ClipTokenService) Verify(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
