package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedToken is returned for bearer values that cannot be a session
// token. Callers should treat it exactly like an unknown token.
var ErrMalformedToken = errors.New("malformed session token")

// SessionTokenManager issues and digests opaque session tokens. Tokens are
// dsk_<64 hex chars>; the plaintext is handed to the client once and only
// its SHA-256 digest is persisted, so a database leak exposes no usable
// credentials.
type SessionTokenManager struct {
	prefix string
}

func NewSessionTokenManager() *SessionTokenManager {
	return &SessionTokenManager{prefix: "dsk_"}
}

// Generate returns a fresh token and the digest to store for it.
func (m *SessionTokenManager) Generate() (plainToken, digest string, err error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plainToken = m.prefix + hex.EncodeToString(randomBytes)
	digest = m.digest(plainToken)
	return plainToken, digest, nil
}

// Digest validates the token format and returns its stored digest.
func (m *SessionTokenManager) Digest(plainToken string) (string, error) {
	if !strings.HasPrefix(plainToken, m.prefix) || len(plainToken) != len(m.prefix)+64 {
		return "", ErrMalformedToken
	}
	return m.digest(plainToken), nil
}

func (m *SessionTokenManager) digest(plainToken string) string {
	sum := sha256.Sum256([]byte(plainToken))
	return hex.EncodeToString(sum[:])
}
