package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// NewRefreshSecret returns a fresh opaque refresh secret: 64 random
// bytes (512 bits) in URL-safe base64. The value is returned to the
// caller exactly once and never stored.
func NewRefreshSecret() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashRefreshSecret derives the storage/lookup key for a raw refresh
// secret. The pepper comes from configuration so a leaked table alone
// is not enough to forge lookups.
func HashRefreshSecret(raw, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + raw))
	return hex.EncodeToString(sum[:])
}

// NewVerificationSecret returns the random TXT record value a tenant
// must publish to prove control of a hostname.
func NewVerificationSecret() (string, error) {
	return randomHex(32)
}

// NewAPIKey mints a widget API key for a domain claim. The key exists
// from creation but is only released once the claim verifies.
func NewAPIKey() (string, error) {
	s, err := randomHex(24)
	if err != nil {
		return "", err
	}
	return "sk_" + s, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random value: %w", err)
	}
	return strings.ToLower(hex.EncodeToString(buf)), nil
}
