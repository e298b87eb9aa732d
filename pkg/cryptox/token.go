package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// RefreshTokenSize is the entropy of opaque refresh tokens in bytes
// (43 chars once base64url encoded).
const RefreshTokenSize = 32

// GenerateToken creates a random token of size bytes, base64url encoded
// without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewOpaqueToken returns a fresh refresh token together with the fingerprint
// that should be persisted in its place.
func NewOpaqueToken() (plain, fingerprint string, err error) {
	plain, err = GenerateToken(RefreshTokenSize)
	if err != nil {
		return "", "", err
	}
	return plain, FingerprintToken(plain), nil
}

// FingerprintToken returns the SHA-256 of a token, base64url encoded. Only
// the fingerprint is stored, so a leaked table does not leak usable tokens.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// FingerprintMatches reports whether token hashes to fingerprint.
func FingerprintMatches(token, fingerprint string) bool {
	return subtle.ConstantTimeCompare([]byte(FingerprintToken(token)), []byte(fingerprint)) == 1
}
