package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Opaque token sizes in bytes of entropy before encoding.
const (
	RefreshTokenSize = 32
	ClientSecretSize = 32
)

// GenerateToken returns a URL-safe opaque token with n bytes of entropy.
func GenerateToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustGenerateToken is GenerateToken for callers that treat an exhausted
// entropy source as fatal, such as bootstrap paths.
func MustGenerateToken(n int) string {
	tok, err := GenerateToken(n)
	if err != nil {
		panic(err)
	}
	return tok
}

// FingerprintToken returns the hex-encoded SHA-256 of a token. Stores persist
// only fingerprints, never the token itself.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
