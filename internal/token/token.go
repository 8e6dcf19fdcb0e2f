// Package token provides random token generation and hashing used by the
// CSRF guard, the OAuth state parameter, and email verification tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// Random returns n cryptographically random bytes encoded as URL-safe base64
// without padding.
func Random(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash returns the hex-encoded SHA-256 digest of the input.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// HashWithSecret returns the hex-encoded SHA-256 digest of value+secret.
// Used for the CSRF cookie hash and for stored verification tokens, so a
// leaked database never exposes a usable token.
func HashWithSecret(value, secret string) string {
	return Hash(value + secret)
}

// Equal compares two hex digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
