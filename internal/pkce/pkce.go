// Package pkce implements the Proof Key for Code Exchange guard (RFC 7636).
// The verifier survives the provider round trip inside an encrypted,
// short-lived cookie and is single-use.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"authgate/internal/jwt"
)

// MaxAge bounds how long a verifier cookie stays valid.
const MaxAge = 15 * time.Minute

// ErrInvalidCookie is returned when the verifier cookie cannot be decrypted
// or has expired.
var ErrInvalidCookie = errors.New("pkce: invalid or expired code verifier cookie")

const verifierClaim = "code_verifier"

// ChallengeMethod is attached to authorization URLs alongside the challenge.
const ChallengeMethod = "S256"

// NewVerifier generates a high-entropy code verifier and its S256 challenge.
func NewVerifier() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	return verifier, Challenge(verifier), nil
}

// Challenge computes the S256 code challenge for a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Seal wraps the verifier in an encrypted token bounded by MaxAge, suitable
// for a cookie value.
func Seal(opts jwt.Options, verifier string) (string, error) {
	opts.Encryption = true
	opts.MaxAge = MaxAge
	return jwt.Encode(opts, map[string]any{verifierClaim: verifier})
}

// Open recovers the verifier from a sealed cookie value. Decryption failure
// or expiry yields ErrInvalidCookie; the caller must treat that as a failed
// callback, not retry.
func Open(opts jwt.Options, sealed string) (string, error) {
	opts.Encryption = true
	claims, err := jwt.Decode(opts, sealed)
	if err != nil {
		return "", ErrInvalidCookie
	}
	verifier, ok := claims[verifierClaim].(string)
	if !ok || verifier == "" {
		return "", ErrInvalidCookie
	}
	return verifier, nil
}
