// Package jwt encodes and decodes the session token. Tokens are signed with
// HMAC-SHA-512 and optionally wrapped in an AES-256-GCM envelope. When no
// explicit key is configured one is derived from the shared secret.
package jwt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"authgate/internal/log"
)

// DefaultMaxAge is the default session token lifetime.
const DefaultMaxAge = 30 * 24 * time.Hour

var (
	// ErrInvalidToken is returned when a token fails signature or expiry
	// checks. Callers treat it as "no valid session".
	ErrInvalidToken = errors.New("invalid session token")

	// ErrNoSecret is returned when neither a secret nor explicit keys are
	// configured.
	ErrNoSecret = errors.New("jwt: secret or explicit keys required")
)

const (
	signingKeyInfo    = "authgate signing key"
	encryptionKeyInfo = "encryption key"

	signingKeyLen    = 64
	encryptionKeyLen = 32
)

// Options configures the codec. Exactly one codec configuration is active per
// gateway instance.
type Options struct {
	Secret        string
	SigningKey    []byte // optional; derived from Secret when nil
	EncryptionKey []byte // optional; derived from Secret when nil
	Encryption    bool   // wrap the signed token in an AES-GCM envelope
	MaxAge        time.Duration
}

var derivedKeyWarnings sync.Map

// deriveKey derives a key of the given length from the secret via
// HKDF-SHA256, scoped by a purpose string. The first derivation for each
// purpose logs a warning so operators know an explicit key is missing.
func deriveKey(secret, purpose string, length int) ([]byte, error) {
	once, _ := derivedKeyWarnings.LoadOrStore(purpose, &sync.Once{})
	once.(*sync.Once).Do(func() {
		log.Warn("deriving key from secret; configure an explicit key for production", "purpose", purpose)
	})

	key := make([]byte, length)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s: %w", purpose, err)
	}
	return key, nil
}

func (o Options) signingKey() ([]byte, error) {
	if len(o.SigningKey) > 0 {
		return o.SigningKey, nil
	}
	if o.Secret == "" {
		return nil, ErrNoSecret
	}
	return deriveKey(o.Secret, signingKeyInfo, signingKeyLen)
}

func (o Options) encryptionKey() ([]byte, error) {
	if len(o.EncryptionKey) > 0 {
		return o.EncryptionKey, nil
	}
	if o.Secret == "" {
		return nil, ErrNoSecret
	}
	return deriveKey(o.Secret, encryptionKeyInfo, encryptionKeyLen)
}

func (o Options) maxAge() time.Duration {
	if o.MaxAge > 0 {
		return o.MaxAge
	}
	return DefaultMaxAge
}

// Encode signs the claims and, when encryption is enabled, seals the signed
// token. An "exp" claim is added from MaxAge unless the caller set one.
func Encode(opts Options, claims map[string]any) (string, error) {
	key, err := opts.signingKey()
	if err != nil {
		return "", err
	}

	mc := gojwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	now := time.Now()
	if _, ok := mc["iat"]; !ok {
		mc["iat"] = now.Unix()
	}
	if _, ok := mc["exp"]; !ok {
		mc["exp"] = now.Add(opts.maxAge()).Unix()
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS512, mc).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if !opts.Encryption {
		return signed, nil
	}
	return seal(opts, signed)
}

// Decode verifies (and decrypts, if enabled) a token and returns its claims.
// Any failure yields ErrInvalidToken; this function never panics on malformed
// input.
func Decode(opts Options, tokenString string) (map[string]any, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	if opts.Encryption {
		opened, err := open(opts, tokenString)
		if err != nil {
			return nil, ErrInvalidToken
		}
		tokenString = opened
	}

	key, err := opts.signingKey()
	if err != nil {
		return nil, err
	}

	parsed, err := gojwt.Parse(tokenString, func(t *gojwt.Token) (any, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// seal encrypts the signed token with AES-256-GCM. The output is
// base64url(nonce || ciphertext).
func seal(opts Options, signed string) (string, error) {
	key, err := opts.encryptionKey()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("encrypt token: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("encrypt token: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encrypt token: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(signed), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func open(opts Options, sealed string) (string, error) {
	key, err := opts.encryptionKey()
	if err != nil {
		return "", err
	}

	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrInvalidToken
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrInvalidToken
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrInvalidToken
	}

	if len(raw) < gcm.NonceSize() {
		return "", ErrInvalidToken
	}
	nonce, ct := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(plain), nil
}
