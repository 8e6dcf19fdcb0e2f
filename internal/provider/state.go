package provider

import (
	"errors"

	"authgate/internal/token"
)

// ErrStateMismatch marks a callback whose state parameter does not match the
// value derived from the current CSRF token. Routes translate it to the
// OAuthCallback error redirect.
var ErrStateMismatch = errors.New("oauth state mismatch")

// DeriveState binds the OAuth state parameter to the CSRF token:
// state = sha256(csrfToken). A stolen authorization code cannot be replayed
// from another browser session because that session derives a different
// state.
func DeriveState(csrfToken string) string {
	return token.Hash(csrfToken)
}

// VerifyState recomputes the expected state and compares it to the value the
// provider echoed back.
func VerifyState(csrfToken, state string) error {
	if state == "" || !token.Equal(DeriveState(csrfToken), state) {
		return ErrStateMismatch
	}
	return nil
}
