// Package csrf implements the double-submit cookie guard. The cookie stores
// "token|hash" where hash = sha256(token + secret); a state-changing request
// must echo the token in its body or header.
package csrf

import (
	"net/http"
	"strings"

	"authgate/internal/token"
)

// HeaderName is the request header checked for the echoed token.
const HeaderName = "X-Auth-CSRF-Token"

// FormField is the form field checked for the echoed token.
const FormField = "csrfToken"

const tokenBytes = 32

// Guard issues and verifies double-submit CSRF tokens.
type Guard struct {
	secret     string
	cookieName string
	secure     bool
}

// New creates a guard bound to the per-install secret.
func New(secret, cookieName string, secure bool) *Guard {
	return &Guard{secret: secret, cookieName: cookieName, secure: secure}
}

// Check validates or mints the CSRF token for a request.
//
// A well-formed cookie whose hash matches is reused; the token is additionally
// reported verified when a state-changing request echoed it. A missing or
// tampered cookie is treated as absent and a fresh token is minted, with its
// cookie value returned for the caller to set. This never fails open: bad
// input always results in an unverified fresh token.
func (g *Guard) Check(r *http.Request) (csrfToken string, verified bool, setCookie string, err error) {
	if c, cerr := r.Cookie(g.cookieName); cerr == nil && c.Value != "" {
		if tok, ok := g.verifyCookie(c.Value); ok {
			return tok, g.tokenEchoed(r, tok), "", nil
		}
	}

	fresh, err := token.Random(tokenBytes)
	if err != nil {
		return "", false, "", err
	}
	return fresh, false, CookieValue(fresh, g.secret), nil
}

// CookieValue builds the "token|hash" cookie payload.
func CookieValue(csrfToken, secret string) string {
	return csrfToken + "|" + token.HashWithSecret(csrfToken, secret)
}

// Verify reports whether a "token|hash" pair is internally consistent.
func Verify(cookieValue, secret string) bool {
	tok, hash, ok := strings.Cut(cookieValue, "|")
	if !ok || tok == "" {
		return false
	}
	return token.Equal(hash, token.HashWithSecret(tok, secret))
}

func (g *Guard) verifyCookie(cookieValue string) (string, bool) {
	if !Verify(cookieValue, g.secret) {
		return "", false
	}
	tok, _, _ := strings.Cut(cookieValue, "|")
	return tok, true
}

// tokenEchoed reports whether a state-changing request carried the token in
// its form body or header.
func (g *Guard) tokenEchoed(r *http.Request, csrfToken string) bool {
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete {
		return false
	}

	submitted := r.Header.Get(HeaderName)
	if submitted == "" {
		if err := r.ParseForm(); err == nil {
			submitted = r.PostFormValue(FormField)
		}
	}
	return submitted != "" && token.Equal(token.Hash(submitted), token.Hash(csrfToken))
}
