// Package cookies centralizes the gateway's cookie names and attributes.
// Over HTTPS the __Secure-/__Host- naming convention is applied so browsers
// enforce the matching restrictions.
package cookies

import (
	"net/http"
	"time"
)

const (
	sessionBase  = "authgate.session-token"
	csrfBase     = "authgate.csrf-token"
	callbackBase = "authgate.callback-url"
	pkceBase     = "authgate.pkce.code-verifier"
)

// Names resolves cookie names for a deployment. UseSecure should be true when
// serving over HTTPS.
type Names struct {
	UseSecure bool
}

func (n Names) Session() string {
	if n.UseSecure {
		return "__Secure-" + sessionBase
	}
	return sessionBase
}

// Csrf uses the stricter __Host- prefix: the CSRF cookie must never be scoped
// to a parent domain.
func (n Names) Csrf() string {
	if n.UseSecure {
		return "__Host-" + csrfBase
	}
	return csrfBase
}

func (n Names) Callback() string {
	if n.UseSecure {
		return "__Secure-" + callbackBase
	}
	return callbackBase
}

func (n Names) Pkce() string {
	if n.UseSecure {
		return "__Secure-" + pkceBase
	}
	return pkceBase
}

// Set writes a lax, httpOnly cookie. A zero maxAge means a session cookie.
func Set(w http.ResponseWriter, name, value string, secure bool, maxAge time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge.Seconds())
		c.Expires = time.Now().Add(maxAge)
	}
	http.SetCookie(w, c)
}

// SetReadable writes a lax cookie without httpOnly, for values the client
// script may read (callback URL).
func SetReadable(w http.ResponseWriter, name, value string, secure bool, maxAge time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge.Seconds())
		c.Expires = time.Now().Add(maxAge)
	}
	http.SetCookie(w, c)
}

// Clear expires a cookie immediately (max-age 0 semantics).
func Clear(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
