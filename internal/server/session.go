package server

import (
	"net/http"
	"time"

	"authgate/internal/cookies"
	"authgate/internal/session"
)

// sessionView is the safe, client-facing session shape. The user id and any
// token material stay server-side.
type sessionView struct {
	User    sessionUser `json:"user"`
	Expires string      `json:"expires"`
}

type sessionUser struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

// handleSession returns the current session, refreshing it per the session
// strategy's rotation rule. No session yields an empty object, never an
// error.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.ensureCsrfCookie(w, r)

	state, err := s.issuer.Resolve(r.Context(), s.sessionCookie(r))
	if err != nil || state == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	s.setSessionCookie(w, state)
	writeJSON(w, http.StatusOK, sessionView{
		User: sessionUser{
			Name:  state.User.Name,
			Email: state.User.Email,
			Image: state.User.Image,
		},
		Expires: state.Expires.UTC().Format(time.RFC3339),
	})
}

// handleCsrf returns the double-submit token, minting its cookie when absent.
func (s *Server) handleCsrf(w http.ResponseWriter, r *http.Request) {
	csrfToken, _, setCookie, err := s.guard.Check(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": CodeConfiguration})
		return
	}
	if setCookie != "" {
		cookies.Set(w, s.names.Csrf(), setCookie, s.opts.UseSecureCookies(), 0)
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": csrfToken})
}

type providerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	SigninURL   string `json:"signinUrl"`
	CallbackURL string `json:"callbackUrl"`
}

// handleProviders lists the registered providers for client consumption.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]providerView)
	for _, d := range s.registry.List() {
		out[d.ID] = providerView{
			ID:          d.ID,
			Name:        d.Name,
			Type:        string(d.Kind),
			SigninURL:   s.opts.BaseURL + "/auth/signin/" + d.ID,
			CallbackURL: s.callbackRedirectURI(d.ID),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSignOut revokes the session. For token sessions clearing the cookie
// is the whole operation; database sessions are deleted server-side too.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	_, verified, setCookie, err := s.guard.Check(r)
	if err != nil {
		s.redirectError(w, r, CodeConfiguration)
		return
	}
	if setCookie != "" {
		cookies.Set(w, s.names.Csrf(), setCookie, s.opts.UseSecureCookies(), 0)
	}
	if !verified {
		s.redirectError(w, r, CodeAccessDenied)
		return
	}

	if tok := s.sessionCookie(r); tok != "" && s.opts.SessionStrategy == session.StrategyDatabase {
		if err := s.engine.SignOut(r.Context(), tok); err != nil {
			s.redirectError(w, r, CodeCallback)
			return
		}
	}

	cookies.Clear(w, s.names.Session(), s.opts.UseSecureCookies())
	dest := s.sanitizeCallbackURL(r.FormValue("callbackUrl"))
	http.Redirect(w, r, dest, http.StatusFound)
}

// ensureCsrfCookie mints the CSRF cookie on read endpoints so a browser
// always holds a token before it first posts.
func (s *Server) ensureCsrfCookie(w http.ResponseWriter, r *http.Request) {
	if _, _, setCookie, err := s.guard.Check(r); err == nil && setCookie != "" {
		cookies.Set(w, s.names.Csrf(), setCookie, s.opts.UseSecureCookies(), 0)
	}
}
