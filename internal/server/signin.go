package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"authgate/internal/cookies"
	"authgate/internal/pkce"
	"authgate/internal/provider"
	"authgate/internal/token"
)

// handleSignIn initiates a sign-in. OAuth providers get a 302 to their
// authorization URL with the request-scoped anti-forgery parameters attached;
// the email provider gets a hashed verification token and a magic-link mail.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	csrfToken, verified, setCookie, err := s.guard.Check(r)
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

	d, err := s.registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		s.redirectError(w, r, CodeConfiguration)
		return
	}

	s.rememberCallbackURL(w, r.FormValue("callbackUrl"))

	switch d.Kind {
	case provider.KindOAuth:
		s.signInOAuth(w, r, d, csrfToken)
	case provider.KindEmail:
		s.signInEmail(w, r, d)
	case provider.KindCredentials:
		// Credentials sign-in and callback are the same operation.
		s.callbackCredentials(w, r, d)
	default:
		s.redirectError(w, r, CodeConfiguration)
	}
}

func (s *Server) signInOAuth(w http.ResponseWriter, r *http.Request, d *provider.Descriptor, csrfToken string) {
	params := map[string]string{}

	if d.Protected(provider.ProtectionState) {
		params["state"] = provider.DeriveState(csrfToken)
	}

	if d.Protected(provider.ProtectionPKCE) {
		verifier, challenge, err := pkce.NewVerifier()
		if err != nil {
			s.redirectError(w, r, CodeOAuthSignin)
			return
		}
		sealed, err := pkce.Seal(s.jwtOpts, verifier)
		if err != nil {
			s.redirectError(w, r, CodeOAuthSignin)
			return
		}
		cookies.Set(w, s.names.Pkce(), sealed, s.opts.UseSecureCookies(), pkce.MaxAge)

		params["code_challenge"] = challenge
		params["code_challenge_method"] = pkce.ChallengeMethod
	}

	client, err := s.requestClient(d, params)
	if err != nil {
		s.redirectError(w, r, CodeOAuthSignin)
		return
	}

	authURL, err := client.AuthorizationURL(r.Context(), s.callbackRedirectURI(d.ID))
	if err != nil {
		s.redirectError(w, r, CodeOAuthSignin)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// requestClient returns the client to build the authorization URL with. When
// request-scoped parameters exist the shared descriptor is cloned so no
// request state ever touches the registered one; otherwise the registry's
// long-lived client is used (the OAuth1 client holds the request-token secret
// across the redirect and must be shared).
func (s *Server) requestClient(d *provider.Descriptor, params map[string]string) (provider.Client, error) {
	if len(params) == 0 {
		return s.registry.Client(d.ID)
	}
	return provider.NewClient(d.WithAuthorizationParams(params))
}

func (s *Server) signInEmail(w http.ResponseWriter, r *http.Request, d *provider.Descriptor) {
	email := provider.NormalizeEmail(r.FormValue("email"))
	if email == "" || s.store == nil || s.sender == nil {
		s.redirectError(w, r, CodeEmailSignin)
		return
	}

	raw, err := token.Random(32)
	if err != nil {
		s.redirectError(w, r, CodeEmailSignin)
		return
	}

	maxAge := d.VerificationMaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	// Only the hash is stored; the raw token travels in the mail.
	hashed := token.HashWithSecret(raw, s.opts.Secret)
	if _, err := s.store.CreateVerificationRequest(r.Context(), email, hashed, time.Now().Add(maxAge)); err != nil {
		s.redirectError(w, r, CodeEmailSignin)
		return
	}

	if err := s.sender.SendVerification(r.Context(), email, raw); err != nil {
		s.redirectError(w, r, CodeEmailSignin)
		return
	}

	http.Redirect(w, r, s.opts.BaseURL+"/auth/verify-request", http.StatusFound)
}

// handleVerifyRequest is the "check your email" page.
func (s *Server) handleVerifyRequest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "a sign-in link has been sent to your email address",
	})
}
