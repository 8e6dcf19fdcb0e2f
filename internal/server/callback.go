package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"authgate/internal/adapter"
	"authgate/internal/cookies"
	"authgate/internal/log"
	"authgate/internal/pkce"
	"authgate/internal/provider"
	"authgate/internal/reconcile"
	"authgate/internal/session"
	"authgate/internal/token"
)

// handleCallback completes a sign-in: anti-forgery checks, code exchange,
// profile normalization, reconciliation, session issuance.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	csrfToken, verified, setCookie, err := s.guard.Check(r)
	if err != nil {
		s.redirectError(w, r, CodeConfiguration)
		return
	}
	if setCookie != "" {
		cookies.Set(w, s.names.Csrf(), setCookie, s.opts.UseSecureCookies(), 0)
	}

	d, err := s.registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		s.redirectError(w, r, CodeConfiguration)
		return
	}

	switch d.Kind {
	case provider.KindOAuth:
		s.callbackOAuth(w, r, d, csrfToken)
	case provider.KindEmail:
		s.callbackEmail(w, r, d)
	case provider.KindCredentials:
		if !verified {
			s.redirectError(w, r, CodeAccessDenied)
			return
		}
		s.callbackCredentials(w, r, d)
	default:
		s.redirectError(w, r, CodeConfiguration)
	}
}

func (s *Server) callbackOAuth(w http.ResponseWriter, r *http.Request, d *provider.Descriptor, csrfToken string) {
	q := r.URL.Query()

	if provErr := q.Get("error"); provErr != "" {
		if provErr == "access_denied" {
			s.redirectError(w, r, CodeAccessDenied)
			return
		}
		s.redirectError(w, r, CodeOAuthCallback)
		return
	}

	if d.Protected(provider.ProtectionState) {
		if err := provider.VerifyState(csrfToken, q.Get("state")); err != nil {
			s.redirectError(w, r, CodeOAuthCallback)
			return
		}
	}

	var verifier string
	if d.Protected(provider.ProtectionPKCE) {
		c, err := r.Cookie(s.names.Pkce())
		if err != nil || c.Value == "" {
			s.redirectError(w, r, CodeOAuthCallback)
			return
		}
		// The verifier is single-use: the cookie dies here no matter what.
		cookies.Clear(w, s.names.Pkce(), s.opts.UseSecureCookies())

		verifier, err = pkce.Open(s.jwtOpts, c.Value)
		if err != nil {
			s.redirectError(w, r, CodeOAuthCallback)
			return
		}
	}

	code := q.Get("code")
	if code == "" {
		// OAuth1 providers return oauth_token/oauth_verifier instead.
		code = q.Get("oauth_token")
		verifier = q.Get("oauth_verifier")
	}
	if code == "" {
		s.redirectError(w, r, CodeOAuthCallback)
		return
	}

	client, err := s.registry.Client(d.ID)
	if err != nil {
		s.redirectError(w, r, CodeConfiguration)
		return
	}

	result, err := provider.HandleCallback(r.Context(), d, client, code, verifier, s.callbackRedirectURI(d.ID))
	if err != nil {
		s.redirectError(w, r, CodeOAuthCallback)
		return
	}

	dest := s.destination(r)

	// An unmappable profile is a soft failure: no session, back to the app.
	if result.Profile == nil {
		log.Warn("callback produced no usable profile", "provider", d.ID)
		http.Redirect(w, r, dest, http.StatusFound)
		return
	}

	current, currentUser := s.currentUser(r)
	res, err := s.engine.SignInResolved(r.Context(), current, currentUser, result.Profile, result.Account, reconcile.FlowOAuth)
	if err != nil {
		s.redirectError(w, r, s.reconcileErrorCode(err, CodeOAuthCreateAccount))
		return
	}

	s.finishSignIn(w, r, res, dest)
}

func (s *Server) callbackEmail(w http.ResponseWriter, r *http.Request, d *provider.Descriptor) {
	q := r.URL.Query()
	rawToken := q.Get("token")
	email := provider.NormalizeEmail(q.Get("email"))

	if rawToken == "" || email == "" || s.store == nil {
		s.redirectError(w, r, CodeVerification)
		return
	}

	hashed := token.HashWithSecret(rawToken, s.opts.Secret)
	request, err := s.store.GetVerificationRequest(r.Context(), email, hashed)
	if err != nil {
		s.redirectError(w, r, CodeCallback)
		return
	}
	if request == nil {
		s.redirectError(w, r, CodeVerification)
		return
	}
	// Single-use: consume before reconciling.
	if err := s.store.DeleteVerificationRequest(r.Context(), email, hashed); err != nil {
		s.redirectError(w, r, CodeCallback)
		return
	}

	profile := &provider.Profile{Email: email}
	account := &provider.Account{
		ProviderAccountID: email,
		Provider:          d.ID,
		Type:              provider.KindEmail,
	}

	current, currentUser := s.currentUser(r)
	res, err := s.engine.SignInResolved(r.Context(), current, currentUser, profile, account, reconcile.FlowEmail)
	if err != nil {
		s.redirectError(w, r, s.reconcileErrorCode(err, CodeEmailCreateAccount))
		return
	}

	s.finishSignIn(w, r, res, s.destination(r))
}

// callbackCredentials verifies caller-supplied credentials through the
// descriptor's authorize hook. Credentials sign-ins never persist anything;
// they are restricted to token sessions.
func (s *Server) callbackCredentials(w http.ResponseWriter, r *http.Request, d *provider.Descriptor) {
	if d.Authorize == nil || s.issuer.Strategy() != session.StrategyJWT {
		s.redirectError(w, r, CodeConfiguration)
		return
	}

	if err := r.ParseForm(); err != nil {
		s.redirectError(w, r, CodeCredentialsSignin)
		return
	}
	creds := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		if k == "csrfToken" || k == "callbackUrl" {
			continue
		}
		creds[k] = r.PostForm.Get(k)
	}

	profile, err := d.Authorize(r.Context(), creds)
	if err != nil || profile == nil {
		s.redirectError(w, r, CodeCredentialsSignin)
		return
	}

	user := &adapter.User{
		ID:    profile.ID,
		Name:  profile.Name,
		Email: provider.NormalizeEmail(profile.Email),
		Image: profile.Image,
	}
	state, err := s.issuer.Issue(r.Context(), user, nil)
	if err != nil {
		s.redirectError(w, r, CodeCredentialsSignin)
		return
	}

	s.setSessionCookie(w, state)
	http.Redirect(w, r, s.destination(r), http.StatusFound)
}

// finishSignIn issues the session for a reconciliation outcome and redirects
// to the remembered destination.
func (s *Server) finishSignIn(w http.ResponseWriter, r *http.Request, res *reconcile.Result, dest string) {
	state, err := s.issuer.Issue(r.Context(), res.User, res.Session)
	if err != nil {
		s.redirectError(w, r, CodeCallback)
		return
	}
	s.setSessionCookie(w, state)
	http.Redirect(w, r, dest, http.StatusFound)
}

// reconcileErrorCode maps a reconciliation failure onto the redirect
// vocabulary: the linking conflict and failed user creation get their
// specific codes, everything else funnels to the generic callback error.
func (s *Server) reconcileErrorCode(err error, createCode string) string {
	if errors.Is(err, reconcile.ErrAccountNotLinked) {
		return CodeOAuthAccountNotLinked
	}
	if adapter.OpOf(err) == adapter.OpCreateUser {
		return createCode
	}
	return CodeCallback
}
