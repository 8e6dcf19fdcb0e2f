// Package server exposes the authentication gateway over HTTP.
package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"authgate/internal/adapter"
	"authgate/internal/config"
	"authgate/internal/cookies"
	"authgate/internal/csrf"
	"authgate/internal/jwt"
	"authgate/internal/log"
	"authgate/internal/mail"
	"authgate/internal/provider"
	"authgate/internal/reconcile"
	"authgate/internal/session"
)

type Server struct {
	opts     *config.Options
	router   *chi.Mux
	registry *provider.Registry
	store    adapter.Adapter
	engine   *reconcile.Engine
	issuer   *session.Issuer
	guard    *csrf.Guard
	names    cookies.Names
	jwtOpts  jwt.Options
	sender   *mail.VerificationSender

	httpServer *http.Server
}

// New wires the gateway together. store may be nil for adapterless
// token-only deployments; mailer may be nil when no email provider is
// registered.
func New(opts *config.Options, store adapter.Adapter, registry *provider.Registry, mailer mail.Mailer, events reconcile.Events) *Server {
	if store != nil {
		store = adapter.WithLogging(store)
	}

	names := cookies.Names{UseSecure: opts.UseSecureCookies()}
	jwtOpts := jwt.Options{
		Secret:     opts.Secret,
		Encryption: opts.JWTEncryption,
		MaxAge:     opts.SessionMaxAge,
	}

	s := &Server{
		opts:     opts,
		router:   chi.NewRouter(),
		registry: registry,
		store:    store,
		names:    names,
		jwtOpts:  jwtOpts,
		guard:    csrf.New(opts.Secret, names.Csrf(), opts.UseSecureCookies()),
		engine: reconcile.New(reconcile.Config{
			Adapter:       store,
			Events:        events,
			SessionMaxAge: opts.SessionMaxAge,
			TokenSessions: opts.SessionStrategy == session.StrategyJWT,
		}),
		issuer: session.New(session.Config{
			Strategy:  opts.SessionStrategy,
			JWT:       jwtOpts,
			Adapter:   store,
			MaxAge:    opts.SessionMaxAge,
			UpdateAge: opts.SessionUpdateAge,
		}),
	}

	if mailer != nil {
		from := "noreply@localhost"
		if opts.Mail != nil && opts.Mail.From != "" {
			from = opts.Mail.From
		}
		s.sender = mail.NewVerificationSender(mailer, from, opts.BaseURL)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.opts.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", csrf.HeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/csrf", s.handleCsrf)
		r.Get("/providers", s.handleProviders)
		r.Get("/session", s.handleSession)
		r.Get("/error", s.handleError)
		r.Get("/verify-request", s.handleVerifyRequest)

		r.Post("/signin/{provider}", s.handleSignIn)
		r.Get("/callback/{provider}", s.handleCallback)
		r.Post("/callback/{provider}", s.handleCallback)
		r.Post("/signout", s.handleSignOut)
	})
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// callbackRedirectURI is the OAuth redirect_uri registered with providers.
func (s *Server) callbackRedirectURI(providerID string) string {
	return s.opts.BaseURL + "/auth/callback/" + providerID
}

// sanitizeCallbackURL restricts post-auth redirect destinations to the
// gateway's own origin or an explicitly trusted one. Anything else falls back
// to the base URL so the gateway is never an open redirector.
func (s *Server) sanitizeCallbackURL(raw string) string {
	if raw == "" {
		return s.opts.BaseURL
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return s.opts.BaseURL + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return s.opts.BaseURL
	}
	origin := u.Scheme + "://" + u.Host
	if origin == s.opts.BaseURL {
		return raw
	}
	for _, trusted := range s.opts.TrustedOrigins {
		if origin == trusted {
			return raw
		}
	}
	return s.opts.BaseURL
}

// destination reads and sanitizes the callback-url cookie, falling back to
// the base URL.
func (s *Server) destination(r *http.Request) string {
	if c, err := r.Cookie(s.names.Callback()); err == nil && c.Value != "" {
		return s.sanitizeCallbackURL(c.Value)
	}
	return s.opts.BaseURL
}

// rememberCallbackURL persists the sanitized destination for the duration of
// the round trip to the provider.
func (s *Server) rememberCallbackURL(w http.ResponseWriter, raw string) string {
	dest := s.sanitizeCallbackURL(raw)
	cookies.SetReadable(w, s.names.Callback(), dest, s.opts.UseSecureCookies(), 0)
	return dest
}

// setSessionCookie writes the session cookie for an issued or refreshed
// session.
func (s *Server) setSessionCookie(w http.ResponseWriter, state *session.State) {
	maxAge := time.Until(state.Expires)
	if maxAge < 0 {
		maxAge = 0
	}
	cookies.Set(w, s.names.Session(), state.Token, s.opts.UseSecureCookies(), maxAge)
}

// sessionCookie returns the raw inbound session cookie value, if any.
func (s *Server) sessionCookie(r *http.Request) string {
	if c, err := r.Cookie(s.names.Session()); err == nil {
		return c.Value
	}
	return ""
}

// currentUser resolves the signed-in state for reconciliation. For database
// sessions the record and its user come from the adapter; for token sessions
// identity lives in the token and the persisted user is looked up by id.
func (s *Server) currentUser(r *http.Request) (*adapter.Session, *adapter.User) {
	tokenValue := s.sessionCookie(r)
	if tokenValue == "" {
		return nil, nil
	}

	state, err := s.issuer.Resolve(r.Context(), tokenValue)
	if err != nil || state == nil {
		return nil, nil
	}

	if s.opts.SessionStrategy == session.StrategyDatabase {
		sess, err := s.store.GetSession(r.Context(), tokenValue)
		if err != nil || sess == nil {
			return nil, nil
		}
		return sess, state.User
	}

	if s.store == nil || state.User.ID == "" {
		return nil, state.User
	}
	user, err := s.store.GetUser(r.Context(), state.User.ID)
	if err != nil || user == nil {
		return nil, nil
	}
	return nil, user
}
