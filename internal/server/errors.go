package server

import (
	"encoding/json"
	"net/http"

	"authgate/internal/log"
)

// Error codes for the redirect funnel. Every failure surfaces as a 302 to
// /auth/error?error=<Code>; the vocabulary is fixed and machine-readable.
const (
	CodeOAuthSignin           = "OAuthSignin"
	CodeOAuthCallback         = "OAuthCallback"
	CodeOAuthCreateAccount    = "OAuthCreateAccount"
	CodeEmailCreateAccount    = "EmailCreateAccount"
	CodeCallback              = "Callback"
	CodeOAuthAccountNotLinked = "OAuthAccountNotLinked"
	CodeEmailSignin           = "EmailSignin"
	CodeCredentialsSignin     = "CredentialsSignin"
	CodeAccessDenied          = "AccessDenied"
	CodeVerification          = "Verification"
	CodeConfiguration         = "Configuration"
)

// redirectError funnels a failure to the error endpoint.
func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	log.Warn("auth failure", "code", code, "path", r.URL.Path)
	http.Redirect(w, r, s.opts.BaseURL+"/auth/error?error="+code, http.StatusFound)
}

// handleError is the terminal error responder.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("error")
	if code == "" {
		code = CodeConfiguration
	}
	writeJSON(w, http.StatusOK, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
