package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/adapter"
	"authgate/internal/config"
	"authgate/internal/mail"
	"authgate/internal/provider"
	"authgate/internal/reconcile"
	"authgate/internal/session"
)

const testBaseURL = "http://localhost:8080"

// fakeProvider runs an httptest server standing in for an OAuth2 provider's
// token and profile endpoints.
func fakeProvider(t *testing.T) (*httptest.Server, *provider.Descriptor) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostFormValue("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-1","token_type":"bearer"}`)
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"acct-1","name":"Ada","email":"Ada@Example.com"}`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	d := &provider.Descriptor{
		ID:               "fake",
		Name:             "Fake",
		Kind:             provider.KindOAuth,
		Version:          "2.0",
		AuthorizationURL: ts.URL + "/authorize",
		TokenURL:         ts.URL + "/token",
		ProfileURL:       ts.URL + "/profile",
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		Protection:       []provider.Protection{provider.ProtectionState, provider.ProtectionPKCE},
	}
	return ts, d
}

type testGateway struct {
	srv     *Server
	store   adapter.Adapter
	mailbox *bytes.Buffer
	cookies map[string]string
}

func newTestGateway(t *testing.T, strategy session.Strategy) *testGateway {
	t.Helper()

	_, fake := fakeProvider(t)

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(fake))
	require.NoError(t, registry.Register(provider.Email()))
	require.NoError(t, registry.Register(provider.Credentials("Password", func(_ context.Context, creds map[string]string) (*provider.Profile, error) {
		if creds["username"] == "ada" && creds["password"] == "secret" {
			return &provider.Profile{ID: "cred-1", Name: "Ada", Email: "ada@example.com"}, nil
		}
		return nil, fmt.Errorf("bad credentials")
	})))

	opts := config.Default()
	opts.Secret = "test-secret"
	opts.SessionStrategy = strategy
	opts.Adapter = config.AdapterMemory

	store := adapter.NewMemory()
	var mailbox bytes.Buffer
	srv := New(opts, store, registry, mail.NewLogMailer(&mailbox), reconcile.Events{})

	return &testGateway{
		srv:     srv,
		store:   store,
		mailbox: &mailbox,
		cookies: make(map[string]string),
	}
}

// do performs a request through the router, carrying the gateway's cookie jar
// and absorbing Set-Cookie headers from the response.
func (g *testGateway) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for name, value := range g.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	rec := httptest.NewRecorder()
	g.srv.Router().ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(g.cookies, c.Name)
			continue
		}
		g.cookies[c.Name] = c.Value
	}
	return rec
}

func (g *testGateway) csrfToken(t *testing.T) string {
	t.Helper()
	rec := g.do(t, http.MethodGet, "/auth/csrf", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body["csrfToken"])
	return body["csrfToken"]
}

// signIn walks the full OAuth round trip against the fake provider and
// returns the final callback response.
func (g *testGateway) signIn(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/signin/fake", url.Values{"csrfToken": {csrfToken}})
	require.Equal(t, http.StatusFound, rec.Code)

	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	return g.do(t, http.MethodGet, "/auth/callback/fake?code=good-code&state="+state, nil)
}

func assertErrorRedirect(t *testing.T, rec *httptest.ResponseRecorder, code string) {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL+"/auth/error?error="+code, rec.Header().Get("Location"))
}

func TestCsrfEndpointMintsCookie(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)

	tok := g.csrfToken(t)
	value, ok := g.cookies["authgate.csrf-token"]
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(value, tok+"|"), "cookie is token|hash")

	// A second read reuses the cookie's token.
	assert.Equal(t, tok, g.csrfToken(t))
}

func TestSignInRequiresCsrf(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)

	rec := g.do(t, http.MethodPost, "/auth/signin/fake", url.Values{})
	assertErrorRedirect(t, rec, CodeAccessDenied)
}

func TestSignInUnknownProvider(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/signin/mystery", url.Values{"csrfToken": {csrfToken}})
	assertErrorRedirect(t, rec, CodeConfiguration)
}

func TestSignInAttachesStateAndChallenge(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/signin/fake", url.Values{"csrfToken": {csrfToken}})
	require.Equal(t, http.StatusFound, rec.Code)

	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	q := authURL.Query()
	assert.Equal(t, provider.DeriveState(csrfToken), q.Get("state"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, testBaseURL+"/auth/callback/fake", q.Get("redirect_uri"))

	_, ok := g.cookies["authgate.pkce.code-verifier"]
	assert.True(t, ok, "verifier cookie must be set")
}

func TestOAuthFlowEstablishesSession(t *testing.T) {
	for _, strategy := range []session.Strategy{session.StrategyJWT, session.StrategyDatabase} {
		t.Run(string(strategy), func(t *testing.T) {
			g := newTestGateway(t, strategy)

			rec := g.signIn(t)
			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, testBaseURL, rec.Header().Get("Location"))
			require.NotEmpty(t, g.cookies["authgate.session-token"])

			// The verifier cookie is single-use.
			_, ok := g.cookies["authgate.pkce.code-verifier"]
			assert.False(t, ok)

			// The user exists with a normalized email.
			user, err := g.store.GetUserByEmail(context.Background(), "ada@example.com")
			require.NoError(t, err)
			require.NotNil(t, user)
			assert.Equal(t, "Ada", user.Name)

			// And the session endpoint shows it.
			sess := g.do(t, http.MethodGet, "/auth/session", nil)
			require.Equal(t, http.StatusOK, sess.Code)
			var view map[string]any
			require.NoError(t, json.NewDecoder(sess.Body).Decode(&view))
			u, ok := view["user"].(map[string]any)
			require.True(t, ok, "session view has a user")
			assert.Equal(t, "ada@example.com", u["email"])
		})
	}
}

func TestCallbackRejectsForgedState(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/signin/fake", url.Values{"csrfToken": {csrfToken}})
	require.Equal(t, http.StatusFound, rec.Code)

	rec = g.do(t, http.MethodGet, "/auth/callback/fake?code=good-code&state=forged", nil)
	assertErrorRedirect(t, rec, CodeOAuthCallback)
}

func TestCallbackRejectsTamperedPkceCookie(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/signin/fake", url.Values{"csrfToken": {csrfToken}})
	require.Equal(t, http.StatusFound, rec.Code)
	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	g.cookies["authgate.pkce.code-verifier"] = "garbage"
	rec = g.do(t, http.MethodGet, "/auth/callback/fake?code=good-code&state="+authURL.Query().Get("state"), nil)
	assertErrorRedirect(t, rec, CodeOAuthCallback)
}

func TestCallbackProviderDenial(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)

	rec := g.do(t, http.MethodGet, "/auth/callback/fake?error=access_denied", nil)
	assertErrorRedirect(t, rec, CodeAccessDenied)

	rec = g.do(t, http.MethodGet, "/auth/callback/fake?error=server_error", nil)
	assertErrorRedirect(t, rec, CodeOAuthCallback)
}

func TestEmailFlow(t *testing.T) {
	g := newTestGateway(t, session.StrategyDatabase)
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/signin/email", url.Values{
		"csrfToken": {csrfToken},
		"email":     {"New@Example.com"},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL+"/auth/verify-request", rec.Header().Get("Location"))

	// Pull the magic link out of the logged mail.
	m := regexp.MustCompile(`/auth/callback/email\?token=([^&\s]+)&email=([^&\s]+)`).
		FindStringSubmatch(g.mailbox.String())
	require.Len(t, m, 3)

	rec = g.do(t, http.MethodGet, m[0], nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL, rec.Header().Get("Location"))
	require.NotEmpty(t, g.cookies["authgate.session-token"])

	user, err := g.store.GetUserByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.NotNil(t, user.EmailVerified)

	// The link is single-use.
	rec = g.do(t, http.MethodGet, m[0], nil)
	assertErrorRedirect(t, rec, CodeVerification)
}

func TestEmailCallbackWithUnknownToken(t *testing.T) {
	g := newTestGateway(t, session.StrategyDatabase)

	rec := g.do(t, http.MethodGet, "/auth/callback/email?token=nope&email=a%40example.com", nil)
	assertErrorRedirect(t, rec, CodeVerification)
}

func TestCredentialsCallback(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/callback/credentials", url.Values{
		"csrfToken": {csrfToken},
		"username":  {"ada"},
		"password":  {"secret"},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL, rec.Header().Get("Location"))
	require.NotEmpty(t, g.cookies["authgate.session-token"])

	sess := g.do(t, http.MethodGet, "/auth/session", nil)
	var view map[string]any
	require.NoError(t, json.NewDecoder(sess.Body).Decode(&view))
	u := view["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", u["email"])
}

func TestCredentialsRejection(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/callback/credentials", url.Values{
		"csrfToken": {csrfToken},
		"username":  {"ada"},
		"password":  {"wrong"},
	})
	assertErrorRedirect(t, rec, CodeCredentialsSignin)
	assert.Empty(t, g.cookies["authgate.session-token"])
}

func TestCredentialsRefusedWithDatabaseSessions(t *testing.T) {
	g := newTestGateway(t, session.StrategyDatabase)
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/callback/credentials", url.Values{
		"csrfToken": {csrfToken},
		"username":  {"ada"},
		"password":  {"secret"},
	})
	assertErrorRedirect(t, rec, CodeConfiguration)
}

func TestSignOut(t *testing.T) {
	g := newTestGateway(t, session.StrategyDatabase)
	rec := g.signIn(t)
	require.Equal(t, http.StatusFound, rec.Code)
	sessionToken := g.cookies["authgate.session-token"]
	require.NotEmpty(t, sessionToken)

	csrfToken := g.csrfToken(t)
	rec = g.do(t, http.MethodPost, "/auth/signout", url.Values{"csrfToken": {csrfToken}})
	require.Equal(t, http.StatusFound, rec.Code)

	_, ok := g.cookies["authgate.session-token"]
	assert.False(t, ok, "session cookie cleared")

	stored, err := g.store.GetSession(context.Background(), sessionToken)
	require.NoError(t, err)
	assert.Nil(t, stored, "database session revoked")
}

func TestSignOutRequiresCsrf(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)

	rec := g.do(t, http.MethodPost, "/auth/signout", url.Values{})
	assertErrorRedirect(t, rec, CodeAccessDenied)
}

func TestSessionWithoutCookieIsEmpty(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)

	rec := g.do(t, http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "{}", rec.Body.String())
}

func TestProvidersEndpoint(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)

	rec := g.do(t, http.MethodGet, "/auth/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]providerView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Contains(t, out, "fake")
	require.Contains(t, out, "email")
	require.Contains(t, out, "credentials")
	assert.Equal(t, testBaseURL+"/auth/signin/fake", out["fake"].SigninURL)
	assert.Equal(t, testBaseURL+"/auth/callback/fake", out["fake"].CallbackURL)
	assert.Equal(t, "oauth", out["fake"].Type)
}

func TestErrorEndpoint(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)

	rec := g.do(t, http.MethodGet, "/auth/error?error=OAuthAccountNotLinked", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"OAuthAccountNotLinked"}`, rec.Body.String())
}

func TestCallbackURLSanitization(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)
	srv := g.srv

	cases := []struct {
		in   string
		want string
	}{
		{"", testBaseURL},
		{"/dashboard", testBaseURL + "/dashboard"},
		{testBaseURL + "/app", testBaseURL + "/app"},
		{"https://evil.example.com/phish", testBaseURL},
		{"//evil.example.com", testBaseURL},
		{"javascript:alert(1)", testBaseURL},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, srv.sanitizeCallbackURL(tc.in), "input %q", tc.in)
	}

	srv.opts.TrustedOrigins = []string{"https://app.example.com"}
	assert.Equal(t, "https://app.example.com/home", srv.sanitizeCallbackURL("https://app.example.com/home"))
}

func TestSignInHonorsCallbackURL(t *testing.T) {
	g := newTestGateway(t, session.StrategyJWT)
	csrfToken := g.csrfToken(t)

	rec := g.do(t, http.MethodPost, "/auth/signin/fake", url.Values{
		"csrfToken":   {csrfToken},
		"callbackUrl": {"/dashboard"},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL+"/dashboard", g.cookies["authgate.callback-url"])

	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	rec = g.do(t, http.MethodGet, "/auth/callback/fake?code=good-code&state="+authURL.Query().Get("state"), nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL+"/dashboard", rec.Header().Get("Location"))
}

func TestConflictingAccountRedirects(t *testing.T) {
	g := newTestGateway(t, session.StrategyDatabase)

	// User B owns the fake provider account.
	rec := g.signIn(t)
	require.Equal(t, http.StatusFound, rec.Code)

	// A different user signs in by email, then hits the oauth callback for
	// B's account while signed in.
	delete(g.cookies, "authgate.session-token")
	other, err := g.store.CreateUser(context.Background(), &adapter.User{Email: "other@example.com"})
	require.NoError(t, err)
	sess, err := g.store.CreateSession(context.Background(), other.ID, "other-session", timeIn(24))
	require.NoError(t, err)
	g.cookies["authgate.session-token"] = sess.SessionToken

	rec = g.signIn(t)
	assertErrorRedirect(t, rec, CodeOAuthAccountNotLinked)
}

func timeIn(hours int) time.Time {
	return time.Now().Add(time.Duration(hours) * time.Hour)
}
