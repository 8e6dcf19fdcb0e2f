package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationURLCarriesRequestParams(t *testing.T) {
	d := Google(OAuthConfig{ClientID: "client-id", ClientSecret: "secret"}).
		WithAuthorizationParams(map[string]string{
			"state":                 "derived-state",
			"code_challenge":        "challenge",
			"code_challenge_method": "S256",
		})

	client, err := NewClient(d)
	require.NoError(t, err)

	authURL, err := client.AuthorizationURL(context.Background(), "http://localhost/auth/callback/google")
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "derived-state", q.Get("state"))
	assert.Equal(t, "challenge", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "http://localhost/auth/callback/google", q.Get("redirect_uri"))
}

func TestExchangeCodePassesVerifierAndTokenParams(t *testing.T) {
	var form url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "provider-access",
			"refresh_token": "provider-refresh",
			"id_token":      "provider-id-token",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	}))
	defer ts.Close()

	d := &Descriptor{
		ID:          "test",
		Kind:        KindOAuth,
		Version:     "2.0",
		TokenURL:    ts.URL,
		TokenAuth:   TokenAuthParams,
		TokenParams: map[string]string{"audience": "api"},
	}
	client, err := NewClient(d)
	require.NoError(t, err)

	tokens, err := client.ExchangeCode(context.Background(), "auth-code", "the-verifier", "http://localhost/cb")
	require.NoError(t, err)

	assert.Equal(t, "provider-access", tokens.AccessToken)
	assert.Equal(t, "provider-refresh", tokens.RefreshToken)
	assert.Equal(t, "provider-id-token", tokens.IDToken)
	assert.False(t, tokens.Expiry.IsZero())

	assert.Equal(t, "auth-code", form.Get("code"))
	assert.Equal(t, "the-verifier", form.Get("code_verifier"))
	assert.Equal(t, "api", form.Get("audience"))
}

func TestExchangeCodeInjectsBespokeHeaders(t *testing.T) {
	var got http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "bearer"})
	}))
	defer ts.Close()

	d := &Descriptor{
		ID:       "test",
		Version:  "2.0",
		TokenURL: ts.URL,
		Headers:  map[string]string{"X-Api-Key": "key-123", "Accept": "application/json"},
	}
	client, err := NewClient(d)
	require.NoError(t, err)

	_, err = client.ExchangeCode(context.Background(), "code", "", "http://localhost/cb")
	require.NoError(t, err)

	assert.Equal(t, "key-123", got.Get("X-Api-Key"))
	assert.Equal(t, "application/json", got.Get("Accept"))
}

func TestExchangeCodeFailureWrapsOAuthCallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	client, err := NewClient(&Descriptor{ID: "test", Version: "2.0", TokenURL: ts.URL})
	require.NoError(t, err)

	_, err = client.ExchangeCode(context.Background(), "bad-code", "", "http://localhost/cb")
	assert.ErrorIs(t, err, ErrOAuthCallback)
}

func TestFetchProfileBearerHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": "42", "name": "Alice"})
	}))
	defer ts.Close()

	client, err := NewClient(&Descriptor{ID: "test", Version: "2.0", ProfileURL: ts.URL})
	require.NoError(t, err)

	raw, err := client.FetchProfile(context.Background(), &Tokens{AccessToken: "access-token"})
	require.NoError(t, err)
	assert.Equal(t, "42", raw["id"])
}

func TestFetchProfileTokenInQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "access-token", r.URL.Query().Get("access_token"))
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": "42"})
	}))
	defer ts.Close()

	client, err := NewClient(&Descriptor{ID: "test", Version: "2.0", ProfileURL: ts.URL, TokenInQuery: true})
	require.NoError(t, err)

	_, err = client.FetchProfile(context.Background(), &Tokens{AccessToken: "access-token"})
	require.NoError(t, err)
}

func TestFetchProfilePostMethod(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]any{"id": "42"})
	}))
	defer ts.Close()

	client, err := NewClient(&Descriptor{ID: "test", Version: "2.0", ProfileURL: ts.URL, ProfileMethod: http.MethodPost})
	require.NoError(t, err)

	_, err = client.FetchProfile(context.Background(), &Tokens{AccessToken: "t"})
	require.NoError(t, err)
}

func TestFetchProfileNon200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	client, err := NewClient(&Descriptor{ID: "test", Version: "2.0", ProfileURL: ts.URL})
	require.NoError(t, err)

	_, err = client.FetchProfile(context.Background(), &Tokens{AccessToken: "t"})
	assert.ErrorIs(t, err, ErrOAuthCallback)
}
