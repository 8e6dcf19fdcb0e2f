package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient satisfies Client without any network traffic.
type fakeClient struct {
	tokens     *Tokens
	rawProfile map[string]any
	exchange   error
	fetch      error
}

func (f *fakeClient) AuthorizationURL(context.Context, string) (string, error) {
	return "https://provider.example/authorize", nil
}

func (f *fakeClient) ExchangeCode(context.Context, string, string, string) (*Tokens, error) {
	if f.exchange != nil {
		return nil, f.exchange
	}
	return f.tokens, nil
}

func (f *fakeClient) FetchProfile(context.Context, *Tokens) (map[string]any, error) {
	if f.fetch != nil {
		return nil, f.fetch
	}
	return f.rawProfile, nil
}

func TestHandleCallbackNormalizesProfile(t *testing.T) {
	d := &Descriptor{ID: "acme", Kind: KindOAuth, Version: "2.0", ProfileURL: "https://acme.example/me"}
	expiry := time.Now().Add(time.Hour)
	client := &fakeClient{
		tokens: &Tokens{AccessToken: "at", RefreshToken: "rt", Expiry: expiry},
		rawProfile: map[string]any{
			"id":    "acct-9",
			"name":  "Alice",
			"email": "Alice@Example.COM",
		},
	}

	res, err := HandleCallback(context.Background(), d, client, "code", "", "http://localhost/cb")
	require.NoError(t, err)

	require.NotNil(t, res.Profile)
	assert.Equal(t, "acct-9", res.Profile.ID)
	assert.Equal(t, "alice@example.com", res.Profile.Email, "emails are lower-cased")

	require.NotNil(t, res.Account)
	assert.Equal(t, "acme", res.Account.Provider)
	assert.Equal(t, "acct-9", res.Account.ProviderAccountID)
	assert.Equal(t, "at", res.Account.AccessToken)
	assert.Equal(t, "rt", res.Account.RefreshToken)
	require.NotNil(t, res.Account.AccessTokenExpires)
	assert.WithinDuration(t, expiry, *res.Account.AccessTokenExpires, time.Second)
}

func TestHandleCallbackMappingFailureIsNonFatal(t *testing.T) {
	d := &Descriptor{
		ID:         "acme",
		Kind:       KindOAuth,
		Version:    "2.0",
		ProfileURL: "https://acme.example/me",
		Profile: func(map[string]any, *Tokens) (*Profile, error) {
			return nil, fmt.Errorf("unexpected payload shape")
		},
	}
	client := &fakeClient{
		tokens:     &Tokens{AccessToken: "at"},
		rawProfile: map[string]any{"whatever": true},
	}

	res, err := HandleCallback(context.Background(), d, client, "code", "", "http://localhost/cb")
	require.NoError(t, err, "profile-parse failures surface as profile=nil, not errors")
	assert.Nil(t, res.Profile)
	assert.NotNil(t, res.Account)
}

func TestHandleCallbackExchangeFailurePropagates(t *testing.T) {
	d := &Descriptor{ID: "acme", Kind: KindOAuth, Version: "2.0"}
	client := &fakeClient{exchange: fmt.Errorf("%w: boom", ErrOAuthCallback)}

	_, err := HandleCallback(context.Background(), d, client, "code", "", "http://localhost/cb")
	assert.ErrorIs(t, err, ErrOAuthCallback)
}

func TestHandleCallbackDecodesEmbeddedIDToken(t *testing.T) {
	claims, _ := json.Marshal(map[string]any{
		"sub":     "subject-1",
		"name":    "Bob",
		"email":   "Bob@Example.com",
		"picture": "https://img.example/bob.png",
	})
	idToken := "eyJhbGciOiJSUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(claims) + ".sig"

	// No ProfileURL: the processor must decode the embedded ID token instead
	// of fetching.
	d := &Descriptor{ID: "oidc", Kind: KindOAuth, Version: "2.0"}
	client := &fakeClient{
		tokens: &Tokens{AccessToken: "at", IDToken: idToken},
		fetch:  fmt.Errorf("fetch must not be called"),
	}

	res, err := HandleCallback(context.Background(), d, client, "code", "", "http://localhost/cb")
	require.NoError(t, err)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "subject-1", res.Profile.ID)
	assert.Equal(t, "bob@example.com", res.Profile.Email)
	assert.Equal(t, "https://img.example/bob.png", res.Profile.Image)
}

func TestDecodeIDTokenMalformed(t *testing.T) {
	_, err := decodeIDToken("only-one-part")
	assert.ErrorIs(t, err, ErrOAuthCallback)

	_, err = decodeIDToken("a.!!!.c")
	assert.ErrorIs(t, err, ErrOAuthCallback)
}
