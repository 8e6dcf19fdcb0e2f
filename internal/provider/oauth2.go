package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// oauth2Client adapts a descriptor to the authorization-code flow using
// golang.org/x/oauth2 for the token exchange.
type oauth2Client struct {
	desc *Descriptor
}

func newOAuth2Client(d *Descriptor) *oauth2Client {
	return &oauth2Client{desc: d}
}

func (c *oauth2Client) config(redirectURI string) *oauth2.Config {
	authStyle := oauth2.AuthStyleAutoDetect
	switch c.desc.TokenAuth {
	case TokenAuthBasic:
		authStyle = oauth2.AuthStyleInHeader
	case TokenAuthParams:
		authStyle = oauth2.AuthStyleInParams
	}

	var scopes []string
	if c.desc.Scope != "" {
		scopes = strings.Fields(c.desc.Scope)
	}

	return &oauth2.Config{
		ClientID:     c.desc.ClientID,
		ClientSecret: c.desc.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.desc.AuthorizationURL,
			TokenURL:  c.desc.TokenURL,
			AuthStyle: authStyle,
		},
	}
}

// AuthorizationURL builds the provider authorization URL. Request-scoped
// parameters (state, PKCE challenge) come in through the descriptor clone's
// AuthorizationParams.
func (c *oauth2Client) AuthorizationURL(_ context.Context, redirectURI string) (string, error) {
	cfg := c.config(redirectURI)

	state := c.desc.AuthorizationParams["state"]
	var opts []oauth2.AuthCodeOption
	for k, v := range c.desc.AuthorizationParams {
		if k == "state" {
			continue
		}
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// ExchangeCode trades the authorization code (plus optional PKCE verifier)
// for provider tokens.
func (c *oauth2Client) ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (*Tokens, error) {
	cfg := c.config(redirectURI)

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", verifier))
	}
	for k, v := range c.desc.TokenParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	if len(c.desc.Headers) > 0 {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
			Transport: &headerTransport{headers: c.desc.Headers},
		})
	}

	tok, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", ErrOAuthCallback, err)
	}

	var idToken string
	if v := tok.Extra("id_token"); v != nil {
		idToken, _ = v.(string)
	}

	return &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      idToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}, nil
}

// FetchProfile retrieves the raw provider profile with the access token
// either as a bearer header or a query parameter, per the descriptor.
func (c *oauth2Client) FetchProfile(ctx context.Context, tokens *Tokens) (map[string]any, error) {
	if c.desc.ProfileURL == "" {
		return nil, fmt.Errorf("%w: provider %s has no profile endpoint", ErrOAuthCallback, c.desc.ID)
	}

	method := c.desc.ProfileMethod
	if method == "" {
		method = http.MethodGet
	}

	profileURL := c.desc.ProfileURL
	if c.desc.TokenInQuery {
		u, err := url.Parse(profileURL)
		if err != nil {
			return nil, fmt.Errorf("%w: profile url: %v", ErrOAuthCallback, err)
		}
		q := u.Query()
		q.Set("access_token", tokens.AccessToken)
		u.RawQuery = q.Encode()
		profileURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, method, profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: profile request: %v", ErrOAuthCallback, err)
	}
	if !c.desc.TokenInQuery {
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	}
	for k, v := range c.desc.Headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: profile request failed: %v", ErrOAuthCallback, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: profile endpoint returned %d: %s", ErrOAuthCallback, resp.StatusCode, body)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", ErrOAuthCallback, err)
	}
	return raw, nil
}

// headerTransport injects provider-specific headers (Basic auth variants,
// API-key headers) into token endpoint calls.
type headerTransport struct {
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return http.DefaultTransport.RoundTrip(clone)
}
