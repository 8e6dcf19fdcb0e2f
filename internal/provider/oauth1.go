package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
)

// oauth1Client adapts a descriptor to the three-legged OAuth1 dance. The
// request-token secret must survive the redirect to the provider, so it is
// held in a short-lived in-process table keyed by the request token.
type oauth1Client struct {
	desc *Descriptor

	mu      sync.Mutex
	secrets map[string]requestSecret
}

type requestSecret struct {
	secret  string
	expires time.Time
}

const requestSecretTTL = 10 * time.Minute

func newOAuth1Client(d *Descriptor) *oauth1Client {
	return &oauth1Client{
		desc:    d,
		secrets: make(map[string]requestSecret),
	}
}

func (c *oauth1Client) config(redirectURI string) *oauth1.Config {
	return &oauth1.Config{
		ConsumerKey:    c.desc.ClientID,
		ConsumerSecret: c.desc.ClientSecret,
		CallbackURL:    redirectURI,
		Endpoint: oauth1.Endpoint{
			RequestTokenURL: c.desc.RequestTokenURL,
			AuthorizeURL:    c.desc.AuthorizationURL,
			AccessTokenURL:  c.desc.TokenURL,
		},
	}
}

// AuthorizationURL obtains a request token and returns the user authorization
// URL for it.
func (c *oauth1Client) AuthorizationURL(_ context.Context, redirectURI string) (string, error) {
	cfg := c.config(redirectURI)

	requestToken, secret, err := cfg.RequestToken()
	if err != nil {
		return "", fmt.Errorf("oauth1 request token: %w", err)
	}
	c.storeSecret(requestToken, secret)

	u, err := cfg.AuthorizationURL(requestToken)
	if err != nil {
		return "", fmt.Errorf("oauth1 authorization url: %w", err)
	}
	return u.String(), nil
}

// ExchangeCode trades the oauth_token (code) and oauth_verifier (verifier)
// for an access token/secret pair.
func (c *oauth1Client) ExchangeCode(_ context.Context, code, verifier, redirectURI string) (*Tokens, error) {
	cfg := c.config(redirectURI)

	accessToken, accessSecret, err := cfg.AccessToken(code, c.takeSecret(code), verifier)
	if err != nil {
		return nil, fmt.Errorf("%w: oauth1 access token: %v", ErrOAuthCallback, err)
	}

	return &Tokens{
		AccessToken: accessToken,
		TokenSecret: accessSecret,
	}, nil
}

// FetchProfile performs a signed profile request with the OAuth1 signing
// scheme.
func (c *oauth1Client) FetchProfile(ctx context.Context, tokens *Tokens) (map[string]any, error) {
	if c.desc.ProfileURL == "" {
		return nil, fmt.Errorf("%w: provider %s has no profile endpoint", ErrOAuthCallback, c.desc.ID)
	}

	httpClient := c.config("").Client(ctx, oauth1.NewToken(tokens.AccessToken, tokens.TokenSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.desc.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: profile request: %v", ErrOAuthCallback, err)
	}
	for k, v := range c.desc.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
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

func (c *oauth1Client) storeSecret(requestToken, secret string) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for tok, rs := range c.secrets {
		if now.After(rs.expires) {
			delete(c.secrets, tok)
		}
	}
	c.secrets[requestToken] = requestSecret{secret: secret, expires: now.Add(requestSecretTTL)}
}

// takeSecret removes and returns the stored request secret; single-use like
// the verifier.
func (c *oauth1Client) takeSecret(requestToken string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.secrets[requestToken]
	if !ok || time.Now().After(rs.expires) {
		delete(c.secrets, requestToken)
		return ""
	}
	delete(c.secrets, requestToken)
	return rs.secret
}
