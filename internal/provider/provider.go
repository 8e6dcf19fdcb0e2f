// Package provider defines identity provider descriptors and the client
// adapters that drive OAuth1/OAuth2 token exchange and profile retrieval.
//
// Descriptors are immutable value objects: request handling never mutates a
// registered descriptor, it works on a per-request clone carrying the
// request-scoped authorization parameters.
package provider

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind classifies the sign-in flow a provider drives.
type Kind string

const (
	KindOAuth       Kind = "oauth"
	KindEmail       Kind = "email"
	KindCredentials Kind = "credentials"
)

// Protection names an anti-forgery mechanism applied to the OAuth round trip.
type Protection string

const (
	ProtectionState Protection = "state"
	ProtectionPKCE  Protection = "pkce"
	ProtectionNone  Protection = "none"
)

// TokenAuthStyle selects how client credentials reach the token endpoint.
type TokenAuthStyle int

const (
	TokenAuthAuto   TokenAuthStyle = iota // let the library probe
	TokenAuthBasic                        // HTTP Basic authorization header
	TokenAuthParams                       // client_id/client_secret in the POST body
)

var (
	// ErrOAuthCallback marks a failed or forged OAuth callback. Routes
	// translate it to the OAuthCallback error redirect.
	ErrOAuthCallback = errors.New("oauth callback failed")

	// ErrUnsupportedVersion is returned for a protocol version the client
	// adapter does not speak.
	ErrUnsupportedVersion = errors.New("unsupported oauth protocol version")
)

// Profile is the canonical, provider-agnostic identity shape.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

// Tokens holds what a provider returned from the token exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Expiry       time.Time

	// OAuth1 token secret; empty for OAuth2 providers.
	TokenSecret string
}

// Account is the external identity produced by a completed exchange.
type Account struct {
	ProviderAccountID  string
	Provider           string
	Type               Kind
	AccessToken        string
	RefreshToken       string
	AccessTokenExpires *time.Time
	IDToken            string
}

// ProfileMapper converts a raw provider payload into the canonical profile.
type ProfileMapper func(raw map[string]any, tokens *Tokens) (*Profile, error)

// AuthorizeFunc verifies caller-supplied credentials and returns the profile
// of the authenticated user, or nil when the credentials are rejected.
type AuthorizeFunc func(ctx context.Context, credentials map[string]string) (*Profile, error)

// Descriptor is the immutable configuration of one provider. Construct it
// once at startup; use Clone/WithAuthorizationParams for request-scoped
// variants.
type Descriptor struct {
	ID      string
	Name    string
	Kind    Kind
	Version string // "2.0" for OAuth2, "1.0a" for OAuth1

	AuthorizationURL string
	TokenURL         string
	RequestTokenURL  string // OAuth1 only
	ProfileURL       string // empty means decode the embedded ID token
	Scope            string

	ClientID     string
	ClientSecret string

	Protection []Protection

	// AuthorizationParams are extra static parameters for the authorization
	// URL; request-scoped parameters (state, PKCE challenge) are attached to
	// a clone, never here.
	AuthorizationParams map[string]string

	// Token endpoint and profile request overrides, table-driven so no code
	// branches on provider names.
	TokenAuth     TokenAuthStyle
	TokenParams   map[string]string // extra POST params for the exchange
	Headers       map[string]string // bespoke headers for provider HTTP calls
	ProfileMethod string            // "GET" unless the provider requires POST
	TokenInQuery  bool              // pass access token as query param, not header

	Profile ProfileMapper

	// Email flow: lifetime of a verification token.
	VerificationMaxAge time.Duration

	// Credentials flow.
	Authorize AuthorizeFunc
}

// Clone returns a deep-enough copy that per-request mutation of parameter
// maps cannot leak into the shared registered descriptor.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Protection = append([]Protection(nil), d.Protection...)
	c.AuthorizationParams = cloneMap(d.AuthorizationParams)
	c.TokenParams = cloneMap(d.TokenParams)
	c.Headers = cloneMap(d.Headers)
	return &c
}

// WithAuthorizationParams returns a request-scoped clone with the given
// parameters merged into AuthorizationParams.
func (d *Descriptor) WithAuthorizationParams(params map[string]string) *Descriptor {
	c := d.Clone()
	if c.AuthorizationParams == nil {
		c.AuthorizationParams = make(map[string]string, len(params))
	}
	for k, v := range params {
		c.AuthorizationParams[k] = v
	}
	return c
}

// Protected reports whether the descriptor's protection set includes p.
func (d *Descriptor) Protected(p Protection) bool {
	for _, have := range d.Protection {
		if have == p {
			return true
		}
	}
	return false
}

// NormalizeEmail lower-cases an email address; canonical profiles always
// carry lower-cased emails.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Client is the uniform adapter over both OAuth protocol variants. Callers
// select behavior only through the descriptor, never by inspecting the
// variant.
//
// For OAuth2, code is the authorization code and verifier the PKCE verifier.
// For OAuth1, code is the oauth_token and verifier the oauth_verifier.
type Client interface {
	AuthorizationURL(ctx context.Context, redirectURI string) (string, error)
	ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (*Tokens, error)
	FetchProfile(ctx context.Context, tokens *Tokens) (map[string]any, error)
}

// NewClient builds the protocol adapter for a descriptor.
func NewClient(d *Descriptor) (Client, error) {
	switch d.Version {
	case "", "2.0", "2":
		return newOAuth2Client(d), nil
	case "1.0a", "1.0", "1":
		return newOAuth1Client(d), nil
	default:
		return nil, ErrUnsupportedVersion
	}
}
