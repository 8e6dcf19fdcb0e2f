package provider

import (
	"fmt"
	"time"
)

// OAuthConfig carries the per-deployment credentials for a builtin provider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
}

// Google returns the Google OAuth2 descriptor (OIDC, state + PKCE).
func Google(cfg OAuthConfig) *Descriptor {
	return &Descriptor{
		ID:               "google",
		Name:             "Google",
		Kind:             KindOAuth,
		Version:          "2.0",
		AuthorizationURL: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:         "https://oauth2.googleapis.com/token",
		ProfileURL:       "https://www.googleapis.com/oauth2/v2/userinfo",
		Scope:            "openid email profile",
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		Protection:       []Protection{ProtectionState, ProtectionPKCE},
		AuthorizationParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
		Profile: func(raw map[string]any, _ *Tokens) (*Profile, error) {
			id := stringClaim(raw, "id", "sub")
			if id == "" {
				return nil, fmt.Errorf("google payload has no id")
			}
			return &Profile{
				ID:    id,
				Name:  stringClaim(raw, "name"),
				Email: stringClaim(raw, "email"),
				Image: stringClaim(raw, "picture"),
			}, nil
		},
	}
}

// GitHub returns the GitHub OAuth2 descriptor. GitHub does not support PKCE;
// the state parameter is the only redirect protection. The Accept header is a
// bespoke requirement of its token endpoint.
func GitHub(cfg OAuthConfig) *Descriptor {
	return &Descriptor{
		ID:               "github",
		Name:             "GitHub",
		Kind:             KindOAuth,
		Version:          "2.0",
		AuthorizationURL: "https://github.com/login/oauth/authorize",
		TokenURL:         "https://github.com/login/oauth/access_token",
		ProfileURL:       "https://api.github.com/user",
		Scope:            "read:user user:email",
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		Protection:       []Protection{ProtectionState},
		TokenAuth:        TokenAuthParams,
		Headers: map[string]string{
			"Accept": "application/json",
		},
		Profile: func(raw map[string]any, _ *Tokens) (*Profile, error) {
			id := stringClaim(raw, "id")
			if id == "" {
				return nil, fmt.Errorf("github payload has no id")
			}
			name := stringClaim(raw, "name")
			if name == "" {
				name = stringClaim(raw, "login")
			}
			return &Profile{
				ID:    id,
				Name:  name,
				Email: stringClaim(raw, "email"),
				Image: stringClaim(raw, "avatar_url"),
			}, nil
		},
	}
}

// Twitter returns the Twitter OAuth1 descriptor (three-legged flow, signed
// profile fetch).
func Twitter(cfg OAuthConfig) *Descriptor {
	return &Descriptor{
		ID:               "twitter",
		Name:             "Twitter",
		Kind:             KindOAuth,
		Version:          "1.0a",
		RequestTokenURL:  "https://api.twitter.com/oauth/request_token",
		AuthorizationURL: "https://api.twitter.com/oauth/authenticate",
		TokenURL:         "https://api.twitter.com/oauth/access_token",
		ProfileURL:       "https://api.twitter.com/1.1/account/verify_credentials.json?include_email=true",
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		Protection:       []Protection{ProtectionNone},
		Profile: func(raw map[string]any, _ *Tokens) (*Profile, error) {
			id := stringClaim(raw, "id_str", "id")
			if id == "" {
				return nil, fmt.Errorf("twitter payload has no id")
			}
			return &Profile{
				ID:    id,
				Name:  stringClaim(raw, "name"),
				Email: stringClaim(raw, "email"),
				Image: stringClaim(raw, "profile_image_url_https"),
			}, nil
		},
	}
}

// Email returns the magic-link descriptor. Verification tokens default to a
// 24 hour lifetime.
func Email() *Descriptor {
	return &Descriptor{
		ID:                 "email",
		Name:               "Email",
		Kind:               KindEmail,
		VerificationMaxAge: 24 * time.Hour,
	}
}

// Credentials returns a descriptor whose sign-in is delegated to the given
// authorize hook.
func Credentials(name string, authorize AuthorizeFunc) *Descriptor {
	if name == "" {
		name = "Credentials"
	}
	return &Descriptor{
		ID:        "credentials",
		Name:      name,
		Kind:      KindCredentials,
		Authorize: authorize,
	}
}
