// Package config holds the gateway's runtime options, assembled once at
// startup and treated as read-only afterwards.
package config

import (
	"fmt"
	"strings"
	"time"

	"authgate/internal/mail"
	"authgate/internal/session"
)

// Options configures a gateway instance.
type Options struct {
	// Secret signs and encrypts tokens and keys the CSRF hash. Required.
	Secret string

	// BaseURL is the externally visible origin of the gateway, e.g.
	// "https://auth.example.com". Email links and redirect checks use it.
	BaseURL string

	// SessionStrategy selects jwt or database sessions.
	SessionStrategy session.Strategy

	SessionMaxAge    time.Duration
	SessionUpdateAge time.Duration

	// JWTEncryption wraps session tokens in an AES-GCM envelope.
	JWTEncryption bool

	// Adapter names the persistence backend: sqlite, postgres, memory, or
	// none for adapterless token-only deployments.
	Adapter      string
	DatabasePath string // sqlite
	PostgresDSN  string // postgres

	// Mail configures magic-link delivery for the email provider.
	Mail *mail.Config

	// TrustedOrigins are additional origins accepted as callback
	// destinations besides BaseURL.
	TrustedOrigins []string
}

const (
	AdapterNone     = "none"
	AdapterMemory   = "memory"
	AdapterSQLite   = "sqlite"
	AdapterPostgres = "postgres"
)

// Default returns options for a local development instance.
func Default() *Options {
	return &Options{
		BaseURL:          "http://localhost:8080",
		SessionStrategy:  session.StrategyJWT,
		SessionMaxAge:    session.DefaultMaxAge,
		SessionUpdateAge: session.DefaultUpdateAge,
		Adapter:          AdapterSQLite,
		DatabasePath:     "authgate.db",
		Mail:             mail.DefaultConfig(),
	}
}

// Validate checks the options for contradictions before the server starts.
func (o *Options) Validate() error {
	if o.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	if o.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if strings.HasSuffix(o.BaseURL, "/") {
		return fmt.Errorf("base URL must not end with a slash")
	}

	switch o.SessionStrategy {
	case session.StrategyJWT:
	case session.StrategyDatabase:
		if o.Adapter == AdapterNone || o.Adapter == "" {
			return fmt.Errorf("database sessions require a persistence adapter")
		}
	default:
		return fmt.Errorf("unknown session strategy %q", o.SessionStrategy)
	}

	switch o.Adapter {
	case AdapterNone, AdapterMemory, "":
	case AdapterSQLite:
		if o.DatabasePath == "" {
			return fmt.Errorf("sqlite adapter requires a database path")
		}
	case AdapterPostgres:
		if o.PostgresDSN == "" {
			return fmt.Errorf("postgres adapter requires a DSN")
		}
	default:
		return fmt.Errorf("unknown adapter %q", o.Adapter)
	}

	return nil
}

// UseSecureCookies reports whether the gateway serves over HTTPS, which
// switches on the __Secure-/__Host- cookie prefixes.
func (o *Options) UseSecureCookies() bool {
	return strings.HasPrefix(o.BaseURL, "https://")
}
