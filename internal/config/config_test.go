package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/session"
)

func TestDefaultValidates(t *testing.T) {
	opts := Default()
	opts.Secret = "s3cret"
	require.NoError(t, opts.Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing secret", func(o *Options) { o.Secret = "" }},
		{"missing base url", func(o *Options) { o.BaseURL = "" }},
		{"trailing slash", func(o *Options) { o.BaseURL = "http://localhost:8080/" }},
		{"unknown strategy", func(o *Options) { o.SessionStrategy = "cookie-jar" }},
		{"db sessions without adapter", func(o *Options) {
			o.SessionStrategy = session.StrategyDatabase
			o.Adapter = AdapterNone
		}},
		{"sqlite without path", func(o *Options) { o.DatabasePath = "" }},
		{"postgres without dsn", func(o *Options) { o.Adapter = AdapterPostgres }},
		{"unknown adapter", func(o *Options) { o.Adapter = "etcd" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := Default()
			opts.Secret = "s3cret"
			tc.mutate(opts)
			assert.Error(t, opts.Validate())
		})
	}
}

func TestUseSecureCookies(t *testing.T) {
	opts := Default()
	assert.False(t, opts.UseSecureCookies())

	opts.BaseURL = "https://auth.example.com"
	assert.True(t, opts.UseSecureCookies())
}
