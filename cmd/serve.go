// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"authgate/internal/adapter"
	"authgate/internal/config"
	"authgate/internal/db"
	"authgate/internal/log"
	"authgate/internal/mail"
	"authgate/internal/provider"
	"authgate/internal/reconcile"
	"authgate/internal/server"
	"authgate/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication gateway",
	Long:  `Starts the HTTP server exposing the sign-in, callback and session endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := buildOptions(cmd)
		if err != nil {
			return err
		}

		logLevel, _ := cmd.Flags().GetString("log-level")
		logFormat, _ := cmd.Flags().GetString("log-format")
		log.Init(&log.Config{Level: logLevel, Format: logFormat})

		store, database, err := openAdapter(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if database != nil {
			defer database.Close()
		}

		registry, err := buildRegistry(database)
		if err != nil {
			return err
		}

		mailer, err := mail.NewMailer(opts.Mail)
		if err != nil {
			return err
		}

		srv := server.New(opts, store, registry, mailer, reconcile.Events{})

		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		addr := fmt.Sprintf("%s:%d", host, port)

		log.Info("starting authgate",
			"addr", addr,
			"base_url", opts.BaseURL,
			"adapter", opts.Adapter,
			"session_strategy", string(opts.SessionStrategy),
			"mail_mode", opts.Mail.Mode,
		)
		return srv.ListenAndServe(addr)
	},
}

// buildOptions assembles config.Options. Priority: CLI flags > environment
// variables > defaults.
func buildOptions(cmd *cobra.Command) (*config.Options, error) {
	opts := config.Default()

	opts.Secret = os.Getenv("AUTHGATE_SECRET")
	if baseURL := os.Getenv("AUTHGATE_BASE_URL"); baseURL != "" {
		opts.BaseURL = baseURL
	}
	if strategy := os.Getenv("AUTHGATE_SESSION_STRATEGY"); strategy != "" {
		opts.SessionStrategy = session.Strategy(strategy)
	}
	if maxAge := os.Getenv("AUTHGATE_SESSION_MAX_AGE"); maxAge != "" {
		if seconds, err := strconv.Atoi(maxAge); err == nil {
			opts.SessionMaxAge = time.Duration(seconds) * time.Second
		}
	}
	if dsn := os.Getenv("AUTHGATE_POSTGRES_DSN"); dsn != "" {
		opts.PostgresDSN = dsn
	}
	readMailEnv(opts.Mail)

	if secret, _ := cmd.Flags().GetString("secret"); secret != "" {
		opts.Secret = secret
	}
	if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
		opts.BaseURL = baseURL
	}
	if strategy, _ := cmd.Flags().GetString("session"); strategy != "" {
		opts.SessionStrategy = session.Strategy(strategy)
	}
	if adapterName, _ := cmd.Flags().GetString("adapter"); adapterName != "" {
		opts.Adapter = adapterName
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		opts.DatabasePath = dbPath
	}
	if dsn, _ := cmd.Flags().GetString("pg-dsn"); dsn != "" {
		opts.PostgresDSN = dsn
	}
	if encrypt, _ := cmd.Flags().GetBool("encrypt-jwt"); encrypt {
		opts.JWTEncryption = true
	}
	if mailMode, _ := cmd.Flags().GetString("mail-mode"); mailMode != "" {
		opts.Mail.Mode = mailMode
	}
	if mailFrom, _ := cmd.Flags().GetString("mail-from"); mailFrom != "" {
		opts.Mail.From = mailFrom
	}

	if opts.Secret == "" {
		return nil, fmt.Errorf("a secret is required: set AUTHGATE_SECRET or --secret (generate one with 'authgate keys generate')")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func readMailEnv(cfg *mail.Config) {
	if mode := os.Getenv("AUTHGATE_MAIL_MODE"); mode != "" {
		cfg.Mode = mode
	}
	if from := os.Getenv("AUTHGATE_MAIL_FROM"); from != "" {
		cfg.From = from
	}
	if host := os.Getenv("AUTHGATE_SMTP_HOST"); host != "" {
		cfg.SMTPHost = host
	}
	if port := os.Getenv("AUTHGATE_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.SMTPPort = p
		}
	}
	if user := os.Getenv("AUTHGATE_SMTP_USER"); user != "" {
		cfg.SMTPUser = user
	}
	if pass := os.Getenv("AUTHGATE_SMTP_PASS"); pass != "" {
		cfg.SMTPPass = pass
	}
}

// openAdapter opens the configured persistence backend. The returned *db.DB
// is non-nil only for sqlite, where the credentials table also lives.
func openAdapter(ctx context.Context, opts *config.Options) (adapter.Adapter, *db.DB, error) {
	switch opts.Adapter {
	case config.AdapterNone, "":
		return nil, nil, nil
	case config.AdapterMemory:
		return adapter.NewMemory(), nil, nil
	case config.AdapterSQLite:
		if _, err := os.Stat(opts.DatabasePath); os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("database not found at %s. Run 'authgate init' first", opts.DatabasePath)
		}
		database, err := db.New(opts.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		// Run migrations in case the schema is outdated
		if err := database.RunMigrations(); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return adapter.NewSQLite(database), database, nil
	case config.AdapterPostgres:
		pg, err := adapter.NewPostgres(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", opts.Adapter)
	}
}

// buildRegistry registers the providers configured through the environment.
func buildRegistry(database *db.DB) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	builtins := []struct {
		idEnv, secretEnv string
		build            func(provider.OAuthConfig) *provider.Descriptor
	}{
		{"AUTHGATE_GOOGLE_ID", "AUTHGATE_GOOGLE_SECRET", provider.Google},
		{"AUTHGATE_GITHUB_ID", "AUTHGATE_GITHUB_SECRET", provider.GitHub},
		{"AUTHGATE_TWITTER_ID", "AUTHGATE_TWITTER_SECRET", provider.Twitter},
	}
	for _, b := range builtins {
		id, secret := os.Getenv(b.idEnv), os.Getenv(b.secretEnv)
		if id == "" || secret == "" {
			continue
		}
		if err := registry.Register(b.build(provider.OAuthConfig{ClientID: id, ClientSecret: secret})); err != nil {
			return nil, err
		}
	}

	if err := registry.Register(provider.Email()); err != nil {
		return nil, err
	}

	// Credentials sign-in verifies against the local credentials table, so it
	// is only offered when the sqlite database is present.
	if database != nil {
		authorize := func(ctx context.Context, creds map[string]string) (*provider.Profile, error) {
			email := provider.NormalizeEmail(creds["email"])
			ok, err := database.VerifyPassword(email, creds["password"])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("invalid email or password")
			}
			return &provider.Profile{ID: email, Email: email}, nil
		}
		if err := registry.Register(provider.Credentials("Email and password", authorize)); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("db", "authgate.db", "Path to the sqlite database file")
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("secret", "", "Shared secret (overrides AUTHGATE_SECRET)")
	serveCmd.Flags().String("base-url", "", "Externally visible base URL")
	serveCmd.Flags().String("session", "", "Session strategy: jwt or database")
	serveCmd.Flags().String("adapter", "", "Persistence adapter: sqlite, postgres, memory, or none")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN (overrides AUTHGATE_POSTGRES_DSN)")
	serveCmd.Flags().Bool("encrypt-jwt", false, "Wrap session tokens in an AES-GCM envelope")
	serveCmd.Flags().String("mail-mode", "", "Email mode: log or smtp (default: log)")
	serveCmd.Flags().String("mail-from", "", "Default sender email address")
	serveCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	serveCmd.Flags().String("log-format", "text", "Log format: text or json")
}
