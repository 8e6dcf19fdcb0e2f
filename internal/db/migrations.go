package db

import "fmt"

const gatewaySchema = `
CREATE TABLE IF NOT EXISTS auth_users (
    id              TEXT PRIMARY KEY,
    name            TEXT,
    email           TEXT UNIQUE,
    email_verified  TEXT,
    image           TEXT,
    created_at      TEXT DEFAULT (datetime('now')),
    updated_at      TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_auth_users_email ON auth_users(email);

CREATE TABLE IF NOT EXISTS auth_accounts (
    id                    TEXT PRIMARY KEY,
    user_id               TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    provider              TEXT NOT NULL,
    provider_account_id   TEXT NOT NULL,
    provider_type         TEXT NOT NULL,
    access_token          TEXT,
    refresh_token         TEXT,
    access_token_expires  TEXT,
    id_token              TEXT,
    created_at            TEXT DEFAULT (datetime('now')),
    UNIQUE(provider, provider_account_id)
);

CREATE INDEX IF NOT EXISTS idx_auth_accounts_user_id ON auth_accounts(user_id);

CREATE TABLE IF NOT EXISTS auth_sessions (
    id             TEXT PRIMARY KEY,
    session_token  TEXT UNIQUE NOT NULL,
    user_id        TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    expires        TEXT NOT NULL,
    created_at     TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_auth_sessions_token ON auth_sessions(session_token);
CREATE INDEX IF NOT EXISTS idx_auth_sessions_user_id ON auth_sessions(user_id);

CREATE TABLE IF NOT EXISTS auth_verification_requests (
    identifier  TEXT NOT NULL,
    token       TEXT NOT NULL,
    expires     TEXT NOT NULL,
    created_at  TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (identifier, token)
);

CREATE TABLE IF NOT EXISTS auth_credentials (
    email          TEXT PRIMARY KEY,
    password_hash  TEXT NOT NULL,
    created_at     TEXT DEFAULT (datetime('now'))
);
`

// RunMigrations creates the gateway schema if it does not exist.
func (db *DB) RunMigrations() error {
	if _, err := db.Exec(gatewaySchema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
