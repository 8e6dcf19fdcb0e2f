package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"authgate/internal/provider"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS auth_users (
    id              TEXT PRIMARY KEY,
    name            TEXT,
    email           TEXT UNIQUE,
    email_verified  TIMESTAMPTZ,
    image           TEXT,
    created_at      TIMESTAMPTZ DEFAULT now(),
    updated_at      TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS auth_accounts (
    id                    TEXT PRIMARY KEY,
    user_id               TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    provider              TEXT NOT NULL,
    provider_account_id   TEXT NOT NULL,
    provider_type         TEXT NOT NULL,
    access_token          TEXT,
    refresh_token         TEXT,
    access_token_expires  TIMESTAMPTZ,
    id_token              TEXT,
    created_at            TIMESTAMPTZ DEFAULT now(),
    UNIQUE(provider, provider_account_id)
);

CREATE TABLE IF NOT EXISTS auth_sessions (
    id             TEXT PRIMARY KEY,
    session_token  TEXT UNIQUE NOT NULL,
    user_id        TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
    expires        TIMESTAMPTZ NOT NULL,
    created_at     TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS auth_verification_requests (
    identifier  TEXT NOT NULL,
    token       TEXT NOT NULL,
    expires     TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ DEFAULT now(),
    PRIMARY KEY (identifier, token)
);
`

// Postgres persists the gateway's records in PostgreSQL via pgx.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the given DSN and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) CreateUser(ctx context.Context, user *User) (*User, error) {
	id := uuid.New().String()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO auth_users (id, name, email, email_verified, image)
		VALUES ($1, $2, $3, $4, $5)
	`, id, nullable(user.Name), nullable(user.Email), user.EmailVerified, nullable(user.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return p.GetUser(ctx, id)
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*User, error) {
	return p.scanUser(p.pool.QueryRow(ctx, `
		SELECT id, name, email, email_verified, image FROM auth_users WHERE id = $1
	`, id))
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, nil
	}
	return p.scanUser(p.pool.QueryRow(ctx, `
		SELECT id, name, email, email_verified, image FROM auth_users WHERE email = $1
	`, email))
}

func (p *Postgres) GetUserByProviderAccountID(ctx context.Context, providerID, providerAccountID string) (*User, error) {
	return p.scanUser(p.pool.QueryRow(ctx, `
		SELECT u.id, u.name, u.email, u.email_verified, u.image
		FROM auth_users u
		JOIN auth_accounts a ON a.user_id = u.id
		WHERE a.provider = $1 AND a.provider_account_id = $2
	`, providerID, providerAccountID))
}

func (p *Postgres) UpdateUser(ctx context.Context, user *User) (*User, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE auth_users
		SET name = $1, email = $2, email_verified = $3, image = $4, updated_at = now()
		WHERE id = $5
	`, nullable(user.Name), nullable(user.Email), user.EmailVerified, nullable(user.Image), user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("user %s not found", user.ID)
	}

	return p.GetUser(ctx, user.ID)
}

func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM auth_users WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (p *Postgres) LinkAccount(ctx context.Context, userID string, account *provider.Account) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO auth_accounts (id, user_id, provider, provider_account_id, provider_type,
		                           access_token, refresh_token, access_token_expires, id_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New().String(), userID, account.Provider, account.ProviderAccountID, string(account.Type),
		nullable(account.AccessToken), nullable(account.RefreshToken), account.AccessTokenExpires, nullable(account.IDToken))
	if err != nil {
		return fmt.Errorf("failed to link account: %w", err)
	}
	return nil
}

func (p *Postgres) UnlinkAccount(ctx context.Context, userID, providerID, providerAccountID string) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM auth_accounts WHERE user_id = $1 AND provider = $2 AND provider_account_id = $3
	`, userID, providerID, providerAccountID)
	if err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account not linked")
	}
	return nil
}

func (p *Postgres) CreateSession(ctx context.Context, userID, sessionToken string, expires time.Time) (*Session, error) {
	id := uuid.New().String()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO auth_sessions (id, session_token, user_id, expires)
		VALUES ($1, $2, $3, $4)
	`, id, sessionToken, userID, expires.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Session{ID: id, SessionToken: sessionToken, UserID: userID, Expires: expires.UTC()}, nil
}

func (p *Postgres) GetSession(ctx context.Context, sessionToken string) (*Session, error) {
	var sess Session

	err := p.pool.QueryRow(ctx, `
		SELECT id, session_token, user_id, expires FROM auth_sessions WHERE session_token = $1
	`, sessionToken).Scan(&sess.ID, &sess.SessionToken, &sess.UserID, &sess.Expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

func (p *Postgres) UpdateSession(ctx context.Context, session *Session) (*Session, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE auth_sessions SET expires = $1 WHERE session_token = $2
	`, session.Expires.UTC(), session.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("session not found")
	}
	return session, nil
}

func (p *Postgres) DeleteSession(ctx context.Context, sessionToken string) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM auth_sessions WHERE session_token = $1", sessionToken); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (p *Postgres) CreateVerificationRequest(ctx context.Context, identifier, hashedToken string, expires time.Time) (*VerificationRequest, error) {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO auth_verification_requests (identifier, token, expires)
		VALUES ($1, $2, $3)
	`, identifier, hashedToken, expires.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	return &VerificationRequest{Identifier: identifier, Token: hashedToken, Expires: expires.UTC()}, nil
}

func (p *Postgres) GetVerificationRequest(ctx context.Context, identifier, hashedToken string) (*VerificationRequest, error) {
	var v VerificationRequest

	err := p.pool.QueryRow(ctx, `
		SELECT identifier, token, expires FROM auth_verification_requests
		WHERE identifier = $1 AND token = $2
	`, identifier, hashedToken).Scan(&v.Identifier, &v.Token, &v.Expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}

	if time.Now().After(v.Expires) {
		if derr := p.DeleteVerificationRequest(ctx, identifier, hashedToken); derr != nil {
			return nil, derr
		}
		return nil, nil
	}
	return &v, nil
}

func (p *Postgres) DeleteVerificationRequest(ctx context.Context, identifier, hashedToken string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM auth_verification_requests WHERE identifier = $1 AND token = $2
	`, identifier, hashedToken)
	if err != nil {
		return fmt.Errorf("failed to delete verification request: %w", err)
	}
	return nil
}

func (p *Postgres) scanUser(row pgx.Row) (*User, error) {
	var u User
	var name, email, image *string

	err := row.Scan(&u.ID, &name, &email, &u.EmailVerified, &image)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if name != nil {
		u.Name = *name
	}
	if email != nil {
		u.Email = *email
	}
	if image != nil {
		u.Image = *image
	}
	return &u, nil
}
