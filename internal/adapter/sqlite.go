package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"authgate/internal/db"
	"authgate/internal/provider"
)

// SQLite persists the gateway's records in the embedded sqlite database.
type SQLite struct {
	db *db.DB
}

// NewSQLite creates a sqlite-backed adapter on an opened, migrated database.
func NewSQLite(database *db.DB) *SQLite {
	return &SQLite{db: database}
}

func (s *SQLite) CreateUser(ctx context.Context, user *User) (*User, error) {
	id := uuid.New().String()

	var verified any
	if user.EmailVerified != nil {
		verified = user.EmailVerified.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_users (id, name, email, email_verified, image)
		VALUES (?, ?, ?, ?, ?)
	`, id, nullable(user.Name), nullable(user.Email), verified, nullable(user.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.GetUser(ctx, id)
}

func (s *SQLite) GetUser(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, email_verified, image FROM auth_users WHERE id = ?
	`, id))
}

func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, nil
	}
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, email_verified, image FROM auth_users WHERE email = ?
	`, email))
}

func (s *SQLite) GetUserByProviderAccountID(ctx context.Context, providerID, providerAccountID string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.email, u.email_verified, u.image
		FROM auth_users u
		JOIN auth_accounts a ON a.user_id = u.id
		WHERE a.provider = ? AND a.provider_account_id = ?
	`, providerID, providerAccountID))
}

func (s *SQLite) UpdateUser(ctx context.Context, user *User) (*User, error) {
	var verified any
	if user.EmailVerified != nil {
		verified = user.EmailVerified.UTC().Format(time.RFC3339)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE auth_users
		SET name = ?, email = ?, email_verified = ?, image = ?, updated_at = datetime('now')
		WHERE id = ?
	`, nullable(user.Name), nullable(user.Email), verified, nullable(user.Image), user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %s not found", user.ID)
	}

	return s.GetUser(ctx, user.ID)
}

func (s *SQLite) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM auth_users WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *SQLite) LinkAccount(ctx context.Context, userID string, account *provider.Account) error {
	var expires any
	if account.AccessTokenExpires != nil {
		expires = account.AccessTokenExpires.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_accounts (id, user_id, provider, provider_account_id, provider_type,
		                           access_token, refresh_token, access_token_expires, id_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), userID, account.Provider, account.ProviderAccountID, string(account.Type),
		nullable(account.AccessToken), nullable(account.RefreshToken), expires, nullable(account.IDToken))
	if err != nil {
		return fmt.Errorf("failed to link account: %w", err)
	}
	return nil
}

func (s *SQLite) UnlinkAccount(ctx context.Context, userID, providerID, providerAccountID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_accounts WHERE user_id = ? AND provider = ? AND provider_account_id = ?
	`, userID, providerID, providerAccountID)
	if err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account not linked")
	}
	return nil
}

func (s *SQLite) CreateSession(ctx context.Context, userID, sessionToken string, expires time.Time) (*Session, error) {
	id := uuid.New().String()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (id, session_token, user_id, expires)
		VALUES (?, ?, ?, ?)
	`, id, sessionToken, userID, expires.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Session{ID: id, SessionToken: sessionToken, UserID: userID, Expires: expires.UTC()}, nil
}

func (s *SQLite) GetSession(ctx context.Context, sessionToken string) (*Session, error) {
	var sess Session
	var expires string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_token, user_id, expires FROM auth_sessions WHERE session_token = ?
	`, sessionToken).Scan(&sess.ID, &sess.SessionToken, &sess.UserID, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess.Expires, err = time.Parse(time.RFC3339, expires)
	if err != nil {
		return nil, fmt.Errorf("parse session expires: %w", err)
	}
	return &sess, nil
}

func (s *SQLite) UpdateSession(ctx context.Context, session *Session) (*Session, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE auth_sessions SET expires = ? WHERE session_token = ?
	`, session.Expires.UTC().Format(time.RFC3339), session.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("session not found")
	}
	return session, nil
}

func (s *SQLite) DeleteSession(ctx context.Context, sessionToken string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM auth_sessions WHERE session_token = ?", sessionToken); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLite) CreateVerificationRequest(ctx context.Context, identifier, hashedToken string, expires time.Time) (*VerificationRequest, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_verification_requests (identifier, token, expires)
		VALUES (?, ?, ?)
	`, identifier, hashedToken, expires.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	return &VerificationRequest{Identifier: identifier, Token: hashedToken, Expires: expires.UTC()}, nil
}

func (s *SQLite) GetVerificationRequest(ctx context.Context, identifier, hashedToken string) (*VerificationRequest, error) {
	var v VerificationRequest
	var expires string

	err := s.db.QueryRowContext(ctx, `
		SELECT identifier, token, expires FROM auth_verification_requests
		WHERE identifier = ? AND token = ?
	`, identifier, hashedToken).Scan(&v.Identifier, &v.Token, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}

	v.Expires, err = time.Parse(time.RFC3339, expires)
	if err != nil {
		return nil, fmt.Errorf("parse verification expires: %w", err)
	}

	// Expired requests are deleted on detection and reported absent.
	if time.Now().After(v.Expires) {
		if derr := s.DeleteVerificationRequest(ctx, identifier, hashedToken); derr != nil {
			return nil, derr
		}
		return nil, nil
	}
	return &v, nil
}

func (s *SQLite) DeleteVerificationRequest(ctx context.Context, identifier, hashedToken string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_verification_requests WHERE identifier = ? AND token = ?
	`, identifier, hashedToken)
	if err != nil {
		return fmt.Errorf("failed to delete verification request: %w", err)
	}
	return nil
}

func (s *SQLite) scanUser(row *sql.Row) (*User, error) {
	var u User
	var name, email, verified, image sql.NullString

	err := row.Scan(&u.ID, &name, &email, &verified, &image)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Name = name.String
	u.Email = email.String
	u.Image = image.String
	if verified.Valid {
		t, perr := time.Parse(time.RFC3339, verified.String)
		if perr == nil {
			u.EmailVerified = &t
		}
	}
	return &u, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
