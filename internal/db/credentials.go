package db

import (
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SetPassword stores a bcrypt hash for a credentials user, replacing any
// existing one.
func (db *DB) SetPassword(email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO auth_credentials (email, password_hash) VALUES (?, ?)
		ON CONFLICT(email) DO UPDATE SET password_hash = excluded.password_hash
	`, email, string(hash))
	if err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

// VerifyPassword checks a password against the stored hash. An unknown email
// verifies false without error.
func (db *DB) VerifyPassword(email, password string) (bool, error) {
	var hash string
	err := db.QueryRow("SELECT password_hash FROM auth_credentials WHERE email = ?", email).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read credentials: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}
