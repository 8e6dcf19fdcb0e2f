// Package adapter defines the persistence contract backing users, linked
// accounts, sessions, and email verification requests, plus the concrete
// sqlite, postgres, and in-memory implementations.
//
// Lookup methods return (nil, nil) when no row matches; "not found" is a
// normal reconciliation input, not an error.
package adapter

import (
	"context"
	"time"

	"authgate/internal/provider"
)

// User is the application-side identity record.
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Email         string     `json:"email,omitempty"`
	EmailVerified *time.Time `json:"emailVerified,omitempty"`
	Image         string     `json:"image,omitempty"`
}

// Session is a server-side session record. Only used with the database
// session strategy.
type Session struct {
	ID           string    `json:"id"`
	SessionToken string    `json:"sessionToken"`
	UserID       string    `json:"userId"`
	Expires      time.Time `json:"expires"`
}

// VerificationRequest is a pending magic-link token. Token holds the hashed
// value; the clear token only ever lives in the email.
type VerificationRequest struct {
	Identifier string    `json:"identifier"`
	Token      string    `json:"token"`
	Expires    time.Time `json:"expires"`
}

// Adapter is the persistence contract (spec'd external collaborator). All
// implementations are selected explicitly at startup.
type Adapter interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByProviderAccountID(ctx context.Context, providerID, providerAccountID string) (*User, error)
	UpdateUser(ctx context.Context, user *User) (*User, error)
	DeleteUser(ctx context.Context, id string) error

	LinkAccount(ctx context.Context, userID string, account *provider.Account) error
	UnlinkAccount(ctx context.Context, userID, providerID, providerAccountID string) error

	CreateSession(ctx context.Context, userID, sessionToken string, expires time.Time) (*Session, error)
	GetSession(ctx context.Context, sessionToken string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) (*Session, error)
	DeleteSession(ctx context.Context, sessionToken string) error

	CreateVerificationRequest(ctx context.Context, identifier, hashedToken string, expires time.Time) (*VerificationRequest, error)
	GetVerificationRequest(ctx context.Context, identifier, hashedToken string) (*VerificationRequest, error)
	DeleteVerificationRequest(ctx context.Context, identifier, hashedToken string) error
}
