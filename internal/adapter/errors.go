package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authgate/internal/log"
	"authgate/internal/provider"
)

// Op identifies an adapter operation in translated errors. One tagged type
// replaces a class hierarchy of near-identical per-operation errors.
type Op string

const (
	OpCreateUser                 Op = "CreateUser"
	OpGetUser                    Op = "GetUser"
	OpGetUserByEmail             Op = "GetUserByEmail"
	OpGetUserByProviderAccountID Op = "GetUserByProviderAccountId"
	OpUpdateUser                 Op = "UpdateUser"
	OpDeleteUser                 Op = "DeleteUser"
	OpLinkAccount                Op = "LinkAccount"
	OpUnlinkAccount              Op = "UnlinkAccount"
	OpCreateSession              Op = "CreateSession"
	OpGetSession                 Op = "GetSession"
	OpUpdateSession              Op = "UpdateSession"
	OpDeleteSession              Op = "DeleteSession"
	OpCreateVerificationRequest  Op = "CreateVerificationRequest"
	OpGetVerificationRequest     Op = "GetVerificationRequest"
	OpDeleteVerificationRequest  Op = "DeleteVerificationRequest"
)

// Error tags a failed adapter call with the operation that produced it.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%sError: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// OpOf extracts the operation tag from a translated error, or "" when the
// error did not come through the adapter boundary.
func OpOf(err error) Op {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Op
	}
	return ""
}

// logged wraps an Adapter so every call logs a debug line before invocation
// and failures are logged and re-raised as tagged errors. This is the single
// error-translation path for the persistence boundary.
type logged struct {
	inner Adapter
}

// WithLogging wraps an adapter in the error-translation layer.
func WithLogging(a Adapter) Adapter {
	return &logged{inner: a}
}

func translate(op Op, err error) error {
	if err == nil {
		return nil
	}
	log.Error("adapter call failed", "op", string(op), "error", err)
	return &Error{Op: op, Err: err}
}

func (l *logged) CreateUser(ctx context.Context, user *User) (*User, error) {
	log.Debug("adapter", "op", string(OpCreateUser))
	u, err := l.inner.CreateUser(ctx, user)
	return u, translate(OpCreateUser, err)
}

func (l *logged) GetUser(ctx context.Context, id string) (*User, error) {
	log.Debug("adapter", "op", string(OpGetUser))
	u, err := l.inner.GetUser(ctx, id)
	return u, translate(OpGetUser, err)
}

func (l *logged) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	log.Debug("adapter", "op", string(OpGetUserByEmail))
	u, err := l.inner.GetUserByEmail(ctx, email)
	return u, translate(OpGetUserByEmail, err)
}

func (l *logged) GetUserByProviderAccountID(ctx context.Context, providerID, providerAccountID string) (*User, error) {
	log.Debug("adapter", "op", string(OpGetUserByProviderAccountID))
	u, err := l.inner.GetUserByProviderAccountID(ctx, providerID, providerAccountID)
	return u, translate(OpGetUserByProviderAccountID, err)
}

func (l *logged) UpdateUser(ctx context.Context, user *User) (*User, error) {
	log.Debug("adapter", "op", string(OpUpdateUser))
	u, err := l.inner.UpdateUser(ctx, user)
	return u, translate(OpUpdateUser, err)
}

func (l *logged) DeleteUser(ctx context.Context, id string) error {
	log.Debug("adapter", "op", string(OpDeleteUser))
	return translate(OpDeleteUser, l.inner.DeleteUser(ctx, id))
}

func (l *logged) LinkAccount(ctx context.Context, userID string, account *provider.Account) error {
	log.Debug("adapter", "op", string(OpLinkAccount))
	return translate(OpLinkAccount, l.inner.LinkAccount(ctx, userID, account))
}

func (l *logged) UnlinkAccount(ctx context.Context, userID, providerID, providerAccountID string) error {
	log.Debug("adapter", "op", string(OpUnlinkAccount))
	return translate(OpUnlinkAccount, l.inner.UnlinkAccount(ctx, userID, providerID, providerAccountID))
}

func (l *logged) CreateSession(ctx context.Context, userID, sessionToken string, expires time.Time) (*Session, error) {
	log.Debug("adapter", "op", string(OpCreateSession))
	s, err := l.inner.CreateSession(ctx, userID, sessionToken, expires)
	return s, translate(OpCreateSession, err)
}

func (l *logged) GetSession(ctx context.Context, sessionToken string) (*Session, error) {
	log.Debug("adapter", "op", string(OpGetSession))
	s, err := l.inner.GetSession(ctx, sessionToken)
	return s, translate(OpGetSession, err)
}

func (l *logged) UpdateSession(ctx context.Context, session *Session) (*Session, error) {
	log.Debug("adapter", "op", string(OpUpdateSession))
	s, err := l.inner.UpdateSession(ctx, session)
	return s, translate(OpUpdateSession, err)
}

func (l *logged) DeleteSession(ctx context.Context, sessionToken string) error {
	log.Debug("adapter", "op", string(OpDeleteSession))
	return translate(OpDeleteSession, l.inner.DeleteSession(ctx, sessionToken))
}

func (l *logged) CreateVerificationRequest(ctx context.Context, identifier, hashedToken string, expires time.Time) (*VerificationRequest, error) {
	log.Debug("adapter", "op", string(OpCreateVerificationRequest))
	v, err := l.inner.CreateVerificationRequest(ctx, identifier, hashedToken, expires)
	return v, translate(OpCreateVerificationRequest, err)
}

func (l *logged) GetVerificationRequest(ctx context.Context, identifier, hashedToken string) (*VerificationRequest, error) {
	log.Debug("adapter", "op", string(OpGetVerificationRequest))
	v, err := l.inner.GetVerificationRequest(ctx, identifier, hashedToken)
	return v, translate(OpGetVerificationRequest, err)
}

func (l *logged) DeleteVerificationRequest(ctx context.Context, identifier, hashedToken string) error {
	log.Debug("adapter", "op", string(OpDeleteVerificationRequest))
	return translate(OpDeleteVerificationRequest, l.inner.DeleteVerificationRequest(ctx, identifier, hashedToken))
}
