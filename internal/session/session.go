// Package session turns a reconciliation outcome into a live session, either
// a signed/encrypted token or a server-side record with a rolling expiry.
package session

import (
	"context"
	"fmt"
	"time"

	"authgate/internal/adapter"
	"authgate/internal/jwt"
)

// Strategy selects how sessions are materialized. The choice is made once at
// configuration time; the two strategies are mutually exclusive.
type Strategy string

const (
	StrategyJWT      Strategy = "jwt"
	StrategyDatabase Strategy = "database"
)

const (
	// DefaultMaxAge is the session lifetime.
	DefaultMaxAge = 30 * 24 * time.Hour
	// DefaultUpdateAge is how long a database session record may go without
	// its expiry being rolled forward.
	DefaultUpdateAge = 24 * time.Hour
)

// State is a resolved session. Token is the cookie value the caller should
// set on the response; for token sessions it is re-encoded on every read.
type State struct {
	User    *adapter.User
	Expires time.Time
	Token   string
}

type Config struct {
	Strategy  Strategy
	JWT       jwt.Options
	Adapter   adapter.Adapter
	MaxAge    time.Duration
	UpdateAge time.Duration
}

// Issuer establishes and resolves sessions under one strategy.
type Issuer struct {
	strategy  Strategy
	jwtOpts   jwt.Options
	adapter   adapter.Adapter
	maxAge    time.Duration
	updateAge time.Duration

	now func() time.Time
}

func New(cfg Config) *Issuer {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	updateAge := cfg.UpdateAge
	if updateAge <= 0 {
		updateAge = DefaultUpdateAge
	}
	jwtOpts := cfg.JWT
	jwtOpts.MaxAge = maxAge

	return &Issuer{
		strategy:  cfg.Strategy,
		jwtOpts:   jwtOpts,
		adapter:   cfg.Adapter,
		maxAge:    maxAge,
		updateAge: updateAge,
		now:       time.Now,
	}
}

// Strategy reports the configured strategy.
func (i *Issuer) Strategy() Strategy {
	return i.strategy
}

// Issue establishes a session for a fresh sign-in. With the database strategy
// the record comes from reconciliation and its expiry is persisted
// unconditionally; the rolling window does not apply to fresh logins.
func (i *Issuer) Issue(ctx context.Context, user *adapter.User, sess *adapter.Session) (*State, error) {
	if i.strategy == StrategyJWT {
		return i.encode(user)
	}

	if sess == nil {
		return nil, fmt.Errorf("database session strategy requires a session record")
	}
	rolled, err := i.touch(ctx, sess, true)
	if err != nil {
		return nil, err
	}
	return &State{User: user, Expires: rolled.Expires, Token: rolled.SessionToken}, nil
}

// Resolve turns an inbound cookie value into a session state. Invalid,
// unknown, and expired tokens all resolve to (nil, nil); resolution failure
// is never an error to the caller.
func (i *Issuer) Resolve(ctx context.Context, tokenValue string) (*State, error) {
	if tokenValue == "" {
		return nil, nil
	}
	if i.strategy == StrategyJWT {
		return i.resolveJWT(tokenValue)
	}
	return i.resolveDatabase(ctx, tokenValue)
}

// Invalidate removes a database session record. Token sessions cannot be
// revoked server-side; clearing the cookie is the whole operation.
func (i *Issuer) Invalidate(ctx context.Context, tokenValue string) error {
	if i.strategy == StrategyJWT || tokenValue == "" {
		return nil
	}
	return i.adapter.DeleteSession(ctx, tokenValue)
}

func (i *Issuer) encode(user *adapter.User) (*State, error) {
	claims := map[string]any{
		"sub":     user.ID,
		"name":    user.Name,
		"email":   user.Email,
		"picture": user.Image,
	}
	expires := i.now().Add(i.maxAge)
	claims["exp"] = expires.Unix()

	encoded, err := jwt.Encode(i.jwtOpts, claims)
	if err != nil {
		return nil, err
	}
	return &State{User: user, Expires: expires, Token: encoded}, nil
}

// resolveJWT decodes the token and re-encodes it so the cookie expiry resets
// on every response that touches the session.
func (i *Issuer) resolveJWT(tokenValue string) (*State, error) {
	claims, err := jwt.Decode(i.jwtOpts, tokenValue)
	if err != nil {
		return nil, nil
	}

	user := &adapter.User{
		ID:    claimString(claims, "sub"),
		Name:  claimString(claims, "name"),
		Email: claimString(claims, "email"),
		Image: claimString(claims, "picture"),
	}
	return i.encode(user)
}

func (i *Issuer) resolveDatabase(ctx context.Context, tokenValue string) (*State, error) {
	sess, err := i.adapter.GetSession(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	// Expired records are deleted lazily on read.
	if i.now().After(sess.Expires) {
		if err := i.adapter.DeleteSession(ctx, tokenValue); err != nil {
			return nil, err
		}
		return nil, nil
	}

	sess, err = i.touch(ctx, sess, false)
	if err != nil {
		return nil, err
	}

	user, err := i.adapter.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return &State{User: user, Expires: sess.Expires, Token: sess.SessionToken}, nil
}

// touch applies the rolling expiry rule: the record is rewritten only once
// the session has aged past updateAge, unless force persists it regardless.
func (i *Issuer) touch(ctx context.Context, sess *adapter.Session, force bool) (*adapter.Session, error) {
	now := i.now()
	if !force && !now.After(sess.Expires.Add(-i.maxAge).Add(i.updateAge)) {
		return sess, nil
	}
	sess.Expires = now.Add(i.maxAge)
	return i.adapter.UpdateSession(ctx, sess)
}

func claimString(claims map[string]any, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}
