// Package reconcile decides what a completed sign-in means: create a user,
// link a provider account to an existing one, reuse a linked identity, or
// refuse the attempt.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authgate/internal/adapter"
	"authgate/internal/log"
	"authgate/internal/provider"
	"authgate/internal/token"
)

// ErrAccountNotLinked is returned when a signed-in user completes an OAuth
// flow for an account that already belongs to somebody else. This is a
// permanent refusal, never auto-resolved.
var ErrAccountNotLinked = errors.New("account is linked to another user")

// Flow distinguishes the two reconciliation branches.
type Flow string

const (
	FlowEmail Flow = "email"
	FlowOAuth Flow = "oauth"
)

// Events receives lifecycle notifications. Handlers are best-effort: a
// failing handler is logged and swallowed, it never aborts the sign-in.
type Events struct {
	CreateUser  func(ctx context.Context, user *adapter.User) error
	UpdateUser  func(ctx context.Context, user *adapter.User) error
	LinkAccount func(ctx context.Context, user *adapter.User, account *provider.Account) error
	SignIn      func(ctx context.Context, user *adapter.User, account *provider.Account, isNewUser bool) error
	SignOut     func(ctx context.Context, session *adapter.Session) error
}

// Result is the outcome of a reconciliation.
type Result struct {
	User      *adapter.User
	Account   *provider.Account
	Session   *adapter.Session
	IsNewUser bool
}

// Engine resolves a verified profile and provider account against the
// persistence adapter. With a nil adapter it degrades to a stateless
// pass-through for token-only deployments.
type Engine struct {
	adapter       adapter.Adapter
	events        Events
	sessionMaxAge time.Duration
	tokenSessions bool
}

type Config struct {
	Adapter       adapter.Adapter
	Events        Events
	SessionMaxAge time.Duration
	TokenSessions bool
}

func New(cfg Config) *Engine {
	return &Engine{
		adapter:       cfg.Adapter,
		events:        cfg.Events,
		sessionMaxAge: cfg.SessionMaxAge,
		tokenSessions: cfg.TokenSessions,
	}
}

// SignIn runs the decision table. sessionToken is the inbound session cookie
// value, empty when the requester is anonymous.
func (e *Engine) SignIn(ctx context.Context, sessionToken string, profile *provider.Profile, account *provider.Account, flow Flow) (*Result, error) {
	if e.adapter == nil {
		return e.passthrough(profile, account), nil
	}
	current, currentUser := e.resolveSession(ctx, sessionToken)
	return e.SignInResolved(ctx, current, currentUser, profile, account, flow)
}

// SignInResolved runs the decision table with an already resolved signed-in
// state. Token-session deployments resolve identity from the token itself and
// enter here.
func (e *Engine) SignInResolved(ctx context.Context, current *adapter.Session, currentUser *adapter.User, profile *provider.Profile, account *provider.Account, flow Flow) (*Result, error) {
	if e.adapter == nil {
		return e.passthrough(profile, account), nil
	}

	switch flow {
	case FlowEmail:
		return e.signInEmail(ctx, current, currentUser, profile, account)
	case FlowOAuth:
		return e.signInOAuth(ctx, current, currentUser, profile, account)
	default:
		return nil, fmt.Errorf("unknown sign-in flow %q", flow)
	}
}

// SignOut revokes the database session for the given token, if any.
func (e *Engine) SignOut(ctx context.Context, sessionToken string) error {
	if e.adapter == nil || sessionToken == "" {
		return nil
	}
	sess, err := e.adapter.GetSession(ctx, sessionToken)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if err := e.adapter.DeleteSession(ctx, sessionToken); err != nil {
		return err
	}
	e.dispatch("signOut", func() error {
		if e.events.SignOut == nil {
			return nil
		}
		return e.events.SignOut(ctx, sess)
	})
	return nil
}

func (e *Engine) signInEmail(ctx context.Context, current *adapter.Session, currentUser *adapter.User, profile *provider.Profile, account *provider.Account) (*Result, error) {
	user, err := e.adapter.GetUserByEmail(ctx, profile.Email)
	if err != nil {
		return nil, err
	}

	isNewUser := false
	now := time.Now().UTC()

	if user != nil {
		// Signing in to an existing mailbox while holding somebody else's
		// session revokes that session first.
		if currentUser != nil && currentUser.ID != user.ID && !e.tokenSessions {
			if err := e.adapter.DeleteSession(ctx, current.SessionToken); err != nil {
				return nil, err
			}
		}
		user.EmailVerified = &now
		user, err = e.adapter.UpdateUser(ctx, user)
		if err != nil {
			return nil, err
		}
		e.dispatch("updateUser", func() error {
			if e.events.UpdateUser == nil {
				return nil
			}
			return e.events.UpdateUser(ctx, user)
		})
	} else {
		user, err = e.adapter.CreateUser(ctx, &adapter.User{
			Name:          profile.Name,
			Email:         profile.Email,
			EmailVerified: &now,
			Image:         profile.Image,
		})
		if err != nil {
			return nil, err
		}
		isNewUser = true
		e.dispatch("createUser", func() error {
			if e.events.CreateUser == nil {
				return nil
			}
			return e.events.CreateUser(ctx, user)
		})
	}

	sess, err := e.createSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.dispatchSignIn(ctx, user, account, isNewUser)
	return &Result{User: user, Account: account, Session: sess, IsNewUser: isNewUser}, nil
}

func (e *Engine) signInOAuth(ctx context.Context, current *adapter.Session, currentUser *adapter.User, profile *provider.Profile, account *provider.Account) (*Result, error) {
	owner, err := e.adapter.GetUserByProviderAccountID(ctx, account.Provider, account.ProviderAccountID)
	if err != nil {
		return nil, err
	}

	if owner != nil {
		if currentUser != nil {
			if currentUser.ID != owner.ID {
				return nil, ErrAccountNotLinked
			}
			// Already signed in as the account's owner.
			return &Result{User: currentUser, Account: account, Session: current}, nil
		}
		sess, err := e.createSession(ctx, owner)
		if err != nil {
			return nil, err
		}
		e.dispatchSignIn(ctx, owner, account, false)
		return &Result{User: owner, Account: account, Session: sess}, nil
	}

	// No account linked yet. A signed-in user is linking a new provider
	// identity to their own account.
	if currentUser != nil {
		if err := e.adapter.LinkAccount(ctx, currentUser.ID, account); err != nil {
			return nil, err
		}
		e.dispatch("linkAccount", func() error {
			if e.events.LinkAccount == nil {
				return nil
			}
			return e.events.LinkAccount(ctx, currentUser, account)
		})
		return &Result{User: currentUser, Account: account, Session: current}, nil
	}

	user, err := e.adapter.GetUserByEmail(ctx, profile.Email)
	if err != nil {
		return nil, err
	}

	isNewUser := false
	if user == nil {
		user, err = e.adapter.CreateUser(ctx, &adapter.User{
			Name:  profile.Name,
			Email: profile.Email,
			Image: profile.Image,
		})
		if err != nil {
			return nil, err
		}
		isNewUser = true
		e.dispatch("createUser", func() error {
			if e.events.CreateUser == nil {
				return nil
			}
			return e.events.CreateUser(ctx, user)
		})
	}

	if err := e.adapter.LinkAccount(ctx, user.ID, account); err != nil {
		return nil, err
	}
	linked := user
	e.dispatch("linkAccount", func() error {
		if e.events.LinkAccount == nil {
			return nil
		}
		return e.events.LinkAccount(ctx, linked, account)
	})

	sess, err := e.createSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.dispatchSignIn(ctx, user, account, isNewUser)
	return &Result{User: user, Account: account, Session: sess, IsNewUser: isNewUser}, nil
}

// resolveSession turns an inbound session token into a (session, user) pair.
// Anything short of a live session with an existing user counts as anonymous.
func (e *Engine) resolveSession(ctx context.Context, sessionToken string) (*adapter.Session, *adapter.User) {
	if sessionToken == "" {
		return nil, nil
	}
	sess, err := e.adapter.GetSession(ctx, sessionToken)
	if err != nil || sess == nil {
		return nil, nil
	}
	if time.Now().After(sess.Expires) {
		return nil, nil
	}
	user, err := e.adapter.GetUser(ctx, sess.UserID)
	if err != nil || user == nil {
		return nil, nil
	}
	return sess, user
}

// createSession persists a fresh session record. With token sessions the
// cookie itself carries identity and no record is written.
func (e *Engine) createSession(ctx context.Context, user *adapter.User) (*adapter.Session, error) {
	if e.tokenSessions {
		return nil, nil
	}
	tok, err := token.Random(32)
	if err != nil {
		return nil, err
	}
	return e.adapter.CreateSession(ctx, user.ID, tok, time.Now().Add(e.sessionMaxAge))
}

func (e *Engine) passthrough(profile *provider.Profile, account *provider.Account) *Result {
	user := &adapter.User{}
	if profile != nil {
		user.ID = profile.ID
		user.Name = profile.Name
		user.Email = profile.Email
		user.Image = profile.Image
	}
	return &Result{User: user, Account: account, Session: &adapter.Session{}}
}

func (e *Engine) dispatchSignIn(ctx context.Context, user *adapter.User, account *provider.Account, isNewUser bool) {
	e.dispatch("signIn", func() error {
		if e.events.SignIn == nil {
			return nil
		}
		return e.events.SignIn(ctx, user, account, isNewUser)
	})
}

// dispatch runs an event handler, logging and swallowing its failure.
func (e *Engine) dispatch(name string, fn func() error) {
	if err := fn(); err != nil {
		log.Error("event handler failed", "event", name, "error", err)
	}
}
