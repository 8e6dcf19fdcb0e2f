package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"authgate/internal/provider"
)

// Memory is an in-process adapter for tests and single-node development.
type Memory struct {
	mu            sync.Mutex
	users         map[string]*User
	accounts      map[string]linkedAccount // provider+providerAccountID → link
	sessions      map[string]*Session      // sessionToken → session
	verifications map[string]*VerificationRequest
}

type linkedAccount struct {
	userID  string
	account provider.Account
}

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]*User),
		accounts:      make(map[string]linkedAccount),
		sessions:      make(map[string]*Session),
		verifications: make(map[string]*VerificationRequest),
	}
}

func accountKey(providerID, providerAccountID string) string {
	return providerID + ":" + providerAccountID
}

func (m *Memory) CreateUser(_ context.Context, user *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.Email != "" {
		for _, u := range m.users {
			if u.Email == user.Email {
				return nil, fmt.Errorf("user with email %s already exists", user.Email)
			}
		}
	}

	created := *user
	created.ID = uuid.New().String()
	m.users[created.ID] = &created

	out := created
	return &out, nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if email == "" {
		return nil, nil
	}
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetUserByProviderAccountID(_ context.Context, providerID, providerAccountID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.accounts[accountKey(providerID, providerAccountID)]
	if !ok {
		return nil, nil
	}
	u, ok := m.users[link.userID]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (m *Memory) UpdateUser(_ context.Context, user *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return nil, fmt.Errorf("user %s not found", user.ID)
	}
	updated := *user
	m.users[user.ID] = &updated

	out := updated
	return &out, nil
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.users, id)
	for key, link := range m.accounts {
		if link.userID == id {
			delete(m.accounts, key)
		}
	}
	for tok, s := range m.sessions {
		if s.UserID == id {
			delete(m.sessions, tok)
		}
	}
	return nil
}

func (m *Memory) LinkAccount(_ context.Context, userID string, account *provider.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountKey(account.Provider, account.ProviderAccountID)
	if _, exists := m.accounts[key]; exists {
		return fmt.Errorf("account %s already linked", key)
	}
	m.accounts[key] = linkedAccount{userID: userID, account: *account}
	return nil
}

func (m *Memory) UnlinkAccount(_ context.Context, userID, providerID, providerAccountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountKey(providerID, providerAccountID)
	link, ok := m.accounts[key]
	if !ok || link.userID != userID {
		return fmt.Errorf("account %s not linked to user %s", key, userID)
	}
	delete(m.accounts, key)
	return nil
}

func (m *Memory) CreateSession(_ context.Context, userID, sessionToken string, expires time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:           uuid.New().String(),
		SessionToken: sessionToken,
		UserID:       userID,
		Expires:      expires,
	}
	m.sessions[sessionToken] = s

	out := *s
	return &out, nil
}

func (m *Memory) GetSession(_ context.Context, sessionToken string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionToken]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (m *Memory) UpdateSession(_ context.Context, session *Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.SessionToken]; !ok {
		return nil, fmt.Errorf("session not found")
	}
	updated := *session
	m.sessions[session.SessionToken] = &updated

	out := updated
	return &out, nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionToken)
	return nil
}

func (m *Memory) CreateVerificationRequest(_ context.Context, identifier, hashedToken string, expires time.Time) (*VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := &VerificationRequest{
		Identifier: identifier,
		Token:      hashedToken,
		Expires:    expires,
	}
	m.verifications[identifier+":"+hashedToken] = v

	out := *v
	return &out, nil
}

func (m *Memory) GetVerificationRequest(_ context.Context, identifier, hashedToken string) (*VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.verifications[identifier+":"+hashedToken]
	if !ok {
		return nil, nil
	}
	// Expired requests are deleted on detection and reported absent.
	if time.Now().After(v.Expires) {
		delete(m.verifications, identifier+":"+hashedToken)
		return nil, nil
	}
	out := *v
	return &out, nil
}

func (m *Memory) DeleteVerificationRequest(_ context.Context, identifier, hashedToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.verifications, identifier+":"+hashedToken)
	return nil
}
