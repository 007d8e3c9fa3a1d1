// stores.go
//
// Shared mock implementations of the token manager's Store and SessionCache
// contracts plus a scriptable oauth.Provider. Imported by test files across
// packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mailo-app/mailo/internal/oauth"
	"github.com/mailo-app/mailo/internal/store"
)

// MockStore implements token.Store for tests.
//
// Always stateful -- Tokens and Sessions are maps, like a real store.
// Use *Err fields to inject errors for specific operations.
type MockStore struct {
	UpsertTokensErr  error
	GetTokensErr     error
	DeleteTokensErr  error
	CreateSessionErr error
	GetSessionErr    error
	DeleteSessionErr error

	Tokens   map[string]*store.TokenRecord // keyed by email
	Sessions map[uuid.UUID]*store.Session

	mu sync.Mutex
}

// NewMockStore returns an empty MockStore ready for use.
func NewMockStore() *MockStore {
	return &MockStore{
		Tokens:   make(map[string]*store.TokenRecord),
		Sessions: make(map[uuid.UUID]*store.Session),
	}
}

func (m *MockStore) UpsertTokens(_ context.Context, email, accessCipher string, refreshCipher *string, expiresAt time.Time) error {
	if m.UpsertTokensErr != nil {
		return m.UpsertTokensErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Tokens == nil {
		m.Tokens = make(map[string]*store.TokenRecord)
	}
	rec, ok := m.Tokens[email]
	if !ok {
		rec = &store.TokenRecord{UserEmail: email, CreatedAt: time.Now()}
		m.Tokens[email] = rec
	}
	rec.AccessToken = accessCipher
	if refreshCipher != nil {
		rec.RefreshToken = refreshCipher
	}
	rec.ExpiresAt = expiresAt
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MockStore) GetTokens(_ context.Context, email string) (*store.TokenRecord, error) {
	if m.GetTokensErr != nil {
		return nil, m.GetTokensErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Tokens[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (m *MockStore) DeleteTokens(_ context.Context, email string) error {
	if m.DeleteTokensErr != nil {
		return m.DeleteTokensErr
	}
	m.mu.Lock()
	delete(m.Tokens, email)
	m.mu.Unlock()
	return nil
}

func (m *MockStore) CreateSession(_ context.Context, id uuid.UUID, email string, expiresAt time.Time) error {
	if m.CreateSessionErr != nil {
		return m.CreateSessionErr
	}
	m.mu.Lock()
	if m.Sessions == nil {
		m.Sessions = make(map[uuid.UUID]*store.Session)
	}
	m.Sessions[id] = &store.Session{
		ID:        id,
		UserEmail: email,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	m.mu.Unlock()
	return nil
}

func (m *MockStore) GetSession(_ context.Context, id uuid.UUID) (*store.Session, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *MockStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	if m.DeleteSessionErr != nil {
		return m.DeleteSessionErr
	}
	m.mu.Lock()
	delete(m.Sessions, id)
	m.mu.Unlock()
	return nil
}

// MockCache implements token.SessionCache for tests.
type MockCache struct {
	GetSessionErr    error
	SetSessionErr    error
	DeleteSessionErr error

	Sessions map[uuid.UUID]*store.CachedSession

	mu sync.Mutex
}

// NewMockCache returns an empty MockCache.
func NewMockCache() *MockCache {
	return &MockCache{Sessions: make(map[uuid.UUID]*store.CachedSession)}
}

func (m *MockCache) GetSession(_ context.Context, id uuid.UUID) (*store.CachedSession, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[id]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	cp := *s
	return &cp, nil
}

func (m *MockCache) SetSession(_ context.Context, sess store.Session) error {
	if m.SetSessionErr != nil {
		return m.SetSessionErr
	}
	m.mu.Lock()
	if m.Sessions == nil {
		m.Sessions = make(map[uuid.UUID]*store.CachedSession)
	}
	m.Sessions[sess.ID] = &store.CachedSession{
		UserEmail: sess.UserEmail,
		ExpiresAt: sess.ExpiresAt,
	}
	m.mu.Unlock()
	return nil
}

func (m *MockCache) DeleteSession(_ context.Context, id uuid.UUID) error {
	if m.DeleteSessionErr != nil {
		return m.DeleteSessionErr
	}
	m.mu.Lock()
	delete(m.Sessions, id)
	m.mu.Unlock()
	return nil
}

// MockProvider implements oauth.Provider with scriptable responses.
type MockProvider struct {
	AuthURL string

	ExchangeToken *oauth.Token
	ExchangeErr   error
	ExchangeCalls int

	RefreshResult *oauth.Token
	RefreshErr    error
	RefreshCalls  int

	IdentityEmail string
	IdentityErr   error

	mu sync.Mutex
}

func (m *MockProvider) AuthCodeURL(state string) string {
	return m.AuthURL + "?state=" + state
}

func (m *MockProvider) Exchange(_ context.Context, _ string) (*oauth.Token, error) {
	m.mu.Lock()
	m.ExchangeCalls++
	m.mu.Unlock()
	return m.ExchangeToken, m.ExchangeErr
}

func (m *MockProvider) Refresh(_ context.Context, _ string) (*oauth.Token, error) {
	m.mu.Lock()
	m.RefreshCalls++
	m.mu.Unlock()
	return m.RefreshResult, m.RefreshErr
}

func (m *MockProvider) Identity(_ context.Context, _ string) (*oauth.Identity, error) {
	if m.IdentityErr != nil {
		return nil, m.IdentityErr
	}
	return &oauth.Identity{Email: m.IdentityEmail}, nil
}
