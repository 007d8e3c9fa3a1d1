// Package token owns the OAuth token and session lifecycles.
//
// Tokens: save, fetch, and lazily refresh Google access tokens, encrypted at
// rest through the vault. Sessions: create, fetch, expire, delete, with an
// optional Redis cache in front of Postgres.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mailo-app/mailo/internal/oauth"
	"github.com/mailo-app/mailo/internal/store"
	"github.com/mailo-app/mailo/internal/vault"
)

// refreshBuffer is the minimum remaining access-token life before a refresh is
// forced. Tokens expiring within the buffer are treated as already stale so a
// downstream Gmail call never races the expiry.
const refreshBuffer = 60 * time.Second

// DefaultSessionTTL is the absolute session lifetime.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Store defines the database operations the manager needs.
// Satisfied by *store.PostgresStore -- defined here (at consumer) per Go convention.
type Store interface {
	// UpsertTokens replaces the access token and expiry for email; a nil
	// refreshCipher preserves the previously stored refresh token.
	UpsertTokens(ctx context.Context, email, accessCipher string, refreshCipher *string, expiresAt time.Time) error

	// GetTokens fetches the token row; pgx.ErrNoRows when absent.
	GetTokens(ctx context.Context, email string) (*store.TokenRecord, error)

	// DeleteTokens removes the token row. No-op if absent.
	DeleteTokens(ctx context.Context, email string) error

	// CreateSession inserts a session row with a caller-generated id.
	CreateSession(ctx context.Context, id uuid.UUID, email string, expiresAt time.Time) error

	// GetSession fetches a session row, expired or not; pgx.ErrNoRows when absent.
	GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error)

	// DeleteSession removes a session row. No-op if absent.
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// SessionCache defines the cache operations the manager needs.
// Satisfied by *store.RedisCache and store.NoopCache.
type SessionCache interface {
	// GetSession returns the cached session or store.ErrCacheMiss.
	GetSession(ctx context.Context, id uuid.UUID) (*store.CachedSession, error)

	// SetSession caches a session for its remaining TTL.
	SetSession(ctx context.Context, sess store.Session) error

	// DeleteSession drops a cached session. No-op if absent.
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// Refresher is the one provider operation the manager depends on.
// Satisfied by *oauth.GoogleProvider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error)
}

// Tokens is a decrypted token record. RefreshToken is empty when the provider
// never issued one.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Manager owns token and session lifecycle. Safe for concurrent use.
type Manager struct {
	PS         Store
	Cache      SessionCache
	Vault      *vault.Vault
	Provider   Refresher
	SessionTTL time.Duration

	// refreshMu guards refreshLocks; one lock per email serialises concurrent
	// refreshes so near-expiry requests don't all hit Google's token endpoint.
	refreshMu    sync.Mutex
	refreshLocks map[string]*sync.Mutex

	// now is swapped out in tests.
	now func() time.Time
}

// New returns a Manager with the default 7-day session TTL.
func New(ps Store, cache SessionCache, v *vault.Vault, provider Refresher) *Manager {
	return &Manager{
		PS:           ps,
		Cache:        cache,
		Vault:        v,
		Provider:     provider,
		SessionTTL:   DefaultSessionTTL,
		refreshLocks: make(map[string]*sync.Mutex),
		now:          time.Now,
	}
}

// SaveTokens encrypts and upserts token material for email.
// Absolute expiry = now + ExpiresIn. When the provider omitted the refresh
// token, the stored one survives the upsert.
func (m *Manager) SaveTokens(ctx context.Context, email string, tok *oauth.Token) error {
	expiresAt := m.clock().Add(time.Duration(tok.ExpiresIn) * time.Second)

	accessCipher, err := m.Vault.Encrypt(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}

	var refreshCipher *string
	if tok.RefreshToken != "" {
		rc, err := m.Vault.Encrypt(tok.RefreshToken)
		if err != nil {
			return fmt.Errorf("encrypting refresh token: %w", err)
		}
		refreshCipher = &rc
	}

	if err := m.PS.UpsertTokens(ctx, email, accessCipher, refreshCipher, expiresAt); err != nil {
		return fmt.Errorf("upserting tokens: %w", err)
	}
	return nil
}

// GetTokens fetches and decrypts the token record for email.
// Returns (nil, nil) when the user never authorized. A decryption failure --
// secret rotation, corrupt row -- deletes the row and also returns (nil, nil):
// forcing re-authorization beats serving corrupt state, and the caller can't
// tell the difference from "never authenticated". That is the point.
func (m *Manager) GetTokens(ctx context.Context, email string) (*Tokens, error) {
	rec, err := m.PS.GetTokens(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching tokens: %w", err)
	}

	access, err := m.Vault.Decrypt(rec.AccessToken)
	var refresh string
	if err == nil && rec.RefreshToken != nil {
		refresh, err = m.Vault.Decrypt(*rec.RefreshToken)
	}
	if err == nil {
		return &Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: rec.ExpiresAt}, nil
	}
	if !errors.Is(err, vault.ErrDecryption) {
		return nil, err
	}

	// Self-heal: stored ciphertext no longer decrypts under the current secret.
	slog.Warn("stored tokens failed to decrypt, deleting row to force re-auth", "email", email)
	if delErr := m.PS.DeleteTokens(ctx, email); delErr != nil {
		return nil, fmt.Errorf("deleting undecryptable tokens: %w", delErr)
	}
	return nil, nil
}

// GetValidAccessToken returns an access token with at least refreshBuffer of
// life left, refreshing through the provider when needed and persisting the
// result. Returns ("", nil) when the user must re-authorize (no tokens, or no
// refresh token). A provider refresh failure propagates -- the refresh token is
// presumed revoked and retrying the same call cannot fix that.
func (m *Manager) GetValidAccessToken(ctx context.Context, email string) (string, error) {
	// Serialise per email so concurrent near-expiry requests produce one
	// refresh call instead of racing duplicates.
	lock := m.emailLock(email)
	lock.Lock()
	defer lock.Unlock()

	tokens, err := m.GetTokens(ctx, email)
	if err != nil {
		return "", err
	}
	if tokens == nil {
		return "", nil
	}

	if tokens.ExpiresAt.Sub(m.clock()) > refreshBuffer {
		return tokens.AccessToken, nil
	}

	if tokens.RefreshToken == "" {
		return "", nil
	}

	refreshed, err := m.Provider.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refreshing access token for %s: %w", email, err)
	}
	if err := m.SaveTokens(ctx, email, refreshed); err != nil {
		return "", err
	}

	slog.Info("access token refreshed", "email", email)
	return refreshed.AccessToken, nil
}

// CreateSession issues a new session for email, valid for SessionTTL.
func (m *Manager) CreateSession(ctx context.Context, email string) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generating session id: %w", err)
	}

	sess := store.Session{
		ID:        id,
		UserEmail: email,
		ExpiresAt: m.clock().Add(m.SessionTTL),
	}
	if err := m.PS.CreateSession(ctx, id, email, sess.ExpiresAt); err != nil {
		return uuid.Nil, fmt.Errorf("creating session: %w", err)
	}

	// Cache is best-effort; Postgres is the source of truth.
	if err := m.Cache.SetSession(ctx, sess); err != nil {
		slog.Warn("failed to cache session", "error", err)
	}
	return id, nil
}

// GetSession resolves a session id. Returns (nil, nil) when the session is
// absent or expired; expired rows are deleted on the way out (lazy expiry).
func (m *Manager) GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	// Redis fast path. TTL already evicts stale keys, but re-check expiry
	// anyway -- the cache TTL and the row expiry are set independently.
	cached, err := m.Cache.GetSession(ctx, id)
	if err == nil {
		if cached.ExpiresAt.After(m.clock()) {
			return &store.Session{ID: id, UserEmail: cached.UserEmail, ExpiresAt: cached.ExpiresAt}, nil
		}
		if delErr := m.DeleteSession(ctx, id); delErr != nil {
			slog.Warn("failed to delete expired session", "error", delErr, "session_id", id)
		}
		return nil, nil
	}
	if !errors.Is(err, store.ErrCacheMiss) {
		// Real Redis failure -- Postgres is the fallback but this warrants attention.
		slog.Error("session cache lookup failed, falling back to postgres", "error", err)
	}

	sess, err := m.PS.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	if !sess.ExpiresAt.After(m.clock()) {
		if delErr := m.DeleteSession(ctx, id); delErr != nil {
			slog.Warn("failed to delete expired session", "error", delErr, "session_id", id)
		}
		return nil, nil
	}

	// Repopulate the cache; non-fatal on failure.
	if err := m.Cache.SetSession(ctx, *sess); err != nil {
		slog.Warn("failed to repopulate session cache", "error", err)
	}
	return sess, nil
}

// DeleteSession removes a session from cache and database. Idempotent --
// deleting an absent session is not an error.
func (m *Manager) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := m.Cache.DeleteSession(ctx, id); err != nil {
		slog.Warn("failed to delete session from cache", "error", err, "session_id", id)
	}
	if err := m.PS.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// emailLock returns the per-email refresh mutex, creating it on first use.
// Locks are never evicted; the map is bounded by the number of distinct users.
func (m *Manager) emailLock(email string) *sync.Mutex {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	lock, ok := m.refreshLocks[email]
	if !ok {
		lock = &sync.Mutex{}
		m.refreshLocks[email] = lock
	}
	return lock
}

// clock guards against a zero-value Manager constructed without New in tests.
func (m *Manager) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}
