// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore wraps the pgx connection pool used for durable state.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a verified connection pool and returns a
// ready-to-use store. Call once at startup; safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
// Call via defer in main after creating the store.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings Postgres.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertTokens inserts or replaces the token row for email.
// The new access token always wins; the refresh token only overwrites when the
// caller actually has one -- COALESCE keeps the stored value when refreshCipher
// is nil, matching Google's habit of omitting the refresh token on renewal.
func (s *PostgresStore) UpsertTokens(ctx context.Context, email, accessCipher string, refreshCipher *string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth_tokens (user_email, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_email) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, oauth_tokens.refresh_token),
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()`,
		email, accessCipher, refreshCipher, expiresAt)
	return err
}

// GetTokens fetches the token row for email.
// Returns pgx.ErrNoRows when the user has never authorized.
func (s *PostgresStore) GetTokens(ctx context.Context, email string) (*TokenRecord, error) {
	var rec TokenRecord
	err := s.pool.QueryRow(ctx, `
		SELECT user_email, access_token, refresh_token, expires_at, created_at, updated_at
		FROM oauth_tokens
		WHERE user_email = $1`,
		email,
	).Scan(&rec.UserEmail, &rec.AccessToken, &rec.RefreshToken, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteTokens removes the token row for email. No-op if absent.
func (s *PostgresStore) DeleteTokens(ctx context.Context, email string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM oauth_tokens WHERE user_email = $1", email)
	return err
}

// CreateSession inserts a new session row.
// The caller generates the UUID before calling this.
func (s *PostgresStore) CreateSession(ctx context.Context, id uuid.UUID, email string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO sessions (id, user_email, expires_at) VALUES ($1, $2, $3)",
		id, email, expiresAt)
	return err
}

// GetSession fetches a session row by id, expired or not.
// Returns pgx.ErrNoRows if absent.
func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		"SELECT id, user_email, created_at, expires_at FROM sessions WHERE id = $1",
		id,
	).Scan(&sess.ID, &sess.UserEmail, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session row by id. No-op if absent.
func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id)
	return err
}

// CleanupExpiredSessions removes sessions that expired before now and returns
// the number deleted. Run periodically from main; lazy deletion on lookup is
// the contractual path, this just bounds table growth.
func (s *PostgresStore) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
