// models.go -- shared domain types for the store package.
// Used by both Postgres (durable store) and Redis (cache layer).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrCacheMiss is returned by GetSession when the key is not in Redis.
// Callers use errors.Is to distinguish a true miss from a Redis infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// ErrCacheDisabled is returned by NoopCache.CheckHealth when Redis is not configured.
var ErrCacheDisabled = errors.New("cache disabled")

// Session represents a row in the sessions table.
// A session is valid iff now < ExpiresAt; expiry enforcement lives in the
// token manager, the store returns rows as stored.
type Session struct {
	ID        uuid.UUID
	UserEmail string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TokenRecord represents a row in the oauth_tokens table.
// AccessToken and RefreshToken hold vault ciphertext, never plaintext.
// RefreshToken is a pointer -- nil means SQL NULL (provider never issued one).
type TokenRecord struct {
	UserEmail    string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CachedSession is the JSON shape stored in Redis for cached sessions.
// Only what fast validation needs -- the full row lives in Postgres.
type CachedSession struct {
	UserEmail string    `json:"user_email"`
	ExpiresAt time.Time `json:"expires_at"`
}
