// redis.go -- go-redis client for session caching.
//
// Stores session data with TTL matching session expiry.
// Fast path for session validation; Postgres remains the source of truth.
// Redis is optional -- without REDIS_URL, NoopCache makes every lookup a miss.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies connectivity with a ping.
// Call once at startup; the client owns a shared connection pool.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

// RedisCache wraps a Redis client for session cache operations.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps an existing client. Safe for concurrent use.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb}
}

// sessionKey namespaces cached sessions.
func sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("session:%s", id)
}

// GetSession retrieves a cached session by id.
// Returns ErrCacheMiss when absent so callers can fall back to Postgres.
func (c *RedisCache) GetSession(ctx context.Context, id uuid.UUID) (*CachedSession, error) {
	raw, err := c.rdb.Get(ctx, sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var cached CachedSession
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &cached, nil
}

// SetSession caches a session with a TTL matching its remaining life.
// TTL <= 0 is skipped -- Redis treats zero TTL as "no expiry", not "expired".
func (c *RedisCache) SetSession(ctx context.Context, sess Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(CachedSession{
		UserEmail: sess.UserEmail,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := c.rdb.Set(ctx, sessionKey(sess.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("caching session: %w", err)
	}
	return nil
}

// DeleteSession removes a cached session by id. No-op if absent.
func (c *RedisCache) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := c.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// CheckHealth pings Redis.
func (c *RedisCache) CheckHealth(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// NoopCache satisfies the session cache contract when Redis is not configured.
// Every lookup is a miss; writes and deletes succeed silently.
type NoopCache struct{}

func (NoopCache) GetSession(context.Context, uuid.UUID) (*CachedSession, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) SetSession(context.Context, Session) error { return nil }

func (NoopCache) DeleteSession(context.Context, uuid.UUID) error { return nil }

func (NoopCache) CheckHealth(context.Context) error { return ErrCacheDisabled }
