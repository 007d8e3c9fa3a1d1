// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all env configuration vars for Mailo.
type Config struct {
	DatabaseURL string
	RedisURL    string // optional -- empty disables the session cache
	Port        string
	LogLevel    slog.Level

	// AppPassword is the shared password gating the OAuth flow.
	AppPassword string

	// SessionSecret derives the AES token-encryption key and signs the
	// password-verification cookie.
	SessionSecret string

	// Google OAuth client credentials.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	// BaseURL is the frontend origin: post-login redirect target and the
	// allowed CORS origin.
	BaseURL string

	// Rate limit policy for password verification attempts per IP.
	// Defaults: max=5, window=1m.
	RateVerifyMax    int
	RateVerifyWindow time.Duration

	// SessionTTL is the absolute session lifetime. Default 168h (7d).
	SessionTTL time.Duration
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error naming the first missing required variable.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// Required vars. Checked one at a time so the error names the culprit.
	required := []struct {
		key  string
		dest *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"APP_PASSWORD", &cfg.AppPassword},
		{"SESSION_SECRET", &cfg.SessionSecret},
		{"GOOGLE_CLIENT_ID", &cfg.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret},
		{"GOOGLE_REDIRECT_URI", &cfg.GoogleRedirectURI},
		{"BASE_URL", &cfg.BaseURL},
	}
	for _, r := range required {
		v := os.Getenv(r.key)
		if v == "" {
			return nil, fmt.Errorf("%s is required", r.key)
		}
		*r.dest = v
	}

	// Redis is optional; without it sessions hit Postgres on every request.
	cfg.RedisURL = os.Getenv("REDIS_URL")

	// Attempt to get port num, default to 8380
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8380"
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	// Rate limit: password verification per IP. Invalid values fall back to
	// the default so a misconfigured env doesn't silently disable limiting.
	cfg.RateVerifyMax = envInt("RATE_VERIFY_MAX", 5)
	cfg.RateVerifyWindow = envDuration("RATE_VERIFY_WINDOW", time.Minute)

	cfg.SessionTTL = envDuration("SESSION_TTL", 168*time.Hour)

	return cfg, nil
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
