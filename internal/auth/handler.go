// handler.go -- HTTP handlers for all /auth/* endpoints.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mailo-app/mailo/internal/oauth"
	"github.com/mailo-app/mailo/internal/store"
)

// SessionManager defines token and session lifecycle operations needed by
// auth handlers. Satisfied by *token.Manager -- defined here (at consumer)
// per Go convention.
type SessionManager interface {
	// SaveTokens encrypts and persists token material for email.
	SaveTokens(ctx context.Context, email string, tok *oauth.Token) error

	// GetValidAccessToken returns a usable access token, refreshing when
	// needed. ("", nil) means the user must re-authorize.
	GetValidAccessToken(ctx context.Context, email string) (string, error)

	// CreateSession issues a new session id for email.
	CreateSession(ctx context.Context, email string) (uuid.UUID, error)

	// GetSession resolves a session id; (nil, nil) when absent or expired.
	GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error)

	// DeleteSession removes a session. Idempotent.
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// RateLimiter gates password verification attempts per client IP.
// Satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	// Allow records an attempt for key and reports whether it is within policy.
	Allow(key string) bool
}

// AuthHandler holds dependencies for all /auth/* HTTP handlers and middleware.
type AuthHandler struct {
	TM SessionManager
	RL RateLimiter

	// Provider builds consent URLs and exchanges authorization codes.
	Provider oauth.Provider

	// PasswordHash is the Argon2id digest of the shared app password,
	// computed once at startup.
	PasswordHash string

	// SigningSecret signs the password-verification cookie.
	SigningSecret []byte

	// BaseURL is the frontend origin to redirect to after login.
	BaseURL string

	// SessionTTL sizes the session cookie MaxAge.
	SessionTTL time.Duration
}

// VerifyPassword handles POST /auth/verify-password -- the shared password
// gate in front of the OAuth flow. Rate-limited per client IP.
// Returns 200 + verification cookie, 403 wrong password, 429 rate-limited.
func (h *AuthHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	// Rate limit before any Argon2id work; rejected attempts stay cheap.
	if !h.RL.Allow(clientIP(r)) {
		logInfo(r, "password verification rate limited")
		TooManyRequests(w)
		return
	}

	var input struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logWarn(r, "failed to decode verify-password input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	valid, err := VerifyPassword(input.Password, h.PasswordHash)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	if !valid {
		logInfo(r, "password verification attempted with incorrect password")
		Forbidden(w, "invalid password")
		return
	}

	SetVerificationCookie(w, h.SigningSecret)
	logInfo(r, "password verified")
	Success(w)
}

// Login handles GET /auth/login -- starts the OAuth handshake.
// Requires a valid verification cookie; mints a fresh state nonce and
// redirects to the provider's consent screen.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !CheckVerificationCookie(r, h.SigningSecret) {
		logWarn(r, "login attempted without password verification")
		Forbidden(w, "verification required")
		return
	}

	state, err := GenerateStateNonce()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	SetStateCookie(w, state)
	http.Redirect(w, r, h.Provider.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /auth/callback -- completes the OAuth handshake.
// Validates the anti-CSRF state against the cookie nonce, exchanges the code,
// persists tokens, creates a session, and redirects to the app root.
// The state cookie is consumed unconditionally once compared.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		logWarn(r, "callback without state cookie")
		Forbidden(w, "invalid state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		ClearStateCookie(w)
		BadRequest(w, r, "missing code")
		return
	}

	// Constant-time compare, then burn the nonce regardless of outcome.
	state := r.URL.Query().Get("state")
	match := subtle.ConstantTimeCompare([]byte(state), []byte(stateCookie.Value)) == 1
	ClearStateCookie(w)
	if !match {
		logWarn(r, "callback state mismatch")
		Forbidden(w, "invalid state")
		return
	}

	tok, err := h.Provider.Exchange(r.Context(), code)
	if err != nil {
		logError(r, "authorization code exchange failed", "error", err)
		Unauthorized(w, r, "authentication failed")
		return
	}

	identity, err := h.Provider.Identity(r.Context(), tok.AccessToken)
	if err != nil {
		logError(r, "identity fetch failed", "error", err)
		Unauthorized(w, r, "authentication failed")
		return
	}

	if err := h.TM.SaveTokens(r.Context(), identity.Email, tok); err != nil {
		InternalServerError(w, r, err)
		return
	}

	sessionID, err := h.TM.CreateSession(r.Context(), identity.Email)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	SetSessionCookie(w, sessionID.String(), h.SessionTTL)
	ClearVerificationCookie(w)
	logInfo(r, "user logged in", "email", identity.Email)
	http.Redirect(w, r, h.BaseURL, http.StatusFound)
}

// Logout handles POST /auth/logout -- ends the session if one exists.
// Idempotent: missing or unknown session cookies still return 200.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		if id, err := uuid.FromString(c.Value); err == nil {
			if err := h.TM.DeleteSession(r.Context(), id); err != nil {
				InternalServerError(w, r, err)
				return
			}
			logInfo(r, "user logged out", "session_id", id)
		}
	}

	ClearSessionCookie(w)
	Success(w)
}

// Me handles GET /auth/me -- returns the authenticated user's email.
// Runs behind RequireAuth; a missing context means the middleware was skipped.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	email, ok := EmailFromContext(r.Context())
	if !ok {
		Unauthorized(w, r, "unauthorized")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp, _ := json.Marshal(map[string]string{"email": email})
	w.Write(resp)
}

// clientIP strips the port from RemoteAddr for rate-limit keying.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
