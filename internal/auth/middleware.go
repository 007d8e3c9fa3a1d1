// middleware.go

// Session authentication middleware.
package auth

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const emailKey contextKey = "email"
const accessTokenKey contextKey = "access_token"
const sessionIDKey contextKey = "session_id"

// EmailFromContext retrieves the authenticated user's email from context.
// Returns empty string and false if RequireAuth hasn't run.
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(emailKey).(string)
	return email, ok
}

// AccessTokenFromContext retrieves the resolved Google access token from context.
// Returns empty string and false if RequireAuth hasn't run.
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(accessTokenKey).(string)
	return tok, ok
}

// ContextWithAccessToken returns a copy of ctx carrying an access token, as
// RequireAuth would have injected it. For tests exercising protected handlers
// without the middleware.
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// SessionIDFromContext retrieves the session id from context.
// Returns zero UUID and false if RequireAuth hasn't run.
func SessionIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(sessionIDKey).(uuid.UUID)
	return id, ok
}

// RequireAuth resolves the session cookie into a verified, refreshed access
// token, or rejects with a uniform 401. Every internal failure mode (missing
// cookie, expired session, unrefreshable token) produces the same response so
// callers can't probe which check failed; the distinction lives in the logs.
// Injects email, access token, and session id into context on success.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessCookie, err := r.Cookie(sessionCookieName)
		if err != nil || sessCookie.Value == "" {
			logWarn(r, "require auth failed", "reason", "missing_session_cookie")
			Unauthorized(w, r, "unauthorized")
			return
		}

		sessionID, err := uuid.FromString(sessCookie.Value)
		if err != nil {
			logWarn(r, "require auth failed", "reason", "malformed_session_id")
			Unauthorized(w, r, "unauthorized")
			return
		}

		sess, err := h.TM.GetSession(r.Context(), sessionID)
		if err != nil {
			logError(r, "require auth failed fetching session", "error", err)
			Unauthorized(w, r, "unauthorized")
			return
		}
		if sess == nil {
			logWarn(r, "require auth failed", "reason", "session_expired")
			Unauthorized(w, r, "unauthorized")
			return
		}

		// May refresh through the provider and write back to storage;
		// transparent to the caller.
		accessToken, err := h.TM.GetValidAccessToken(r.Context(), sess.UserEmail)
		if err != nil {
			logError(r, "require auth failed refreshing access token", "error", err, "email", sess.UserEmail)
			Unauthorized(w, r, "unauthorized")
			return
		}
		if accessToken == "" {
			logWarn(r, "require auth failed", "reason", "no_usable_access_token", "email", sess.UserEmail)
			Unauthorized(w, r, "unauthorized")
			return
		}

		logDebug(r, "session resolved", "email", sess.UserEmail, "session_id", sessionID)

		ctx := context.WithValue(r.Context(), emailKey, sess.UserEmail)
		ctx = context.WithValue(ctx, accessTokenKey, accessToken)
		ctx = context.WithValue(ctx, sessionIDKey, sessionID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
