// middleware_test.go

// unit tests for the RequireAuth middleware.

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/mailo-app/mailo/internal/oauth"
	"github.com/mailo-app/mailo/internal/store"
)

// contextWithEmail injects just the email, for handler tests that bypass
// the middleware.
func contextWithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

// captureHandler records whether it ran and what context it saw.
type captureHandler struct {
	called      bool
	email       string
	accessToken string
	sessionID   uuid.UUID
}

func (c *captureHandler) ServeHTTP(_ http.ResponseWriter, r *http.Request) {
	c.called = true
	c.email, _ = EmailFromContext(r.Context())
	c.accessToken, _ = AccessTokenFromContext(r.Context())
	c.sessionID, _ = SessionIDFromContext(r.Context())
}

// authedSession saves fresh tokens and creates a session, returning its id.
func authedSession(t *testing.T, env *testEnv, email string) uuid.UUID {
	t.Helper()
	err := env.tm.SaveTokens(t.Context(), email, &oauth.Token{
		AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 3600,
	})
	if err != nil {
		t.Fatal(err)
	}
	id, err := env.tm.CreateSession(t.Context(), email)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func doRequireAuth(env *testEnv, next http.Handler, cookie *http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	if cookie != nil {
		r.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	env.h.RequireAuth(next).ServeHTTP(w, r)
	return w
}

func TestRequireAuth(t *testing.T) {
	t.Run("valid session passes with full context", func(t *testing.T) {
		env := newTestEnv(t)
		id := authedSession(t, env, "user@example.com")
		next := &captureHandler{}

		w := doRequireAuth(env, next, &http.Cookie{Name: "session_id", Value: id.String()})

		if w.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", w.Code)
		}
		if !next.called {
			t.Fatal("next handler not called")
		}
		if next.email != "user@example.com" {
			t.Errorf("context email: got %q", next.email)
		}
		if next.accessToken != "access-1" {
			t.Errorf("context access token: got %q", next.accessToken)
		}
		if next.sessionID != id {
			t.Errorf("context session id: got %v", next.sessionID)
		}
	})

	t.Run("missing cookie returns 401", func(t *testing.T) {
		env := newTestEnv(t)
		next := &captureHandler{}

		w := doRequireAuth(env, next, nil)

		assertStatus(t, w, http.StatusUnauthorized)
		if next.called {
			t.Error("next handler must not run")
		}
	})

	t.Run("malformed session id returns 401", func(t *testing.T) {
		env := newTestEnv(t)
		next := &captureHandler{}

		w := doRequireAuth(env, next, &http.Cookie{Name: "session_id", Value: "not-a-uuid"})

		assertStatus(t, w, http.StatusUnauthorized)
		if next.called {
			t.Error("next handler must not run")
		}
	})

	t.Run("unknown session returns 401", func(t *testing.T) {
		env := newTestEnv(t)
		next := &captureHandler{}

		w := doRequireAuth(env, next, &http.Cookie{
			Name: "session_id", Value: uuid.Must(uuid.NewV4()).String(),
		})

		assertStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("expired session returns 401", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.Must(uuid.NewV4())
		env.ms.Sessions[id] = &store.Session{
			ID:        id,
			UserEmail: "user@example.com",
			ExpiresAt: time.Now().Add(-time.Minute),
		}
		next := &captureHandler{}

		w := doRequireAuth(env, next, &http.Cookie{Name: "session_id", Value: id.String()})

		assertStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("session without usable tokens returns 401", func(t *testing.T) {
		env := newTestEnv(t)
		// Session exists but the user never finished OAuth.
		id, err := env.tm.CreateSession(t.Context(), "user@example.com")
		if err != nil {
			t.Fatal(err)
		}
		next := &captureHandler{}

		w := doRequireAuth(env, next, &http.Cookie{Name: "session_id", Value: id.String()})

		assertStatus(t, w, http.StatusUnauthorized)
		if next.called {
			t.Error("next handler must not run")
		}
	})

	t.Run("refresh failure returns 401", func(t *testing.T) {
		env := newTestEnv(t)
		id := authedSession(t, env, "user@example.com")
		// Age the tokens into the refresh window and make refresh fail.
		rec := env.ms.Tokens["user@example.com"]
		rec.ExpiresAt = time.Now().Add(10 * time.Second)
		env.mp.RefreshErr = oauth.ErrRefresh
		next := &captureHandler{}

		w := doRequireAuth(env, next, &http.Cookie{Name: "session_id", Value: id.String()})

		assertStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("transparently refreshes stale token", func(t *testing.T) {
		env := newTestEnv(t)
		id := authedSession(t, env, "user@example.com")
		rec := env.ms.Tokens["user@example.com"]
		rec.ExpiresAt = time.Now().Add(10 * time.Second)
		env.mp.RefreshResult = &oauth.Token{AccessToken: "access-fresh", ExpiresIn: 3600}
		next := &captureHandler{}

		w := doRequireAuth(env, next, &http.Cookie{Name: "session_id", Value: id.String()})

		if w.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", w.Code)
		}
		if next.accessToken != "access-fresh" {
			t.Errorf("context access token: expected refreshed, got %q", next.accessToken)
		}
	})
}
