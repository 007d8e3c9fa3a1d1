package auth

// wiring_test.go
//
// Catches bugs where the login stages hand data to each other incorrectly.
//
// Shares one handler and mock set across the whole flow to verify the
// contracts between stages:
//
//   - Verification:  VerifyPassword (set cookie) -> Login (check cookie)
//   - State:         Login (set nonce) -> Callback (compare nonce)
//   - Session:       Callback (set session cookie) -> RequireAuth -> Me
//   - Logout:        Logout (delete session) -> RequireAuth (reject)
//

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mailo-app/mailo/internal/oauth"
)

// cookieJar accumulates cookies across the multi-request flow, honoring
// deletions the way a browser would.
type cookieJar map[string]*http.Cookie

func (j cookieJar) absorb(w *httptest.ResponseRecorder) {
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(j, c.Name)
			continue
		}
		j[c.Name] = c
	}
}

func (j cookieJar) apply(r *http.Request) {
	for _, c := range j {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	env.mp.ExchangeToken = &oauth.Token{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 3600}
	env.mp.IdentityEmail = "flow@example.com"
	jar := cookieJar{}

	// Stage 1: shared password.
	r := httptest.NewRequest(http.MethodPost, "/auth/verify-password",
		strings.NewReader(`{"password":"`+testPassword+`"}`))
	w := httptest.NewRecorder()
	env.h.VerifyPassword(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("verify-password: expected 200, got %d", w.Code)
	}
	jar.absorb(w)
	if _, ok := jar["app_verified"]; !ok {
		t.Fatal("verify-password did not set app_verified")
	}

	// Stage 2: login redirect.
	r = httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	jar.apply(r)
	w = httptest.NewRecorder()
	env.h.Login(w, r)
	if w.Code != http.StatusFound {
		t.Fatalf("login: expected 302, got %d", w.Code)
	}
	jar.absorb(w)

	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("login redirect carries no state")
	}
	if sc, ok := jar["oauth_state"]; !ok || sc.Value != state {
		t.Fatal("oauth_state cookie does not match redirect state")
	}

	// Stage 3: provider calls back with the same state.
	r = httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state="+state, nil)
	jar.apply(r)
	w = httptest.NewRecorder()
	env.h.Callback(w, r)
	if w.Code != http.StatusFound {
		t.Fatalf("callback: expected 302, got %d", w.Code)
	}
	jar.absorb(w)

	if _, ok := jar["oauth_state"]; ok {
		t.Error("oauth_state must be consumed by the callback")
	}
	if _, ok := jar["app_verified"]; ok {
		t.Error("app_verified must be cleared after login completes")
	}
	if _, ok := jar["session_id"]; !ok {
		t.Fatal("callback did not set session_id")
	}

	// Stage 4: authenticated identity check through the middleware.
	r = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	jar.apply(r)
	w = httptest.NewRecorder()
	env.h.RequireAuth(http.HandlerFunc(env.h.Me)).ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", w.Code)
	}
	var me struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(w.Body).Decode(&me); err != nil {
		t.Fatal(err)
	}
	if me.Email != "flow@example.com" {
		t.Errorf("me: expected flow@example.com, got %q", me.Email)
	}

	// Stage 5: logout invalidates the session for the middleware.
	r = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	jar.apply(r)
	w = httptest.NewRecorder()
	env.h.Logout(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}

	// Reuse of the old cookie after logout must fail.
	r = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	jar.apply(r)
	w = httptest.NewRecorder()
	env.h.RequireAuth(http.HandlerFunc(env.h.Me)).ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("me after logout: expected 401, got %d", w.Code)
	}
}

func TestLoginFlow_ForgedState(t *testing.T) {
	env := newTestEnv(t)
	env.mp.ExchangeToken = &oauth.Token{AccessToken: "at-1", ExpiresIn: 3600}
	env.mp.IdentityEmail = "flow@example.com"

	r := httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state=attacker-chosen", nil)
	r.AddCookie(&http.Cookie{Name: "oauth_state", Value: "victim-nonce"})
	w := httptest.NewRecorder()
	env.h.Callback(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if len(env.ms.Sessions) != 0 {
		t.Error("forged callback must not create a session")
	}
	assertCookieCleared(t, w, "oauth_state")
}
