// google_test.go -- unit tests for the Google provider against a fake OIDC server.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// fakeGoogle stands in for Google's discovery, token, and userinfo endpoints.
type fakeGoogle struct {
	srv *httptest.Server

	// tokenStatus/tokenBody override the token endpoint response when tokenStatus != 0.
	tokenStatus int
	tokenBody   string

	// userinfoStatus overrides the userinfo response when != 0.
	userinfoStatus int

	// lastTokenForm records the most recent token endpoint request form.
	lastTokenForm url.Values
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	f := &fakeGoogle{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"issuer": %q,
			"authorization_endpoint": %q,
			"token_endpoint": %q,
			"userinfo_endpoint": %q,
			"jwks_uri": %q
		}`, f.srv.URL, f.srv.URL+"/auth", f.srv.URL+"/token", f.srv.URL+"/userinfo", f.srv.URL+"/keys")
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.lastTokenForm = r.PostForm
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			w.Write([]byte(f.tokenBody))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-new",
			"refresh_token": "refresh-new",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if f.userinfoStatus != 0 {
			w.WriteHeader(f.userinfoStatus)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"12345","email":"user@example.com","email_verified":true}`))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGoogle) provider(t *testing.T) *GoogleProvider {
	t.Helper()
	p, err := newProviderForIssuer(context.Background(), f.srv.URL, "client-id", "client-secret", "https://app.example.com/auth/callback")
	if err != nil {
		t.Fatalf("constructing provider against fake discovery: %v", err)
	}
	return p
}

func TestAuthCodeURL(t *testing.T) {
	p := newFakeGoogle(t).provider(t)

	raw := p.AuthCodeURL("state-nonce-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthCodeURL returned unparseable URL: %v", err)
	}
	q := u.Query()

	checks := map[string]string{
		"state":        "state-nonce-123",
		"access_type":  "offline",
		"prompt":       "consent",
		"client_id":    "client-id",
		"redirect_uri": "https://app.example.com/auth/callback",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}
	if scope := q.Get("scope"); !strings.Contains(scope, "gmail.modify") || !strings.Contains(scope, "userinfo.email") {
		t.Errorf("scope missing expected entries: %q", scope)
	}
}

func TestExchange_Success(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider(t)

	tok, err := p.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "access-new" {
		t.Errorf("access token: expected access-new, got %q", tok.AccessToken)
	}
	if tok.RefreshToken != "refresh-new" {
		t.Errorf("refresh token: expected refresh-new, got %q", tok.RefreshToken)
	}
	if tok.ExpiresIn <= 3590 || tok.ExpiresIn > 3600 {
		t.Errorf("expires in: expected ~3600, got %d", tok.ExpiresIn)
	}
	if got := f.lastTokenForm.Get("grant_type"); got != "authorization_code" {
		t.Errorf("grant_type: expected authorization_code, got %q", got)
	}
	if got := f.lastTokenForm.Get("code"); got != "auth-code" {
		t.Errorf("code: expected auth-code, got %q", got)
	}
}

func TestExchange_UpstreamErrorCarriesBody(t *testing.T) {
	f := newFakeGoogle(t)
	f.tokenStatus = http.StatusBadRequest
	f.tokenBody = `{"error":"invalid_grant","error_description":"Code was already redeemed."}`
	p := f.provider(t)

	_, err := p.Exchange(context.Background(), "stale-code")
	if !errors.Is(err, ErrExchange) {
		t.Fatalf("expected ErrExchange, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Errorf("expected upstream body in error, got %q", err.Error())
	}
}

func TestRefresh_Success(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider(t)

	tok, err := p.Refresh(context.Background(), "refresh-old")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tok.AccessToken != "access-new" {
		t.Errorf("access token: expected access-new, got %q", tok.AccessToken)
	}
	if got := f.lastTokenForm.Get("grant_type"); got != "refresh_token" {
		t.Errorf("grant_type: expected refresh_token, got %q", got)
	}
	if got := f.lastTokenForm.Get("refresh_token"); got != "refresh-old" {
		t.Errorf("refresh_token: expected refresh-old, got %q", got)
	}
}

func TestRefresh_RevokedTokenFails(t *testing.T) {
	f := newFakeGoogle(t)
	f.tokenStatus = http.StatusBadRequest
	f.tokenBody = `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`
	p := f.provider(t)

	_, err := p.Refresh(context.Background(), "revoked")
	if !errors.Is(err, ErrRefresh) {
		t.Fatalf("expected ErrRefresh, got %v", err)
	}
	if !strings.Contains(err.Error(), "revoked") {
		t.Errorf("expected upstream body in error, got %q", err.Error())
	}
}

func TestIdentity_Success(t *testing.T) {
	p := newFakeGoogle(t).provider(t)

	id, err := p.Identity(context.Background(), "access-token")
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if id.Email != "user@example.com" {
		t.Errorf("email: expected user@example.com, got %q", id.Email)
	}
}

func TestIdentity_UpstreamFailure(t *testing.T) {
	f := newFakeGoogle(t)
	f.userinfoStatus = http.StatusForbidden
	p := f.provider(t)

	_, err := p.Identity(context.Background(), "access-token")
	if !errors.Is(err, ErrIdentity) {
		t.Errorf("expected ErrIdentity, got %v", err)
	}
}
