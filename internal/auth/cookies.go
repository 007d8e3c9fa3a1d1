// cookies.go

// Cookie management for the three-stage login flow.
//
// Three cookies, all HttpOnly + Secure + SameSite=Lax:
//
//	app_verified  30 min  proves the shared password was supplied
//	oauth_state   10 min  anti-CSRF nonce for one in-flight OAuth handshake
//	session_id    7 days  server-side session identifier
//
// app_verified is signed so a client can't mint one: the value is the expiry
// unix time plus an HMAC-SHA256 over it. oauth_state and session_id carry no
// signature; both are validated server-side (state compare, session lookup).
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	verifiedCookieName = "app_verified"
	stateCookieName    = "oauth_state"
	sessionCookieName  = "session_id"

	verifiedTTL = 30 * time.Minute
	stateTTL    = 10 * time.Minute
)

// GenerateStateNonce returns a 256-bit random URL-safe nonce.
func GenerateStateNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating state nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(nonce[:]), nil
}

// signVerification returns the HMAC-SHA256 tag over the expiry timestamp.
func signVerification(secret []byte, expiry int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "app_verified:%d", expiry)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SetVerificationCookie marks the client as having passed the password gate.
// Value is "<expiry-unix>.<hmac>" so the flag can't be forged or extended.
func SetVerificationCookie(w http.ResponseWriter, secret []byte) {
	expiry := time.Now().Add(verifiedTTL).Unix()
	http.SetCookie(w, &http.Cookie{
		Name:     verifiedCookieName,
		Value:    strconv.FormatInt(expiry, 10) + "." + signVerification(secret, expiry),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(verifiedTTL.Seconds()),
	})
}

// CheckVerificationCookie reports whether r carries a valid, unexpired
// verification cookie signed with secret.
func CheckVerificationCookie(r *http.Request, secret []byte) bool {
	c, err := r.Cookie(verifiedCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	raw, tag, ok := strings.Cut(c.Value, ".")
	if !ok {
		return false
	}
	expiry, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || time.Now().Unix() >= expiry {
		return false
	}
	expected := signVerification(secret, expiry)
	return hmac.Equal([]byte(tag), []byte(expected))
}

// ClearVerificationCookie deletes the password-verification cookie.
func ClearVerificationCookie(w http.ResponseWriter) {
	clearCookie(w, verifiedCookieName)
}

// SetStateCookie stores the OAuth anti-CSRF nonce for the callback to check.
func SetStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})
}

// ClearStateCookie deletes the OAuth state cookie. Called on every callback,
// success or failure -- the nonce is single use.
func ClearStateCookie(w http.ResponseWriter) {
	clearCookie(w, stateCookieName)
}

// SetSessionCookie writes the session_id cookie expiring with the session.
func SetSessionCookie(w http.ResponseWriter, sessionID string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// ClearSessionCookie deletes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	clearCookie(w, sessionCookieName)
}

// clearCookie overwrites a cookie with MaxAge=-1 to trigger browser deletion.
func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
