// provider.go -- identity provider interface and shared types.
package oauth

import (
	"context"
	"errors"
)

// ErrExchange, ErrRefresh, and ErrIdentity classify upstream provider failures.
// Wrapped errors carry the provider's raw error body for logging; handlers must
// never echo that body to the client.
var (
	ErrExchange = errors.New("token exchange failed")
	ErrRefresh  = errors.New("token refresh failed")
	ErrIdentity = errors.New("identity fetch failed")
)

// Token is the material returned by the provider's token endpoint.
// RefreshToken is empty when the provider omits it -- Google only issues one on
// first consent or when prompt=consent forces re-issuance.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds until the access token expires
}

// Identity holds the verified identity claims used to key token storage.
type Identity struct {
	Email string
}

// Provider is a stateless protocol adapter for an OAuth2 identity provider.
// Every call is independently retryable by the caller; implementations perform
// no retries and hold no per-user state.
type Provider interface {
	// AuthCodeURL returns the consent page URL with the anti-CSRF state,
	// offline access, and forced consent embedded.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for tokens.
	// Failures wrap ErrExchange with the upstream response body.
	Exchange(ctx context.Context, code string) (*Token, error)

	// Refresh mints a new access token from a refresh token.
	// Failures wrap ErrRefresh; a rejected refresh token is not retryable.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)

	// Identity resolves the access token's owner.
	// Failures wrap ErrIdentity.
	Identity(ctx context.Context, accessToken string) (*Identity, error)
}
