// google.go -- Google OAuth2 provider implementation.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Gmail delegation scopes plus the email claim used to key token storage.
var googleScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/userinfo.email",
}

// upstreamTimeout bounds every outbound call to Google. A hung upstream must
// not pin a request goroutine; a timeout is treated like any non-success response.
const upstreamTimeout = 15 * time.Second

// GoogleProvider implements Provider against Google's OAuth2 + OIDC endpoints.
// Endpoints come from OIDC discovery at construction time; after that the
// provider is immutable and safe for concurrent use.
type GoogleProvider struct {
	config   *oauth2.Config
	provider *oidc.Provider
	client   *http.Client
}

// NewGoogleProvider fetches Google's OIDC discovery document and returns a
// ready provider. Makes an outbound HTTP request at startup; errors if
// accounts.google.com is unreachable.
func NewGoogleProvider(ctx context.Context, clientID, clientSecret, redirectURL string) (*GoogleProvider, error) {
	return newProviderForIssuer(ctx, "https://accounts.google.com", clientID, clientSecret, redirectURL)
}

// newProviderForIssuer is the discovery-driven constructor; split out so tests
// can point it at a local issuer.
func newProviderForIssuer(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*GoogleProvider, error) {
	client := &http.Client{Timeout: upstreamTimeout}
	p, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery: %w", err)
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     p.Endpoint(),
			Scopes:       googleScopes,
		},
		provider: p,
		client:   client,
	}, nil
}

// AuthCodeURL builds the consent page URL. access_type=offline requests a
// refresh token; prompt=consent forces Google to issue one on every pass, not
// just first consent.
func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades the authorization code for tokens.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := g.config.Exchange(g.httpContext(ctx), code)
	if err != nil {
		return nil, wrapUpstream(ErrExchange, err)
	}
	return fromOAuth2Token(tok), nil
}

// Refresh exchanges a refresh token for a fresh access token via the
// grant_type=refresh_token flow.
func (g *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	ts := g.config.TokenSource(g.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, wrapUpstream(ErrRefresh, err)
	}
	return fromOAuth2Token(tok), nil
}

// Identity calls the discovery document's userinfo endpoint with the access token.
func (g *GoogleProvider) Identity(ctx context.Context, accessToken string) (*Identity, error) {
	ui, err := g.provider.UserInfo(g.httpContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, wrapUpstream(ErrIdentity, err)
	}
	if ui.Email == "" {
		return nil, fmt.Errorf("%w: userinfo response has no email", ErrIdentity)
	}
	return &Identity{Email: ui.Email}, nil
}

// httpContext injects the timeout-bounded client for oauth2 and oidc calls.
func (g *GoogleProvider) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.client)
}

// fromOAuth2Token maps an oauth2.Token to the wire-level Token shape.
func fromOAuth2Token(tok *oauth2.Token) *Token {
	expiresIn := int64(0)
	if !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
	}
}

// wrapUpstream attaches the provider's raw error body when available so the
// failure can be logged in full. oauth2 surfaces non-2xx token responses as
// *oauth2.RetrieveError.
func wrapUpstream(sentinel error, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return fmt.Errorf("%w: status %d: %s", sentinel, re.Response.StatusCode, re.Body)
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
