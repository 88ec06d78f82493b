package session

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenProvider yields an opaque auth token before each connect.
// Credential acquisition itself lives outside this package; the session
// only needs a bearer token at dial time.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
// Useful for tests and short-lived ephemeral tokens minted elsewhere.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// oauthProvider adapts an oauth2.TokenSource to TokenProvider.
type oauthProvider struct {
	source oauth2.TokenSource
}

// OAuthTokenProvider wraps an oauth2 token source, refreshing as the
// source dictates.
func OAuthTokenProvider(source oauth2.TokenSource) TokenProvider {
	return &oauthProvider{source: source}
}

// Token fetches the current access token from the source.
func (p *oauthProvider) Token(ctx context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("fetch oauth token: %w", err)
	}
	if !tok.Valid() {
		return "", fmt.Errorf("oauth token expired")
	}
	return tok.AccessToken, nil
}
