package authclient

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authclient/token"
	"golang.org/x/oauth2"
)

type sessionTokenSource struct {
	ctx    context.Context
	client *Client
}

// TokenSource exposes the session as an oauth2.TokenSource. Each Token call
// refreshes first when the access token is missing or expires within
// Refresh.ProactiveSkew. It lets code built on golang.org/x/oauth2 reuse the
// client's session and refresh coalescing.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, client: c}
}

// OAuth2HTTPClient returns an *http.Client that attaches the session token.
// Unlike Do it does not recover 401 responses.
func (c *Client) OAuth2HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource(ctx))
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	c := s.client
	access, refresh := c.session.tokens()
	stale := access == "" || token.ExpiresWithin(access, c.cfg.Refresh.ProactiveSkew, c.now())
	if stale && refresh != "" {
		if err := c.refreshTokens(s.ctx); err != nil {
			return nil, err
		}
		access, refresh = c.session.tokens()
	}
	if access == "" {
		return nil, ErrNotAuthenticated
	}

	tok := &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: refresh,
	}
	if exp, ok := token.ExpiresAt(access); ok {
		tok.Expiry = exp
	}
	return tok, nil
}
