package google

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenProvider returns a currently valid token for a stored account.
type TokenProvider interface {
	Token(ctx context.Context, key string) (*oauth2.Token, error)
}

// TokenSourceAdapter adapts a TokenProvider to oauth2.TokenSource for one
// account, so Google API clients go through the shared refresh logic.
type TokenSourceAdapter struct {
	provider TokenProvider
	key      string
	ctx      context.Context
}

// NewTokenSource creates an oauth2.TokenSource for the account key.
func NewTokenSource(ctx context.Context, provider TokenProvider, key string) oauth2.TokenSource {
	return &TokenSourceAdapter{
		provider: provider,
		key:      key,
		ctx:      ctx,
	}
}

// Token implements oauth2.TokenSource.
func (t *TokenSourceAdapter) Token() (*oauth2.Token, error) {
	tok, err := t.provider.Token(t.ctx, t.key)
	if err != nil {
		return nil, err
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	return tok, nil
}
