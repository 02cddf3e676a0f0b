package auth

import "context"

// TokenSource supplies bearer tokens.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Token should honor cancellation when it has to do I/O.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the token, or ErrMissingToken when it is empty.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrMissingToken
	}
	return string(t), nil
}

var _ TokenSource = StaticToken("")
