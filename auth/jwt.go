package auth

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures a JWTSource.
type JWTConfig struct {
	// Key is the HMAC secret used to sign tokens. Required.
	Key []byte

	// KeyID is written to the "kid" header when set.
	KeyID string

	Issuer   string
	Subject  string
	Audience []string

	// TTL is the lifetime of a minted token. Default: 5 minutes
	TTL time.Duration

	// RefreshBefore is how long before expiry a new token is minted.
	// Default: 30 seconds
	RefreshBefore time.Duration

	// Claims are extra private claims added to every token.
	Claims map[string]any
}

// JWTSource mints HS256 tokens and reuses each one until it is about to expire.
type JWTSource struct {
	config JWTConfig
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewJWTSource creates a JWT token source.
func NewJWTSource(config JWTConfig) (*JWTSource, error) {
	if len(config.Key) == 0 {
		return nil, ErrMissingKey
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.RefreshBefore <= 0 || config.RefreshBefore >= config.TTL {
		config.RefreshBefore = min(30*time.Second, config.TTL/2)
	}
	return &JWTSource{config: config, now: time.Now}, nil
}

// Token returns a signed token valid for at least RefreshBefore.
func (s *JWTSource) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Before(s.expiresAt.Add(-s.config.RefreshBefore)) {
		return s.token, nil
	}

	token, exp, err := s.mint(now)
	if err != nil {
		return "", err
	}
	s.token, s.expiresAt = token, exp
	return token, nil
}

func (s *JWTSource) mint(now time.Time) (string, time.Time, error) {
	exp := now.Add(s.config.TTL)

	claims := jwt.MapClaims{}
	maps.Copy(claims, s.config.Claims)
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(exp)
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}
	if s.config.Subject != "" {
		claims["sub"] = s.config.Subject
	}
	if len(s.config.Audience) > 0 {
		claims["aud"] = jwt.ClaimStrings(s.config.Audience)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.config.KeyID != "" {
		tok.Header["kid"] = s.config.KeyID
	}

	signed, err := tok.SignedString(s.config.Key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

var _ TokenSource = (*JWTSource)(nil)
