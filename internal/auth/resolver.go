// Package auth resolves opportunistic bearer tokens into user identities
// during the connection handshake. Resolution failure is never fatal to a
// connection; callers degrade to anonymous.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSubject    = errors.New("token has no subject claim")
	ErrNoSecret     = errors.New("token verification key not configured")
)

// Resolver turns a bearer token into a user id.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// JWTResolver verifies HMAC-signed JWTs and reads the user id from the
// subject claim.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a resolver for HS256-family tokens. An empty secret
// yields a resolver that rejects every token, so all connections stay
// anonymous.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (string, error) {
	if len(r.secret) == 0 {
		return "", ErrNoSecret
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return r.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}
