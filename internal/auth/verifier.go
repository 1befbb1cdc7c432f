package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated indicates the token is missing, malformed, or rejected.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier exchanges a bearer token for a caller identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JWTVerifier validates HS256-signed tokens issued by the auth provider and
// uses the subject claim as the caller identity.
type JWTVerifier struct {
	secret   string
	audience string
}

// NewJWTVerifier constructs a verifier for the given signing secret. An empty
// audience disables the audience check.
func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{
		secret:   strings.TrimSpace(secret),
		audience: strings.TrimSpace(audience),
	}
}

// Verify parses and validates the token, returning the subject.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (string, error) {
	if v.secret == "" {
		return "", errors.New("missing JWT secret")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(v.secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrUnauthenticated
	}

	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return "", ErrUnauthenticated
	}

	if claims.Subject == "" {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}
