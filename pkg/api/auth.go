package api

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// NotaryClaims are the JWT claims expected on producer tokens.
type NotaryClaims struct {
	jwt.RegisteredClaims
	// Namespaces lists the namespaces this token may submit to and
	// manage. Empty means unrestricted (operator token).
	Namespaces []string `json:"namespaces,omitempty"`
}

// Principal is the authenticated caller derived from a validated token.
type Principal struct {
	Subject    string
	Namespaces []string
}

// Allowed reports whether the principal may act on the namespace.
func (p *Principal) Allowed(namespace string) bool {
	if len(p.Namespaces) == 0 {
		return true
	}
	for _, ns := range p.Namespaces {
		if ns == namespace {
			return true
		}
	}
	return false
}

type contextKey string

const principalKey contextKey = "notary.principal"

// WithPrincipal attaches the authenticated caller to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, or nil when
// the request was not authenticated (auth disabled).
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// JWTValidator validates HS256 bearer tokens against a shared secret.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator. A nil return means auth stays
// disabled (empty secret).
func NewJWTValidator(secret string) *JWTValidator {
	if secret == "" {
		return nil
	}
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses and validates a JWT token string.
func (v *JWTValidator) Validate(tokenStr string) (*NotaryClaims, error) {
	if v == nil {
		return nil, fmt.Errorf("validator uninitialized")
	}

	claims := &NotaryClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
