// Package auth resolves the calling principal from an HMAC-signed bearer token.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin grants administrative operations
const RoleAdmin = "admin"

// Principal is the resolved caller
type Principal struct {
	ID    string
	Email string
	Role  string
}

// Claims are the token claims the platform reads
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Resolver validates tokens and maps them to principals
type Resolver struct {
	secret     []byte
	issuer     string
	adminEmail string
}

// NewResolver creates a Resolver. An empty issuer accepts any issuer.
func NewResolver(secret, issuer, adminEmail string) *Resolver {
	return &Resolver{
		secret:     []byte(secret),
		issuer:     issuer,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
	}
}

// Resolve returns the principal of a raw token or an Unauthenticated error
func (r *Resolver) Resolve(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, domain.E(domain.KindUnauthenticated, "resolve principal", "missing bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindUnauthenticated, Op: "resolve principal", Msg: "invalid or expired token", Err: err}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.E(domain.KindUnauthenticated, "resolve principal", "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, domain.Wrap(domain.KindUnauthenticated, "resolve principal", errors.New("token has no subject"))
	}

	return &Principal{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// IsAdmin reports whether p may run administrative operations
func (r *Resolver) IsAdmin(p *Principal) bool {
	if p == nil {
		return false
	}
	if p.Role == RoleAdmin {
		return true
	}
	return r.adminEmail != "" && strings.EqualFold(p.Email, r.adminEmail)
}

// Issue signs a token for a principal. It is used by tooling and tests.
func (r *Resolver) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
