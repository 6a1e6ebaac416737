// Package identity carries the authenticated caller principal from bearer
// tokens into request handlers.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

// ErrWeakSecret is returned when the signing secret is too short.
var ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")

// PrincipalClaims are the JWT claims of a caller token. Subject and
// Principal both hold the caller's address.
type PrincipalClaims struct {
	jwt.RegisteredClaims
	Principal string `json:"principal"`
}

// TokenIssuer issues and verifies HS256 caller tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
//
//	secret: HMAC key shared with whoever mints tokens; at least 32 bytes.
//	issuer: The "iss" claim value.
//	ttl:    Token lifetime (default: 1 hour).
func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue creates a signed token for p.
func (t *TokenIssuer) Issue(p model.Principal) (string, error) {
	if p.IsZero() {
		return "", fmt.Errorf("issue token: empty principal")
	}
	now := time.Now().UTC()
	claims := PrincipalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   p.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Principal: p.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the principal it names.
func (t *TokenIssuer) Verify(tokenStr string) (model.Principal, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&PrincipalClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Principal{}, fmt.Errorf("verify token: %w", err)
	}
	claims, ok := token.Claims.(*PrincipalClaims)
	if !ok || !token.Valid {
		return model.Principal{}, fmt.Errorf("invalid token claims")
	}
	if claims.Subject != claims.Principal {
		return model.Principal{}, fmt.Errorf("token subject does not match principal")
	}
	p, err := model.ParsePrincipal(claims.Principal)
	if err != nil {
		return model.Principal{}, fmt.Errorf("verify token: %w", err)
	}
	return p, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }
