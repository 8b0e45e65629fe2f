// Package token issues and verifies the bearer tokens carried on every
// authenticated request. Tokens are HS256 JWTs whose subject is the user id.
package token

import (
	"errors"
	"fmt"
	"time"

	"docshare/pkg/apperror"
	"docshare/pkg/clock"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = fmt.Errorf("invalid token: %w", apperror.ErrUnauthorized)
	ErrTokenExpired = fmt.Errorf("token expired: %w", apperror.ErrUnauthorized)
)

// Manager signs and parses tokens with a single secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewManager(secret string, ttl time.Duration, c clock.Clock) *Manager {
	if c == nil {
		c = clock.Real{}
	}
	return &Manager{secret: []byte(secret), ttl: ttl, clock: c}
}

// Issue returns a signed token for userID valid for the configured TTL.
func (m *Manager) Issue(userID string) (string, error) {
	now := m.clock.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	})
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry, and returns the user id.
func (m *Manager) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !tok.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
