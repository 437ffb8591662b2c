package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired indicates a stored session token is past its expiry.
var ErrTokenExpired = errors.New("session token expired")

// Claims is the subset of session token claims the client cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time // Zero when the token has no exp claim
}

// ParseClaims reads the claims of a session token without verifying its
// signature. The server remains the authority; the client only uses this
// to decide whether a stored token is worth presenting at all.
func ParseClaims(token string) (Claims, error) {
	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &registered); err != nil {
		return Claims{}, fmt.Errorf("failed to parse session token: %w", err)
	}

	claims := Claims{Subject: registered.Subject}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// CheckFresh returns ErrTokenExpired if the claims expire before now.
func (c Claims) CheckFresh(now time.Time) error {
	if !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, c.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
