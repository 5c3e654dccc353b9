package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Access tokens stay short because every one of
// them is tracked in the revocation cache; refresh tokens are long lived.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultAuthoritiesClaim is the claim name carrying role names.
	DefaultAuthoritiesClaim = "authorities"
)

// Claims is the decoded view of a token. Refresh tokens leave Authorities
// empty.
type Claims struct {
	jwt.RegisteredClaims

	// Authorities are the role names granted to Subject, e.g. ["ADMIN"].
	Authorities []string `json:"authorities,omitempty"`
}

// Username returns the subject; tokens are issued with the username as sub.
func (c *Claims) Username() string { return c.Subject }

// HasAnyAuthority reports whether the claims hold at least one of roles.
func (c *Claims) HasAnyAuthority(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(c.Authorities, r) {
			return true
		}
	}
	return false
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateExpiry ensures the token hasn't expired (exp) at the given instant.
func (c *Claims) ValidateExpiry(now time.Time) error {
	return c.ValidateExpiryWithLeeway(now, 0)
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}

	if now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
