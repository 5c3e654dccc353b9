package jwtx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretSize is the smallest HMAC secret accepted, matching the HS256
// output size.
const MinSecretSize = 32

// Codec is what both the credential service and the gateway need from a
// token implementation.
type Codec interface {
	SignAccess(subject string, authorities []string, ttl time.Duration) (string, Claims, error)
	SignRefresh(subject string, ttl time.Duration) (string, Claims, error)
	Validate(token string) (Claims, error)
	IsExpired(token string) (bool, error)
}

// HMACCodec signs and verifies HS256 tokens with a secret shared between the
// issuing service and every verifier.
type HMACCodec struct {
	secret           []byte
	authoritiesClaim string
	now              func() time.Time
}

type Option func(*HMACCodec)

// WithAuthoritiesClaim overrides the claim name used for role names.
func WithAuthoritiesClaim(name string) Option {
	return func(c *HMACCodec) {
		if name != "" {
			c.authoritiesClaim = name
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *HMACCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewHMACCodec creates a codec. The secret is copied.
func NewHMACCodec(secret []byte, opts ...Option) (*HMACCodec, error) {
	if len(secret) < MinSecretSize {
		return nil, ErrWeakSecret
	}

	c := &HMACCodec{
		secret:           append([]byte(nil), secret...),
		authoritiesClaim: DefaultAuthoritiesClaim,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AuthoritiesClaim returns the configured claim name.
func (c *HMACCodec) AuthoritiesClaim() string { return c.authoritiesClaim }

// SignAccess mints an access token carrying the subject and its authorities.
func (c *HMACCodec) SignAccess(subject string, authorities []string, ttl time.Duration) (string, Claims, error) {
	if authorities == nil {
		authorities = []string{}
	}
	return c.sign(subject, authorities, ttl)
}

// SignRefresh mints a refresh token carrying only the subject.
func (c *HMACCodec) SignRefresh(subject string, ttl time.Duration) (string, Claims, error) {
	return c.sign(subject, nil, ttl)
}

func (c *HMACCodec) sign(subject string, authorities []string, ttl time.Duration) (string, Claims, error) {
	if strings.TrimSpace(subject) == "" {
		return "", Claims{}, fmt.Errorf("%w: empty subject", ErrInvalidClaim)
	}

	now := c.now().UTC().Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Authorities: authorities,
	}

	mc := jwt.MapClaims{
		"sub": claims.Subject,
		"iat": now.Unix(),
		"exp": claims.ExpiresAt.Unix(),
		"jti": claims.ID,
	}
	if authorities != nil {
		mc[c.authoritiesClaim] = authorities
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, claims, nil
}

// Validate verifies the signature, structure and expiry of token.
func (c *HMACCodec) Validate(token string) (Claims, error) {
	mc, err := c.parse(token,
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, err
	}
	return c.toClaims(mc)
}

// IsExpired checks the signature and then compares exp with the clock. A
// token with a valid signature but past exp returns (true, nil).
func (c *HMACCodec) IsExpired(token string) (bool, error) {
	mc, err := c.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return false, err
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return true, nil
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}
	return errors.Is(claims.ValidateExpiry(c.now()), ErrExpired), nil
}

func (c *HMACCodec) parse(token string, opts ...jwt.ParserOption) (jwt.MapClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformed
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parser := jwt.NewParser(opts...)

	mc := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(token, mc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}
	return mc, nil
}

func (c *HMACCodec) toClaims(mc jwt.MapClaims) (Claims, error) {
	var out Claims

	sub, err := mc.GetSubject()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: sub", ErrInvalidClaim)
	}
	out.Subject = sub

	if out.IssuedAt, err = mc.GetIssuedAt(); err != nil {
		return Claims{}, fmt.Errorf("%w: iat", ErrInvalidClaim)
	}
	if out.ExpiresAt, err = mc.GetExpirationTime(); err != nil {
		return Claims{}, fmt.Errorf("%w: exp", ErrInvalidClaim)
	}
	if jti, ok := mc["jti"].(string); ok {
		out.ID = jti
	}

	raw, ok := mc[c.authoritiesClaim]
	if !ok || raw == nil {
		return out, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return Claims{}, fmt.Errorf("%w: %s", ErrInvalidClaim, c.authoritiesClaim)
	}
	out.Authorities = make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return Claims{}, fmt.Errorf("%w: %s", ErrInvalidClaim, c.authoritiesClaim)
		}
		out.Authorities = append(out.Authorities, s)
	}
	return out, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSig
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
