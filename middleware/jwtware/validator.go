package jwtware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tier ranks mirror the accounts package, lower is more privileged
var tierRanks = map[string]int{
	"admin":     0,
	"moderator": 1,
	"standard":  2,
}

// TokenClaims is the view of a verified access token built by the
// keyfunc validator
type TokenClaims struct {
	Sub       string
	Tier      string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Raw       jwt.MapClaims
}

var _ AuthClaims = (*TokenClaims)(nil)

func (c *TokenClaims) Subject() string { return c.Sub }
func (c *TokenClaims) UserID() string  { return c.Sub }
func (c *TokenClaims) Role() string    { return c.Tier }

func (c *TokenClaims) HasRole(role string) bool {
	return strings.EqualFold(c.Tier, strings.TrimSpace(role))
}

// IsAtLeast reports whether the token tier is as privileged as minRole
func (c *TokenClaims) IsAtLeast(minRole string) bool {
	have, ok := tierRanks[strings.ToLower(c.Tier)]
	if !ok {
		return false
	}
	want, ok := tierRanks[strings.ToLower(strings.TrimSpace(minRole))]
	if !ok {
		return false
	}
	return have <= want
}

// NewKeyfuncValidator verifies RS256 tokens with keyFunc and requires the
// given audience. It is used by services that only hold the public key,
// typically fetched from the JWKS endpoint.
func NewKeyfuncValidator(keyFunc jwt.Keyfunc, audience string) TokenValidator {
	if audience == "" {
		audience = DefaultAudience
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)

	return TokenValidatorFunc(func(tokenString string) (AuthClaims, error) {
		if keyFunc == nil {
			return nil, errors.New("jwtware: no key function configured")
		}

		token, err := parser.Parse(tokenString, keyFunc)
		if err != nil {
			return nil, err
		}

		mc, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected claims type", jwt.ErrTokenMalformed)
		}

		sub, err := mc.GetSubject()
		if err != nil || sub == "" {
			return nil, fmt.Errorf("%w: missing subject", jwt.ErrTokenMalformed)
		}

		claims := &TokenClaims{Sub: sub, Raw: mc}
		if tier, ok := mc["tier"].(string); ok {
			claims.Tier = tier
		}
		if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
			claims.ExpiresAt = exp.Time
		}
		if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
			claims.IssuedAt = iat.Time
		}

		return claims, nil
	})
}
