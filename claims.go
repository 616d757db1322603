package accounts

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Registered claim keys carried by issued tokens
const (
	ClaimSubject   = "sub"
	ClaimTier      = "tier"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimAudience  = "aud"
	ClaimIssuer    = "iss"
)

// Default audience tags separating access and refresh tokens
const (
	AudienceAccess  = "access"
	AudienceRefresh = "refresh"
)

var documentedAccessClaims = map[string]struct{}{
	ClaimSubject:   {},
	ClaimTier:      {},
	ClaimIssuedAt:  {},
	ClaimExpiresAt: {},
	ClaimAudience:  {},
	ClaimIssuer:    {},
}

// Claims is a signed claim set
type Claims map[string]any

// ClaimFragment is a partial claim set contributed by a ClaimProvider
type ClaimFragment map[string]any

// AccessPayload is the claim set of an access token
type AccessPayload struct {
	Identity  IdentityRef
	Tier      Tier
	IssuedAt  time.Time
	ExpiresAt time.Time
	Audience  string
	Issuer    string
	// Extra holds merged fragment claims outside the documented set
	Extra map[string]any
}

// Claims returns the wire form of the payload. Extra claims never override
// the documented keys here, fragments are applied by the ClaimMerger.
func (p AccessPayload) Claims() Claims {
	out := Claims{}
	for k, v := range p.Extra {
		out[k] = v
	}
	out[ClaimSubject] = p.Identity.String()
	out[ClaimTier] = p.Tier.String()
	out[ClaimIssuedAt] = p.IssuedAt.Unix()
	out[ClaimExpiresAt] = p.ExpiresAt.Unix()
	out[ClaimAudience] = p.Audience
	if p.Issuer != "" {
		out[ClaimIssuer] = p.Issuer
	}
	return out
}

// RefreshPayload is the claim set of a refresh token. It never carries
// fragment claims or the tier.
type RefreshPayload struct {
	Identity  IdentityRef
	IssuedAt  time.Time
	ExpiresAt time.Time
	Audience  string
	Issuer    string
}

func (p RefreshPayload) Claims() Claims {
	out := Claims{
		ClaimSubject:   p.Identity.String(),
		ClaimIssuedAt:  p.IssuedAt.Unix(),
		ClaimExpiresAt: p.ExpiresAt.Unix(),
		ClaimAudience:  p.Audience,
	}
	if p.Issuer != "" {
		out[ClaimIssuer] = p.Issuer
	}
	return out
}

func accessPayloadFromClaims(c Claims) (AccessPayload, error) {
	p := AccessPayload{}

	sub, err := c.stringClaim(ClaimSubject)
	if err != nil {
		return p, err
	}
	p.Identity = IdentityRef(sub)

	switch raw := c[ClaimTier].(type) {
	case string:
		tier, err := ParseTier(raw)
		if err != nil {
			return p, withCause(ErrTokenMalformed, err, map[string]any{"claim": ClaimTier})
		}
		p.Tier = tier
	case float64:
		tier, ok := LookupTierID(int(raw))
		if !ok || float64(int(raw)) != raw {
			return p, withCause(ErrTokenMalformed, ErrUnknownTier, map[string]any{"claim": ClaimTier, "tier": raw})
		}
		p.Tier = tier
	default:
		return p, malformedClaim(ClaimTier, raw)
	}

	if p.IssuedAt, err = c.timeClaim(ClaimIssuedAt); err != nil {
		return p, err
	}
	if p.ExpiresAt, err = c.timeClaim(ClaimExpiresAt); err != nil {
		return p, err
	}

	p.Audience = c.audience()
	p.Issuer, _ = c[ClaimIssuer].(string)

	for k, v := range c {
		if _, ok := documentedAccessClaims[k]; ok {
			continue
		}
		if p.Extra == nil {
			p.Extra = map[string]any{}
		}
		p.Extra[k] = v
	}

	return p, nil
}

func refreshPayloadFromClaims(c Claims) (RefreshPayload, error) {
	p := RefreshPayload{}

	sub, err := c.stringClaim(ClaimSubject)
	if err != nil {
		return p, err
	}
	p.Identity = IdentityRef(sub)

	if p.IssuedAt, err = c.timeClaim(ClaimIssuedAt); err != nil {
		return p, err
	}
	if p.ExpiresAt, err = c.timeClaim(ClaimExpiresAt); err != nil {
		return p, err
	}

	p.Audience = c.audience()
	p.Issuer, _ = c[ClaimIssuer].(string)

	return p, nil
}

func (c Claims) stringClaim(key string) (string, error) {
	v, ok := c[key].(string)
	if !ok || v == "" {
		return "", malformedClaim(key, c[key])
	}
	return v, nil
}

func (c Claims) timeClaim(key string) (time.Time, error) {
	secs, ok := numericClaim(c[key])
	if !ok {
		return time.Time{}, malformedClaim(key, c[key])
	}
	return time.Unix(secs, 0).UTC(), nil
}

// audience returns the first audience, tokens from this package carry one.
func (c Claims) audience() string {
	switch aud := c[ClaimAudience].(type) {
	case string:
		return aud
	case []string:
		if len(aud) > 0 {
			return aud[0]
		}
	case []any:
		if len(aud) > 0 {
			s, _ := aud[0].(string)
			return s
		}
	}
	return ""
}

func (c Claims) hasAudience(expected string) bool {
	switch aud := c[ClaimAudience].(type) {
	case string:
		return aud == expected
	case []string:
		for _, a := range aud {
			if a == expected {
				return true
			}
		}
	case []any:
		for _, a := range aud {
			if s, ok := a.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

func numericClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	}
	return 0, false
}

func malformedClaim(key string, value any) error {
	return withCause(ErrTokenMalformed, fmt.Errorf("claim %q missing or invalid", key), map[string]any{
		"claim": key,
		"type":  fmt.Sprintf("%T", value),
	})
}

// accessClaims adapts a verified AccessPayload to AuthClaims
type accessClaims struct {
	payload AccessPayload
}

var _ AuthClaims = (*accessClaims)(nil)

func (c *accessClaims) Subject() string {
	return c.payload.Identity.String()
}

func (c *accessClaims) UserID() string {
	return c.payload.Identity.String()
}

func (c *accessClaims) Role() string {
	return c.payload.Tier.String()
}

func (c *accessClaims) HasRole(role string) bool {
	return c.payload.Tier == Tier(role)
}

func (c *accessClaims) IsAtLeast(minRole string) bool {
	return c.payload.Tier.IsAtLeast(Tier(minRole))
}

func (c *accessClaims) Expires() time.Time {
	return c.payload.ExpiresAt
}

func (c *accessClaims) IssuedAt() time.Time {
	return c.payload.IssuedAt
}

// Payload returns the verified access payload
func (c *accessClaims) Payload() AccessPayload {
	return c.payload
}

// PayloadFromClaims recovers the AccessPayload behind claims returned by
// TokenVerifier.Validate.
func PayloadFromClaims(claims AuthClaims) (AccessPayload, bool) {
	if c, ok := claims.(*accessClaims); ok && c != nil {
		return c.payload, true
	}
	return AccessPayload{}, false
}
