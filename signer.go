package accounts

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultKeyID is the key identifier embedded in the token header
const DefaultKeyID = "user_manager_kid"

// DefaultCriticalClaims are listed in the crit header of every token unless
// WithCriticalClaims says otherwise
var DefaultCriticalClaims = []string{ClaimExpiresAt, ClaimAudience}

// Signer signs and verifies claim sets
type Signer interface {
	Sign(claims Claims) (string, error)
	Verify(token, audience string) (Claims, error)
}

// RSASigner signs RS256 tokens. It holds immutable key state and is safe for
// concurrent use.
type RSASigner struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
	critical   []string
	now        func() time.Time
}

var _ Signer = (*RSASigner)(nil)

// SignerOption configures an RSASigner
type SignerOption func(*RSASigner)

// WithKeyID overrides the kid header
func WithKeyID(kid string) SignerOption {
	return func(s *RSASigner) {
		if kid != "" {
			s.keyID = kid
		}
	}
}

// WithCriticalClaims sets the claims listed in the crit header. Calling it
// with no claims removes the header.
//
// RFC 7515 reserves crit for header parameter names, so strict JOSE
// verifiers such as jwx reject tokens carrying the default exp and aud
// entries. RSASigner and jwtware accept them. Pass no claims, or set
// JWT_DISABLE_CRIT in the server config, when tokens must verify with any
// standard library.
func WithCriticalClaims(claims ...string) SignerOption {
	return func(s *RSASigner) {
		s.critical = append([]string(nil), claims...)
	}
}

// WithSignerClock sets the clock used for expiry checks
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *RSASigner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRSASigner builds a signer from key material. Public only material
// yields a verify only signer.
func NewRSASigner(material KeyMaterial, opts ...SignerOption) (*RSASigner, error) {
	priv, pub, err := material.Load()
	if err != nil {
		return nil, err
	}
	return newRSASigner(priv, pub, opts...), nil
}

// NewRSASignerFromKey builds a signer around an in memory private key
func NewRSASignerFromKey(key *rsa.PrivateKey, opts ...SignerOption) (*RSASigner, error) {
	if key == nil {
		return nil, withCause(ErrConfiguration, errors.New("private key is nil"), nil)
	}
	return newRSASigner(key, &key.PublicKey, opts...), nil
}

func newRSASigner(priv *rsa.PrivateKey, pub *rsa.PublicKey, opts ...SignerOption) *RSASigner {
	s := &RSASigner{
		privateKey: priv,
		publicKey:  pub,
		keyID:      DefaultKeyID,
		critical:   append([]string(nil), DefaultCriticalClaims...),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// KeyID returns the kid header value
func (s *RSASigner) KeyID() string {
	return s.keyID
}

// PublicKey returns the verification key
func (s *RSASigner) PublicKey() *rsa.PublicKey {
	return s.publicKey
}

// CanSign reports whether private key material is loaded
func (s *RSASigner) CanSign() bool {
	return s.privateKey != nil
}

// Sign encodes claims into a compact RS256 token
func (s *RSASigner) Sign(claims Claims) (string, error) {
	if s.privateKey == nil {
		return "", withCause(ErrConfiguration, errors.New("private key material is absent"), map[string]any{
			"kid": s.keyID,
		})
	}

	mapClaims := make(jwt.MapClaims, len(claims))
	for k, v := range claims {
		mapClaims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mapClaims)
	token.Header["kid"] = s.keyID
	if len(s.critical) > 0 {
		token.Header["crit"] = s.critical
	}

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", withCause(ErrConfiguration, fmt.Errorf("failed to sign JWT: %w", err), map[string]any{
			"kid": s.keyID,
		})
	}

	return signed, nil
}

// Verify checks the signature, the audience and the expiry of token, in that
// order, and returns its claims.
func (s *RSASigner) Verify(token, audience string) (Claims, error) {
	if s.publicKey == nil {
		return nil, withCause(ErrConfiguration, errors.New("public key material is absent"), nil)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	parsed, err := parser.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		return s.publicKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, withCause(ErrTokenMalformed, errors.New("unexpected claims type"), nil)
	}
	claims := Claims(mapClaims)

	if err := checkCritical(parsed.Header, claims); err != nil {
		return nil, err
	}

	if !claims.hasAudience(audience) {
		return nil, withCause(ErrTokenAudience, fmt.Errorf("expected audience %q", audience), map[string]any{
			"expected": audience,
			"actual":   claims.audience(),
		})
	}

	exp, ok := numericClaim(claims[ClaimExpiresAt])
	if !ok {
		return nil, malformedClaim(ClaimExpiresAt, claims[ClaimExpiresAt])
	}
	now := s.now()
	if !now.Before(time.Unix(exp, 0)) {
		return nil, withCause(ErrTokenExpired, jwt.ErrTokenExpired, map[string]any{
			"expired_at": time.Unix(exp, 0).UTC(),
			"now":        now.UTC(),
		})
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return withCause(ErrTokenMalformed, err, nil)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return withCause(ErrTokenSignature, err, nil)
	default:
		return withCause(ErrTokenMalformed, err, nil)
	}
}

// checkCritical ensures every claim named in the crit header is present.
func checkCritical(header map[string]any, claims Claims) error {
	raw, ok := header["crit"]
	if !ok {
		return nil
	}

	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return withCause(ErrTokenMalformed, errors.New("crit header must be a non empty list"), nil)
	}

	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return withCause(ErrTokenMalformed, errors.New("crit header entries must be strings"), nil)
		}
		if _, present := claims[name]; !present {
			return malformedClaim(name, nil)
		}
	}
	return nil
}
