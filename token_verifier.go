package accounts

import (
	"errors"
)

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// TokenVerifier recovers typed payloads from presented tokens. Access and
// refresh tokens share one key pair and are told apart by audience.
type TokenVerifier struct {
	signer  Signer
	cfg     TokenConfig
	metrics TokenMetrics
}

var _ TokenValidator = (*TokenVerifier)(nil)

// VerifierOption configures a TokenVerifier
type VerifierOption func(*TokenVerifier)

func WithVerifierMetrics(m TokenMetrics) VerifierOption {
	return func(v *TokenVerifier) {
		v.metrics = normalizeMetrics(m)
	}
}

// NewTokenVerifier returns a verifier using the audiences in cfg
func NewTokenVerifier(signer Signer, cfg TokenConfig, opts ...VerifierOption) (*TokenVerifier, error) {
	if signer == nil {
		return nil, withCause(ErrConfiguration, errors.New("signer is required"), nil)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &TokenVerifier{
		signer:  signer,
		cfg:     cfg,
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// VerifyAccess verifies an access token
func (v *TokenVerifier) VerifyAccess(token string) (AccessPayload, error) {
	claims, err := v.signer.Verify(token, v.cfg.AccessAudience)
	if err != nil {
		v.recordFailure(TokenKindAccess, err)
		return AccessPayload{}, err
	}

	payload, err := accessPayloadFromClaims(claims)
	if err != nil {
		v.recordFailure(TokenKindAccess, err)
		return AccessPayload{}, err
	}
	return payload, nil
}

// VerifyRefresh verifies a refresh token
func (v *TokenVerifier) VerifyRefresh(token string) (RefreshPayload, error) {
	claims, err := v.signer.Verify(token, v.cfg.RefreshAudience)
	if err != nil {
		v.recordFailure(TokenKindRefresh, err)
		return RefreshPayload{}, err
	}

	payload, err := refreshPayloadFromClaims(claims)
	if err != nil {
		v.recordFailure(TokenKindRefresh, err)
		return RefreshPayload{}, err
	}
	return payload, nil
}

// Validate satisfies TokenValidator for access tokens
func (v *TokenVerifier) Validate(tokenString string) (AuthClaims, error) {
	payload, err := v.VerifyAccess(tokenString)
	if err != nil {
		return nil, err
	}
	return &accessClaims{payload: payload}, nil
}

func (v *TokenVerifier) recordFailure(kind string, err error) {
	v.metrics.VerificationFailed(kind, failureReason(err))
}

func failureReason(err error) string {
	switch {
	case IsAudienceError(err):
		return "audience"
	case IsTokenExpiredError(err):
		return "expired"
	case IsSignatureError(err):
		return "signature"
	case IsMalformedError(err):
		return "malformed"
	default:
		return "other"
	}
}
