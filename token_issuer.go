package accounts

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// TokenConfig holds the token lifetimes and audience tags. It is read once
// at startup.
type TokenConfig struct {
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	AccessAudience  string
	RefreshAudience string
	Issuer          string
}

// WithDefaults fills zero values
func (c TokenConfig) WithDefaults() TokenConfig {
	if c.AccessTTL == 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.AccessAudience == "" {
		c.AccessAudience = AudienceAccess
	}
	if c.RefreshAudience == "" {
		c.RefreshAudience = AudienceRefresh
	}
	return c
}

// Validate checks the token settings
func (c TokenConfig) Validate() error {
	switch {
	case c.AccessTTL <= 0:
		return withCause(ErrConfiguration, errors.New("access token TTL must be positive"), nil)
	case c.RefreshTTL <= c.AccessTTL:
		return withCause(ErrConfiguration, errors.New("refresh token TTL must exceed the access token TTL"), map[string]any{
			"access_ttl":  c.AccessTTL.String(),
			"refresh_ttl": c.RefreshTTL.String(),
		})
	case c.AccessAudience == "" || c.RefreshAudience == "":
		return withCause(ErrConfiguration, errors.New("audience tags are required"), nil)
	case c.AccessAudience == c.RefreshAudience:
		return withCause(ErrConfiguration, errors.New("access and refresh audiences must differ"), map[string]any{
			"audience": c.AccessAudience,
		})
	}
	return nil
}

// TokenPair is the result of a successful issuance
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// TokenIssuer signs access and refresh tokens for authenticated identities
type TokenIssuer struct {
	signer  Signer
	merger  *ClaimMerger
	cfg     TokenConfig
	now     func() time.Time
	metrics TokenMetrics
	logger  Logger
}

// IssuerOption configures a TokenIssuer
type IssuerOption func(*TokenIssuer)

// WithIssuerClock sets the issuance clock
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *TokenIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

func WithIssuerMetrics(m TokenMetrics) IssuerOption {
	return func(i *TokenIssuer) {
		i.metrics = normalizeMetrics(m)
	}
}

func WithIssuerLogger(logger Logger) IssuerOption {
	return func(i *TokenIssuer) {
		i.logger = normalizeLogger(logger)
	}
}

// NewTokenIssuer returns an issuer. A nil merger issues canonical payloads
// only.
func NewTokenIssuer(signer Signer, merger *ClaimMerger, cfg TokenConfig, opts ...IssuerOption) (*TokenIssuer, error) {
	if signer == nil {
		return nil, withCause(ErrConfiguration, errors.New("signer is required"), nil)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if merger == nil {
		merger = NewClaimMerger(nil)
	}

	i := &TokenIssuer{
		signer:  signer,
		merger:  merger,
		cfg:     cfg,
		now:     time.Now,
		metrics: noopMetrics{},
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

// IssueForLogin issues a fresh pair for id with the given tier. No partial
// pair is ever returned.
func (i *TokenIssuer) IssueForLogin(ctx context.Context, id IdentityRef, tier Tier) (TokenPair, error) {
	if id.IsZero() {
		return TokenPair{}, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}
	if !tier.IsValid() {
		return TokenPair{}, withCause(ErrUnknownTier, nil, map[string]any{"tier": tier.String()})
	}

	now := i.now().UTC().Truncate(time.Second)

	access := AccessPayload{
		Identity:  id,
		Tier:      tier,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.cfg.AccessTTL),
		Audience:  i.cfg.AccessAudience,
		Issuer:    i.cfg.Issuer,
	}

	claims, err := i.merger.Merge(ctx, id, access.Claims())
	if err != nil {
		return TokenPair{}, err
	}

	// a fragment may change the tier, but only to one verifiers accept
	merged, err := accessPayloadFromClaims(claims)
	if err != nil {
		i.logger.Error("merged claims do not form an access token", "identity", id, "error", err)
		return TokenPair{}, withCause(ErrClaimNotMergeable, err, map[string]any{"claim": ClaimTier})
	}
	claims[ClaimTier] = merged.Tier.String()

	if err := checkIssuanceContext(ctx); err != nil {
		return TokenPair{}, err
	}

	accessToken, err := i.signer.Sign(claims)
	if err != nil {
		i.logger.Error("failed to sign access token", "identity", id, "error", err)
		return TokenPair{}, err
	}

	refresh := RefreshPayload{
		Identity:  id,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.cfg.RefreshTTL),
		Audience:  i.cfg.RefreshAudience,
		Issuer:    i.cfg.Issuer,
	}

	refreshToken, err := i.signer.Sign(refresh.Claims())
	if err != nil {
		i.logger.Error("failed to sign refresh token", "identity", id, "error", err)
		return TokenPair{}, err
	}

	if err := checkIssuanceContext(ctx); err != nil {
		return TokenPair{}, err
	}

	i.metrics.TokenIssued(TokenKindAccess)
	i.metrics.TokenIssued(TokenKindRefresh)

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// IssueForRefresh issues a fresh pair for the identity of a verified refresh
// payload. currentTier must come from the account store, never from the
// refresh token.
func (i *TokenIssuer) IssueForRefresh(ctx context.Context, refresh RefreshPayload, currentTier Tier) (TokenPair, error) {
	if refresh.Identity.IsZero() {
		return TokenPair{}, malformedClaim(ClaimSubject, nil)
	}
	return i.IssueForLogin(ctx, refresh.Identity, currentTier)
}

func checkIssuanceContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "token issuance cancelled")
	}
	return nil
}
