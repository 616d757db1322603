package accounts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentity accounts.IdentityRef = "2f7e4b1c-0d7a-4c61-8a0e-6b1f5d2c9e33"

func TestTokenConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  accounts.TokenConfig
		ok   bool
	}{
		{name: "defaults", cfg: accounts.TokenConfig{}.WithDefaults(), ok: true},
		{name: "refresh shorter than access", cfg: accounts.TokenConfig{
			AccessTTL: time.Hour, RefreshTTL: time.Minute, AccessAudience: "a", RefreshAudience: "r",
		}},
		{name: "same audience", cfg: accounts.TokenConfig{
			AccessTTL: time.Minute, RefreshTTL: time.Hour, AccessAudience: "a", RefreshAudience: "a",
		}},
		{name: "negative access", cfg: accounts.TokenConfig{
			AccessTTL: -time.Minute, RefreshTTL: time.Hour, AccessAudience: "a", RefreshAudience: "r",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, accounts.IsConfigurationError(err))
		})
	}
}

func TestTokenConfigDefaults(t *testing.T) {
	cfg := accounts.TokenConfig{}.WithDefaults()
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, accounts.AudienceAccess, cfg.AccessAudience)
	assert.Equal(t, accounts.AudienceRefresh, cfg.RefreshAudience)
}

func TestIssueForLoginRoundTrip(t *testing.T) {
	f := newTokenFixture(t, nil)

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierModerator)
	require.NoError(t, err)
	assert.Equal(t, 2, f.signer.Signs())
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, epoch.Add(15*time.Minute), pair.AccessExpiresAt)
	assert.Equal(t, epoch.Add(14*24*time.Hour), pair.RefreshExpiresAt)

	access, err := f.verifier.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, accounts.AccessPayload{
		Identity:  testIdentity,
		Tier:      accounts.TierModerator,
		IssuedAt:  epoch,
		ExpiresAt: epoch.Add(15 * time.Minute),
		Audience:  accounts.AudienceAccess,
	}, access)

	refresh, err := f.verifier.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, accounts.RefreshPayload{
		Identity:  testIdentity,
		IssuedAt:  epoch,
		ExpiresAt: epoch.Add(14 * 24 * time.Hour),
		Audience:  accounts.AudienceRefresh,
	}, refresh)
}

func TestAudienceIsolation(t *testing.T) {
	f := newTokenFixture(t, nil)

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierStandard)
	require.NoError(t, err)

	_, err = f.verifier.VerifyAccess(pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, accounts.IsAudienceError(err))

	_, err = f.verifier.VerifyRefresh(pair.AccessToken)
	require.Error(t, err)
	assert.True(t, accounts.IsAudienceError(err))
}

func TestAccessTokenExpiry(t *testing.T) {
	f := newTokenFixture(t, nil)

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierStandard)
	require.NoError(t, err)

	f.clock.Set(epoch.Add(899 * time.Second))
	_, err = f.verifier.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)

	f.clock.Set(epoch.Add(900 * time.Second))
	_, err = f.verifier.VerifyAccess(pair.AccessToken)
	require.Error(t, err)
	assert.True(t, accounts.IsTokenExpiredError(err))

	f.clock.Set(epoch.Add(901 * time.Second))
	_, err = f.verifier.VerifyAccess(pair.AccessToken)
	require.Error(t, err)
	assert.True(t, accounts.IsTokenExpiredError(err))

	_, err = f.verifier.VerifyRefresh(pair.RefreshToken)
	assert.NoError(t, err)
}

func TestIssueForLoginRejectsInvalidInput(t *testing.T) {
	f := newTokenFixture(t, nil)

	_, err := f.issuer.IssueForLogin(context.Background(), "", accounts.TierStandard)
	assert.Error(t, err)

	_, err = f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.Tier("root"))
	assert.Error(t, err)

	assert.Equal(t, 0, f.signer.Signs())
}

func TestIssueForLoginMergesFragments(t *testing.T) {
	merger := accounts.NewClaimMerger([]accounts.ClaimProvider{
		accounts.ClaimProviderFunc(func(ctx context.Context, id accounts.IdentityRef) (accounts.ClaimFragment, error) {
			return accounts.ClaimFragment{"org": "acme", "plan": "free"}, nil
		}),
		accounts.ClaimProviderFunc(func(ctx context.Context, id accounts.IdentityRef) (accounts.ClaimFragment, error) {
			return accounts.ClaimFragment{"plan": "pro"}, nil
		}),
	})
	f := newTokenFixture(t, merger)

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierStandard)
	require.NoError(t, err)

	access, err := f.verifier.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"org": "acme", "plan": "pro"}, access.Extra)

	refresh, err := f.verifier.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, refresh.Identity)
}

func fragmentMerger(fragment accounts.ClaimFragment) *accounts.ClaimMerger {
	return accounts.NewClaimMerger([]accounts.ClaimProvider{
		accounts.ClaimProviderFunc(func(ctx context.Context, id accounts.IdentityRef) (accounts.ClaimFragment, error) {
			return fragment, nil
		}),
	})
}

func TestIssueForLoginFragmentOverridesTier(t *testing.T) {
	f := newTokenFixture(t, fragmentMerger(accounts.ClaimFragment{"tier": "Moderator"}))

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierStandard)
	require.NoError(t, err)

	access, err := f.verifier.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, accounts.TierModerator, access.Tier)
}

func TestIssueForLoginFragmentCannotMoveTokenBinding(t *testing.T) {
	f := newTokenFixture(t, fragmentMerger(accounts.ClaimFragment{
		"sub": "someone-else",
		"aud": accounts.AudienceRefresh,
		"exp": epoch.Add(100 * 365 * 24 * time.Hour).Unix(),
		"iat": epoch.Add(-time.Hour).Unix(),
		"iss": "https://elsewhere.example",
	}))

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierStandard)
	require.NoError(t, err)

	access, err := f.verifier.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, access.Identity)
	assert.Equal(t, accounts.AudienceAccess, access.Audience)
	assert.Equal(t, epoch, access.IssuedAt)
	assert.Empty(t, access.Issuer)
	assert.Empty(t, access.Extra)

	refresh, err := f.verifier.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, access.Identity, refresh.Identity)

	_, err = f.verifier.VerifyRefresh(pair.AccessToken)
	require.Error(t, err)
	assert.True(t, accounts.IsAudienceError(err))

	f.clock.Set(epoch.Add(24 * time.Hour))
	_, err = f.verifier.VerifyAccess(pair.AccessToken)
	require.Error(t, err)
	assert.True(t, accounts.IsTokenExpiredError(err))
}

func TestIssueForLoginRejectsUnknownFragmentTier(t *testing.T) {
	f := newTokenFixture(t, fragmentMerger(accounts.ClaimFragment{"tier": "superuser"}))

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierStandard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not mergeable")
	assert.Equal(t, accounts.TokenPair{}, pair)
	assert.Equal(t, 0, f.signer.Signs())

	status, _ := accounts.PublicReason(err)
	assert.Equal(t, 500, status)
}

func TestVerifyAccessRejectsUnknownTierID(t *testing.T) {
	f := newTokenFixture(t, nil)

	sign := func(tier any) string {
		token, err := f.signer.Sign(accounts.Claims{
			"sub":  testIdentity.String(),
			"tier": tier,
			"iat":  epoch.Unix(),
			"exp":  epoch.Add(time.Minute).Unix(),
			"aud":  accounts.AudienceAccess,
		})
		require.NoError(t, err)
		return token
	}

	access, err := f.verifier.VerifyAccess(sign(1))
	require.NoError(t, err)
	assert.Equal(t, accounts.TierModerator, access.Tier)

	for _, tier := range []any{7, -1, 1.5} {
		_, err := f.verifier.VerifyAccess(sign(tier))
		require.Error(t, err, "tier %v", tier)
		assert.True(t, accounts.IsMalformedError(err), "tier %v", tier)
	}
}

func TestIssueForLoginProviderFailureSignsNothing(t *testing.T) {
	merger := accounts.NewClaimMerger([]accounts.ClaimProvider{
		accounts.ClaimProviderFunc(func(ctx context.Context, id accounts.IdentityRef) (accounts.ClaimFragment, error) {
			return nil, errors.New("upstream down")
		}),
	})
	f := newTokenFixture(t, merger)

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierStandard)
	require.Error(t, err)
	assert.True(t, accounts.IsProviderError(err))
	assert.Empty(t, pair.AccessToken)
	assert.Empty(t, pair.RefreshToken)
	assert.Equal(t, 0, f.signer.Signs())
}

func TestIssueForLoginCancelledReturnsNoPair(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	merger := accounts.NewClaimMerger([]accounts.ClaimProvider{
		accounts.ClaimProviderFunc(func(ctx context.Context, id accounts.IdentityRef) (accounts.ClaimFragment, error) {
			cancel()
			return accounts.ClaimFragment{}, nil
		}),
	})
	f := newTokenFixture(t, merger)

	pair, err := f.issuer.IssueForLogin(ctx, testIdentity, accounts.TierStandard)
	require.Error(t, err)
	assert.Equal(t, accounts.TokenPair{}, pair)
}

func TestIssueForRefreshUsesCurrentTier(t *testing.T) {
	f := newTokenFixture(t, nil)

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierStandard)
	require.NoError(t, err)

	refresh, err := f.verifier.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	next, err := f.issuer.IssueForRefresh(context.Background(), refresh, accounts.TierAdmin)
	require.NoError(t, err)

	access, err := f.verifier.VerifyAccess(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, accounts.TierAdmin, access.Tier)
	assert.Equal(t, epoch.Add(time.Hour), access.IssuedAt)
}

func TestVerifierValidateReturnsAuthClaims(t *testing.T) {
	f := newTokenFixture(t, nil)

	pair, err := f.issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierModerator)
	require.NoError(t, err)

	claims, err := f.verifier.Validate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testIdentity.String(), claims.UserID())
	assert.Equal(t, "moderator", claims.Role())
	assert.True(t, claims.IsAtLeast("standard"))
	assert.False(t, claims.IsAtLeast("admin"))
	assert.Equal(t, epoch.Add(15*time.Minute), claims.Expires())

	payload, ok := accounts.PayloadFromClaims(claims)
	require.True(t, ok)
	assert.Equal(t, accounts.TierModerator, payload.Tier)
}

type countingMetrics struct {
	issued   map[string]int
	failures map[string]int
}

func (m *countingMetrics) TokenIssued(kind string) {
	m.issued[kind]++
}

func (m *countingMetrics) VerificationFailed(kind, reason string) {
	m.failures[kind+":"+reason]++
}

func TestTokenMetricsAreRecorded(t *testing.T) {
	clock := newTestClock(epoch)
	signer, err := accounts.NewRSASignerFromKey(rsaKey(t), accounts.WithSignerClock(clock.Now))
	require.NoError(t, err)

	metrics := &countingMetrics{issued: map[string]int{}, failures: map[string]int{}}

	issuer, err := accounts.NewTokenIssuer(signer, nil, accounts.TokenConfig{},
		accounts.WithIssuerClock(clock.Now),
		accounts.WithIssuerMetrics(metrics),
	)
	require.NoError(t, err)

	verifier, err := accounts.NewTokenVerifier(signer, accounts.TokenConfig{}, accounts.WithVerifierMetrics(metrics))
	require.NoError(t, err)

	pair, err := issuer.IssueForLogin(context.Background(), testIdentity, accounts.TierStandard)
	require.NoError(t, err)

	_, _ = verifier.VerifyAccess(pair.RefreshToken)
	_, _ = verifier.VerifyRefresh("garbage")

	assert.Equal(t, 1, metrics.issued[accounts.TokenKindAccess])
	assert.Equal(t, 1, metrics.issued[accounts.TokenKindRefresh])
	assert.Equal(t, 1, metrics.failures["access:audience"])
	assert.Equal(t, 1, metrics.failures["refresh:malformed"])
}

func TestNewTokenIssuerRequiresSigner(t *testing.T) {
	_, err := accounts.NewTokenIssuer(nil, nil, accounts.TokenConfig{})
	require.Error(t, err)
	assert.True(t, accounts.IsConfigurationError(err))

	_, err = accounts.NewTokenVerifier(nil, accounts.TokenConfig{})
	require.Error(t, err)
	assert.True(t, accounts.IsConfigurationError(err))
}
