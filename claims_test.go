package accounts_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAccessRejectsMalformedClaims(t *testing.T) {
	f := newTokenFixture(t, nil)

	tests := []struct {
		name   string
		mutate func(accounts.Claims)
	}{
		{name: "missing subject", mutate: func(c accounts.Claims) { delete(c, accounts.ClaimSubject) }},
		{name: "empty subject", mutate: func(c accounts.Claims) { c[accounts.ClaimSubject] = "" }},
		{name: "unknown tier", mutate: func(c accounts.Claims) { c[accounts.ClaimTier] = "root" }},
		{name: "missing tier", mutate: func(c accounts.Claims) { delete(c, accounts.ClaimTier) }},
		{name: "missing issued at", mutate: func(c accounts.Claims) { delete(c, accounts.ClaimIssuedAt) }},
		{name: "string expiry", mutate: func(c accounts.Claims) { c[accounts.ClaimExpiresAt] = "tomorrow" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := claimsAt(epoch, accounts.AudienceAccess, time.Minute)
			tt.mutate(claims)

			token, err := f.signer.Sign(claims)
			require.NoError(t, err)

			_, err = f.verifier.VerifyAccess(token)
			require.Error(t, err)
			assert.True(t, accounts.IsMalformedError(err))
		})
	}
}

func TestVerifyAccessKeepsExtraClaims(t *testing.T) {
	f := newTokenFixture(t, nil)

	claims := claimsAt(epoch, accounts.AudienceAccess, time.Minute)
	claims["org"] = "acme"
	claims[accounts.ClaimIssuer] = "accounts"

	token, err := f.signer.Sign(claims)
	require.NoError(t, err)

	payload, err := f.verifier.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "accounts", payload.Issuer)
	assert.Equal(t, map[string]any{"org": "acme"}, payload.Extra)

	wire := payload.Claims()
	assert.Equal(t, "acme", wire["org"])
	assert.Equal(t, "accounts", wire[accounts.ClaimIssuer])
}

func TestAccessPayloadClaimsKeepDocumentedKeys(t *testing.T) {
	payload := accounts.AccessPayload{
		Identity:  testIdentity,
		Tier:      accounts.TierStandard,
		IssuedAt:  epoch,
		ExpiresAt: epoch.Add(time.Minute),
		Audience:  accounts.AudienceAccess,
		Extra:     map[string]any{accounts.ClaimTier: "admin"},
	}

	claims := payload.Claims()
	assert.Equal(t, "standard", claims[accounts.ClaimTier])
	assert.Equal(t, epoch.Unix(), claims[accounts.ClaimIssuedAt])
	_, hasIssuer := claims[accounts.ClaimIssuer]
	assert.False(t, hasIssuer)
}

func TestPayloadFromForeignClaims(t *testing.T) {
	_, ok := accounts.PayloadFromClaims(stubClaims{tier: accounts.TierAdmin})
	assert.False(t, ok)
}
