package accounts

import (
	"errors"
)

// Policy holds the registration flags. It is built once at startup and
// passed by value.
type Policy struct {
	// EmailConfirmationRequired creates accounts unconfirmed and sends an
	// activation code
	EmailConfirmationRequired bool
	// OpenRegistration lets anyone register, otherwise only admins can
	OpenRegistration bool
}

// AccountStateGuard gates issuance and registration on account state and
// policy. It holds no mutable state.
type AccountStateGuard struct {
	policy Policy
}

// NewAccountStateGuard returns a guard for policy
func NewAccountStateGuard(policy Policy) AccountStateGuard {
	return AccountStateGuard{policy: policy}
}

// Policy returns the configured policy
func (g AccountStateGuard) Policy() Policy {
	return g.policy
}

// AssertLoginAllowed fails for unconfirmed accounts. Call it after the
// credentials are verified and before any token is issued.
func (g AccountStateGuard) AssertLoginAllowed(account AccountState) error {
	if account == nil {
		return withCause(ErrIdentityNotFound, errors.New("account is nil"), nil)
	}
	if !account.IsConfirmed() {
		return ErrNotConfirmed.Clone()
	}
	return nil
}

// AssertRegistrationAllowed checks whether requester may create an account
// with targetTier. requester is nil for anonymous requests.
//
// Elevated tiers can only be granted by an admin, even when registration
// is open.
func (g AccountStateGuard) AssertRegistrationAllowed(requester AuthClaims, targetTier Tier) error {
	if targetTier != "" && !targetTier.IsValid() {
		return withCause(ErrUnknownTier, nil, map[string]any{"tier": targetTier.String()})
	}

	isAdmin := requester != nil && requester.IsAtLeast(string(TierAdmin))

	if !g.policy.OpenRegistration && !isAdmin {
		return withCause(ErrForbidden, errors.New("open registration is disabled"), map[string]any{
			"target_tier": targetTier.String(),
		})
	}

	if targetTier != "" && targetTier != TierStandard && !isAdmin {
		return withCause(ErrForbidden, errors.New("elevated tier requires an admin requester"), map[string]any{
			"target_tier": targetTier.String(),
		})
	}

	return nil
}

// InitialConfirmation reports whether new accounts start confirmed
func (g AccountStateGuard) InitialConfirmation() ConfirmationState {
	if g.policy.EmailConfirmationRequired {
		return StateUnconfirmed
	}
	return StateConfirmed
}
