package accounts

import (
	"context"
	"fmt"
	"time"
)

// ClaimProvider contributes a claim fragment for an identity. Providers must
// honor ctx cancellation.
type ClaimProvider interface {
	FetchFragment(ctx context.Context, id IdentityRef) (ClaimFragment, error)
}

// ClaimProviderFunc adapts a function into a ClaimProvider.
type ClaimProviderFunc func(ctx context.Context, id IdentityRef) (ClaimFragment, error)

// FetchFragment satisfies the ClaimProvider interface.
func (f ClaimProviderFunc) FetchFragment(ctx context.Context, id IdentityRef) (ClaimFragment, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, id)
}

// NamedClaimProvider reports a name used in logs and error metadata
type NamedClaimProvider interface {
	ClaimProvider
	Name() string
}

type namedProvider struct {
	ClaimProvider
	name string
}

func (n namedProvider) Name() string {
	return n.name
}

// NameProvider attaches a name to p
func NameProvider(name string, p ClaimProvider) NamedClaimProvider {
	return namedProvider{ClaimProvider: p, name: name}
}

// pinnedClaims bind a token to its identity, audience and lifetime. A
// fragment can never replace them.
var pinnedClaims = []string{ClaimSubject, ClaimAudience, ClaimExpiresAt, ClaimIssuedAt, ClaimIssuer}

// MergeClaims overlays fragments on canonical in order. Fragment values win
// over canonical values, tier included, and later fragments win over earlier
// ones. The pinned keys sub, aud, exp, iat and iss always keep their
// canonical value, or stay absent when canonical has none. The inputs are
// not modified.
func MergeClaims(canonical Claims, fragments ...ClaimFragment) Claims {
	out := make(Claims, len(canonical))
	for k, v := range canonical {
		out[k] = v
	}
	for _, fragment := range fragments {
		for k, v := range fragment {
			out[k] = v
		}
	}
	for _, k := range pinnedClaims {
		if v, ok := canonical[k]; ok {
			out[k] = v
		} else {
			delete(out, k)
		}
	}
	return out
}

// ClaimMerger fetches fragments from its providers in declared order and
// merges them over a canonical payload.
type ClaimMerger struct {
	providers []ClaimProvider
	timeout   time.Duration
	allowList claimAllowList
	logger    Logger
}

// MergerOption configures a ClaimMerger
type MergerOption func(*ClaimMerger)

// WithProviderTimeout bounds each provider call. A provider that exceeds it
// fails the merge.
func WithProviderTimeout(d time.Duration) MergerOption {
	return func(m *ClaimMerger) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithAllowedClaims restricts the keys a fragment may contribute. Without it
// any key, including canonical ones such as tier, can be overwritten.
func WithAllowedClaims(keys ...string) MergerOption {
	return func(m *ClaimMerger) {
		m.allowList = newClaimAllowList(keys...)
	}
}

func WithMergerLogger(logger Logger) MergerOption {
	return func(m *ClaimMerger) {
		m.logger = normalizeLogger(logger)
	}
}

// NewClaimMerger returns a merger invoking providers in slice order
func NewClaimMerger(providers []ClaimProvider, opts ...MergerOption) *ClaimMerger {
	m := &ClaimMerger{
		providers: append([]ClaimProvider(nil), providers...),
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Providers returns the number of registered providers
func (m *ClaimMerger) Providers() int {
	if m == nil {
		return 0
	}
	return len(m.providers)
}

// Fragments collects one fragment per provider. Any provider failure aborts
// the collection.
func (m *ClaimMerger) Fragments(ctx context.Context, id IdentityRef) ([]ClaimFragment, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, nil
	}

	fragments := make([]ClaimFragment, 0, len(m.providers))
	for i, provider := range m.providers {
		if provider == nil {
			continue
		}

		name := providerName(provider, i)
		fragment, err := m.fetch(ctx, provider, id)
		if err != nil {
			m.logger.Error("claim provider failed", "provider", name, "identity", id, "error", err)
			return nil, withCause(ErrClaimProvider, err, map[string]any{
				"provider":       name,
				"provider_index": i,
				"identity":       id.String(),
			})
		}

		if err := m.allowList.validate(fragment, name); err != nil {
			m.logger.Warn("claim provider returned a key outside the allow list", "provider", name, "error", err)
			return nil, err
		}

		fragments = append(fragments, fragment)
	}

	return fragments, nil
}

// Merge fetches all fragments and merges them over canonical
func (m *ClaimMerger) Merge(ctx context.Context, id IdentityRef, canonical Claims) (Claims, error) {
	fragments, err := m.Fragments(ctx, id)
	if err != nil {
		return nil, err
	}
	return MergeClaims(canonical, fragments...), nil
}

func (m *ClaimMerger) fetch(ctx context.Context, provider ClaimProvider, id IdentityRef) (ClaimFragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pctx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	fragment, err := provider.FetchFragment(pctx, id)
	if err != nil {
		return nil, err
	}

	// a late answer is still a timeout
	if err := pctx.Err(); err != nil {
		return nil, err
	}

	return fragment, nil
}

func providerName(p ClaimProvider, idx int) string {
	if named, ok := p.(NamedClaimProvider); ok && named.Name() != "" {
		return named.Name()
	}
	return fmt.Sprintf("provider[%d]", idx)
}
