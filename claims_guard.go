package accounts

import (
	"fmt"
	"sort"
	"strings"
)

// claimAllowList restricts the keys fragments may contribute. A nil list
// allows every key.
type claimAllowList map[string]struct{}

func newClaimAllowList(keys ...string) claimAllowList {
	list := claimAllowList{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		list[k] = struct{}{}
	}
	return list
}

func (l claimAllowList) validate(fragment ClaimFragment, provider string) error {
	if l == nil || len(fragment) == 0 {
		return nil
	}

	rejected := make([]string, 0)
	for k := range fragment {
		if _, ok := l[k]; !ok {
			rejected = append(rejected, k)
		}
	}

	if len(rejected) == 0 {
		return nil
	}

	sort.Strings(rejected)
	return claimNotMergeable(provider, rejected)
}

func claimNotMergeable(provider string, keys []string) error {
	clone := ErrClaimNotMergeable.Clone()
	if clone == nil {
		return ErrClaimNotMergeable
	}
	clone.Message = fmt.Sprintf("claim fragment from %s contains keys that are not mergeable: %s", provider, strings.Join(keys, ", "))
	clone.Source = ErrClaimNotMergeable
	return clone.WithMetadata(map[string]any{
		"provider": provider,
		"claims":   keys,
	})
}
