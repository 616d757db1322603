package accounts

import (
	"encoding/json"
	"strings"
)

// Tier is the permission tier of an account
type Tier string

const (
	// TierAdmin can manage accounts and register users when registration is closed
	TierAdmin Tier = "admin"
	// TierModerator has elevated access to moderated resources
	TierModerator Tier = "moderator"
	// TierStandard is the default tier for registered users
	TierStandard Tier = "standard"
)

// tier ids follow the persisted status values, lower is more privileged
var tierIDs = map[Tier]int{
	TierAdmin:     0,
	TierModerator: 1,
	TierStandard:  2,
}

// IsValid checks if the tier is one of the predefined tiers
func (t Tier) IsValid() bool {
	_, ok := tierIDs[t]
	return ok
}

// ID returns the numeric id of the tier, unknown tiers map to standard
func (t Tier) ID() int {
	if id, ok := tierIDs[t]; ok {
		return id
	}
	return tierIDs[TierStandard]
}

// IsAtLeast checks if this tier meets the minimum required level
func (t Tier) IsAtLeast(min Tier) bool {
	if !t.IsValid() || !min.IsValid() {
		return false
	}
	return tierIDs[t] <= tierIDs[min]
}

func (t Tier) String() string {
	return string(t)
}

// ParseTier resolves a tier by name
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", withCause(ErrUnknownTier, nil, map[string]any{"tier": s})
	}
	return t, nil
}

// TierFromID maps a numeric status id to its tier. Unknown ids fall back to
// standard, use LookupTierID where an unknown id is an error.
func TierFromID(id int) Tier {
	if t, ok := LookupTierID(id); ok {
		return t
	}
	return TierStandard
}

// LookupTierID returns the tier with the given numeric id
func LookupTierID(id int) (Tier, bool) {
	for t, v := range tierIDs {
		if v == id {
			return t, true
		}
	}
	return "", false
}

// UnmarshalJSON accepts both the tier name and its numeric id.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var id int
	if err := json.Unmarshal(data, &id); err == nil {
		*t = TierFromID(id)
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	parsed, err := ParseTier(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
