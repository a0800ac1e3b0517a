package models

import (
	"encoding/json"
	"strings"
)

// Tier is a subscription plan level. Tiers are totally ordered: a higher
// tier is entitled to everything a lower tier is.
type Tier int

const (
	TierFree Tier = iota
	TierStarter
	TierPro
	TierGrowth
	TierScale
	TierEnterprise
)

var tierNames = map[Tier]string{
	TierFree:       "free",
	TierStarter:    "starter",
	TierPro:        "pro",
	TierGrowth:     "growth",
	TierScale:      "scale",
	TierEnterprise: "enterprise",
}

// AllTiers lists every tier in ascending order.
var AllTiers = []Tier{TierFree, TierStarter, TierPro, TierGrowth, TierScale, TierEnterprise}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "free"
}

// ParseTier normalizes a tier name to a Tier. Unknown or empty input maps
// to TierFree, never an error: the entitlement engine fails safe to the
// lowest tier rather than rejecting a tenant outright.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "starter":
		return TierStarter
	case "pro":
		return TierPro
	case "growth":
		return TierGrowth
	case "scale":
		return TierScale
	case "enterprise":
		return TierEnterprise
	default:
		return TierFree
	}
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseTier(s)
	return nil
}
