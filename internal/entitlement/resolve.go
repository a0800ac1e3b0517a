// Package entitlement derives what a guild's subscription tier allows and
// keeps stored configuration inside those bounds. Everything in this
// package is pure: no I/O, no shared mutable state.
package entitlement

import "github.com/tempoboard/tempoboard/pkg/models"

// capabilities is the single source of truth for per-tier entitlement.
// The table must be monotonic: for tiers A <= B, every capability of B is
// >= that of A. That property is not enforced here; it is asserted by
// tests over the whole table.
var capabilities = map[models.Tier]models.CapabilitySet{
	models.TierFree: {
		MaxSourceAccess:    models.SourceSingle,
		MaxPlaybackQuality: models.QualityStandard,
		MaxAnalyticsDepth:  models.AnalyticsNone,
		MaxAutomationLevel: models.AutomationOff,
		QueueLimit:         100,
		ConciergeHours:     0,
		AllowedRegions:     []string{"us-east"},
	},
	models.TierStarter: {
		PlaylistSync:       true,
		MaxSourceAccess:    models.SourceSingle,
		MaxPlaybackQuality: models.QualityStandard,
		MaxAnalyticsDepth:  models.AnalyticsBasic,
		MaxAutomationLevel: models.AutomationBasic,
		QueueLimit:         1000,
		ConciergeHours:     0,
		AllowedRegions:     []string{"us-east", "eu-west"},
	},
	models.TierPro: {
		MultiSourceStreaming: true,
		PlaylistSync:         true,
		AIRecommendations:    true,
		APIAccess:            true,
		MaxSourceAccess:      models.SourceMulti,
		MaxPlaybackQuality:   models.QualityHigh,
		MaxAnalyticsDepth:    models.AnalyticsAdvanced,
		MaxAutomationLevel:   models.AutomationSmart,
		QueueLimit:           models.Unlimited,
		ConciergeHours:       2,
		AllowedRegions:       []string{"us-east", "us-west", "eu-west"},
	},
	models.TierGrowth: {
		MultiSourceStreaming: true,
		PlaylistSync:         true,
		AIRecommendations:    true,
		WebhookExports:       true,
		APIAccess:            true,
		MaxSourceAccess:      models.SourceMulti,
		MaxPlaybackQuality:   models.QualityHigh,
		MaxAnalyticsDepth:    models.AnalyticsAdvanced,
		MaxAutomationLevel:   models.AutomationSmart,
		QueueLimit:           models.Unlimited,
		ConciergeHours:       8,
		AllowedRegions:       []string{"us-east", "us-west", "eu-west", "eu-central"},
	},
	models.TierScale: {
		MultiSourceStreaming: true,
		PlaylistSync:         true,
		AIRecommendations:    true,
		WebhookExports:       true,
		APIAccess:            true,
		MaxSourceAccess:      models.SourceAll,
		MaxPlaybackQuality:   models.QualityLossless,
		MaxAnalyticsDepth:    models.AnalyticsFull,
		MaxAutomationLevel:   models.AutomationFull,
		QueueLimit:           models.Unlimited,
		ConciergeHours:       24,
		AllowedRegions:       []string{"us-east", "us-west", "eu-west", "eu-central", "ap-southeast"},
	},
	models.TierEnterprise: {
		MultiSourceStreaming: true,
		PlaylistSync:         true,
		AIRecommendations:    true,
		WebhookExports:       true,
		APIAccess:            true,
		MaxSourceAccess:      models.SourceAll,
		MaxPlaybackQuality:   models.QualityLossless,
		MaxAnalyticsDepth:    models.AnalyticsFull,
		MaxAutomationLevel:   models.AutomationFull,
		QueueLimit:           models.Unlimited,
		ConciergeHours:       models.Unlimited,
		AllowedRegions:       []string{"us-east", "us-west", "eu-west", "eu-central", "ap-southeast", "ap-northeast"},
	},
}

// Resolve returns the capability set for a tier. Total function: a tier
// outside the known range resolves to the free tier's capabilities.
func Resolve(tier models.Tier) models.CapabilitySet {
	caps, ok := capabilities[tier]
	if !ok {
		return capabilities[models.TierFree]
	}
	return caps
}
