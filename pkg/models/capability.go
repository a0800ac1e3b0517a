package models

import "strings"

// Unlimited is the sentinel for numeric caps that have no upper bound.
const Unlimited = -1

// SourceAccess is how many streaming sources a guild may attach.
type SourceAccess string

const (
	SourceSingle SourceAccess = "single"
	SourceMulti  SourceAccess = "multi"
	SourceAll    SourceAccess = "all"
)

// PlaybackQuality is the maximum audio quality a guild may select.
type PlaybackQuality string

const (
	QualityStandard PlaybackQuality = "standard"
	QualityHigh     PlaybackQuality = "high"
	QualityLossless PlaybackQuality = "lossless"
)

// AnalyticsDepth is how much listening analytics a guild may see.
type AnalyticsDepth string

const (
	AnalyticsNone     AnalyticsDepth = "none"
	AnalyticsBasic    AnalyticsDepth = "basic"
	AnalyticsAdvanced AnalyticsDepth = "advanced"
	AnalyticsFull     AnalyticsDepth = "full"
)

// AutomationLevel is how much autonomous queue management a guild may enable.
type AutomationLevel string

const (
	AutomationOff   AutomationLevel = "off"
	AutomationBasic AutomationLevel = "basic"
	AutomationSmart AutomationLevel = "smart"
	AutomationFull  AutomationLevel = "full"
)

// Rank functions define the total order for each enum field. Unknown values
// rank below the lowest defined value so a corrupted stored value is always
// clamped upward-safe (i.e. treated as the minimum).

func (s SourceAccess) Rank() int {
	switch SourceAccess(strings.ToLower(string(s))) {
	case SourceAll:
		return 2
	case SourceMulti:
		return 1
	case SourceSingle:
		return 0
	default:
		return -1
	}
}

func (q PlaybackQuality) Rank() int {
	switch PlaybackQuality(strings.ToLower(string(q))) {
	case QualityLossless:
		return 2
	case QualityHigh:
		return 1
	case QualityStandard:
		return 0
	default:
		return -1
	}
}

func (a AnalyticsDepth) Rank() int {
	switch AnalyticsDepth(strings.ToLower(string(a))) {
	case AnalyticsFull:
		return 3
	case AnalyticsAdvanced:
		return 2
	case AnalyticsBasic:
		return 1
	case AnalyticsNone:
		return 0
	default:
		return -1
	}
}

func (a AutomationLevel) Rank() int {
	switch AutomationLevel(strings.ToLower(string(a))) {
	case AutomationFull:
		return 3
	case AutomationSmart:
		return 2
	case AutomationBasic:
		return 1
	case AutomationOff:
		return 0
	default:
		return -1
	}
}

// CapabilitySet is the resolved entitlement for one tier: what a guild on
// that plan is allowed to configure. Immutable; one value per tier.
type CapabilitySet struct {
	MultiSourceStreaming bool `json:"multi_source_streaming"`
	PlaylistSync         bool `json:"playlist_sync"`
	AIRecommendations    bool `json:"ai_recommendations"`
	WebhookExports       bool `json:"webhook_exports"`
	APIAccess            bool `json:"api_access"`

	MaxSourceAccess    SourceAccess    `json:"max_source_access"`
	MaxPlaybackQuality PlaybackQuality `json:"max_playback_quality"`
	MaxAnalyticsDepth  AnalyticsDepth  `json:"max_analytics_depth"`
	MaxAutomationLevel AutomationLevel `json:"max_automation_level"`

	// QueueLimit and ConciergeHours use Unlimited (-1) for "no cap".
	QueueLimit     int `json:"queue_limit"`
	ConciergeHours int `json:"concierge_hours"`

	AllowedRegions []string `json:"allowed_regions"`
}

// AllowsRegion reports whether region is in the allow-list.
func (c CapabilitySet) AllowsRegion(region string) bool {
	for _, r := range c.AllowedRegions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}
