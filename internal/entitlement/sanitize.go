package entitlement

import "github.com/tempoboard/tempoboard/pkg/models"

// Sanitize clamps settings to what caps allows and returns the result.
// Clamping only ever removes entitlement: booleans are forced off when the
// plan disallows them but never forced on, ordered enums are clamped down
// along their defined order, and the queue limit is capped when the plan's
// cap is finite. Idempotent: sanitizing an already-sanitized record is a
// no-op. Must run on every persisted write, including tier-change
// reconciliation, so a downgrade immediately clamps previously-valid
// values.
func Sanitize(s models.GuildSettings, caps models.CapabilitySet) models.GuildSettings {
	if !caps.MultiSourceStreaming {
		s.MultiSourceStreaming = false
	}
	if !caps.PlaylistSync {
		s.PlaylistSync = false
	}
	if !caps.AIRecommendations {
		s.AIRecommendations = false
	}
	if !caps.WebhookExports {
		s.WebhookExports = false
		s.WebhookEndpoint = ""
	}

	if s.SourceAccess.Rank() > caps.MaxSourceAccess.Rank() {
		s.SourceAccess = caps.MaxSourceAccess
	}
	if s.PlaybackQuality.Rank() > caps.MaxPlaybackQuality.Rank() {
		s.PlaybackQuality = caps.MaxPlaybackQuality
	}
	if s.AnalyticsDepth.Rank() > caps.MaxAnalyticsDepth.Rank() {
		s.AnalyticsDepth = caps.MaxAnalyticsDepth
	}
	if s.AutomationLevel.Rank() > caps.MaxAutomationLevel.Rank() {
		s.AutomationLevel = caps.MaxAutomationLevel
	}

	if caps.QueueLimit != models.Unlimited {
		// A negative stored value means "unlimited requested"; under a
		// finite cap that collapses to the cap itself.
		if s.QueueLimit < 0 || s.QueueLimit > caps.QueueLimit {
			s.QueueLimit = caps.QueueLimit
		}
	}

	if s.PreferredRegion != "" && !caps.AllowsRegion(s.PreferredRegion) {
		s.PreferredRegion = defaultRegion(caps)
	}

	return s
}

func defaultRegion(caps models.CapabilitySet) string {
	if len(caps.AllowedRegions) == 0 {
		return ""
	}
	return caps.AllowedRegions[0]
}
