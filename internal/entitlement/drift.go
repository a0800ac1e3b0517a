package entitlement

import (
	"github.com/google/uuid"
	"github.com/tempoboard/tempoboard/pkg/models"
)

// EvaluateDrift compares stored settings against the tenant's current
// capability set and reports every field that disagrees. "exceeds" means
// the stored value grants more than the plan entitles (state written before
// a downgrade, or through a path that skipped sanitization); the sanitizer
// prevents new drift but cannot retroactively fix it, so this is the audit
// path that surfaces it. "underutilized" means the plan allows more than
// the guild uses; advisory only.
//
// credentialCount is the number of live API keys the tenant has issued,
// compared against the APIAccess capability.
//
// Read-only, pure; findings are never persisted.
func EvaluateDrift(tenantID uuid.UUID, caps models.CapabilitySet, s models.GuildSettings, credentialCount int) []models.DriftFinding {
	var findings []models.DriftFinding

	add := func(field string, sev models.DriftSeverity, expected, actual any) {
		findings = append(findings, models.DriftFinding{
			TenantID: tenantID,
			Field:    field,
			Severity: sev,
			Expected: expected,
			Actual:   actual,
		})
	}

	boolField := func(field string, allowed, enabled bool) {
		switch {
		case enabled && !allowed:
			add(field, models.DriftExceeds, false, true)
		case !enabled && allowed:
			add(field, models.DriftUnderutilized, true, false)
		}
	}

	boolField("multi_source_streaming", caps.MultiSourceStreaming, s.MultiSourceStreaming)
	boolField("playlist_sync", caps.PlaylistSync, s.PlaylistSync)
	boolField("ai_recommendations", caps.AIRecommendations, s.AIRecommendations)
	boolField("webhook_exports", caps.WebhookExports, s.WebhookExports)

	enumField := func(field string, max, actual int, expected, got any) {
		switch {
		case actual > max:
			add(field, models.DriftExceeds, expected, got)
		case actual < max:
			add(field, models.DriftUnderutilized, expected, got)
		}
	}

	enumField("source_access", caps.MaxSourceAccess.Rank(), s.SourceAccess.Rank(), caps.MaxSourceAccess, s.SourceAccess)
	enumField("playback_quality", caps.MaxPlaybackQuality.Rank(), s.PlaybackQuality.Rank(), caps.MaxPlaybackQuality, s.PlaybackQuality)
	enumField("analytics_depth", caps.MaxAnalyticsDepth.Rank(), s.AnalyticsDepth.Rank(), caps.MaxAnalyticsDepth, s.AnalyticsDepth)
	enumField("automation_level", caps.MaxAutomationLevel.Rank(), s.AutomationLevel.Rank(), caps.MaxAutomationLevel, s.AutomationLevel)

	switch {
	case caps.QueueLimit == models.Unlimited:
		if s.QueueLimit >= 0 {
			add("queue_limit", models.DriftUnderutilized, models.Unlimited, s.QueueLimit)
		}
	case s.QueueLimit < 0 || s.QueueLimit > caps.QueueLimit:
		add("queue_limit", models.DriftExceeds, caps.QueueLimit, s.QueueLimit)
	case s.QueueLimit < caps.QueueLimit:
		add("queue_limit", models.DriftUnderutilized, caps.QueueLimit, s.QueueLimit)
	}

	if s.PreferredRegion != "" && !caps.AllowsRegion(s.PreferredRegion) {
		add("preferred_region", models.DriftExceeds, caps.AllowedRegions, s.PreferredRegion)
	}

	// Credentials: issued keys vs. plan API access.
	switch {
	case credentialCount > 0 && !caps.APIAccess:
		add("api_credentials", models.DriftExceeds, 0, credentialCount)
	case credentialCount == 0 && caps.APIAccess:
		add("api_credentials", models.DriftUnderutilized, 1, 0)
	}

	return findings
}
