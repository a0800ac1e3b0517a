package models

import (
	"time"

	"github.com/google/uuid"
)

// GuildSettings is the persisted per-guild configuration. Every field is
// kept at or below the guild's current tier capability by the sanitizer on
// each write path. Settings are never deleted; churn resets them to
// DefaultSettings.
type GuildSettings struct {
	TenantID uuid.UUID `db:"tenant_id" json:"tenant_id"`

	MultiSourceStreaming bool `db:"multi_source_streaming" json:"multi_source_streaming"`
	PlaylistSync         bool `db:"playlist_sync"          json:"playlist_sync"`
	AIRecommendations    bool `db:"ai_recommendations"     json:"ai_recommendations"`
	WebhookExports       bool `db:"webhook_exports"        json:"webhook_exports"`

	SourceAccess    SourceAccess    `db:"source_access"    json:"source_access"`
	PlaybackQuality PlaybackQuality `db:"playback_quality" json:"playback_quality"`
	AnalyticsDepth  AnalyticsDepth  `db:"analytics_depth"  json:"analytics_depth"`
	AutomationLevel AutomationLevel `db:"automation_level" json:"automation_level"`

	// QueueLimit may be Unlimited (-1) when the plan allows it.
	QueueLimit int `db:"queue_limit" json:"queue_limit"`

	WebhookEndpoint string `db:"webhook_endpoint" json:"webhook_endpoint"`
	CommandPrefix   string `db:"command_prefix"   json:"command_prefix"`
	CustomDomain    string `db:"custom_domain"    json:"custom_domain"`
	PreferredRegion string `db:"preferred_region" json:"preferred_region"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SettingsPatch is a shallow partial update. Nil fields are left unchanged.
type SettingsPatch struct {
	MultiSourceStreaming *bool `json:"multi_source_streaming,omitempty"`
	PlaylistSync         *bool `json:"playlist_sync,omitempty"`
	AIRecommendations    *bool `json:"ai_recommendations,omitempty"`
	WebhookExports       *bool `json:"webhook_exports,omitempty"`

	SourceAccess    *SourceAccess    `json:"source_access,omitempty"`
	PlaybackQuality *PlaybackQuality `json:"playback_quality,omitempty"`
	AnalyticsDepth  *AnalyticsDepth  `json:"analytics_depth,omitempty"`
	AutomationLevel *AutomationLevel `json:"automation_level,omitempty"`

	QueueLimit *int `json:"queue_limit,omitempty"`

	WebhookEndpoint *string `json:"webhook_endpoint,omitempty"`
	CommandPrefix   *string `json:"command_prefix,omitempty"`
	CustomDomain    *string `json:"custom_domain,omitempty"`
	PreferredRegion *string `json:"preferred_region,omitempty"`
}

// IsZero reports whether the patch changes nothing. An empty patch is still
// a valid write: applying it re-sanitizes stored settings against the
// current tier, which is how tier changes are reconciled.
func (p SettingsPatch) IsZero() bool {
	return p.MultiSourceStreaming == nil && p.PlaylistSync == nil &&
		p.AIRecommendations == nil && p.WebhookExports == nil &&
		p.SourceAccess == nil && p.PlaybackQuality == nil &&
		p.AnalyticsDepth == nil && p.AutomationLevel == nil &&
		p.QueueLimit == nil && p.WebhookEndpoint == nil &&
		p.CommandPrefix == nil && p.CustomDomain == nil &&
		p.PreferredRegion == nil
}

// DefaultSettings returns the configuration a new or churned guild starts
// with. Defaults must be valid under the free tier.
func DefaultSettings(tenantID uuid.UUID) GuildSettings {
	return GuildSettings{
		TenantID:        tenantID,
		SourceAccess:    SourceSingle,
		PlaybackQuality: QualityStandard,
		AnalyticsDepth:  AnalyticsNone,
		AutomationLevel: AutomationOff,
		QueueLimit:      100,
		CommandPrefix:   "!",
		PreferredRegion: "us-east",
	}
}
