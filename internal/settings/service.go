// Package settings owns the read-modify-write cycle for guild
// configuration: every persisted settings record has passed the sanitizer
// against the tenant's tier as of that write.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tempoboard/tempoboard/internal/broadcast"
	"github.com/tempoboard/tempoboard/internal/entitlement"
	"github.com/tempoboard/tempoboard/internal/store"
	"github.com/tempoboard/tempoboard/pkg/models"
)

// Store is the slice of the data layer this service needs.
type Store interface {
	CurrentTier(ctx context.Context, tenantID uuid.UUID) (models.Tier, error)
	SetTenantTier(ctx context.Context, tenantID uuid.UUID, tier models.Tier) error
	GetSettings(ctx context.Context, tenantID uuid.UUID) (*models.GuildSettings, error)
	UpsertSettings(ctx context.Context, settings *models.GuildSettings) (*models.GuildSettings, error)
	CountAPIKeys(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// Service is the settings store gateway.
type Service struct {
	store       Store
	broadcaster broadcast.Broadcaster
}

// NewService creates a settings Service.
func NewService(s Store, b broadcast.Broadcaster) *Service {
	return &Service{store: s, broadcaster: b}
}

// SettingsEvent is the payload broadcast after a successful settings write.
type SettingsEvent struct {
	Settings *models.GuildSettings `json:"settings"`
	Tier     models.Tier           `json:"tier"`
}

// Apply merges patch onto the tenant's stored settings, re-sanitizes
// against the tenant's current tier, persists, and broadcasts. The tier is
// re-resolved on every call, never cached, so a plan change takes effect on
// the next write; an empty patch is the reconcile operation run after tier
// changes.
//
// This is a plain read-modify-write: concurrent Apply calls for the same
// tenant resolve last-writer-wins by arrival. Settings edits are
// human-paced, so collisions are rare and low-stakes; callers needing
// stronger ordering must serialize themselves.
//
// A persistence failure is returned and suppresses the broadcast. A
// broadcast failure is logged and swallowed: the write stands and live
// viewers catch up on their next full sync.
func (s *Service) Apply(ctx context.Context, tenantID uuid.UUID, patch models.SettingsPatch) (*models.GuildSettings, error) {
	tier, err := s.store.CurrentTier(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tier: %w", err)
	}
	caps := entitlement.Resolve(tier)

	current, err := s.loadOrDefault(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	merged := merge(*current, patch)
	sanitized := entitlement.Sanitize(merged, caps)

	persisted, err := s.store.UpsertSettings(ctx, &sanitized)
	if err != nil {
		return nil, fmt.Errorf("persist settings: %w", err)
	}

	if err := s.broadcaster.Publish(ctx, tenantID, broadcast.TopicSettings,
		SettingsEvent{Settings: persisted, Tier: tier}); err != nil {
		slog.Warn("settings broadcast failed", "tenant_id", tenantID, "error", err)
	}

	return persisted, nil
}

// Get returns the tenant's stored settings (defaults when none persisted
// yet) together with the current tier and its capability set.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID) (*models.GuildSettings, models.Tier, models.CapabilitySet, error) {
	tier, err := s.store.CurrentTier(ctx, tenantID)
	if err != nil {
		return nil, models.TierFree, models.CapabilitySet{}, fmt.Errorf("resolve tier: %w", err)
	}
	current, err := s.loadOrDefault(ctx, tenantID)
	if err != nil {
		return nil, models.TierFree, models.CapabilitySet{}, err
	}
	return current, tier, entitlement.Resolve(tier), nil
}

// Drift audits stored settings against current entitlement. Read-only; it
// surfaces state written before a downgrade or through paths that bypassed
// sanitization. Findings are diagnostics, never errors.
func (s *Service) Drift(ctx context.Context, tenantID uuid.UUID) ([]models.DriftFinding, error) {
	tier, err := s.store.CurrentTier(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tier: %w", err)
	}
	current, err := s.loadOrDefault(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	credentials, err := s.store.CountAPIKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count credentials: %w", err)
	}
	return entitlement.EvaluateDrift(tenantID, entitlement.Resolve(tier), *current, credentials), nil
}

// ChangeTier records the tenant's new tier and immediately reconciles
// stored settings against it, so a downgrade clamps previously-valid
// values without waiting for the next user edit. Billing glue calls this
// on plan changes.
func (s *Service) ChangeTier(ctx context.Context, tenantID uuid.UUID, tier models.Tier) (*models.GuildSettings, error) {
	if err := s.store.SetTenantTier(ctx, tenantID, tier); err != nil {
		return nil, fmt.Errorf("set tier: %w", err)
	}
	return s.Apply(ctx, tenantID, models.SettingsPatch{})
}

// ResetToDefaults overwrites the tenant's settings with the defaults,
// sanitized under the current tier. Used on churn; settings are never
// deleted.
func (s *Service) ResetToDefaults(ctx context.Context, tenantID uuid.UUID) (*models.GuildSettings, error) {
	tier, err := s.store.CurrentTier(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tier: %w", err)
	}
	defaults := entitlement.Sanitize(models.DefaultSettings(tenantID), entitlement.Resolve(tier))

	persisted, err := s.store.UpsertSettings(ctx, &defaults)
	if err != nil {
		return nil, fmt.Errorf("persist settings: %w", err)
	}
	if err := s.broadcaster.Publish(ctx, tenantID, broadcast.TopicSettings,
		SettingsEvent{Settings: persisted, Tier: tier}); err != nil {
		slog.Warn("settings broadcast failed", "tenant_id", tenantID, "error", err)
	}
	return persisted, nil
}

func (s *Service) loadOrDefault(ctx context.Context, tenantID uuid.UUID) (*models.GuildSettings, error) {
	current, err := s.store.GetSettings(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		defaults := models.DefaultSettings(tenantID)
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return current, nil
}

// merge applies non-nil patch fields onto base. Shallow by design: the
// settings record is flat.
func merge(base models.GuildSettings, patch models.SettingsPatch) models.GuildSettings {
	if patch.MultiSourceStreaming != nil {
		base.MultiSourceStreaming = *patch.MultiSourceStreaming
	}
	if patch.PlaylistSync != nil {
		base.PlaylistSync = *patch.PlaylistSync
	}
	if patch.AIRecommendations != nil {
		base.AIRecommendations = *patch.AIRecommendations
	}
	if patch.WebhookExports != nil {
		base.WebhookExports = *patch.WebhookExports
	}
	if patch.SourceAccess != nil {
		base.SourceAccess = *patch.SourceAccess
	}
	if patch.PlaybackQuality != nil {
		base.PlaybackQuality = *patch.PlaybackQuality
	}
	if patch.AnalyticsDepth != nil {
		base.AnalyticsDepth = *patch.AnalyticsDepth
	}
	if patch.AutomationLevel != nil {
		base.AutomationLevel = *patch.AutomationLevel
	}
	if patch.QueueLimit != nil {
		base.QueueLimit = *patch.QueueLimit
	}
	if patch.WebhookEndpoint != nil {
		base.WebhookEndpoint = *patch.WebhookEndpoint
	}
	if patch.CommandPrefix != nil {
		base.CommandPrefix = *patch.CommandPrefix
	}
	if patch.CustomDomain != nil {
		base.CustomDomain = *patch.CustomDomain
	}
	if patch.PreferredRegion != nil {
		base.PreferredRegion = *patch.PreferredRegion
	}
	return base
}
