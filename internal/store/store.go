package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tempoboard/tempoboard/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)

	// CurrentTier is the authoritative tier lookup. The billing subsystem
	// writes the tier column; the core only reads it, re-resolved on every
	// settings write so a plan change takes effect on the very next write.
	CurrentTier(ctx context.Context, tenantID uuid.UUID) (models.Tier, error)
	SetTenantTier(ctx context.Context, tenantID uuid.UUID, tier models.Tier) error

	GetSettings(ctx context.Context, tenantID uuid.UUID) (*models.GuildSettings, error)
	UpsertSettings(ctx context.Context, settings *models.GuildSettings) (*models.GuildSettings, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	CountAPIKeys(ctx context.Context, tenantID uuid.UUID) (int, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}
