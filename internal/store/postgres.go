package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tempoboard/tempoboard/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (name, guild_id, tier) VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		tenant.Name, tenant.GuildID, tenant.Tier.String(),
	).Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	var tier string
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, guild_id, tier, created_at, updated_at FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.GuildID, &tier, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	t.Tier = models.ParseTier(tier)
	return &t, nil
}

func (s *PostgresStore) CurrentTier(ctx context.Context, tenantID uuid.UUID) (models.Tier, error) {
	var tier string
	err := s.pool.QueryRow(ctx,
		`SELECT tier FROM tenants WHERE id = $1`, tenantID,
	).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TierFree, ErrNotFound
	}
	if err != nil {
		return models.TierFree, fmt.Errorf("current tier: %w", err)
	}
	// ParseTier normalizes unknown values to free; a corrupted tier column
	// is never fatal.
	return models.ParseTier(tier), nil
}

func (s *PostgresStore) SetTenantTier(ctx context.Context, tenantID uuid.UUID, tier models.Tier) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET tier = $2, updated_at = NOW() WHERE id = $1`, tenantID, tier.String())
	if err != nil {
		return fmt.Errorf("set tenant tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Guild settings ---

const settingsColumns = `tenant_id, multi_source_streaming, playlist_sync, ai_recommendations, webhook_exports,
	source_access, playback_quality, analytics_depth, automation_level, queue_limit,
	webhook_endpoint, command_prefix, custom_domain, preferred_region, created_at, updated_at`

func scanSettings(row pgx.Row) (*models.GuildSettings, error) {
	var gs models.GuildSettings
	err := row.Scan(&gs.TenantID, &gs.MultiSourceStreaming, &gs.PlaylistSync, &gs.AIRecommendations,
		&gs.WebhookExports, &gs.SourceAccess, &gs.PlaybackQuality, &gs.AnalyticsDepth,
		&gs.AutomationLevel, &gs.QueueLimit, &gs.WebhookEndpoint, &gs.CommandPrefix,
		&gs.CustomDomain, &gs.PreferredRegion, &gs.CreatedAt, &gs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &gs, nil
}

func (s *PostgresStore) GetSettings(ctx context.Context, tenantID uuid.UUID) (*models.GuildSettings, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM guild_settings WHERE tenant_id = $1`, tenantID)
	gs, err := scanSettings(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return gs, nil
}

func (s *PostgresStore) UpsertSettings(ctx context.Context, settings *models.GuildSettings) (*models.GuildSettings, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO guild_settings (tenant_id, multi_source_streaming, playlist_sync, ai_recommendations, webhook_exports,
			source_access, playback_quality, analytics_depth, automation_level, queue_limit,
			webhook_endpoint, command_prefix, custom_domain, preferred_region)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (tenant_id) DO UPDATE SET
			multi_source_streaming = EXCLUDED.multi_source_streaming,
			playlist_sync = EXCLUDED.playlist_sync,
			ai_recommendations = EXCLUDED.ai_recommendations,
			webhook_exports = EXCLUDED.webhook_exports,
			source_access = EXCLUDED.source_access,
			playback_quality = EXCLUDED.playback_quality,
			analytics_depth = EXCLUDED.analytics_depth,
			automation_level = EXCLUDED.automation_level,
			queue_limit = EXCLUDED.queue_limit,
			webhook_endpoint = EXCLUDED.webhook_endpoint,
			command_prefix = EXCLUDED.command_prefix,
			custom_domain = EXCLUDED.custom_domain,
			preferred_region = EXCLUDED.preferred_region,
			updated_at = NOW()
		 RETURNING `+settingsColumns,
		settings.TenantID, settings.MultiSourceStreaming, settings.PlaylistSync, settings.AIRecommendations,
		settings.WebhookExports, settings.SourceAccess, settings.PlaybackQuality, settings.AnalyticsDepth,
		settings.AutomationLevel, settings.QueueLimit, settings.WebhookEndpoint, settings.CommandPrefix,
		settings.CustomDomain, settings.PreferredRegion)
	gs, err := scanSettings(row)
	if err != nil {
		return nil, fmt.Errorf("upsert settings: %w", err)
	}
	return gs, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes,
	).Scan(&key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) CountAPIKeys(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL`, tenantID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
