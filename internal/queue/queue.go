// Package queue stores the ephemeral per-guild playback queue snapshot.
// Snapshots are advisory replicas of live bot state: short-lived,
// overwritten constantly, and tolerant of loss. Conflicts between
// concurrent writers resolve by the writer-supplied logical timestamp,
// never by arrival order.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tempoboard/tempoboard/internal/entitlement"
	"github.com/tempoboard/tempoboard/pkg/models"
)

// TierResolver supplies the authoritative tier for a tenant. Satisfied by
// the postgres store; re-resolved on every put so tier changes shorten or
// extend retention immediately.
type TierResolver interface {
	CurrentTier(ctx context.Context, tenantID uuid.UUID) (models.Tier, error)
}

// Store is the snapshot storage interface.
type Store interface {
	// Put stores snapshot unless a newer one already exists. The returned
	// snapshot is whatever is stored after the call: the incoming payload
	// when accepted, or the existing newer snapshot when the write lost
	// the timestamp comparison. accepted reports which. A lost write is
	// not an error.
	Put(ctx context.Context, snapshot models.QueueSnapshot) (stored models.QueueSnapshot, accepted bool, err error)

	// Get returns the current snapshot, or found=false if none exists or
	// the stored one has expired. Expired snapshots are never returned.
	Get(ctx context.Context, tenantID uuid.UUID) (snapshot *models.QueueSnapshot, found bool, err error)

	// Purge removes a tenant's snapshot immediately.
	Purge(ctx context.Context, tenantID uuid.UUID) error
}

// snapshotTTLs indexes retention by tier. Free guilds churn queues fast and
// get minutes; paid tiers keep live state around for up to hours.
var snapshotTTLs = map[models.Tier]time.Duration{
	models.TierFree:       5 * time.Minute,
	models.TierStarter:    15 * time.Minute,
	models.TierPro:        time.Hour,
	models.TierGrowth:     2 * time.Hour,
	models.TierScale:      4 * time.Hour,
	models.TierEnterprise: 6 * time.Hour,
}

const (
	shortTTL = 5 * time.Minute

	// smallCapThreshold forces shortTTL when the tier's queue-limit cap is
	// finite and below it: a guild restricted to a tiny queue has no
	// business retaining stale state for hours.
	smallCapThreshold = 500
)

// TTLFor returns the snapshot retention for a tier.
func TTLFor(tier models.Tier) time.Duration {
	caps := entitlement.Resolve(tier)
	if caps.QueueLimit != models.Unlimited && caps.QueueLimit < smallCapThreshold {
		return shortTTL
	}
	ttl, ok := snapshotTTLs[tier]
	if !ok {
		return shortTTL
	}
	return ttl
}

// SnapshotKey builds the storage key for a tenant's queue snapshot.
func SnapshotKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("queue:%s", tenantID)
}
