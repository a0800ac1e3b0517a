package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tempoboard/tempoboard/pkg/models"
)

// envelope wraps a snapshot with the fields conflict resolution and lazy
// expiry need without decoding the full payload.
type envelope struct {
	Snapshot    models.QueueSnapshot `json:"snapshot"`
	UpdatedAtMS int64                `json:"updated_at_ms"`
	ExpiresAtMS int64                `json:"expires_at_ms"`
}

// putScript is an atomic compare-and-set: keep the existing value when it
// is unexpired and strictly newer than the incoming write, otherwise store
// the incoming value with its TTL. Running the comparison inside Redis
// closes the read-compare-write race between concurrent writers.
var putScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, existing = pcall(cjson.decode, cur)
	if ok and existing['updated_at_ms'] and existing['expires_at_ms'] then
		if existing['expires_at_ms'] > tonumber(ARGV[3]) and existing['updated_at_ms'] > tonumber(ARGV[2]) then
			return cur
		end
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[4])
return ARGV[1]
`)

// RedisStore implements Store on Redis. Expiry is enforced twice: natively
// via PX on write, and lazily on read against the embedded expires_at_ms,
// so expired data is never observable even if the native TTL were lost.
type RedisStore struct {
	client *redis.Client
	tiers  TierResolver
	now    func() time.Time
}

// NewRedisStore creates a RedisStore from a Redis URL.
func NewRedisStore(redisURL string, tiers TierResolver) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts), tiers: tiers, now: time.Now}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Put(ctx context.Context, snapshot models.QueueSnapshot) (models.QueueSnapshot, bool, error) {
	tier, err := s.tiers.CurrentTier(ctx, snapshot.TenantID)
	if err != nil {
		return models.QueueSnapshot{}, false, fmt.Errorf("resolve tier: %w", err)
	}
	ttl := TTLFor(tier)

	now := s.now().UTC()
	env := envelope{
		Snapshot:    snapshot,
		UpdatedAtMS: snapshot.UpdatedAt.UnixMilli(),
		ExpiresAtMS: now.Add(ttl).UnixMilli(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return models.QueueSnapshot{}, false, fmt.Errorf("marshal snapshot: %w", err)
	}

	res, err := putScript.Run(ctx, s.client,
		[]string{SnapshotKey(snapshot.TenantID)},
		payload, env.UpdatedAtMS, now.UnixMilli(), ttl.Milliseconds(),
	).Text()
	if err != nil {
		return models.QueueSnapshot{}, false, fmt.Errorf("put snapshot: %w", err)
	}

	var stored envelope
	if err := json.Unmarshal([]byte(res), &stored); err != nil {
		return models.QueueSnapshot{}, false, fmt.Errorf("unmarshal stored snapshot: %w", err)
	}
	accepted := stored.UpdatedAtMS == env.UpdatedAtMS
	return stored.Snapshot, accepted, nil
}

func (s *RedisStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.QueueSnapshot, bool, error) {
	key := SnapshotKey(tenantID)
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(val, &env); err != nil {
		return nil, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if env.ExpiresAtMS <= s.now().UTC().UnixMilli() {
		// Lazy expiry: purge and report absent.
		s.client.Del(ctx, key)
		return nil, false, nil
	}
	return &env.Snapshot, true, nil
}

func (s *RedisStore) Purge(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.client.Del(ctx, SnapshotKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("purge snapshot: %w", err)
	}
	return nil
}

// PurgeExpired scans all snapshot keys and removes those whose embedded
// expiry has passed. Redis drops them on its own via the native TTL; this
// sweep exists for housekeeping when snapshots were written by a store
// that does not honor expiry natively.
func (s *RedisStore) PurgeExpired(ctx context.Context) (int, error) {
	nowMS := s.now().UTC().UnixMilli()
	purged := 0

	iter := s.client.Scan(ctx, 0, "queue:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return purged, fmt.Errorf("scan snapshot %s: %w", key, err)
		}
		var env envelope
		if err := json.Unmarshal(val, &env); err != nil || env.ExpiresAtMS <= nowMS {
			if delErr := s.client.Del(ctx, key).Err(); delErr == nil {
				purged++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("scan snapshots: %w", err)
	}
	return purged, nil
}
