package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tempoboard/tempoboard/internal/api"
	"github.com/tempoboard/tempoboard/internal/api/handler"
	mw "github.com/tempoboard/tempoboard/internal/api/middleware"
	"github.com/tempoboard/tempoboard/internal/cache"
	"github.com/tempoboard/tempoboard/internal/settings"
	"github.com/tempoboard/tempoboard/internal/store"
	"github.com/tempoboard/tempoboard/pkg/models"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

var (
	testTenantID = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testRawKey   = "tb_contract_key_1234567890abcdef"
	testPrefix   = testRawKey[:mw.KeyPrefixLen]
)

func testKeyHash() string {
	h, _ := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	return string(h)
}

// ─── mock store ──────────────────────────────────────────────────────────────

type mockStore struct {
	mu       sync.Mutex
	tenants  map[uuid.UUID]*models.Tenant
	settings map[uuid.UUID]*models.GuildSettings
	keys     []*models.APIKey
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants: map[uuid.UUID]*models.Tenant{
			testTenantID: {
				ID:      testTenantID,
				Name:    "contract-guild",
				GuildID: "100200300400500600",
				Tier:    models.TierStarter,
			},
		},
		settings: make(map[uuid.UUID]*models.GuildSettings),
		keys: []*models.APIKey{{
			ID:        uuid.New(),
			TenantID:  testTenantID,
			Name:      "contract-key",
			KeyHash:   testKeyHash(),
			KeyPrefix: testPrefix,
			Scopes:    []string{"read", "write", "admin"},
		}},
	}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenant.ID] = tenant
	return nil
}

func (s *mockStore) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tenants[id]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

func (s *mockStore) CurrentTier(_ context.Context, tenantID uuid.UUID) (models.Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tenants[tenantID]; ok {
		return t.Tier, nil
	}
	return models.TierFree, store.ErrNotFound
}

func (s *mockStore) SetTenantTier(_ context.Context, tenantID uuid.UUID, tier models.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return store.ErrNotFound
	}
	t.Tier = tier
	return nil
}

func (s *mockStore) GetSettings(_ context.Context, tenantID uuid.UUID) (*models.GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gs, ok := s.settings[tenantID]; ok {
		cp := *gs
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *mockStore) UpsertSettings(_ context.Context, gs *models.GuildSettings) (*models.GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *gs
	cp.UpdatedAt = time.Now()
	if existing, ok := s.settings[gs.TenantID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = cp.UpdatedAt
	}
	s.settings[gs.TenantID] = &cp
	out := cp
	return &out, nil
}

func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.keys {
		if existing.Name == key.Name && existing.TenantID == key.TenantID && existing.DeletedAt == nil {
			return store.ErrDuplicateKey
		}
	}
	s.keys = append(s.keys, key)
	return nil
}

func (s *mockStore) ListAPIKeys(_ context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.TenantID == tenantID && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) CountAPIKeys(_ context.Context, tenantID uuid.UUID) (int, error) {
	keys, _ := s.ListAPIKeys(nil, tenantID)
	return len(keys), nil
}

func (s *mockStore) RevokeAPIKey(_ context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.ID == id && k.TenantID == tenantID && k.DeletedAt == nil {
			now := time.Now()
			k.DeletedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

var _ store.Store = (*mockStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type mockCache struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMockCache() *mockCache {
	return &mockCache{counters: make(map[string]int64)}
}

func (c *mockCache) Ping(_ context.Context) error { return nil }

func (c *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*mockCache)(nil)

// ─── mock snapshot store ─────────────────────────────────────────────────────
// Same conflict contract as the Redis implementation: a strictly newer
// stored snapshot wins, ties go to the incoming write.

type mockSnapshots struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]models.QueueSnapshot
}

func newMockSnapshots() *mockSnapshots {
	return &mockSnapshots{snapshots: make(map[uuid.UUID]models.QueueSnapshot)}
}

func (m *mockSnapshots) Put(_ context.Context, snapshot models.QueueSnapshot) (models.QueueSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.snapshots[snapshot.TenantID]; ok && existing.UpdatedAt.After(snapshot.UpdatedAt) {
		return existing, false, nil
	}
	m.snapshots[snapshot.TenantID] = snapshot
	return snapshot, true, nil
}

func (m *mockSnapshots) Get(_ context.Context, tenantID uuid.UUID) (*models.QueueSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap, ok := m.snapshots[tenantID]; ok {
		cp := snap
		return &cp, true, nil
	}
	return nil, false, nil
}

func (m *mockSnapshots) Purge(_ context.Context, tenantID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, tenantID)
	return nil
}

// ─── mock broadcaster ────────────────────────────────────────────────────────

type mockBroadcaster struct {
	mu     sync.Mutex
	topics []string
}

func (b *mockBroadcaster) Publish(_ context.Context, _ uuid.UUID, topic string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	return nil
}

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server      *httptest.Server
	store       *mockStore
	snapshots   *mockSnapshots
	broadcaster *mockBroadcaster
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ms := newMockStore()
	mc := newMockCache()
	snaps := newMockSnapshots()
	mb := &mockBroadcaster{}

	svc := settings.NewService(ms, mb)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(mc, 1000),

		GetSettingsHandler:   handler.NewGetSettingsHandler(svc),
		PatchSettingsHandler: handler.NewPatchSettingsHandler(svc),
		DriftHandler:         handler.NewDriftHandler(svc),
		CapabilitiesHandler:  handler.NewCapabilitiesHandler(svc),

		GetQueueHandler:   handler.NewGetQueueHandler(snaps),
		PutQueueHandler:   handler.NewPutQueueHandler(snaps),
		PurgeQueueHandler: handler.NewPurgeQueueHandler(snaps),

		CreateKeyHandler: handler.NewCreateKeyHandler(ms),
		ListKeysHandler:  handler.NewListKeysHandler(ms),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(ms),

		ChangeTierHandler:    handler.NewChangeTierHandler(svc),
		ResetSettingsHandler: handler.NewResetSettingsHandler(svc),
	}

	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: ms, snapshots: snaps, broadcaster: mb}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func parseData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data
}

// ─── settings endpoints ──────────────────────────────────────────────────────

func TestGetSettings_DefaultsForFreshTenant(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseData(t, resp)
	assert.Equal(t, "starter", data["tier"])

	gs := data["settings"].(map[string]any)
	assert.Equal(t, float64(100), gs["queue_limit"])
	assert.Equal(t, "!", gs["command_prefix"])
	assert.Equal(t, false, gs["playlist_sync"])
}

func TestPatchSettings_ClampsToTier(t *testing.T) {
	ts := newTestServer(t)

	// Starter: queue cap 1000, no multi-source, analytics up to basic.
	resp := ts.do(t, "PATCH", "/api/v1/settings", map[string]any{
		"queue_limit":            50000,
		"multi_source_streaming": true,
		"analytics_depth":        "full",
		"playlist_sync":          true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseData(t, resp)
	assert.Equal(t, float64(1000), data["queue_limit"])
	assert.Equal(t, false, data["multi_source_streaming"])
	assert.Equal(t, "basic", data["analytics_depth"])
	assert.Equal(t, true, data["playlist_sync"])
}

func TestPatchSettings_Broadcasts(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "PATCH", "/api/v1/settings", map[string]any{"command_prefix": "?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ts.broadcaster.mu.Lock()
	defer ts.broadcaster.mu.Unlock()
	assert.Equal(t, []string{"settings"}, ts.broadcaster.topics)
}

func TestPatchSettings_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest("PATCH", ts.server.URL+"/api/v1/settings",
		bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDrift_ReportsStaleSettingsAfterDowngrade(t *testing.T) {
	ts := newTestServer(t)

	// Persist settings at starter, then downgrade the tier behind the
	// gateway's back (as billing would, without the reconcile call).
	resp := ts.do(t, "PATCH", "/api/v1/settings", map[string]any{
		"queue_limit":   1000,
		"playlist_sync": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ts.store.SetTenantTier(context.Background(), testTenantID, models.TierFree))

	resp = ts.do(t, "GET", "/api/v1/settings/drift", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseData(t, resp)
	count := int(data["count"].(float64))
	assert.GreaterOrEqual(t, count, 2)

	fields := make(map[string]bool)
	for _, f := range data["findings"].([]any) {
		finding := f.(map[string]any)
		assert.Equal(t, "exceeds", finding["severity"])
		fields[finding["field"].(string)] = true
	}
	assert.True(t, fields["queue_limit"])
	assert.True(t, fields["playlist_sync"])
}

func TestCapabilities_ReflectsTier(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/v1/capabilities", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseData(t, resp)
	assert.Equal(t, "starter", data["tier"])

	caps := data["capabilities"].(map[string]any)
	assert.Equal(t, false, caps["api_access"])
	assert.Equal(t, float64(1000), caps["queue_limit"])
}

// ─── queue endpoints ─────────────────────────────────────────────────────────

func TestQueue_PutGetPurge(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/v1/queue", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, "PUT", "/api/v1/queue", map[string]any{
		"now_playing": map[string]any{"title": "song a", "url": "https://example.com/a"},
		"tracks":      []map[string]any{{"title": "song b", "url": "https://example.com/b"}},
		"volume":      80,
		"updated_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseData(t, resp)
	assert.Equal(t, true, data["accepted"])
	snap := data["snapshot"].(map[string]any)
	assert.Equal(t, "song a", snap["now_playing"].(map[string]any)["title"])

	resp = ts.do(t, "GET", "/api/v1/queue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "DELETE", "/api/v1/queue", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/v1/queue", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueue_StaleWriteRejected(t *testing.T) {
	ts := newTestServer(t)

	now := time.Now().UTC()

	resp := ts.do(t, "PUT", "/api/v1/queue", map[string]any{
		"tracks":     []map[string]any{{"title": "newer", "url": "https://example.com/n"}},
		"volume":     100,
		"updated_at": now.Format(time.RFC3339Nano),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "PUT", "/api/v1/queue", map[string]any{
		"tracks":     []map[string]any{{"title": "older", "url": "https://example.com/o"}},
		"volume":     50,
		"updated_at": now.Add(-time.Minute).Format(time.RFC3339Nano),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseData(t, resp)
	assert.Equal(t, false, data["accepted"])
	snap := data["snapshot"].(map[string]any)
	tracks := snap["tracks"].([]any)
	assert.Equal(t, "newer", tracks[0].(map[string]any)["title"])
}

func TestQueue_MissingUpdatedAt(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "PUT", "/api/v1/queue", map[string]any{
		"tracks": []map[string]any{},
		"volume": 100,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ─── API key endpoints ───────────────────────────────────────────────────────

func TestCreateKey_GatedByPlan(t *testing.T) {
	ts := newTestServer(t)

	// Starter has no API access.
	resp := ts.do(t, "POST", "/api/v1/keys", map[string]any{"name": "bot-key"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "PLAN_LIMIT", body.Error.Code)
}

func TestCreateKey_RawKeyShownOnce(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.SetTenantTier(context.Background(), testTenantID, models.TierPro))

	resp := ts.do(t, "POST", "/api/v1/keys", map[string]any{"name": "bot-key"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := parseData(t, resp)
	rawKey := data["raw_key"].(string)
	assert.True(t, len(rawKey) > mw.KeyPrefixLen)
	assert.Equal(t, "tb_", rawKey[:3])

	key := data["key"].(map[string]any)
	assert.Equal(t, rawKey[:mw.KeyPrefixLen], key["key_prefix"])
	_, hasHash := key["key_hash"]
	assert.False(t, hasHash, "hash must never leave the server")

	// List must not surface the raw key either.
	resp = ts.do(t, "GET", "/api/v1/keys", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = parseData(t, resp)
	assert.Equal(t, float64(2), data["count"])
}

func TestRevokeKey(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.SetTenantTier(context.Background(), testTenantID, models.TierPro))

	resp := ts.do(t, "POST", "/api/v1/keys", map[string]any{"name": "doomed"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	keyID := parseData(t, resp)["key"].(map[string]any)["id"].(string)

	resp = ts.do(t, "DELETE", "/api/v1/keys/"+keyID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, "DELETE", "/api/v1/keys/"+keyID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ─── admin endpoints ─────────────────────────────────────────────────────────

func TestChangeTier_DowngradeReconcilesSettings(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "PATCH", "/api/v1/settings", map[string]any{
		"queue_limit":   1000,
		"playlist_sync": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "PUT", "/api/v1/admin/tenants/"+testTenantID.String()+"/tier",
		map[string]any{"tier": "free"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := parseData(t, resp)
	assert.Equal(t, "free", data["tier"])
	gs := data["settings"].(map[string]any)
	assert.Equal(t, float64(100), gs["queue_limit"])
	assert.Equal(t, false, gs["playlist_sync"])

	// After reconcile, only the issued credential still drifts (revocation
	// is out of the sanitizer's reach; settings themselves are clean).
	resp = ts.do(t, "GET", "/api/v1/settings/drift", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = parseData(t, resp)
	require.Equal(t, float64(1), data["count"])
	finding := data["findings"].([]any)[0].(map[string]any)
	assert.Equal(t, "api_credentials", finding["field"])
}

func TestChangeTier_UnknownTierRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "PUT", "/api/v1/admin/tenants/"+testTenantID.String()+"/tier",
		map[string]any{"tier": "platinum"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChangeTier_UnknownTenant(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "PUT", "/api/v1/admin/tenants/"+uuid.NewString()+"/tier",
		map[string]any{"tier": "pro"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResetSettings(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "PATCH", "/api/v1/settings", map[string]any{"command_prefix": "%"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/v1/admin/tenants/"+testTenantID.String()+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	gs := parseData(t, resp)["settings"].(map[string]any)
	assert.Equal(t, "!", gs["command_prefix"])
}
