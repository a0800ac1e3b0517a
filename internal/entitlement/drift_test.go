package entitlement_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempoboard/tempoboard/internal/entitlement"
	"github.com/tempoboard/tempoboard/pkg/models"
)

func findingFor(findings []models.DriftFinding, field string) (models.DriftFinding, bool) {
	for _, f := range findings {
		if f.Field == field {
			return f, true
		}
	}
	return models.DriftFinding{}, false
}

func TestEvaluateDrift_AutomationSymmetry(t *testing.T) {
	tenantID := uuid.New()
	caps := entitlement.Resolve(models.TierPro) // max automation: smart

	s := models.DefaultSettings(tenantID)
	s.AutomationLevel = models.AutomationFull
	f, ok := findingFor(entitlement.EvaluateDrift(tenantID, caps, s, 0), "automation_level")
	require.True(t, ok)
	assert.Equal(t, models.DriftExceeds, f.Severity)
	assert.Equal(t, models.AutomationSmart, f.Expected)
	assert.Equal(t, models.AutomationFull, f.Actual)

	s.AutomationLevel = models.AutomationOff
	f, ok = findingFor(entitlement.EvaluateDrift(tenantID, caps, s, 0), "automation_level")
	require.True(t, ok)
	assert.Equal(t, models.DriftUnderutilized, f.Severity)

	s.AutomationLevel = models.AutomationSmart
	_, ok = findingFor(entitlement.EvaluateDrift(tenantID, caps, s, 0), "automation_level")
	assert.False(t, ok, "stored == cap must produce no finding")
}

func TestEvaluateDrift_QueueLimit(t *testing.T) {
	tenantID := uuid.New()
	starter := entitlement.Resolve(models.TierStarter) // cap 1000

	s := models.DefaultSettings(tenantID)
	s.QueueLimit = 50000
	f, ok := findingFor(entitlement.EvaluateDrift(tenantID, starter, s, 0), "queue_limit")
	require.True(t, ok)
	assert.Equal(t, models.DriftExceeds, f.Severity)
	assert.Equal(t, 1000, f.Expected)

	// Unlimited stored under a finite cap also exceeds.
	s.QueueLimit = models.Unlimited
	f, ok = findingFor(entitlement.EvaluateDrift(tenantID, starter, s, 0), "queue_limit")
	require.True(t, ok)
	assert.Equal(t, models.DriftExceeds, f.Severity)

	s.QueueLimit = 1000
	_, ok = findingFor(entitlement.EvaluateDrift(tenantID, starter, s, 0), "queue_limit")
	assert.False(t, ok)

	// A finite limit under an unlimited cap is advisory underutilization.
	pro := entitlement.Resolve(models.TierPro)
	s.QueueLimit = 1000
	f, ok = findingFor(entitlement.EvaluateDrift(tenantID, pro, s, 0), "queue_limit")
	require.True(t, ok)
	assert.Equal(t, models.DriftUnderutilized, f.Severity)
}

func TestEvaluateDrift_BooleanFlags(t *testing.T) {
	tenantID := uuid.New()
	free := entitlement.Resolve(models.TierFree)

	s := models.DefaultSettings(tenantID)
	s.WebhookExports = true
	f, ok := findingFor(entitlement.EvaluateDrift(tenantID, free, s, 0), "webhook_exports")
	require.True(t, ok)
	assert.Equal(t, models.DriftExceeds, f.Severity)

	growth := entitlement.Resolve(models.TierGrowth)
	s.WebhookExports = false
	f, ok = findingFor(entitlement.EvaluateDrift(tenantID, growth, s, 0), "webhook_exports")
	require.True(t, ok)
	assert.Equal(t, models.DriftUnderutilized, f.Severity)
}

func TestEvaluateDrift_Credentials(t *testing.T) {
	tenantID := uuid.New()
	s := models.DefaultSettings(tenantID)

	// Keys issued but the plan has no API access.
	free := entitlement.Resolve(models.TierFree)
	f, ok := findingFor(entitlement.EvaluateDrift(tenantID, free, s, 3), "api_credentials")
	require.True(t, ok)
	assert.Equal(t, models.DriftExceeds, f.Severity)
	assert.Equal(t, 3, f.Actual)

	// Plan allows API access but no key was ever issued.
	pro := entitlement.Resolve(models.TierPro)
	f, ok = findingFor(entitlement.EvaluateDrift(tenantID, pro, s, 0), "api_credentials")
	require.True(t, ok)
	assert.Equal(t, models.DriftUnderutilized, f.Severity)

	_, ok = findingFor(entitlement.EvaluateDrift(tenantID, free, s, 0), "api_credentials")
	assert.False(t, ok)
}

func TestEvaluateDrift_Region(t *testing.T) {
	tenantID := uuid.New()
	s := models.DefaultSettings(tenantID)
	s.PreferredRegion = "ap-northeast"

	f, ok := findingFor(entitlement.EvaluateDrift(tenantID, entitlement.Resolve(models.TierFree), s, 0), "preferred_region")
	require.True(t, ok)
	assert.Equal(t, models.DriftExceeds, f.Severity)

	_, ok = findingFor(entitlement.EvaluateDrift(tenantID, entitlement.Resolve(models.TierEnterprise), s, 0), "preferred_region")
	assert.False(t, ok)
}

// Sanitized settings carry no exceeds findings, for any tier. Advisory
// underutilization may remain.
func TestEvaluateDrift_NoExceedsAfterSanitize(t *testing.T) {
	tenantID := uuid.New()
	for _, tier := range models.AllTiers {
		caps := entitlement.Resolve(tier)
		s := entitlement.Sanitize(maxedOutSettings(tenantID), caps)
		for _, f := range entitlement.EvaluateDrift(tenantID, caps, s, 0) {
			assert.NotEqual(t, models.DriftExceeds, f.Severity, "tier %s field %s", tier, f.Field)
		}
	}
}

func TestEvaluateDrift_TenantIDStamped(t *testing.T) {
	tenantID := uuid.New()
	s := models.DefaultSettings(tenantID)
	s.QueueLimit = 500
	findings := entitlement.EvaluateDrift(tenantID, entitlement.Resolve(models.TierFree), s, 0)
	require.NotEmpty(t, findings)
	for _, f := range findings {
		assert.Equal(t, tenantID, f.TenantID)
	}
}
