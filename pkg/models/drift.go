package models

import "github.com/google/uuid"

// DriftSeverity classifies how a stored value disagrees with entitlement.
type DriftSeverity string

const (
	// DriftExceeds means the stored value grants more than the plan allows.
	DriftExceeds DriftSeverity = "exceeds"
	// DriftUnderutilized means the plan allows more than the stored value
	// uses. Advisory, never an error.
	DriftUnderutilized DriftSeverity = "underutilized"
)

// DriftFinding reports one field where stored configuration disagrees with
// the tenant's current entitlement. Findings are computed on demand and
// never persisted.
type DriftFinding struct {
	TenantID uuid.UUID     `json:"tenant_id"`
	Field    string        `json:"field"`
	Severity DriftSeverity `json:"severity"`
	Expected any           `json:"expected"`
	Actual   any           `json:"actual"`
}
