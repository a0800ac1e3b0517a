package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/tempoboard/tempoboard/internal/api/middleware"
	"github.com/tempoboard/tempoboard/internal/api/response"
	"github.com/tempoboard/tempoboard/internal/store"
	"github.com/tempoboard/tempoboard/pkg/models"
)

// SettingsService defines the gateway operations the settings handlers use.
type SettingsService interface {
	Apply(ctx context.Context, tenantID uuid.UUID, patch models.SettingsPatch) (*models.GuildSettings, error)
	Get(ctx context.Context, tenantID uuid.UUID) (*models.GuildSettings, models.Tier, models.CapabilitySet, error)
	Drift(ctx context.Context, tenantID uuid.UUID) ([]models.DriftFinding, error)
}

// NewGetSettingsHandler returns the handler for GET /api/v1/settings.
func NewGetSettingsHandler(svc SettingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		gs, tier, caps, err := svc.Get(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.JSON(w, map[string]any{
			"settings":     gs,
			"tier":         tier,
			"capabilities": caps,
		})
	}
}

// NewPatchSettingsHandler returns the handler for PATCH /api/v1/settings.
// The body is a partial update; omitted fields are untouched. The response
// carries the record as persisted, which may differ from the request when
// the sanitizer clamped values.
func NewPatchSettingsHandler(svc SettingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var patch models.SettingsPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		gs, err := svc.Apply(r.Context(), tenantID, patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.JSON(w, gs)
	}
}

// NewDriftHandler returns the handler for GET /api/v1/settings/drift.
func NewDriftHandler(svc SettingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		findings, err := svc.Drift(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if findings == nil {
			findings = []models.DriftFinding{}
		}

		response.JSON(w, map[string]any{
			"findings": findings,
			"count":    len(findings),
		})
	}
}

// NewCapabilitiesHandler returns the handler for GET /api/v1/capabilities.
func NewCapabilitiesHandler(svc SettingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		_, tier, caps, err := svc.Get(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.JSON(w, map[string]any{
			"tier":         tier,
			"capabilities": caps,
		})
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Tenant not found", nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "Operation failed", nil)
}
