package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tempoboard/tempoboard/internal/api/response"
	"github.com/tempoboard/tempoboard/pkg/models"
)

// TierService is the slice of the settings gateway the admin handlers use.
type TierService interface {
	ChangeTier(ctx context.Context, tenantID uuid.UUID, tier models.Tier) (*models.GuildSettings, error)
	ResetToDefaults(ctx context.Context, tenantID uuid.UUID) (*models.GuildSettings, error)
}

type changeTierRequest struct {
	Tier string `json:"tier"`
}

// NewChangeTierHandler returns the handler for
// PUT /api/v1/admin/tenants/{tenantID}/tier. Billing glue calls this on plan
// changes; the response carries the settings as reconciled under the new
// tier, so a downgrade's clamping is visible immediately.
func NewChangeTierHandler(svc TierService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(r.PathValue("tenantID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid tenant ID", nil)
			return
		}

		var req changeTierRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		// ParseTier falls back to free on unknown input; an admin write must
		// not downgrade silently, so reject anything that doesn't round-trip.
		tier := models.ParseTier(req.Tier)
		if !strings.EqualFold(strings.TrimSpace(req.Tier), tier.String()) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown tier", nil)
			return
		}

		settings, err := svc.ChangeTier(r.Context(), tenantID, tier)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.JSON(w, map[string]any{
			"tier":     tier,
			"settings": settings,
		})
	}
}

// NewResetSettingsHandler returns the handler for
// POST /api/v1/admin/tenants/{tenantID}/reset.
func NewResetSettingsHandler(svc TierService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(r.PathValue("tenantID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid tenant ID", nil)
			return
		}

		settings, err := svc.ResetToDefaults(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.JSON(w, map[string]any{
			"settings": settings,
		})
	}
}
