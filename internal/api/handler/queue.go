package handler

import (
	"encoding/json"
	"net/http"
	"time"

	mw "github.com/tempoboard/tempoboard/internal/api/middleware"
	"github.com/tempoboard/tempoboard/internal/api/response"
	"github.com/tempoboard/tempoboard/internal/queue"
	"github.com/tempoboard/tempoboard/pkg/models"
)

// putQueueRequest is the body of PUT /api/v1/queue. The writer supplies
// updated_at; it is the logical timestamp that decides conflicts.
type putQueueRequest struct {
	NowPlaying *models.QueueTrack  `json:"now_playing"`
	Tracks     []models.QueueTrack `json:"tracks"`
	Paused     bool                `json:"paused"`
	Volume     int                 `json:"volume"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// NewPutQueueHandler returns the handler for PUT /api/v1/queue. The
// response reports whether the write was accepted and the snapshot that is
// actually stored: a writer that lost the timestamp comparison gets the
// winning snapshot back with accepted=false, not an error.
func NewPutQueueHandler(snapshots queue.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req putQueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.UpdatedAt.IsZero() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "updated_at is required", nil)
			return
		}
		if req.Volume < 0 || req.Volume > 200 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "volume must be between 0 and 200", nil)
			return
		}
		if req.Tracks == nil {
			req.Tracks = []models.QueueTrack{}
		}

		stored, accepted, err := snapshots.Put(r.Context(), models.QueueSnapshot{
			TenantID:   tenantID,
			NowPlaying: req.NowPlaying,
			Tracks:     req.Tracks,
			Paused:     req.Paused,
			Volume:     req.Volume,
			UpdatedAt:  req.UpdatedAt.UTC(),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.JSON(w, map[string]any{
			"accepted": accepted,
			"snapshot": stored,
		})
	}
}

// NewGetQueueHandler returns the handler for GET /api/v1/queue.
func NewGetQueueHandler(snapshots queue.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		snap, found, err := snapshots.Get(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !found {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "No live queue snapshot", nil)
			return
		}

		response.JSON(w, snap)
	}
}

// NewPurgeQueueHandler returns the handler for DELETE /api/v1/queue.
func NewPurgeQueueHandler(snapshots queue.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		if err := snapshots.Purge(r.Context(), tenantID); err != nil {
			writeServiceError(w, err)
			return
		}

		response.NoContent(w)
	}
}
