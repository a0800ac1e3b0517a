package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/tempoboard/tempoboard/internal/api/middleware"
	"github.com/tempoboard/tempoboard/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	GetSettingsHandler   http.HandlerFunc
	PatchSettingsHandler http.HandlerFunc
	DriftHandler         http.HandlerFunc
	CapabilitiesHandler  http.HandlerFunc

	GetQueueHandler   http.HandlerFunc
	PutQueueHandler   http.HandlerFunc
	PurgeQueueHandler http.HandlerFunc

	LiveHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc

	ChangeTierHandler    http.HandlerFunc
	ResetSettingsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/settings", orNotImplemented(deps.GetSettingsHandler))
		r.Patch("/api/v1/settings", orNotImplemented(deps.PatchSettingsHandler))
		r.Get("/api/v1/settings/drift", orNotImplemented(deps.DriftHandler))
		r.Get("/api/v1/capabilities", orNotImplemented(deps.CapabilitiesHandler))

		r.Get("/api/v1/queue", orNotImplemented(deps.GetQueueHandler))
		r.Put("/api/v1/queue", orNotImplemented(deps.PutQueueHandler))
		r.Delete("/api/v1/queue", orNotImplemented(deps.PurgeQueueHandler))

		r.Get("/api/v1/live", orNotImplemented(deps.LiveHandler))

		r.Post("/api/v1/keys", orNotImplemented(deps.CreateKeyHandler))
		r.Get("/api/v1/keys", orNotImplemented(deps.ListKeysHandler))
		r.Delete("/api/v1/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Put("/api/v1/admin/tenants/{tenantID}/tier", orNotImplemented(deps.ChangeTierHandler))
			r.Post("/api/v1/admin/tenants/{tenantID}/reset", orNotImplemented(deps.ResetSettingsHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
