package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oshokin/sos-relay/internal/domain/session"
	"github.com/oshokin/sos-relay/internal/logger"
	"github.com/oshokin/sos-relay/internal/protocol"
	"github.com/oshokin/sos-relay/internal/relay"
)

// Handler exposes the relay's live stores over read-only HTTP endpoints.
// It carries no logic of its own: every response is a snapshot of the same
// state the event channel serves.
type Handler struct {
	// coordinator supplies the live stores and start time.
	coordinator *relay.Coordinator
}

// NewHandler creates a read-only mirror over the coordinator's stores.
func NewHandler(coordinator *relay.Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// Routes returns the mirror's route tree, meant to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/geofences", h.listGeofences)
	r.Get("/alerts", h.listAlerts)
	r.Get("/status", h.status)

	return r
}

// listGeofences answers with the full geofence set in creation order.
func (h *Handler) listGeofences(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, &protocol.AllGeofences{
		Geofences: h.coordinator.Store().List(),
	})
}

// listAlerts answers with the most recent alerts, newest first.
// The optional limit query parameter bounds the result.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		limit = parsed
	}

	h.writeJSON(w, r, &protocol.RecentAlerts{
		Alerts: h.coordinator.Ledger().Recent(limit),
	})
}

// status answers with aggregate counters over the live stores.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	counts := h.coordinator.Registry().CountByRole()

	h.writeJSON(w, r, &protocol.ServerStatus{
		UptimeSeconds: int64(time.Since(h.coordinator.StartedAt()).Seconds()),
		Sessions: protocol.SessionCounts{
			Mobile:  counts[session.RoleMobile],
			Web:     counts[session.RoleWeb],
			Admin:   counts[session.RoleAdmin],
			Unknown: counts[session.RoleUnknown],
		},
		Geofences:    h.coordinator.Store().Len(),
		AlertsStored: h.coordinator.Ledger().Len(),
	})
}

// writeJSON renders the payload with the standard headers.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.ErrorKV(r.Context(), "Failed to encode response", "path", r.URL.Path, "error", err)
	}
}
