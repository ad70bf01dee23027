package api

import (
	"net/http"

	"github.com/Priya8975/capi-relay/internal/engine"
	"github.com/Priya8975/capi-relay/internal/store"
	ws "github.com/Priya8975/capi-relay/internal/websocket"
)

type StatsHandler struct {
	counters StatsSource
	breaker  BreakerInspector
	history  DispatchHistory
	hub      *ws.Hub
	pixelID  string
}

func NewStatsHandler(c StatsSource, b BreakerInspector, h DispatchHistory, hub *ws.Hub, pixelID string) *StatsHandler {
	return &StatsHandler{counters: c, breaker: b, history: h, hub: hub, pixelID: pixelID}
}

type statsResponse struct {
	store.DispatchStats
	PixelID          string                 `json:"pixel_id"`
	CircuitBreaker   *engine.BreakerState   `json:"circuit_breaker,omitempty"`
	DispatchLog      *store.DispatchSummary `json:"dispatch_log,omitempty"`
	WebSocketClients int                    `json:"websocket_clients"`
}

// Stats returns today's counters, the breaker state and, when the dispatch
// log is enabled, its summary.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.counters.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := statsResponse{DispatchStats: *stats, PixelID: h.pixelID}

	if h.breaker != nil && h.pixelID != "" {
		state := h.breaker.State(r.Context(), h.pixelID)
		resp.CircuitBreaker = &state
	}

	if h.history != nil {
		summary, err := h.history.Summary(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get dispatch summary")
			return
		}
		resp.DispatchLog = summary
	}

	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}
