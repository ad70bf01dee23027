package api

import (
	"net/http"
	"strconv"
)

type DispatchHandler struct {
	history DispatchHistory
}

func NewDispatchHandler(h DispatchHistory) *DispatchHandler {
	return &DispatchHandler{history: h}
}

func (h *DispatchHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusNotFound, "dispatch log not enabled")
		return
	}

	eventName := r.URL.Query().Get("event_name")
	status := r.URL.Query().Get("status")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	attempts, err := h.history.ListDispatches(r.Context(), eventName, status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dispatches")
		return
	}

	respondJSON(w, http.StatusOK, attempts)
}
