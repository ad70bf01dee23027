package api

import (
	"encoding/json"
	"net/http"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	TrackingEnabled bool   `json:"tracking_enabled"`
	PixelConfigured bool   `json:"pixel_configured"`
}

// HealthHandler returns the health check handler.
func HealthHandler(trackingEnabled, pixelConfigured bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:          "healthy",
			Version:         "1.0.0",
			TrackingEnabled: trackingEnabled,
			PixelConfigured: pixelConfigured,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
}
