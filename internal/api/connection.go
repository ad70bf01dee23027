package api

import "net/http"

type ConnectionHandler struct {
	verifier ConnectionTester
}

func NewConnectionHandler(v ConnectionTester) *ConnectionHandler {
	return &ConnectionHandler{verifier: v}
}

// Test sends a test event and reports whether the pixel and token work.
func (h *ConnectionHandler) Test(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		respondError(w, http.StatusServiceUnavailable, "connection test not available")
		return
	}
	respondJSON(w, http.StatusOK, h.verifier.Test(r.Context()))
}
