// Command mock-graph is a stand-in for the Graph API used in local runs:
// point GRAPH_BASE_URL at it. The pixel id selects the behavior:
//
//	fail         events answer 500
//	slow         events answer after 4s (past the dispatch timeout)
//	denied       events and stats answer a permission error (code 200)
//	invalid      events answer code 100
//	anything     events are accepted
//
// The access token "bad-token" is rejected with code 190 everywhere.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var requestCount atomic.Int64

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCount.Add(1)
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/{version}/{pixel}/events", func(w http.ResponseWriter, r *http.Request) {
		pixel := chi.URLParam(r, "pixel")
		if err := r.ParseForm(); err != nil {
			respondGraphError(w, http.StatusBadRequest, 100, "malformed form body")
			return
		}
		if r.PostForm.Get("access_token") == "bad-token" {
			respondGraphError(w, http.StatusBadRequest, 190, "Invalid OAuth access token.")
			return
		}

		switch pixel {
		case "fail":
			w.WriteHeader(http.StatusInternalServerError)
			return
		case "slow":
			time.Sleep(4 * time.Second)
		case "denied":
			respondGraphError(w, http.StatusForbidden, 200, "Permissions error")
			return
		case "invalid":
			respondGraphError(w, http.StatusBadRequest, 100, "Invalid parameter")
			return
		}

		var events []map[string]any
		if err := json.Unmarshal([]byte(r.PostForm.Get("data")), &events); err != nil {
			respondGraphError(w, http.StatusBadRequest, 100, "data must be a JSON array")
			return
		}

		logger.Info("events received",
			"pixel_id", pixel,
			"count", len(events),
			"test_event_code", r.PostForm.Get("test_event_code"),
		)
		respondJSON(w, http.StatusOK, map[string]any{
			"events_received": len(events),
			"messages":        []string{},
			"fbtrace_id":      "mock",
		})
	})

	r.Get("/{version}/me", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") == "bad-token" {
			respondGraphError(w, http.StatusBadRequest, 190, "Invalid OAuth access token.")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"id": "1", "name": "Mock System User"})
	})

	r.Get("/{version}/{pixel}/stats", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "pixel") == "denied" {
			respondGraphError(w, http.StatusForbidden, 200, "Permissions error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	})

	r.Get("/{version}/{pixel}", func(w http.ResponseWriter, r *http.Request) {
		pixel := chi.URLParam(r, "pixel")
		respondJSON(w, http.StatusOK, map[string]string{"id": pixel, "name": "Mock Pixel " + pixel})
	})

	r.Get("/_stats", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]int64{"total_requests": requestCount.Load()})
	})

	logger.Info("mock graph api starting", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondGraphError(w http.ResponseWriter, status, code int, msg string) {
	respondJSON(w, status, map[string]graphError{
		"error": {Message: msg, Type: "OAuthException", Code: code},
	})
}
