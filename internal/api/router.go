package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Priya8975/capi-relay/internal/domain"
	"github.com/Priya8975/capi-relay/internal/engine"
	"github.com/Priya8975/capi-relay/internal/store"
	"github.com/Priya8975/capi-relay/internal/tracker"
	ws "github.com/Priya8975/capi-relay/internal/websocket"
)

// StatsSource is satisfied by *store.Counters.
type StatsSource interface {
	Stats(ctx context.Context) (*store.DispatchStats, error)
}

// BreakerInspector is satisfied by *engine.CircuitBreaker.
type BreakerInspector interface {
	State(ctx context.Context, pixelID string) engine.BreakerState
}

// DispatchHistory is satisfied by *store.PostgresStore.
type DispatchHistory interface {
	Summary(ctx context.Context) (*store.DispatchSummary, error)
	ListDispatches(ctx context.Context, eventName, status string, limit int) ([]domain.DispatchAttempt, error)
}

// ConnectionTester is satisfied by *conversions.Verifier.
type ConnectionTester interface {
	Test(ctx context.Context) domain.VerificationResult
}

// RateLimiter is satisfied by *engine.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, clientID string, limit int) bool
}

// Deps are the collaborators the router wires into handlers. History,
// Limiter and Hub may be nil.
type Deps struct {
	Tracker          *tracker.Tracker
	Verifier         ConnectionTester
	Counters         StatsSource
	Breaker          BreakerInspector
	History          DispatchHistory
	Limiter          RateLimiter
	Hub              *ws.Hub
	PixelID          string
	TrackingEnabled  bool
	CollectRateLimit int
	// AdminToken guards stats, dispatches and connection/test. When empty
	// those routes answer 403.
	AdminToken       string
	Logger           *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Use(corsMiddleware)

	eventHandler := NewEventHandler(d.Tracker)
	commerceHandler := NewCommerceHandler(d.Tracker)
	statsHandler := NewStatsHandler(d.Counters, d.Breaker, d.History, d.Hub, d.PixelID)
	dispatchHandler := NewDispatchHandler(d.History)
	connHandler := NewConnectionHandler(d.Verifier)
	limit := rateLimit(d.Limiter, d.CollectRateLimit, d.Logger)

	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.TrackingEnabled, d.PixelID != ""))

		r.Group(func(r chi.Router) {
			r.Use(limit)

			r.Post("/events", eventHandler.Track)
			r.Post("/events/validate", eventHandler.Validate)
			r.Post("/event-ids", eventHandler.NewEventID)

			r.Route("/commerce", func(r chi.Router) {
				r.Post("/view-content", commerceHandler.ViewContent)
				r.Post("/add-to-cart", commerceHandler.AddToCart)
				r.Post("/checkout", commerceHandler.Checkout)
				r.Post("/purchase", commerceHandler.Purchase)
				r.Post("/search", commerceHandler.Search)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Use(adminOnly(d.AdminToken))

			r.Get("/stats", statsHandler.Stats)
			r.Get("/dispatches", dispatchHandler.List)
			r.Post("/connection/test", connHandler.Test)
		})
	})

	return r
}

// corsMiddleware lets storefront pages call the collect endpoints directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects collect calls over limit per second per client IP.
func rateLimit(limiter RateLimiter, limit int, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			if !limiter.Allow(r.Context(), ip, limit) {
				if logger != nil {
					logger.Warn("collect rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
				}
				w.Header().Set("Retry-After", "1")
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// adminOnly requires "Authorization: Bearer <token>".
func adminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				respondError(w, http.StatusForbidden, "admin endpoints disabled (set ADMIN_TOKEN)")
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				respondError(w, http.StatusUnauthorized, "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
