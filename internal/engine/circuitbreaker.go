package engine

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker guards the Conversions API endpoint of one pixel.
// closed → open after failureThreshold consecutive failures; open → half-open
// after cooldown; half-open → closed on success or back to open on failure.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

// BreakerState is the observable state of a pixel's breaker.
type BreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(redisClient *redis.Client, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: 5,
		cooldownPeriod:   30 * time.Second,
	}
}

func cbKey(pixelID string) string {
	return "cb:pixel:" + pixelID
}

func (cb *CircuitBreaker) cooledDown(lastFailedAt int64) bool {
	return time.Now().Unix()-lastFailedAt >= int64(cb.cooldownPeriod.Seconds())
}

// Allow reports whether a send for this pixel may go out, along with the
// state it was evaluated in. Redis errors leave the circuit closed.
func (cb *CircuitBreaker) Allow(ctx context.Context, pixelID string) (string, bool) {
	key := cbKey(pixelID)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return StateClosed, true
	}

	switch data["state"] {
	case StateOpen:
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if !cb.cooledDown(lastFailedAt) {
			return StateOpen, false
		}
		cb.redisClient.HSet(ctx, key, "state", StateHalfOpen)
		cb.logger.Info("circuit breaker half-open", "pixel_id", pixelID)
		return StateHalfOpen, true
	case StateHalfOpen:
		return StateHalfOpen, true
	default:
		return StateClosed, true
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, pixelID string) {
	key := cbKey(pixelID)

	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()
	cb.redisClient.HSet(ctx, key, "state", StateClosed, "failures", 0)

	if prev == StateHalfOpen || prev == StateOpen {
		cb.logger.Info("circuit breaker closed", "pixel_id", pixelID)
	}
}

// RecordFailure counts a failed send and opens the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, pixelID string) {
	key := cbKey(pixelID)

	failures, err := cb.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		cb.logger.Error("failed to record circuit breaker failure", "error", err, "pixel_id", pixelID)
		return
	}
	cb.redisClient.HSet(ctx, key, "last_failed_at", time.Now().Unix())

	state, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	switch {
	case state == StateHalfOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker re-opened", "pixel_id", pixelID)
	case failures >= int64(cb.failureThreshold):
		if state != StateOpen {
			cb.logger.Warn("circuit breaker opened",
				"pixel_id", pixelID,
				"failures", failures,
				"threshold", cb.failureThreshold,
			)
		}
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
	case state == "":
		cb.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// State returns the breaker state for a pixel without changing it.
func (cb *CircuitBreaker) State(ctx context.Context, pixelID string) BreakerState {
	data, err := cb.redisClient.HGetAll(ctx, cbKey(pixelID)).Result()
	if err != nil || len(data) == 0 {
		return BreakerState{State: StateClosed}
	}

	failures, _ := strconv.Atoi(data["failures"])
	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)

	state := data["state"]
	if state == "" {
		state = StateClosed
	}
	if state == StateOpen && cb.cooledDown(lastFailedAt) {
		state = StateHalfOpen
	}

	result := BreakerState{State: state, Failures: failures}
	if lastFailedAt > 0 {
		result.LastFailedAt = time.Unix(lastFailedAt, 0).UTC().Format(time.RFC3339)
	}
	return result
}
