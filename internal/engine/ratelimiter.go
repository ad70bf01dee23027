package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a per-client sliding window limiter for the collect
// endpoints. Each request is a sorted-set member scored by its timestamp; a Lua
// script trims, counts and inserts atomically.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	window      time.Duration
}

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    return 0
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window + 1000)
return 1
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		window:      time.Second,
	}
}

func rlKey(clientID string) string {
	return "rl:collect:" + clientID
}

// Allow reports whether clientID is under limit requests per window.
// A limit <= 0 disables limiting; Redis errors fail open.
func (rl *RateLimiter) Allow(ctx context.Context, clientID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	now := time.Now()
	member := fmt.Sprintf("%d:%d", now.UnixMilli(), now.UnixNano()%1_000_000)

	result, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(clientID)},
		now.UnixMilli(), rl.window.Milliseconds(), limit, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "client", clientID)
		return true
	}

	if result == 0 {
		rl.logger.Debug("rate limited", "client", clientID, "limit", limit)
		return false
	}
	return true
}
