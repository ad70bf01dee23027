package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spaolacci/murmur3"
)

// DefaultDedupWindow is how long an identical send stays suppressed.
const DefaultDedupWindow = 30 * time.Second

// DedupGuard suppresses re-emission of an identical (session, name, params,
// source) tuple within a short window. It is a local rate-limiting heuristic;
// cross-device dedup is left to the remote endpoint via event_id.
//
// A key moves UNSEEN → SENT on the first Allow and expires back to UNSEEN
// once the window elapses.
type DedupGuard struct {
	redisClient *redis.Client
	logger      *slog.Logger
	window      time.Duration
}

func NewDedupGuard(redisClient *redis.Client, window time.Duration, logger *slog.Logger) *DedupGuard {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &DedupGuard{
		redisClient: redisClient,
		logger:      logger,
		window:      window,
	}
}

// DedupKey computes the stable key for a send.
func DedupKey(session, eventName string, params any, source string) string {
	// encoding/json sorts map keys, so equal params serialize identically.
	encoded, err := json.Marshal(params)
	if err != nil {
		encoded = []byte("!unencodable")
	}

	h := murmur3.New128()
	for _, part := range [][]byte{[]byte(session), []byte(eventName), encoded, []byte(source)} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return "dedup:" + hex.EncodeToString(h.Sum(nil))
}

// Allow records the send and returns true if no unexpired record exists for
// the same key. Redis failures fail open.
func (g *DedupGuard) Allow(ctx context.Context, session, eventName string, params any, source string) bool {
	key := DedupKey(session, eventName, params, source)

	created, err := g.redisClient.SetNX(ctx, key, time.Now().Unix(), g.window).Result()
	if err != nil {
		g.logger.Error("dedup check failed", "error", err, "event_name", eventName)
		return true
	}

	if !created {
		g.logger.Debug("duplicate event suppressed",
			"event_name", eventName,
			"source", source,
		)
		return false
	}

	return true
}

// Window returns the suppression window.
func (g *DedupGuard) Window() time.Duration {
	return g.window
}
