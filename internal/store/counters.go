package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sentCounterPrefix  = "capi:events_sent:"
	errorCounterPrefix = "capi:api_errors:"
	lastEventKey       = "capi:last_event_time"
	counterTTL         = 24 * time.Hour
)

// DispatchStats is the operational view of the dispatcher for one day.
type DispatchStats struct {
	Day           string `json:"day"`
	EventsSent    int64  `json:"events_sent_today"`
	APIErrors     int64  `json:"api_errors_today"`
	LastEventTime int64  `json:"last_event_time"`
}

// Counters keeps day-bucketed sent/error counters in Redis. They exist for
// visibility only; nothing reads them for correctness.
type Counters struct {
	client *redis.Client
	now    func() time.Time
}

func NewCounters(client *redis.Client) *Counters {
	return &Counters{client: client, now: time.Now}
}

func dayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (c *Counters) incr(ctx context.Context, key string) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incrementing %s: %w", key, err)
	}
	return nil
}

// IncrSent counts a delivered event and stamps the last event time.
func (c *Counters) IncrSent(ctx context.Context) error {
	now := c.now()
	if err := c.incr(ctx, sentCounterPrefix+dayBucket(now)); err != nil {
		return err
	}
	if err := c.client.Set(ctx, lastEventKey, now.Unix(), 0).Err(); err != nil {
		return fmt.Errorf("setting last event time: %w", err)
	}
	return nil
}

// IncrError counts a failed send.
func (c *Counters) IncrError(ctx context.Context) error {
	return c.incr(ctx, errorCounterPrefix+dayBucket(c.now()))
}

// Stats returns today's counters.
func (c *Counters) Stats(ctx context.Context) (*DispatchStats, error) {
	day := dayBucket(c.now())

	pipe := c.client.Pipeline()
	sent := pipe.Get(ctx, sentCounterPrefix+day)
	failed := pipe.Get(ctx, errorCounterPrefix+day)
	last := pipe.Get(ctx, lastEventKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading counters: %w", err)
	}

	return &DispatchStats{
		Day:           day,
		EventsSent:    parseCounter(sent),
		APIErrors:     parseCounter(failed),
		LastEventTime: parseCounter(last),
	}, nil
}

func parseCounter(cmd *redis.StringCmd) int64 {
	val, err := cmd.Result()
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(val, 10, 64)
	return n
}
