package engine

import (
	"context"
	"testing"
)

func setupTestRL(t *testing.T) *RateLimiter {
	t.Helper()
	client, _ := setupTestRedis(t)
	return NewRateLimiter(client, testLogger())
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !rl.Allow(ctx, "203.0.113.1", 5) {
			t.Errorf("request %d should be allowed (limit=5)", i+1)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rl.Allow(ctx, "203.0.113.1", 3)
	}

	if rl.Allow(ctx, "203.0.113.1", 3) {
		t.Error("request should be blocked when over limit")
	}
}

func TestRateLimiter_ZeroLimitAllowsAll(t *testing.T) {
	rl := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if !rl.Allow(ctx, "203.0.113.1", 0) {
			t.Fatalf("request %d should be allowed with limit=0", i+1)
		}
	}
}

func TestRateLimiter_PerClientIsolation(t *testing.T) {
	rl := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rl.Allow(ctx, "client-a", 2)
	}

	if rl.Allow(ctx, "client-a", 2) {
		t.Error("client-a should be blocked")
	}
	if !rl.Allow(ctx, "client-b", 2) {
		t.Error("client-b should be allowed, limits are per client")
	}
}
