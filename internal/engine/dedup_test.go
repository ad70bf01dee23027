package engine

import (
	"context"
	"testing"
	"time"

	"github.com/Priya8975/capi-relay/internal/domain"
)

func TestDedupGuard_SuppressesWithinWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	g := NewDedupGuard(client, 30*time.Second, testLogger())
	ctx := context.Background()

	params := domain.CustomData{"content_ids": []any{"101"}, "value": 9.99, "currency": "EUR"}

	if !g.Allow(ctx, "fb.1.1", "AddToCart", params, "button") {
		t.Fatal("first send should be allowed")
	}
	if g.Allow(ctx, "fb.1.1", "AddToCart", params, "button") {
		t.Error("identical send within the window should be suppressed")
	}
}

func TestDedupGuard_AllowsAfterExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	g := NewDedupGuard(client, 30*time.Second, testLogger())
	ctx := context.Background()

	params := domain.CustomData{"search_string": "shoes"}

	if !g.Allow(ctx, "s1", "Search", params, "form") {
		t.Fatal("first send should be allowed")
	}

	mr.FastForward(29 * time.Second)
	if g.Allow(ctx, "s1", "Search", params, "form") {
		t.Error("send at 29s should still be suppressed")
	}

	mr.FastForward(2 * time.Second)
	if !g.Allow(ctx, "s1", "Search", params, "form") {
		t.Error("send after the window should be allowed again")
	}
}

func TestDedupGuard_DistinctTuplesAllowed(t *testing.T) {
	client, _ := setupTestRedis(t)
	g := NewDedupGuard(client, 0, testLogger())
	ctx := context.Background()

	base := domain.CustomData{"value": 1.0, "currency": "EUR"}

	if !g.Allow(ctx, "s1", "Lead", base, "a") {
		t.Fatal("first send should be allowed")
	}

	cases := []struct {
		name    string
		session string
		event   string
		params  domain.CustomData
		source  string
	}{
		{"other session", "s2", "Lead", base, "a"},
		{"other event", "s1", "Contact", base, "a"},
		{"other params", "s1", "Lead", domain.CustomData{"value": 2.0, "currency": "EUR"}, "a"},
		{"other source", "s1", "Lead", base, "b"},
	}
	for _, c := range cases {
		if !g.Allow(ctx, c.session, c.event, c.params, c.source) {
			t.Errorf("%s: should not be treated as duplicate", c.name)
		}
	}
}

func TestDedupGuard_DefaultWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	g := NewDedupGuard(client, 0, testLogger())
	if g.Window() != DefaultDedupWindow {
		t.Errorf("window = %v, want %v", g.Window(), DefaultDedupWindow)
	}
}

func TestDedupKey_StableAcrossMapOrder(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2, "c": []any{"x"}}
	b := map[string]any{"c": []any{"x"}, "b": 2, "a": 1}

	if DedupKey("s", "Lead", a, "src") != DedupKey("s", "Lead", b, "src") {
		t.Error("dedup key should not depend on map insertion order")
	}
}

func TestDedupGuard_FailsOpen(t *testing.T) {
	client, mr := setupTestRedis(t)
	g := NewDedupGuard(client, time.Second, testLogger())
	mr.Close()

	if !g.Allow(context.Background(), "s", "Lead", nil, "") {
		t.Error("guard should allow sends when redis is unavailable")
	}
}
