package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capi-relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("port = %q", cfg.Port)
	}
	if cfg.APIVersion != "v18.0" {
		t.Errorf("api_version = %q", cfg.APIVersion)
	}
	if cfg.DispatchTimeout != 3*time.Second {
		t.Errorf("dispatch_timeout = %v", cfg.DispatchTimeout)
	}
	if cfg.DedupWindow != 30*time.Second {
		t.Errorf("dedup_window = %v", cfg.DedupWindow)
	}
	if !cfg.TrackingEnabled {
		t.Error("tracking should be enabled by default")
	}
	if cfg.GraphBaseURL != "https://graph.facebook.com" {
		t.Errorf("graph_base_url = %q", cfg.GraphBaseURL)
	}
}

func TestLoad_StoresOptional(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load should not require stores: %v", err)
	}
	if cfg.RedisURL != "" || cfg.DatabaseURL != "" {
		t.Errorf("unexpected store urls %q %q", cfg.RedisURL, cfg.DatabaseURL)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("PIXEL_ID", " 1234567890 ")
	t.Setenv("ACCESS_TOKEN", "EAAB-token")
	t.Setenv("TEST_EVENT_CODE", "TEST42")
	t.Setenv("TRACKING_ENABLED", "false")
	t.Setenv("DISPATCH_TIMEOUT", "1500ms")
	t.Setenv("NUM_WORKERS", "3")
	t.Setenv("ADMIN_TOKEN", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	conv := cfg.Conversions()
	if conv.PixelID != "1234567890" || conv.AccessToken != "EAAB-token" {
		t.Errorf("credentials = %q / %q", conv.PixelID, conv.AccessToken)
	}
	if conv.TestEventCode != "TEST42" || conv.Enabled {
		t.Errorf("unexpected conversions config %+v", conv)
	}
	if conv.Timeout != 1500*time.Millisecond {
		t.Errorf("timeout = %v", conv.Timeout)
	}
	if cfg.NumWorkers != 3 {
		t.Errorf("num_workers = %d", cfg.NumWorkers)
	}
	if cfg.AdminToken != "s3cret" {
		t.Errorf("admin_token = %q", cfg.AdminToken)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("PORT", "9000")

	path := writeConfig(t, "port: \"7000\"\npixel_id: \"555\"\ncollect_rate_limit: 5\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("port = %q, environment should win", cfg.Port)
	}
	if cfg.PixelID != "555" {
		t.Errorf("pixel_id = %q, want value from file", cfg.PixelID)
	}
	if cfg.CollectRateLimit != 5 {
		t.Errorf("collect_rate_limit = %d", cfg.CollectRateLimit)
	}
}

func TestLoad_RejectsTokenInFile(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	path := writeConfig(t, "pixel_id: \"555\"\naccess_token: \"leaked\"\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for access_token in config file")
	}
	if !strings.Contains(err.Error(), "ACCESS_TOKEN") {
		t.Errorf("error should point at the environment variable: %v", err)
	}

	path = writeConfig(t, "admin_token: \"leaked\"\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ADMIN_TOKEN") {
		t.Errorf("expected admin_token in config file to be rejected, got %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("DEDUP_WINDOW", "0s")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for zero dedup window")
	}
}
