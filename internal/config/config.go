package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Priya8975/capi-relay/internal/conversions"
	"github.com/Priya8975/capi-relay/internal/engine"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	NumWorkers  int
	QueueSize   int

	PixelID         string
	AccessToken     string
	APIVersion      string
	TestEventCode   string
	TrackingEnabled bool
	GraphBaseURL    string
	DispatchTimeout time.Duration

	DedupWindow      time.Duration
	CollectRateLimit int
	AdminToken       string
	LogLevel         string
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing order of precedence. The access and admin
// tokens are only accepted from the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("num_workers", 8)
	v.SetDefault("queue_size", 1024)
	v.SetDefault("pixel_id", "")
	v.SetDefault("api_version", conversions.DefaultAPIVersion)
	v.SetDefault("test_event_code", "")
	v.SetDefault("tracking_enabled", true)
	v.SetDefault("graph_base_url", conversions.DefaultBaseURL)
	v.SetDefault("dispatch_timeout", conversions.DefaultTimeout.String())
	v.SetDefault("dedup_window", engine.DefaultDedupWindow.String())
	v.SetDefault("collect_rate_limit", 20)
	v.SetDefault("admin_token", "")
	v.SetDefault("log_level", "info")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		for _, secret := range []string{"access_token", "admin_token"} {
			if v.InConfig(secret) {
				return nil, fmt.Errorf("%s not allowed in config files (use the %s environment variable)", secret, strings.ToUpper(secret))
			}
		}
	}

	cfg := &Config{
		Port:             v.GetString("port"),
		DatabaseURL:      v.GetString("database_url"),
		RedisURL:         v.GetString("redis_url"),
		NumWorkers:       v.GetInt("num_workers"),
		QueueSize:        v.GetInt("queue_size"),
		PixelID:          strings.TrimSpace(v.GetString("pixel_id")),
		AccessToken:      strings.TrimSpace(v.GetString("access_token")),
		APIVersion:       v.GetString("api_version"),
		TestEventCode:    strings.TrimSpace(v.GetString("test_event_code")),
		TrackingEnabled:  v.GetBool("tracking_enabled"),
		GraphBaseURL:     v.GetString("graph_base_url"),
		DispatchTimeout:  v.GetDuration("dispatch_timeout"),
		DedupWindow:      v.GetDuration("dedup_window"),
		CollectRateLimit: v.GetInt("collect_rate_limit"),
		AdminToken:       strings.TrimSpace(v.GetString("admin_token")),
		LogLevel:         v.GetString("log_level"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be positive, got %d", cfg.NumWorkers)
	}
	if cfg.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch_timeout must be positive, got %v", cfg.DispatchTimeout)
	}
	if cfg.DedupWindow <= 0 {
		return fmt.Errorf("dedup_window must be positive, got %v", cfg.DedupWindow)
	}
	if cfg.CollectRateLimit < 0 {
		return fmt.Errorf("collect_rate_limit must not be negative, got %d", cfg.CollectRateLimit)
	}
	return nil
}

// Conversions returns the dispatcher settings.
func (c *Config) Conversions() conversions.Config {
	return conversions.Config{
		PixelID:       c.PixelID,
		AccessToken:   c.AccessToken,
		APIVersion:    c.APIVersion,
		TestEventCode: c.TestEventCode,
		Enabled:       c.TrackingEnabled,
		BaseURL:       c.GraphBaseURL,
		Timeout:       c.DispatchTimeout,
	}
}
