package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"PULSE_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"PULSE_DB_MAX_CONNS" default:"8"`

	FeedWindowHours        int `envconfig:"PULSE_FEED_WINDOW_HOURS" default:"168"`
	RebuildIntervalMinutes int `envconfig:"PULSE_REBUILD_INTERVAL_MINUTES" default:"15"`
	RefreshIntervalMinutes int `envconfig:"PULSE_REFRESH_INTERVAL_MINUTES" default:"60"`

	SummarizerBaseURL string `envconfig:"PULSE_SUMMARIZER_BASE_URL" default:""`
	SummarizerAPIKey  string `envconfig:"PULSE_SUMMARIZER_API_KEY" default:""`
	EmbeddingModel    string `envconfig:"PULSE_EMBEDDING_MODEL" default:"text-embedding-3-small"`

	DigestWebhookURL string `envconfig:"PULSE_DIGEST_WEBHOOK_URL" default:""`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("PULSE_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("PULSE_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("PULSE_DB_MIN_CONNS (%d) cannot exceed PULSE_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.FeedWindowHours < 1 {
		return fmt.Errorf("PULSE_FEED_WINDOW_HOURS must be >= 1")
	}
	if c.RebuildIntervalMinutes < 1 {
		return fmt.Errorf("PULSE_REBUILD_INTERVAL_MINUTES must be >= 1")
	}
	if c.RefreshIntervalMinutes < 1 {
		return fmt.Errorf("PULSE_REFRESH_INTERVAL_MINUTES must be >= 1")
	}
	return nil
}

func (c *Config) FeedWindow() time.Duration {
	return time.Duration(c.FeedWindowHours) * time.Hour
}

func (c *Config) RebuildInterval() time.Duration {
	return time.Duration(c.RebuildIntervalMinutes) * time.Minute
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
