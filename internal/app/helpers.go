package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/config"
	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/logging"
	"horse.fit/pulse/internal/notify"
	"horse.fit/pulse/internal/summarize"
)

// loadRuntime loads env, config, and logger in the order every command
// needs them.
func loadRuntime(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger, nil
}

func connectPool(cfg *config.Config, timeout time.Duration) (context.Context, context.CancelFunc, *db.Pool, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return ctx, cancel, pool, nil
}

// summarizerClient returns nil when no text service is configured.
func summarizerClient(cfg *config.Config) *summarize.Client {
	if strings.TrimSpace(cfg.SummarizerBaseURL) == "" {
		return nil
	}
	return summarize.NewClient(cfg.SummarizerBaseURL, summarize.WithAPIKey(cfg.SummarizerAPIKey))
}

func digestSink(cfg *config.Config, logger zerolog.Logger) notify.Sink {
	if strings.TrimSpace(cfg.DigestWebhookURL) != "" {
		return notify.NewWebhook(cfg.DigestWebhookURL)
	}
	return notify.LogSink{Logger: logger}
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
