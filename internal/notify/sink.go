package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/digest"
	"horse.fit/pulse/internal/feed"
	"horse.fit/pulse/internal/globaltime"
)

const defaultPublishTimeout = 30 * time.Second

// Sink delivers a curated digest to its destination.
type Sink interface {
	Publish(ctx context.Context, result *digest.Result) error
}

// LogSink writes the digest to the service log. Used when no webhook is
// configured.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Publish(_ context.Context, result *digest.Result) error {
	if result == nil {
		return fmt.Errorf("nil digest result")
	}
	s.Logger.Info().
		Int("clusters", len(result.Clusters)).
		Int("prompt_tokens", result.Content.PromptTokens).
		Int("completion_tokens", result.Content.CompletionTokens).
		Str("narrative", result.Content.Text).
		Msg("digest published to log")
	return nil
}

// Webhook posts the digest as JSON to a configured endpoint.
type Webhook struct {
	url        string
	httpClient *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: strings.TrimSpace(url),
		httpClient: &http.Client{
			Timeout: defaultPublishTimeout,
		},
	}
}

type webhookEntry struct {
	Title     string            `json:"title"`
	Link      string            `json:"link,omitempty"`
	Score     float64           `json:"score"`
	Sources   []string          `json:"sources"`
	SpottedOn []feed.Provenance `json:"spotted_on,omitempty"`
}

type webhookPayload struct {
	PublishedAt time.Time      `json:"published_at"`
	Narrative   string         `json:"narrative"`
	Entries     []webhookEntry `json:"entries"`
}

func (w *Webhook) Publish(ctx context.Context, result *digest.Result) error {
	if w == nil || w.url == "" {
		return fmt.Errorf("webhook sink is not configured")
	}
	if result == nil {
		return fmt.Errorf("nil digest result")
	}

	payload := webhookPayload{
		PublishedAt: globaltime.UTC(),
		Narrative:   result.Content.Text,
		Entries:     make([]webhookEntry, 0, len(result.Clusters)),
	}
	for _, cluster := range result.Clusters {
		payload.Entries = append(payload.Entries, webhookEntry{
			Title:     cluster.DisplayName,
			Link:      cluster.BestLink,
			Score:     cluster.Score,
			Sources:   sourceNames(cluster.Sources),
			SpottedOn: cluster.SpottedOn,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal digest payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func sourceNames(sources []feed.Source) []string {
	names := make([]string, 0, len(sources))
	for _, source := range sources {
		names = append(names, string(source))
	}
	return names
}
