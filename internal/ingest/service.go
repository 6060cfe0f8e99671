package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/feed"
	"horse.fit/pulse/internal/globaltime"
	payloadschema "horse.fit/pulse/schema"
)

const (
	DefaultEmbedLimit     = 256
	DefaultEmbedBatchSize = 32
)

// Collector fetches candidate items from one upstream platform.
type Collector interface {
	Source() feed.Source
	Collect(ctx context.Context) ([]json.RawMessage, error)
}

// Store is the persistence surface the ingest service needs.
type Store interface {
	UpsertItem(ctx context.Context, upsert db.ItemUpsert, now time.Time) (int64, error)
	InsertMetricSnapshot(ctx context.Context, itemID int64, stars int, now time.Time) error
	ItemsMissingEmbedding(ctx context.Context, limit int) ([]db.EmbeddingPendingItem, error)
	UpsertItemEmbedding(ctx context.Context, itemID int64, modelName string, embedding []float64, now time.Time) error
}

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Service pulls items from collectors, validates payloads, persists
// them with a popularity snapshot, and backfills embeddings. It is the
// feed scheduler's Refresher.
type Service struct {
	store      Store
	collectors []Collector
	embedder   Embedder
	modelName  string
	logger     zerolog.Logger
}

func NewService(store Store, collectors []Collector, embedder Embedder, modelName string, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		collectors: collectors,
		embedder:   embedder,
		modelName:  strings.TrimSpace(modelName),
		logger:     logger,
	}
}

// RefreshResult summarizes one ingest pass.
type RefreshResult struct {
	Ingested int
	Rejected int
	Embedded int
}

// Refresh runs every collector and persists what they found. A failing
// collector is logged and skipped so one dead upstream cannot starve
// the rest. An error is returned only when every collector fails.
func (s *Service) Refresh(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("ingest service is not initialized")
	}

	var result RefreshResult
	failed := 0
	for _, collector := range s.collectors {
		payloads, err := collector.Collect(ctx)
		if err != nil {
			failed++
			s.logger.Warn().
				Err(err).
				Str("source", string(collector.Source())).
				Msg("collector failed")
			continue
		}

		for _, payload := range payloads {
			if _, err := s.IngestPayload(ctx, payload); err != nil {
				result.Rejected++
				s.logger.Warn().
					Err(err).
					Str("source", string(collector.Source())).
					Msg("payload rejected")
				continue
			}
			result.Ingested++
		}
	}

	if len(s.collectors) > 0 && failed == len(s.collectors) {
		return fmt.Errorf("all %d collectors failed", failed)
	}

	if s.embedder != nil {
		embedded, err := s.EmbedPending(ctx, DefaultEmbedLimit)
		if err != nil {
			s.logger.Warn().Err(err).Msg("embedding backfill failed")
		}
		result.Embedded = embedded
	}

	s.logger.Info().
		Int("ingested", result.Ingested).
		Int("rejected", result.Rejected).
		Int("embedded", result.Embedded).
		Msg("refresh complete")
	return nil
}

// IngestPayload validates one collector payload and persists the item
// plus a popularity snapshot. Returns the item's row id.
func (s *Service) IngestPayload(ctx context.Context, payload json.RawMessage) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("ingest service is not initialized")
	}

	item, err := payloadschema.ValidateItemPayload(payload)
	if err != nil {
		return 0, fmt.Errorf("validate payload: %w", err)
	}

	now := globaltime.UTC()

	upsert := db.ItemUpsert{
		Source:       item.Source,
		SourceItemID: item.SourceItemID,
		Title:        item.Title,
		RawPayload:   payload,
	}
	if item.Author != nil {
		upsert.Author = *item.Author
	}
	if item.Description != nil {
		upsert.Description = *item.Description
	}
	if item.Stars != nil {
		upsert.Stars = *item.Stars
	}
	if item.URL != nil {
		upsert.URL = *item.URL
	}
	if item.PostedAt != nil {
		postedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.PostedAt))
		if err == nil {
			postedAt = postedAt.UTC()
			upsert.PostedAt = &postedAt
		}
	}

	itemID, err := s.store.UpsertItem(ctx, upsert, now)
	if err != nil {
		return 0, err
	}

	if err := s.store.InsertMetricSnapshot(ctx, itemID, upsert.Stars, now); err != nil {
		return 0, err
	}
	return itemID, nil
}

// EmbedPending backfills vectors for items that do not have one yet,
// batching requests to the embedder. Returns the number embedded.
func (s *Service) EmbedPending(ctx context.Context, limit int) (int, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("ingest service is not initialized")
	}
	if s.embedder == nil || limit <= 0 {
		return 0, nil
	}

	embedded := 0
	for embedded < limit {
		batchSize := min(DefaultEmbedBatchSize, limit-embedded)
		pending, err := s.store.ItemsMissingEmbedding(ctx, batchSize)
		if err != nil {
			return embedded, err
		}
		if len(pending) == 0 {
			break
		}

		texts := make([]string, 0, len(pending))
		for _, item := range pending {
			texts = append(texts, embeddingInput(item))
		}

		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return embedded, fmt.Errorf("request embeddings: %w", err)
		}
		if len(vectors) != len(pending) {
			return embedded, fmt.Errorf("embedding count mismatch: requested=%d returned=%d", len(pending), len(vectors))
		}

		now := globaltime.UTC()
		for i, item := range pending {
			if err := s.store.UpsertItemEmbedding(ctx, item.ItemID, s.modelName, vectors[i], now); err != nil {
				return embedded, err
			}
			embedded++
		}
	}
	return embedded, nil
}

// embeddingInput joins the richest text available for an item: the
// machine summary when present, else title plus description.
func embeddingInput(item db.EmbeddingPendingItem) string {
	if summary := strings.TrimSpace(item.Summary); summary != "" {
		return summary
	}

	title := strings.TrimSpace(item.Title)
	body := strings.TrimSpace(item.Description)
	switch {
	case body == "":
		return title
	case title == "":
		return body
	default:
		return title + "\n\n" + body
	}
}
