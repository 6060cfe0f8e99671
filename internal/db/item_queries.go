package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"horse.fit/pulse/internal/feed"
	"horse.fit/pulse/internal/globaltime"
)

// ItemsByWindow loads items posted within the trailing window, with
// their embedding and bounded metric history attached. Items whose
// posted_at is unknown are always included; scoring treats them as
// maximally fresh. A nil sources filter means all sources.
func (p *Pool) ItemsByWindow(ctx context.Context, window time.Duration, sources []feed.Source) ([]feed.Item, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	cutoff := globaltime.UTC().Add(-window)
	sourceFilter := joinSources(sources)

	const q = `
SELECT
	i.item_id,
	i.source,
	i.source_item_id,
	i.author,
	i.title,
	i.description,
	i.stars,
	i.url,
	i.posted_at,
	i.summary,
	e.embedding::text
FROM pulse.items i
LEFT JOIN pulse.item_embeddings e
	ON e.item_id = i.item_id
WHERE (i.posted_at IS NULL OR i.posted_at >= $1)
  AND ($2 = '' OR i.source = ANY(string_to_array($2, ',')))
ORDER BY i.item_id
`

	rows, err := p.Query(ctx, q, cutoff, sourceFilter)
	if err != nil {
		return nil, fmt.Errorf("query items by window: %w", err)
	}
	defer rows.Close()

	items := make([]feed.Item, 0, 256)
	rowIDs := make([]int64, 0, 256)
	for rows.Next() {
		var (
			itemID       int64
			source       string
			sourceItemID string
			author       string
			title        string
			description  string
			stars        int
			itemURL      *string
			postedAt     *time.Time
			summary      *string
			embeddingRaw *string
		)
		if err := rows.Scan(
			&itemID,
			&source,
			&sourceItemID,
			&author,
			&title,
			&description,
			&stars,
			&itemURL,
			&postedAt,
			&summary,
			&embeddingRaw,
		); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}

		item := feed.Item{
			ID:          sourceItemID,
			Source:      feed.Source(source),
			Author:      author,
			Title:       title,
			Description: description,
			Stars:       stars,
		}
		if itemURL != nil {
			item.URL = *itemURL
		}
		if postedAt != nil {
			item.CreatedAt = postedAt.UTC()
		}
		if summary != nil {
			item.Summary = *summary
		}
		if embeddingRaw != nil {
			item.Embedding = decodeEmbedding(*embeddingRaw)
		}

		items = append(items, item)
		rowIDs = append(rowIDs, itemID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}

	if err := p.attachMetricHistory(ctx, cutoff, sourceFilter, items, rowIDs); err != nil {
		return nil, err
	}
	return items, nil
}

// attachMetricHistory loads the metric snapshots for the windowed items
// in one pass and attaches the most recent MaxMetricHistory per item,
// oldest first.
func (p *Pool) attachMetricHistory(ctx context.Context, cutoff time.Time, sourceFilter string, items []feed.Item, rowIDs []int64) error {
	if len(items) == 0 {
		return nil
	}

	const q = `
SELECT
	m.item_id,
	m.recorded_at,
	m.stars
FROM pulse.item_metrics m
JOIN pulse.items i
	ON i.item_id = m.item_id
WHERE (i.posted_at IS NULL OR i.posted_at >= $1)
  AND ($2 = '' OR i.source = ANY(string_to_array($2, ',')))
ORDER BY m.item_id, m.recorded_at
`

	rows, err := p.Query(ctx, q, cutoff, sourceFilter)
	if err != nil {
		return fmt.Errorf("query item metrics: %w", err)
	}
	defer rows.Close()

	byItemID := make(map[int64]int, len(items))
	for i, id := range rowIDs {
		byItemID[id] = i
	}

	for rows.Next() {
		var (
			itemID     int64
			recordedAt time.Time
			stars      int
		)
		if err := rows.Scan(&itemID, &recordedAt, &stars); err != nil {
			return fmt.Errorf("scan item metric: %w", err)
		}
		idx, ok := byItemID[itemID]
		if !ok {
			continue
		}
		items[idx].History = append(items[idx].History, feed.MetricSnapshot{
			At:    recordedAt.UTC(),
			Stars: stars,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate item metrics: %w", err)
	}

	for i := range items {
		if extra := len(items[i].History) - feed.MaxMetricHistory; extra > 0 {
			items[i].History = items[i].History[extra:]
		}
	}
	return nil
}

// ItemUpsert is the write shape for one collected item.
type ItemUpsert struct {
	Source       string
	SourceItemID string
	Author       string
	Title        string
	Description  string
	Stars        int
	URL          string
	PostedAt     *time.Time
	Summary      string
	RawPayload   json.RawMessage
}

// UpsertItem inserts or refreshes one item and returns its row id.
func (p *Pool) UpsertItem(ctx context.Context, upsert ItemUpsert, now time.Time) (int64, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}

	const q = `
INSERT INTO pulse.items (
	source,
	source_item_id,
	author,
	title,
	description,
	stars,
	url,
	posted_at,
	summary,
	raw_payload,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $11)
ON CONFLICT (source, source_item_id) DO UPDATE
SET
	author = EXCLUDED.author,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	stars = EXCLUDED.stars,
	url = EXCLUDED.url,
	posted_at = COALESCE(pulse.items.posted_at, EXCLUDED.posted_at),
	summary = COALESCE(EXCLUDED.summary, pulse.items.summary),
	raw_payload = COALESCE(EXCLUDED.raw_payload, pulse.items.raw_payload),
	updated_at = EXCLUDED.updated_at
RETURNING item_id
`

	var itemID int64
	err := p.QueryRow(
		ctx,
		q,
		upsert.Source,
		upsert.SourceItemID,
		upsert.Author,
		upsert.Title,
		upsert.Description,
		upsert.Stars,
		nullableString(upsert.URL),
		upsert.PostedAt,
		nullableString(upsert.Summary),
		nullableJSONText(upsert.RawPayload),
		now,
	).Scan(&itemID)
	if err != nil {
		return 0, fmt.Errorf("upsert item %s/%s: %w", upsert.Source, upsert.SourceItemID, err)
	}
	return itemID, nil
}

// InsertMetricSnapshot appends one popularity reading and evicts
// history beyond the bounded window, oldest first.
func (p *Pool) InsertMetricSnapshot(ctx context.Context, itemID int64, stars int, now time.Time) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	const insertQ = `
INSERT INTO pulse.item_metrics (item_id, recorded_at, stars)
VALUES ($1, $2, $3)
`
	if _, err := p.Exec(ctx, insertQ, itemID, now, stars); err != nil {
		return fmt.Errorf("insert metric snapshot item_id=%d: %w", itemID, err)
	}

	const pruneQ = `
DELETE FROM pulse.item_metrics
WHERE item_id = $1
  AND metric_id NOT IN (
	SELECT metric_id
	FROM pulse.item_metrics
	WHERE item_id = $1
	ORDER BY recorded_at DESC, metric_id DESC
	LIMIT $2
)
`
	if _, err := p.Exec(ctx, pruneQ, itemID, feed.MaxMetricHistory); err != nil {
		return fmt.Errorf("prune metric history item_id=%d: %w", itemID, err)
	}
	return nil
}

// EmbeddingPendingItem is one item still waiting for a vector.
type EmbeddingPendingItem struct {
	ItemID      int64
	Title       string
	Description string
	Summary     string
}

// ItemsMissingEmbedding selects items without a stored vector, oldest
// row first.
func (p *Pool) ItemsMissingEmbedding(ctx context.Context, limit int) ([]EmbeddingPendingItem, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	if limit <= 0 {
		return nil, nil
	}

	const q = `
SELECT
	i.item_id,
	i.title,
	i.description,
	COALESCE(i.summary, '')
FROM pulse.items i
WHERE NOT EXISTS (
	SELECT 1
	FROM pulse.item_embeddings e
	WHERE e.item_id = i.item_id
)
ORDER BY i.item_id
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("select items missing embedding: %w", err)
	}
	defer rows.Close()

	pending := make([]EmbeddingPendingItem, 0, limit)
	for rows.Next() {
		var item EmbeddingPendingItem
		if err := rows.Scan(&item.ItemID, &item.Title, &item.Description, &item.Summary); err != nil {
			return nil, fmt.Errorf("scan embedding-pending item: %w", err)
		}
		pending = append(pending, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding-pending items: %w", err)
	}
	return pending, nil
}

// UpsertItemEmbedding stores the vector for an item, replacing any
// previous model's vector.
func (p *Pool) UpsertItemEmbedding(ctx context.Context, itemID int64, modelName string, embedding []float64, now time.Time) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	encoded, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding item_id=%d: %w", itemID, err)
	}

	const q = `
INSERT INTO pulse.item_embeddings (item_id, model_name, embedding, embedded_at)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (item_id) DO UPDATE
SET
	model_name = EXCLUDED.model_name,
	embedding = EXCLUDED.embedding,
	embedded_at = EXCLUDED.embedded_at
`
	if _, err := p.Exec(ctx, q, itemID, modelName, string(encoded), now); err != nil {
		return fmt.Errorf("upsert item embedding item_id=%d: %w", itemID, err)
	}
	return nil
}

func decodeEmbedding(raw string) []float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var vector []float64
	if err := json.Unmarshal([]byte(trimmed), &vector); err != nil {
		return nil
	}
	return vector
}

func joinSources(sources []feed.Source) string {
	if len(sources) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sources))
	for _, source := range sources {
		if trimmed := strings.TrimSpace(string(source)); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ",")
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func nullableJSONText(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	text := string(raw)
	return &text
}
