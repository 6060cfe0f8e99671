package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"horse.fit/pulse/internal/digest"
	"horse.fit/pulse/internal/globaltime"
)

// RecentTopics returns topics published within the trailing window.
func (p *Pool) RecentTopics(ctx context.Context, window time.Duration) ([]digest.Topic, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	cutoff := globaltime.UTC().Add(-window)

	const q = `
SELECT
	t.summary,
	t.embedding::text
FROM pulse.digest_topics t
WHERE t.published_at >= $1
ORDER BY t.published_at DESC
`

	rows, err := p.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query recent digest topics: %w", err)
	}
	defer rows.Close()

	topics := make([]digest.Topic, 0, 32)
	for rows.Next() {
		var (
			summary      string
			embeddingRaw *string
		)
		if err := rows.Scan(&summary, &embeddingRaw); err != nil {
			return nil, fmt.Errorf("scan digest topic: %w", err)
		}
		topic := digest.Topic{Summary: summary}
		if embeddingRaw != nil {
			topic.Embedding = decodeEmbedding(*embeddingRaw)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate digest topics: %w", err)
	}
	return topics, nil
}

// AppendTopics records topics covered by a freshly published digest.
func (p *Pool) AppendTopics(ctx context.Context, topics []digest.Topic) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if len(topics) == 0 {
		return nil
	}

	now := globaltime.UTC()

	const q = `
INSERT INTO pulse.digest_topics (summary, embedding, published_at)
VALUES ($1, $2::jsonb, $3)
`

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin digest history tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, topic := range topics {
		var embeddingText *string
		if len(topic.Embedding) > 0 {
			encoded, err := json.Marshal(topic.Embedding)
			if err != nil {
				return fmt.Errorf("encode digest topic embedding: %w", err)
			}
			text := string(encoded)
			embeddingText = &text
		}
		if _, err := tx.Exec(ctx, q, topic.Summary, embeddingText, now); err != nil {
			return fmt.Errorf("insert digest topic: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit digest history tx: %w", err)
	}
	return nil
}
