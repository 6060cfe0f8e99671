package db

import (
	"encoding/json"
	"time"
)

// Item maps pulse.items. (source, source_item_id) is the uniqueness
// key: the same story can appear once per source.
type Item struct {
	ItemID       int64           `gorm:"column:item_id;primaryKey;autoIncrement"`
	Source       string          `gorm:"column:source;type:text;not null;uniqueIndex:ux_items_source_item"`
	SourceItemID string          `gorm:"column:source_item_id;type:text;not null;uniqueIndex:ux_items_source_item"`
	Author       string          `gorm:"column:author;type:text;not null;default:''"`
	Title        string          `gorm:"column:title;type:text;not null"`
	Description  string          `gorm:"column:description;type:text;not null;default:''"`
	Stars        int             `gorm:"column:stars;type:integer;not null;default:0"`
	URL          *string         `gorm:"column:url;type:text"`
	PostedAt     *time.Time      `gorm:"column:posted_at;type:timestamptz"`
	Summary      *string         `gorm:"column:summary;type:text"`
	RawPayload   json.RawMessage `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Item) TableName() string { return "pulse.items" }

// ItemMetric maps pulse.item_metrics, the bounded popularity history.
type ItemMetric struct {
	MetricID   int64     `gorm:"column:metric_id;primaryKey;autoIncrement"`
	ItemID     int64     `gorm:"column:item_id;type:bigint;not null;index:ix_item_metrics_item"`
	RecordedAt time.Time `gorm:"column:recorded_at;type:timestamptz;not null;default:now()"`
	Stars      int       `gorm:"column:stars;type:integer;not null"`
}

func (ItemMetric) TableName() string { return "pulse.item_metrics" }

// ItemEmbedding maps pulse.item_embeddings. One vector per item; the
// vector itself is produced by the external text-intelligence service.
type ItemEmbedding struct {
	ItemID     int64           `gorm:"column:item_id;type:bigint;primaryKey"`
	ModelName  string          `gorm:"column:model_name;type:text;not null"`
	Embedding  json.RawMessage `gorm:"column:embedding;type:jsonb;not null"`
	EmbeddedAt time.Time       `gorm:"column:embedded_at;type:timestamptz;not null;default:now()"`
}

func (ItemEmbedding) TableName() string { return "pulse.item_embeddings" }

// DigestTopic maps pulse.digest_topics, the published-digest history
// used for temporal de-duplication.
type DigestTopic struct {
	TopicID     int64           `gorm:"column:topic_id;primaryKey;autoIncrement"`
	Summary     string          `gorm:"column:summary;type:text;not null"`
	Embedding   json.RawMessage `gorm:"column:embedding;type:jsonb"`
	PublishedAt time.Time       `gorm:"column:published_at;type:timestamptz;not null;default:now()"`
}

func (DigestTopic) TableName() string { return "pulse.digest_topics" }

func autoMigrateModels() []any {
	return []any{
		&Item{},
		&ItemMetric{},
		&ItemEmbedding{},
		&DigestTopic{},
	}
}
