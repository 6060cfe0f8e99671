package feed

import "time"

// Source identifies the platform an item was collected from.
type Source string

const (
	SourceGitHub      Source = "github"
	SourceHuggingFace Source = "huggingface"
	SourceHackerNews  Source = "hackernews"
	SourceReddit      Source = "reddit"
	SourceReplicate   Source = "replicate"
)

// KnownSources returns all collected sources in canonical order.
func KnownSources() []Source {
	return []Source{SourceGitHub, SourceHuggingFace, SourceHackerNews, SourceReddit, SourceReplicate}
}

// MaxMetricHistory bounds the per-item popularity history; the oldest
// snapshot is evicted first.
const MaxMetricHistory = 100

// MetricSnapshot is one historical popularity reading for an item.
type MetricSnapshot struct {
	At    time.Time
	Stars int
}

// Item is one ingested content record from a single source.
// (Source, ID) is the uniqueness key: the same story can appear once
// per source. CreatedAt may be zero when the source did not report a
// timestamp; scoring treats that as maximum freshness.
type Item struct {
	ID          string
	Source      Source
	Author      string
	Title       string
	Description string
	Stars       int
	URL         string
	CreatedAt   time.Time
	Summary     string
	Embedding   []float64
	History     []MetricSnapshot
}

// Provenance is one representative link per source present in a cluster.
type Provenance struct {
	Source Source `json:"source"`
	URL    string `json:"url"`
}

// Cluster groups items judged to describe the same story. Clusters are
// transient: rebuilt from scratch on every pass, never persisted.
type Cluster struct {
	Main        Item
	Related     []Item
	Score       float64
	Sources     []Source
	BestLink    string
	DisplayName string
	SpottedOn   []Provenance
}

// Snapshot is one wholesale build of the public feed. Exactly one live
// instance exists; readers never observe a half-built state.
type Snapshot struct {
	Clusters []Cluster
	BuiltAt  time.Time
}
