package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/feed"
	"horse.fit/pulse/internal/globaltime"
)

const (
	// DefaultDigestWindow is the item window for a curation pass,
	// shorter than the public feed's.
	DefaultDigestWindow = 24 * time.Hour
	// DefaultHistoryWindow is how far back published topics count
	// against new candidates.
	DefaultHistoryWindow = 36 * time.Hour
	// DefaultCategoryCap limits clusters per category.
	DefaultCategoryCap = 3
	// DefaultMaxClusters bounds the digest size.
	DefaultMaxClusters = 8

	historySimilarityThreshold = 0.85
)

// ErrNoEligibleClusters is returned when nothing survives filtering.
// Callers must not publish an empty digest.
var ErrNoEligibleClusters = errors.New("no eligible clusters")

// Topic is one previously published digest subject, kept only for
// similarity checks against new candidates.
type Topic struct {
	Summary   string
	Embedding []float64
}

// HistoryStore persists published digest topics.
type HistoryStore interface {
	RecentTopics(ctx context.Context, window time.Duration) ([]Topic, error)
	AppendTopics(ctx context.Context, topics []Topic) error
}

// Narrative is the prose produced by the summarization collaborator.
type Narrative struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Summarizer turns selected clusters into narrative content. The
// curator itself never generates prose.
type Summarizer interface {
	Summarize(ctx context.Context, clusters []feed.Cluster) (Narrative, error)
}

type Options struct {
	Window        time.Duration
	HistoryWindow time.Duration
	CategoryCap   int
	MaxClusters   int
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultDigestWindow
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = DefaultHistoryWindow
	}
	if o.CategoryCap <= 0 {
		o.CategoryCap = DefaultCategoryCap
	}
	if o.MaxClusters <= 0 {
		o.MaxClusters = DefaultMaxClusters
	}
	return o
}

// Result is a successful curation: the selected clusters and the
// narrative obtained for them.
type Result struct {
	Clusters []feed.Cluster
	Content  Narrative
}

// Curator selects a small, diverse digest of top clusters. It shares
// the clustering pipeline with the feed but runs over a shorter window
// and never touches the feed cache: a digest failure cannot corrupt the
// public feed and vice versa.
type Curator struct {
	store      feed.ItemStore
	history    HistoryStore
	summarizer Summarizer
	logger     zerolog.Logger
	opts       Options
}

func NewCurator(store feed.ItemStore, history HistoryStore, summarizer Summarizer, logger zerolog.Logger, opts Options) *Curator {
	return &Curator{
		store:      store,
		history:    history,
		summarizer: summarizer,
		logger:     logger,
		opts:       opts.withDefaults(),
	}
}

// Curate builds clusters over the digest window, drops candidates too
// similar to recently published topics (unless force), applies the
// category diversity cap, and hands the survivors to the summarizer.
// Newly covered topics are appended to history before returning.
func (c *Curator) Curate(ctx context.Context, force bool) (*Result, error) {
	if c == nil || c.store == nil {
		return nil, fmt.Errorf("curator is not initialized")
	}

	items, err := c.store.ItemsByWindow(ctx, c.opts.Window, nil)
	if err != nil {
		return nil, fmt.Errorf("query digest items: %w", err)
	}

	now := globaltime.UTC()
	candidates := feed.BuildFeed(items, now)

	dropped := 0
	if !force && c.history != nil {
		topics, err := c.history.RecentTopics(ctx, c.opts.HistoryWindow)
		if err != nil {
			return nil, fmt.Errorf("load digest history: %w", err)
		}
		candidates, dropped = dropRecentlyCovered(candidates, topics)
	}

	selected := diversityFilter(candidates, c.opts.CategoryCap, c.opts.MaxClusters)
	if len(selected) == 0 {
		return nil, ErrNoEligibleClusters
	}

	content, err := c.summarizer.Summarize(ctx, selected)
	if err != nil {
		return nil, fmt.Errorf("summarize digest: %w", err)
	}

	if c.history != nil {
		if err := c.history.AppendTopics(ctx, topicsFor(selected)); err != nil {
			return nil, fmt.Errorf("append digest history: %w", err)
		}
	}

	c.logger.Info().
		Int("candidates", len(items)).
		Int("deduped", dropped).
		Int("selected", len(selected)).
		Bool("force", force).
		Msg("digest curated")

	return &Result{Clusters: selected, Content: content}, nil
}

// dropRecentlyCovered removes candidates whose main embedding is too
// close to any recently published topic. Candidates without an
// embedding are never dropped here.
func dropRecentlyCovered(candidates []feed.Cluster, topics []Topic) ([]feed.Cluster, int) {
	if len(topics) == 0 {
		return candidates, 0
	}

	kept := make([]feed.Cluster, 0, len(candidates))
	dropped := 0
	for _, candidate := range candidates {
		if len(candidate.Main.Embedding) == 0 {
			kept = append(kept, candidate)
			continue
		}
		if maxTopicSimilarity(candidate.Main.Embedding, topics) > historySimilarityThreshold {
			dropped++
			continue
		}
		kept = append(kept, candidate)
	}
	return kept, dropped
}

func maxTopicSimilarity(embedding []float64, topics []Topic) float64 {
	best := -1.0
	for _, topic := range topics {
		if cos, ok := feed.CosineSimilarity(embedding, topic.Embedding); ok && cos > best {
			best = cos
		}
	}
	return best
}

// diversityFilter walks candidates in score order, accepting a cluster
// only while its category count is under the cap, until maxClusters are
// accepted or candidates run out.
func diversityFilter(candidates []feed.Cluster, categoryCap, maxClusters int) []feed.Cluster {
	selected := make([]feed.Cluster, 0, maxClusters)
	perCategory := make(map[Category]int, 8)

	for _, candidate := range candidates {
		if len(selected) >= maxClusters {
			break
		}
		category := Classify(candidate.Main)
		if perCategory[category] >= categoryCap {
			continue
		}
		perCategory[category]++
		selected = append(selected, candidate)
	}
	return selected
}

// topicsFor records what the digest covered: the machine summary when
// present, else the title, plus the main embedding for future dedup.
func topicsFor(clusters []feed.Cluster) []Topic {
	topics := make([]Topic, 0, len(clusters))
	for _, cluster := range clusters {
		summary := cluster.Main.Summary
		if summary == "" {
			summary = cluster.Main.Title
		}
		topics = append(topics, Topic{
			Summary:   summary,
			Embedding: cluster.Main.Embedding,
		})
	}
	return topics
}
