package feed

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/globaltime"
)

// DefaultFeedWindow covers the public feed.
const DefaultFeedWindow = 7 * 24 * time.Hour

// ItemStore is the persisted-item collaborator the rebuild path reads
// from. A nil sources filter means all known sources.
type ItemStore interface {
	ItemsByWindow(ctx context.Context, window time.Duration, sources []Source) ([]Item, error)
}

// Rebuilder recomputes the public feed snapshot from persisted items
// and publishes it to the cache wholesale.
type Rebuilder struct {
	store  ItemStore
	cache  *Cache
	logger zerolog.Logger
	window time.Duration
}

func NewRebuilder(store ItemStore, cache *Cache, logger zerolog.Logger, window time.Duration) *Rebuilder {
	if window <= 0 {
		window = DefaultFeedWindow
	}
	return &Rebuilder{
		store:  store,
		cache:  cache,
		logger: logger,
		window: window,
	}
}

// Rebuild queries the item window, clusters, boosts, and replaces the
// cache snapshot. On error the previous snapshot stays in place.
func (r *Rebuilder) Rebuild(ctx context.Context) (*Snapshot, error) {
	if r == nil || r.store == nil || r.cache == nil {
		return nil, fmt.Errorf("rebuilder is not initialized")
	}

	items, err := r.store.ItemsByWindow(ctx, r.window, nil)
	if err != nil {
		return nil, fmt.Errorf("query feed items: %w", err)
	}

	now := globaltime.UTC()
	snapshot := &Snapshot{
		Clusters: BuildFeed(items, now),
		BuiltAt:  now,
	}
	r.cache.Set(snapshot)

	r.logger.Info().
		Int("items", len(items)).
		Int("clusters", len(snapshot.Clusters)).
		Time("built_at", snapshot.BuiltAt).
		Msg("feed rebuilt")

	return snapshot, nil
}

// BuildFeed runs the full pipeline over raw items: stable score sort,
// greedy clustering, per-cluster decoration (synergy boost, best link,
// display name, provenance), and a final sort by boosted score.
func BuildFeed(items []Item, now time.Time) []Cluster {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	SortByScore(sorted, now)

	clusters := BuildClusters(sorted, now)
	for i := range clusters {
		decorateCluster(&clusters[i])
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Score > clusters[j].Score
	})
	return clusters
}

func decorateCluster(cluster *Cluster) {
	cluster.Score *= synergyMultiplier(len(cluster.Sources))
	cluster.BestLink = bestLink(*cluster)
	inferSourceTag(cluster)
	cluster.DisplayName = displayName(cluster.Main)
	cluster.SpottedOn = provenance(*cluster)
}

// synergyMultiplier boosts clusters corroborated across sources.
func synergyMultiplier(sourceCount int) float64 {
	switch {
	case sourceCount >= 3:
		return 1.5
	case sourceCount == 2:
		return 1.2
	default:
		return 1.0
	}
}

// bestLink picks the canonical URL to surface: the repo-host item's URL
// when present, then the model-hub item's, then the main item's.
func bestLink(cluster Cluster) string {
	for _, preferred := range []Source{SourceGitHub, SourceHuggingFace} {
		if item, ok := findBySource(cluster, preferred); ok && strings.TrimSpace(item.URL) != "" {
			return item.URL
		}
	}
	return cluster.Main.URL
}

func findBySource(cluster Cluster, source Source) (Item, bool) {
	if cluster.Main.Source == source {
		return cluster.Main, true
	}
	for _, item := range cluster.Related {
		if item.Source == source {
			return item, true
		}
	}
	return Item{}, false
}

var platformHosts = map[string]Source{
	"github.com":           SourceGitHub,
	"huggingface.co":       SourceHuggingFace,
	"news.ycombinator.com": SourceHackerNews,
	"reddit.com":           SourceReddit,
	"old.reddit.com":       SourceReddit,
	"replicate.com":        SourceReplicate,
}

// inferSourceTag adds the best link's platform to the displayed source
// set even when no item from that source is in the cluster, e.g. a
// forum post whose link points straight at a repository.
func inferSourceTag(cluster *Cluster) {
	host := hostOf(cluster.BestLink)
	source, ok := platformHosts[host]
	if !ok {
		return
	}
	for _, existing := range cluster.Sources {
		if existing == source {
			return
		}
	}
	cluster.Sources = append(cluster.Sources, source)
}

func hostOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// displayName renders repository-like items as owner/name; for
// discussion-style items it recovers owner/name from the linked URL
// when that URL points at a repository host, else keeps the raw title.
func displayName(main Item) string {
	switch main.Source {
	case SourceGitHub, SourceHuggingFace, SourceReplicate:
		if strings.Contains(main.ID, "/") {
			return main.ID
		}
		if main.Author != "" && main.Title != "" && !strings.ContainsRune(main.Title, ' ') {
			return main.Author + "/" + main.Title
		}
		return main.Title
	default:
		if hostOf(main.URL) == "github.com" {
			if name, ok := repoPathName(main.URL); ok {
				return name
			}
		}
		return main.Title
	}
}

func repoPathName(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	segments := strings.FieldsFunc(parsed.EscapedPath(), func(r rune) bool { return r == '/' })
	if len(segments) < 2 {
		return "", false
	}
	return segments[0] + "/" + strings.TrimSuffix(segments[1], ".git"), true
}

// provenance lists one representative URL per distinct source, with
// forum permalinks reconstructed from the stored id when the stored URL
// points at the submitted article instead of the discussion.
func provenance(cluster Cluster) []Provenance {
	spotted := make([]Provenance, 0, len(cluster.Sources))
	for _, source := range cluster.Sources {
		item, ok := findBySource(cluster, source)
		if !ok {
			continue
		}
		link := item.URL
		if source == SourceHackerNews {
			if permalink, ok := hackerNewsPermalink(item); ok {
				link = permalink
			}
		}
		if strings.TrimSpace(link) == "" {
			continue
		}
		spotted = append(spotted, Provenance{Source: source, URL: link})
	}
	return spotted
}

func hackerNewsPermalink(item Item) (string, bool) {
	if hostOf(item.URL) == "news.ycombinator.com" {
		return "", false
	}
	id := strings.TrimPrefix(item.ID, "hn-")
	if !isDigits(id) {
		return "", false
	}
	return "https://news.ycombinator.com/item?id=" + id, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
