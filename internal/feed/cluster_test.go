package feed

import (
	"math"
	"testing"
	"time"
)

func TestSortByScoreDescendingAndStable(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-3 * time.Hour)

	items := []Item{
		{ID: "low", Source: SourceGitHub, Stars: 10, CreatedAt: createdAt},
		{ID: "tie-a", Source: SourceGitHub, Stars: 100, CreatedAt: createdAt},
		{ID: "tie-b", Source: SourceGitHub, Stars: 100, CreatedAt: createdAt},
		{ID: "high", Source: SourceGitHub, Stars: 500, CreatedAt: createdAt},
	}

	SortByScore(items, now)

	wantOrder := []string{"high", "tie-a", "tie-b", "low"}
	for i, want := range wantOrder {
		if items[i].ID != want {
			t.Fatalf("position %d: got %s want %s", i, items[i].ID, want)
		}
	}
}

func TestBuildClustersEveryItemAssignedOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-2 * time.Hour)

	items := []Item{
		{ID: "a", Source: SourceGitHub, Stars: 300, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
		{ID: "b", Source: SourceHackerNews, Stars: 120, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
		{ID: "c", Source: SourceGitHub, Stars: 80, CreatedAt: createdAt, URL: "https://github.com/other/thing"},
	}
	SortByScore(items, now)

	clusters := BuildClusters(items, now)

	total := 0
	seen := map[string]int{}
	for _, cluster := range clusters {
		total++
		seen[cluster.Main.ID]++
		for _, related := range cluster.Related {
			total++
			seen[related.ID]++
		}
	}
	if total != len(items) {
		t.Fatalf("expected %d assignments, got %d", len(items), total)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("item %s assigned %d times", id, count)
		}
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
}

func TestBuildClustersHighestScoredItemLeads(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-2 * time.Hour)

	items := []Item{
		{ID: "repo", Source: SourceGitHub, Stars: 500, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
		{ID: "thread", Source: SourceReddit, Stars: 40, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
	}
	SortByScore(items, now)

	clusters := BuildClusters(items, now)
	if len(clusters) != 1 {
		t.Fatalf("expected one cluster, got %d", len(clusters))
	}
	if clusters[0].Main.ID != "repo" {
		t.Fatalf("expected the top-scored item to lead, got %s", clusters[0].Main.ID)
	}
}

func TestBuildClustersRelatedCredit(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-2 * time.Hour)

	main := Item{ID: "repo", Source: SourceGitHub, Stars: 500, CreatedAt: createdAt, URL: "https://github.com/acme/widget"}
	related := Item{ID: "thread", Source: SourceReddit, Stars: 40, CreatedAt: createdAt, URL: "https://github.com/acme/widget"}

	items := []Item{main, related}
	SortByScore(items, now)

	clusters := BuildClusters(items, now)
	if len(clusters) != 1 {
		t.Fatalf("expected one cluster, got %d", len(clusters))
	}

	want := Score(main, now) + Score(related, now)*relatedScoreCredit
	if math.Abs(clusters[0].Score-want) > 1e-9 {
		t.Fatalf("cluster score: got %f want %f", clusters[0].Score, want)
	}
}

func TestBuildClustersDistinctSourcesFirstSeenOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-2 * time.Hour)

	items := []Item{
		{ID: "repo", Source: SourceGitHub, Stars: 500, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
		{ID: "hn", Source: SourceHackerNews, Stars: 200, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
		{ID: "mirror", Source: SourceGitHub, Stars: 90, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
		{ID: "reddit", Source: SourceReddit, Stars: 10, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
	}
	SortByScore(items, now)

	clusters := BuildClusters(items, now)
	if len(clusters) != 1 {
		t.Fatalf("expected one cluster, got %d", len(clusters))
	}

	want := []Source{SourceGitHub, SourceHackerNews, SourceReddit}
	got := clusters[0].Sources
	if len(got) != len(want) {
		t.Fatalf("sources: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sources: got %v want %v", got, want)
		}
	}
}

func TestBuildClustersDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-2 * time.Hour)

	items := []Item{
		{ID: "a", Source: SourceGitHub, Stars: 300, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
		{ID: "b", Source: SourceHackerNews, Stars: 120, CreatedAt: createdAt, URL: "https://github.com/acme/widget"},
		{ID: "c", Source: SourceReddit, Stars: 80, CreatedAt: createdAt, URL: "https://example.com/post"},
	}
	SortByScore(items, now)

	first := BuildClusters(items, now)
	second := BuildClusters(items, now)

	if len(first) != len(second) {
		t.Fatalf("cluster counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Main.ID != second[i].Main.ID || first[i].Score != second[i].Score {
			t.Fatalf("cluster %d differs between runs", i)
		}
	}
}
