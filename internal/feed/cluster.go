package feed

import (
	"sort"
	"time"
)

// relatedScoreCredit is the damped credit a cluster earns for each
// corroborating item beyond its main one.
const relatedScoreCredit = 0.2

// SortByScore orders items by score descending, in place. The sort is
// stable so score ties keep the caller's ordering; BuildClusters relies
// on that for reproducible grouping.
func SortByScore(items []Item, now time.Time) {
	type scoredItem struct {
		item  Item
		score float64
	}

	scored := make([]scoredItem, len(items))
	for i, item := range items {
		scored[i] = scoredItem{item: item, score: Score(item, now)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	for i := range scored {
		items[i] = scored[i].item
	}
}

// BuildClusters partitions score-sorted items into clusters with a
// single greedy pass: the first unassigned item opens a cluster as its
// main item, and every later unassigned item related to it joins as a
// corroborating member. Each item lands in exactly one cluster. The
// cluster score is the main item's score plus a damped credit per
// related item; synergy boosting belongs to the consumer.
func BuildClusters(items []Item, now time.Time) []Cluster {
	clusters := make([]Cluster, 0, len(items))
	assigned := make([]bool, len(items))

	for i := range items {
		if assigned[i] {
			continue
		}
		assigned[i] = true

		cluster := Cluster{
			Main:  items[i],
			Score: Score(items[i], now),
		}

		for j := i + 1; j < len(items); j++ {
			if assigned[j] {
				continue
			}
			if !Related(items[i], items[j]) {
				continue
			}
			assigned[j] = true
			cluster.Related = append(cluster.Related, items[j])
			cluster.Score += Score(items[j], now) * relatedScoreCredit
		}

		cluster.Sources = distinctSources(cluster)
		clusters = append(clusters, cluster)
	}

	return clusters
}

// distinctSources lists the cluster's source tags in first-seen order.
func distinctSources(cluster Cluster) []Source {
	seen := make(map[Source]struct{}, 1+len(cluster.Related))
	sources := make([]Source, 0, 1+len(cluster.Related))

	add := func(source Source) {
		if _, ok := seen[source]; ok {
			return
		}
		seen[source] = struct{}{}
		sources = append(sources, source)
	}

	add(cluster.Main.Source)
	for _, item := range cluster.Related {
		add(item.Source)
	}
	return sources
}
