package feed

import (
	"math"
	"testing"
	"time"
)

func TestScoreMoreStarsScoresHigher(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-6 * time.Hour)

	low := Item{Source: SourceGitHub, Stars: 50, CreatedAt: createdAt}
	high := Item{Source: SourceGitHub, Stars: 100, CreatedAt: createdAt}

	if Score(high, now) <= Score(low, now) {
		t.Fatalf("expected %d stars to outscore %d stars at equal age", high.Stars, low.Stars)
	}
}

func TestScoreOlderItemScoresLower(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := Item{Source: SourceGitHub, Stars: 200, CreatedAt: now.Add(-1 * time.Hour)}
	stale := Item{Source: SourceGitHub, Stars: 200, CreatedAt: now.Add(-72 * time.Hour)}

	if Score(stale, now) >= Score(fresh, now) {
		t.Fatalf("expected age decay: stale=%f fresh=%f", Score(stale, now), Score(fresh, now))
	}
}

func TestScoreGravityFormula(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := Item{Source: SourceGitHub, Stars: 100, CreatedAt: now.Add(-10 * time.Hour)}

	want := math.Log10(100/math.Pow(12, 1.2)+1) * 1.8 * 100
	got := Score(item, now)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("score mismatch: got %f want %f", got, want)
	}
}

func TestScoreNegativeStarsClampToZero(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := Item{Source: SourceGitHub, Stars: -50, CreatedAt: now.Add(-1 * time.Hour)}

	if got := Score(item, now); got != 0 {
		t.Fatalf("expected zero score for negative stars, got %f", got)
	}
}

func TestScoreMissingCreatedAtCountsAsNew(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	missing := Item{Source: SourceGitHub, Stars: 100}
	fresh := Item{Source: SourceGitHub, Stars: 100, CreatedAt: now}

	if Score(missing, now) != Score(fresh, now) {
		t.Fatalf("zero CreatedAt should score as brand new")
	}
}

func TestScoreFutureCreatedAtClampsToZeroAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	future := Item{Source: SourceGitHub, Stars: 100, CreatedAt: now.Add(2 * time.Hour)}
	fresh := Item{Source: SourceGitHub, Stars: 100, CreatedAt: now}

	if Score(future, now) != Score(fresh, now) {
		t.Fatalf("future CreatedAt should clamp to zero age")
	}
}

func TestScoreSourceWeights(t *testing.T) {
	t.Parallel()

	cases := []struct {
		source Source
		weight float64
	}{
		{SourceGitHub, 1.8},
		{SourceHuggingFace, 1.1},
		{SourceHackerNews, 1.1},
		{SourceReddit, 0.8},
		{SourceReplicate, 0.6},
		{Source("unknown"), 1.0},
	}
	for _, tc := range cases {
		if got := sourceWeight(tc.source); got != tc.weight {
			t.Fatalf("source %s weight: got %f want %f", tc.source, got, tc.weight)
		}
	}
}

func TestScoreReplicateRunsScaledDown(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-5 * time.Hour)

	runHost := Item{Source: SourceReplicate, Stars: 50_000, CreatedAt: createdAt}

	want := math.Log10(500/math.Pow(7, 1.2)+1) * 0.6 * 100
	got := Score(runHost, now)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("replicate scaling mismatch: got %f want %f", got, want)
	}
}

func TestScoreRedditCommentBonus(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.Add(-4 * time.Hour)

	plain := Item{Source: SourceReddit, Stars: 80, CreatedAt: createdAt}
	discussed := Item{
		Source:      SourceReddit,
		Stars:       80,
		CreatedAt:   createdAt,
		Description: "A new quantized model dropped, 99 comments so far",
	}

	if Score(discussed, now) <= Score(plain, now) {
		t.Fatalf("comment mentions should raise the score")
	}

	wantBase := 80 + math.Log10(100)*2.0
	if got := basePoints(discussed); math.Abs(got-wantBase) > 1e-9 {
		t.Fatalf("reddit base points: got %f want %f", got, wantBase)
	}
}

func TestCommentCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		description string
		want        int
	}{
		{"128 comments", 128},
		{"exactly 1 comment", 1},
		{"42 Comments and counting", 42},
		{"no discussion here", 0},
		{"commentary without a count", 0},
		{"", 0},
	}
	for _, tc := range cases {
		got := commentCount(Item{Description: tc.description})
		if got != tc.want {
			t.Fatalf("commentCount(%q): got %d want %d", tc.description, got, tc.want)
		}
	}
}

func TestVelocityBonusAppliesForFastGrowers(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := Item{
		Source:    SourceGitHub,
		Stars:     230,
		CreatedAt: now.Add(-6 * time.Hour),
		History: []MetricSnapshot{
			{At: now.Add(-5 * time.Hour), Stars: 200},
			{At: now.Add(-3 * time.Hour), Stars: 205},
			{At: now.Add(-1 * time.Hour), Stars: 228},
		},
	}

	if got := velocityBonus(item, 6, now); got != velocityMultiplier {
		t.Fatalf("expected velocity bonus %f, got %f", velocityMultiplier, got)
	}
}

func TestVelocityBonusRequiresRealGain(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := Item{
		Source:    SourceGitHub,
		Stars:     210,
		CreatedAt: now.Add(-6 * time.Hour),
		History: []MetricSnapshot{
			{At: now.Add(-5 * time.Hour), Stars: 200},
			{At: now.Add(-1 * time.Hour), Stars: 208},
		},
	}

	// 210 <= 200 * 1.10
	if got := velocityBonus(item, 6, now); got != 1.0 {
		t.Fatalf("5%% growth should not earn the bonus, got %f", got)
	}
}

func TestVelocityBonusSkippedForOldItems(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := Item{
		Source:    SourceGitHub,
		Stars:     500,
		CreatedAt: now.Add(-48 * time.Hour),
		History: []MetricSnapshot{
			{At: now.Add(-5 * time.Hour), Stars: 100},
			{At: now.Add(-4 * time.Hour), Stars: 120},
		},
	}

	if got := velocityBonus(item, 48, now); got != 1.0 {
		t.Fatalf("items past the age cutoff never earn the bonus, got %f", got)
	}
}

func TestVelocityBonusNeedsTwoSnapshots(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := Item{
		Source:    SourceGitHub,
		Stars:     500,
		CreatedAt: now.Add(-2 * time.Hour),
		History: []MetricSnapshot{
			{At: now.Add(-1 * time.Hour), Stars: 100},
		},
	}

	if got := velocityBonus(item, 2, now); got != 1.0 {
		t.Fatalf("a single snapshot cannot establish velocity, got %f", got)
	}
}

func TestVelocityReferencePicksClosestOldEnoughSnapshot(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	history := []MetricSnapshot{
		{At: now.Add(-6 * time.Hour), Stars: 100},
		{At: now.Add(-4 * time.Hour), Stars: 150},
		{At: now.Add(-1 * time.Hour), Stars: 190},
	}

	ref := velocityReference(history, now)
	if ref.Stars != 150 {
		t.Fatalf("expected the snapshot nearest the lookback point, got stars=%d", ref.Stars)
	}
}

func TestVelocityReferenceSparseHistoryFallsBackToOldest(t *testing.T) {
	t.Parallel()

	// every snapshot is newer than the lookback point
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	history := []MetricSnapshot{
		{At: now.Add(-30 * time.Minute), Stars: 180},
		{At: now.Add(-90 * time.Minute), Stars: 120},
		{At: now.Add(-10 * time.Minute), Stars: 195},
	}

	ref := velocityReference(history, now)
	if ref.Stars != 120 {
		t.Fatalf("expected oldest snapshot as fallback, got stars=%d", ref.Stars)
	}
}

func TestScoreDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	item := Item{
		Source:      SourceReddit,
		Stars:       77,
		CreatedAt:   now.Add(-9 * time.Hour),
		Description: "benchmarks inside, 33 comments",
		History: []MetricSnapshot{
			{At: now.Add(-8 * time.Hour), Stars: 40},
			{At: now.Add(-4 * time.Hour), Stars: 60},
		},
	}

	first := Score(item, now)
	for i := 0; i < 10; i++ {
		if got := Score(item, now); got != first {
			t.Fatalf("score is not deterministic: %f vs %f", got, first)
		}
	}
}
