package feed

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

const (
	gravityOffsetHours  = 2.0
	gravityExponent     = 1.2
	velocityMaxAgeHours = 12.0
	velocityLookback    = 3 * time.Hour
	velocityGainFloor   = 0.10
	velocityMultiplier  = 1.5
	replicateRunDivisor = 100.0
	redditCommentWeight = 2.0
)

var commentCountPattern = regexp.MustCompile(`(?i)(\d+)\s+comments?\b`)

func sourceWeight(source Source) float64 {
	switch source {
	case SourceGitHub:
		return 1.8
	case SourceHuggingFace, SourceHackerNews:
		return 1.1
	case SourceReddit:
		return 0.8
	case SourceReplicate:
		return 0.6
	default:
		return 1.0
	}
}

// Score maps one item plus its popularity history to a relevance score.
// Deterministic for a fixed now, never fails: malformed fields clamp or
// default instead of erroring.
func Score(item Item, now time.Time) float64 {
	points := basePoints(item)
	hours := hoursSince(item.CreatedAt, now)

	effective := points / math.Pow(hours+gravityOffsetHours, gravityExponent)
	if effective < 0 {
		effective = 0
	}

	return math.Log10(effective+1) * sourceWeight(item.Source) * velocityBonus(item, hours, now) * 100
}

func basePoints(item Item) float64 {
	stars := float64(item.Stars)
	if stars < 0 {
		stars = 0
	}

	switch item.Source {
	case SourceReplicate:
		// run counters are orders of magnitude above star counts
		stars /= replicateRunDivisor
	case SourceReddit:
		stars += math.Log10(float64(commentCount(item))+1) * redditCommentWeight
	}
	return stars
}

// commentCount recovers a discussion count from the item description
// ("... 128 comments") when the source did not report it as a field.
func commentCount(item Item) int {
	match := commentCountPattern.FindStringSubmatch(item.Description)
	if len(match) < 2 {
		return 0
	}
	count, err := strconv.Atoi(match[1])
	if err != nil || count < 0 {
		return 0
	}
	return count
}

// hoursSince floors at zero; a zero CreatedAt counts as brand new.
func hoursSince(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

func velocityBonus(item Item, hoursAge float64, now time.Time) float64 {
	if hoursAge >= velocityMaxAgeHours {
		return 1.0
	}
	if len(item.History) < 2 {
		return 1.0
	}

	ref := velocityReference(item.History, now)
	if float64(item.Stars) > float64(ref.Stars)*(1+velocityGainFloor) {
		return velocityMultiplier
	}
	return 1.0
}

// velocityReference picks the snapshot closest to the lookback point
// among snapshots at least that old, else the oldest snapshot. With a
// sparse history the oldest entry can be newer than the lookback point;
// that tie-break is intentional and must not change.
func velocityReference(history []MetricSnapshot, now time.Time) MetricSnapshot {
	target := now.Add(-velocityLookback)

	best := -1
	var bestDelta time.Duration
	for i, snap := range history {
		if snap.At.After(target) {
			continue
		}
		delta := target.Sub(snap.At)
		if best < 0 || delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	if best >= 0 {
		return history[best]
	}

	oldest := history[0]
	for _, snap := range history[1:] {
		if snap.At.Before(oldest.At) {
			oldest = snap
		}
	}
	return oldest
}
