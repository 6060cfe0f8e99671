package feed

import (
	"math"
	"net/url"
	"strings"
)

// similarityThreshold is the cosine bound above which two embeddings
// are treated as describing the same story.
const similarityThreshold = 0.85

// Related reports whether two items refer to the same underlying
// story: either their embeddings are close enough, or their URLs
// normalize to the same identity. Symmetric in its arguments.
func Related(a, b Item) bool {
	if cos, ok := CosineSimilarity(a.Embedding, b.Embedding); ok && cos > similarityThreshold {
		return true
	}

	idA, okA := urlIdentity(a.URL)
	idB, okB := urlIdentity(b.URL)
	return okA && okB && idA == idB
}

// CosineSimilarity returns dot(a,b)/(|a|*|b|). The second return is
// false when the value is undefined: mismatched dimensions, missing
// vectors, or a zero-norm vector.
func CosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// urlIdentity reduces a URL to the identity used for duplicate
// detection: lowercase host without a leading www., path without a
// trailing slash or .git suffix. Hosting platforms treat paths
// case-insensitively, so the whole identity is lowercased.
func urlIdentity(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")

	path := strings.ToLower(parsed.EscapedPath())
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, ".git")

	return host + path, true
}
