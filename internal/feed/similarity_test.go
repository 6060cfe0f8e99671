package feed

import (
	"testing"
)

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	t.Parallel()

	v := []float64{0.5, 0.25, 0.8}
	got, ok := CosineSimilarity(v, v)
	if !ok {
		t.Fatalf("expected a defined similarity")
	}
	if got < 0.9999999 || got > 1.0000001 {
		t.Fatalf("identical vectors should have similarity 1, got %f", got)
	}
}

func TestCosineSimilarityUndefinedCases(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []float64
	}{
		{"both empty", nil, nil},
		{"one empty", []float64{1, 2}, nil},
		{"mismatched dimensions", []float64{1, 2}, []float64{1, 2, 3}},
		{"zero norm", []float64{0, 0, 0}, []float64{1, 2, 3}},
	}
	for _, tc := range cases {
		if _, ok := CosineSimilarity(tc.a, tc.b); ok {
			t.Fatalf("%s: expected undefined similarity", tc.name)
		}
	}
}

func TestRelatedByEmbedding(t *testing.T) {
	t.Parallel()

	a := Item{Embedding: []float64{1, 0, 0.05}}
	b := Item{Embedding: []float64{1, 0.02, 0.04}}
	c := Item{Embedding: []float64{0, 1, 0}}

	if !Related(a, b) {
		t.Fatalf("near-identical embeddings should be related")
	}
	if Related(a, c) {
		t.Fatalf("orthogonal embeddings should not be related")
	}
}

func TestRelatedIsSymmetric(t *testing.T) {
	t.Parallel()

	a := Item{Embedding: []float64{0.9, 0.1}, URL: "https://github.com/acme/widget"}
	b := Item{URL: "https://github.com/acme/widget.git"}

	if Related(a, b) != Related(b, a) {
		t.Fatalf("Related must be symmetric")
	}
	if !Related(a, b) {
		t.Fatalf("same repository URL should be related")
	}
}

func TestRelatedByURLNormalization(t *testing.T) {
	t.Parallel()

	a := Item{URL: "https://Example.com/Repo/"}
	b := Item{URL: "https://www.example.com/repo"}

	if !Related(a, b) {
		t.Fatalf("URLs differing only in case, www, and trailing slash should match")
	}
}

func TestRelatedDistinctPathsDoNotMatch(t *testing.T) {
	t.Parallel()

	a := Item{URL: "https://github.com/acme/widget"}
	b := Item{URL: "https://github.com/acme/gadget"}

	if Related(a, b) {
		t.Fatalf("different repositories must not be related")
	}
}

func TestRelatedMissingSignalsNeverMatch(t *testing.T) {
	t.Parallel()

	a := Item{Title: "one"}
	b := Item{Title: "two"}

	if Related(a, b) {
		t.Fatalf("items without embeddings or URLs must not be related")
	}
}

func TestURLIdentity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"https://github.com/acme/widget.git", "github.com/acme/widget", true},
		{"https://WWW.GitHub.com/Acme/Widget/", "github.com/acme/widget", true},
		{"https://example.com", "example.com", true},
		{"", "", false},
		{"not a url", "", false},
	}
	for _, tc := range cases {
		got, ok := urlIdentity(tc.raw)
		if ok != tc.ok {
			t.Fatalf("urlIdentity(%q): ok=%v want %v", tc.raw, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("urlIdentity(%q): got %q want %q", tc.raw, got, tc.want)
		}
	}
}
