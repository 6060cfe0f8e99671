package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/digest"
	"horse.fit/pulse/internal/feed"
)

func sampleResult() *digest.Result {
	return &digest.Result{
		Clusters: []feed.Cluster{
			{
				DisplayName: "acme/widget",
				BestLink:    "https://github.com/acme/widget",
				Score:       512.5,
				Sources:     []feed.Source{feed.SourceGitHub, feed.SourceHackerNews},
			},
		},
		Content: digest.Narrative{Text: "today in widgets", PromptTokens: 5, CompletionTokens: 9},
	}
}

func TestWebhookPublish(t *testing.T) {
	t.Parallel()

	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := NewWebhook(server.URL)
	if err := sink.Publish(context.Background(), sampleResult()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if received.Narrative != "today in widgets" {
		t.Fatalf("unexpected narrative %q", received.Narrative)
	}
	if len(received.Entries) != 1 || received.Entries[0].Title != "acme/widget" {
		t.Fatalf("unexpected entries %+v", received.Entries)
	}
	if len(received.Entries[0].Sources) != 2 {
		t.Fatalf("expected 2 sources, got %v", received.Entries[0].Sources)
	}
}

func TestWebhookPublishFailureStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewWebhook(server.URL)
	if err := sink.Publish(context.Background(), sampleResult()); err == nil {
		t.Fatalf("expected status error")
	}
}

func TestWebhookRejectsNilResult(t *testing.T) {
	t.Parallel()

	sink := NewWebhook("http://127.0.0.1:1")
	if err := sink.Publish(context.Background(), nil); err == nil {
		t.Fatalf("expected nil-result error")
	}
}

func TestLogSinkPublish(t *testing.T) {
	t.Parallel()

	sink := LogSink{Logger: zerolog.Nop()}
	if err := sink.Publish(context.Background(), sampleResult()); err != nil {
		t.Fatalf("log sink publish failed: %v", err)
	}
	if err := sink.Publish(context.Background(), nil); err == nil {
		t.Fatalf("expected nil-result error")
	}
}
