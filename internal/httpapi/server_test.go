package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/digest"
	"horse.fit/pulse/internal/feed"
	"horse.fit/pulse/internal/notify"
)

type stubRebuilder struct {
	syncCalls  int
	asyncCalls atomic.Int32
	err        error
}

func (r *stubRebuilder) TriggerRebuild(context.Context) error {
	r.syncCalls++
	return r.err
}

func (r *stubRebuilder) TriggerRebuildAsync() {
	r.asyncCalls.Add(1)
}

type stubCurator struct {
	result *digest.Result
	err    error
	force  bool
}

func (c *stubCurator) Curate(_ context.Context, force bool) (*digest.Result, error) {
	c.force = force
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

type stubSink struct {
	published int
	err       error
}

func (s *stubSink) Publish(context.Context, *digest.Result) error {
	s.published++
	return s.err
}

func newTestServer(cache *feed.Cache, rebuilder Rebuilder, curator Curator, sink notify.Sink) *Server {
	return NewServer(cache, rebuilder, curator, sink, zerolog.Nop(), Options{})
}

func doRequest(t *testing.T, handler echo.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func decodeJSend(t *testing.T, rec *httptest.ResponseRecorder) jsendResponse {
	t.Helper()

	var resp jsendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHandleFeedColdCacheReturnsAccepted(t *testing.T) {
	t.Parallel()

	rebuilder := &stubRebuilder{}
	server := newTestServer(feed.NewCache(), rebuilder, nil, nil)

	rec := doRequest(t, server.handleFeed, http.MethodGet, "/api/v1/feed")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if rebuilder.asyncCalls.Load() != 1 {
		t.Fatalf("cold read should kick off a background rebuild")
	}
}

func TestHandleFeedServesSnapshot(t *testing.T) {
	t.Parallel()

	cache := feed.NewCache()
	cache.Set(&feed.Snapshot{
		BuiltAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Clusters: []feed.Cluster{
			{
				DisplayName: "acme/widget",
				BestLink:    "https://github.com/acme/widget",
				Score:       321.5,
				Sources:     []feed.Source{feed.SourceGitHub},
			},
		},
	})
	server := newTestServer(cache, &stubRebuilder{}, nil, nil)

	rec := doRequest(t, server.handleFeed, http.MethodGet, "/api/v1/feed")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeJSend(t, rec)
	if resp.Status != "success" {
		t.Fatalf("expected success envelope, got %s", resp.Status)
	}
}

func TestHandleFeedLimitValidation(t *testing.T) {
	t.Parallel()

	cache := feed.NewCache()
	cache.Set(&feed.Snapshot{Clusters: []feed.Cluster{{DisplayName: "a"}, {DisplayName: "b"}}})
	server := newTestServer(cache, &stubRebuilder{}, nil, nil)

	rec := doRequest(t, server.handleFeed, http.MethodGet, "/api/v1/feed?limit=junk")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad limit, got %d", rec.Code)
	}

	rec = doRequest(t, server.handleFeed, http.MethodGet, "/api/v1/feed?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data struct {
			Entries []feedEntry `json:"entries"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data.Entries) != 1 {
		t.Fatalf("expected the limit applied, got %d entries", len(body.Data.Entries))
	}
}

func TestHandleRebuild(t *testing.T) {
	t.Parallel()

	rebuilder := &stubRebuilder{}
	server := newTestServer(feed.NewCache(), rebuilder, nil, nil)

	rec := doRequest(t, server.handleRebuild, http.MethodPost, "/api/v1/rebuild")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rebuilder.syncCalls != 1 {
		t.Fatalf("expected one synchronous rebuild, got %d", rebuilder.syncCalls)
	}
}

func TestHandleRebuildFailure(t *testing.T) {
	t.Parallel()

	rebuilder := &stubRebuilder{err: errors.New("database gone")}
	server := newTestServer(feed.NewCache(), rebuilder, nil, nil)

	rec := doRequest(t, server.handleRebuild, http.MethodPost, "/api/v1/rebuild")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHandleDigestForceFlag(t *testing.T) {
	t.Parallel()

	curator := &stubCurator{result: &digest.Result{Content: digest.Narrative{Text: "ok"}}}
	sink := &stubSink{}
	server := newTestServer(feed.NewCache(), &stubRebuilder{}, curator, sink)

	rec := doRequest(t, server.handleDigest, http.MethodPost, "/api/v1/digest?force=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !curator.force {
		t.Fatalf("force query parameter should reach the curator")
	}
	if sink.published != 1 {
		t.Fatalf("expected one publish, got %d", sink.published)
	}
}

func TestHandleDigestInvalidForce(t *testing.T) {
	t.Parallel()

	server := newTestServer(feed.NewCache(), &stubRebuilder{}, &stubCurator{}, &stubSink{})

	rec := doRequest(t, server.handleDigest, http.MethodPost, "/api/v1/digest?force=maybe")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleDigestNoEligibleClusters(t *testing.T) {
	t.Parallel()

	curator := &stubCurator{err: digest.ErrNoEligibleClusters}
	server := newTestServer(feed.NewCache(), &stubRebuilder{}, curator, &stubSink{})

	rec := doRequest(t, server.handleDigest, http.MethodPost, "/api/v1/digest")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleDigestPublishFailure(t *testing.T) {
	t.Parallel()

	curator := &stubCurator{result: &digest.Result{Content: digest.Narrative{Text: "ok"}}}
	sink := &stubSink{err: errors.New("webhook down")}
	server := newTestServer(feed.NewCache(), &stubRebuilder{}, curator, sink)

	rec := doRequest(t, server.handleDigest, http.MethodPost, "/api/v1/digest")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHandleHealthIncludesSnapshotInfo(t *testing.T) {
	t.Parallel()

	cache := feed.NewCache()
	cache.Set(&feed.Snapshot{
		BuiltAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Clusters: []feed.Cluster{{DisplayName: "acme/widget"}},
	})
	server := newTestServer(cache, &stubRebuilder{}, nil, nil)

	rec := doRequest(t, server.handleHealth, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data["feed_clusters"] != float64(1) {
		t.Fatalf("expected cluster count in health data, got %v", body.Data["feed_clusters"])
	}
}
