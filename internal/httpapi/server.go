package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/digest"
	"horse.fit/pulse/internal/feed"
	"horse.fit/pulse/internal/globaltime"
	"horse.fit/pulse/internal/notify"
)

const digestRequestTimeout = 2 * time.Minute

type Options struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Rebuilder is the slice of the scheduler the API needs.
type Rebuilder interface {
	TriggerRebuild(ctx context.Context) error
	TriggerRebuildAsync()
}

// Curator runs a digest pass on demand.
type Curator interface {
	Curate(ctx context.Context, force bool) (*digest.Result, error)
}

type Server struct {
	cache     *feed.Cache
	rebuilder Rebuilder
	curator   Curator
	sink      notify.Sink
	logger    zerolog.Logger
	opts      Options
}

type feedEntry struct {
	Title     string            `json:"title"`
	Link      string            `json:"link,omitempty"`
	Score     float64           `json:"score"`
	Sources   []string          `json:"sources"`
	SpottedOn []feed.Provenance `json:"spotted_on,omitempty"`
	Related   int               `json:"related"`
	PostedAt  *time.Time        `json:"posted_at,omitempty"`
}

func NewServer(cache *feed.Cache, rebuilder Rebuilder, curator Curator, sink notify.Sink, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		cache:     cache,
		rebuilder: rebuilder,
		curator:   curator,
		sink:      sink,
		logger:    logger,
		opts: Options{
			Host:            host,
			Port:            port,
			AllowedOrigins:  opts.AllowedOrigins,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/feed", s.handleFeed)
	api.POST("/rebuild", s.handleRebuild)
	api.POST("/digest", s.handleDigest)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("pulse api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("pulse api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	data := map[string]any{
		"service": "pulse",
		"time":    globaltime.UTC(),
	}
	if snapshot, ok := s.cache.Get(); ok {
		data["feed_built_at"] = snapshot.BuiltAt
		data["feed_clusters"] = len(snapshot.Clusters)
	}
	return success(c, data)
}

// handleFeed serves the cached snapshot. A cold cache answers 202 and
// kicks off a background rebuild so a later request can succeed.
func (s *Server) handleFeed(c echo.Context) error {
	snapshot, ok := s.cache.Get()
	if !ok {
		if s.rebuilder != nil {
			s.rebuilder.TriggerRebuildAsync()
		}
		return successWithStatus(c, http.StatusAccepted, map[string]any{
			"status": "initializing",
		})
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), len(snapshot.Clusters), 1, 500)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	clusters := snapshot.Clusters
	if limit < len(clusters) {
		clusters = clusters[:limit]
	}

	entries := make([]feedEntry, 0, len(clusters))
	for _, cluster := range clusters {
		entry := feedEntry{
			Title:     cluster.DisplayName,
			Link:      cluster.BestLink,
			Score:     cluster.Score,
			Sources:   sourceNames(cluster.Sources),
			SpottedOn: cluster.SpottedOn,
			Related:   len(cluster.Related),
		}
		if !cluster.Main.CreatedAt.IsZero() {
			postedAt := cluster.Main.CreatedAt
			entry.PostedAt = &postedAt
		}
		entries = append(entries, entry)
	}

	return success(c, map[string]any{
		"built_at": snapshot.BuiltAt,
		"entries":  entries,
	})
}

func (s *Server) handleRebuild(c echo.Context) error {
	if s.rebuilder == nil {
		return internalError(c, "Rebuild is not available")
	}

	if err := s.rebuilder.TriggerRebuild(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("manual rebuild failed")
		return internalError(c, "Rebuild failed")
	}

	data := map[string]any{"rebuilt": true}
	if snapshot, ok := s.cache.Get(); ok {
		data["built_at"] = snapshot.BuiltAt
		data["clusters"] = len(snapshot.Clusters)
	}
	return success(c, data)
}

func (s *Server) handleDigest(c echo.Context) error {
	if s.curator == nil {
		return internalError(c, "Digest is not available")
	}

	force := false
	if raw := strings.TrimSpace(c.QueryParam("force")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return failValidation(c, map[string]string{"force": "must be a boolean"})
		}
		force = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), digestRequestTimeout)
	defer cancel()

	result, err := s.curator.Curate(ctx, force)
	if err != nil {
		if errors.Is(err, digest.ErrNoEligibleClusters) {
			return fail(c, http.StatusConflict, "No eligible clusters for a digest", nil)
		}
		s.logger.Error().Err(err).Bool("force", force).Msg("digest curation failed")
		return internalError(c, "Digest curation failed")
	}

	if s.sink != nil {
		if err := s.sink.Publish(ctx, result); err != nil {
			s.logger.Error().Err(err).Msg("digest publish failed")
			return internalError(c, "Digest publish failed")
		}
	}

	return success(c, map[string]any{
		"clusters":          len(result.Clusters),
		"narrative":         result.Content.Text,
		"prompt_tokens":     result.Content.PromptTokens,
		"completion_tokens": result.Content.CompletionTokens,
		"force":             force,
	})
}

func sourceNames(sources []feed.Source) []string {
	names := make([]string, 0, len(sources))
	for _, source := range sources {
		names = append(names, string(source))
	}
	return names
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
