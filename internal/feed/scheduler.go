package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRebuildInterval re-runs the feed rebuild over already
	// persisted items.
	DefaultRebuildInterval = 15 * time.Minute
	// DefaultRefreshInterval first re-ingests from the external
	// collaborators, then rebuilds.
	DefaultRefreshInterval = 60 * time.Minute
)

// Refresher re-ingests data from external collaborators before a
// rebuild. Implemented by the ingest service.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler drives the recurring rebuild and refresh cycles. All
// rebuilds, timed or manual, are serialized through a single-flight
// group so overlapping triggers coalesce instead of racing.
type Scheduler struct {
	rebuilder *Rebuilder
	refresher Refresher
	logger    zerolog.Logger

	rebuildEvery time.Duration
	refreshEvery time.Duration

	group singleflight.Group
}

func NewScheduler(rebuilder *Rebuilder, refresher Refresher, logger zerolog.Logger, rebuildEvery, refreshEvery time.Duration) *Scheduler {
	if rebuildEvery <= 0 {
		rebuildEvery = DefaultRebuildInterval
	}
	if refreshEvery <= 0 {
		refreshEvery = DefaultRefreshInterval
	}
	return &Scheduler{
		rebuilder:    rebuilder,
		refresher:    refresher,
		logger:       logger,
		rebuildEvery: rebuildEvery,
		refreshEvery: refreshEvery,
	}
}

// Start runs the timer loop until the context is canceled. A failed
// cycle only logs; the next tick is independent and the cache keeps its
// previous snapshot.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	rebuildTicker := time.NewTicker(s.rebuildEvery)
	defer rebuildTicker.Stop()
	refreshTicker := time.NewTicker(s.refreshEvery)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("feed scheduler stopped")
			return
		case <-rebuildTicker.C:
			if err := s.TriggerRebuild(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled rebuild failed; keeping previous snapshot")
			}
		case <-refreshTicker.C:
			if err := s.refreshAndRebuild(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled refresh failed; keeping previous snapshot")
			}
		}
	}
}

// TriggerRebuild runs one rebuild, coalescing with any rebuild already
// in flight.
func (s *Scheduler) TriggerRebuild(ctx context.Context) error {
	if s == nil || s.rebuilder == nil {
		return fmt.Errorf("scheduler is not initialized")
	}
	_, err, _ := s.group.Do("rebuild", func() (any, error) {
		return s.rebuilder.Rebuild(ctx)
	})
	return err
}

// TriggerRebuildAsync fires a rebuild without blocking the caller, used
// by readers that observe an empty cache at cold start. Coalescing
// keeps a thundering herd of cold readers down to one rebuild.
func (s *Scheduler) TriggerRebuildAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.TriggerRebuild(ctx); err != nil {
			s.logger.Error().Err(err).Msg("cold-start rebuild failed")
		}
	}()
}

func (s *Scheduler) refreshAndRebuild(ctx context.Context) error {
	if s.refresher != nil {
		if err := s.refresher.Refresh(ctx); err != nil {
			// stale items still rebuild into a usable feed
			s.logger.Error().Err(err).Msg("collaborator refresh failed; rebuilding from persisted items")
		}
	}
	return s.TriggerRebuild(ctx)
}
