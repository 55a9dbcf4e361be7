package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/port"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/service/preloader"
	"go.uber.org/zap"
)

// Config contains sync orchestrator configuration
type Config struct {
	// PageInterval paces the cursor-driven listing calls
	PageInterval time.Duration

	// Restricts are the bookmark visibility classes fetched per
	// session, in order
	Restricts []string
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{
		PageInterval: 500 * time.Millisecond,
		Restricts:    []string{"public", "private"},
	}
}

// Service orchestrates full bookmark syncs. For each owner it runs at
// most one session at a time, exposes the session's observable state,
// and serves the cached-bookmark read paths.
type Service struct {
	config *Config
	source port.BookmarkSource
	ugoira port.UgoiraSource // optional; nil disables ugoira preload
	repo   port.BookmarkRepository
	pool   *preloader.Pool
	locks  *OwnerLocks
	hub    *stateHub
	logger *zap.Logger

	wg sync.WaitGroup
}

// New creates a new sync Service. The lock registry is shared with the
// maintenance service so cache purges cannot race an active session.
func New(cfg *Config, source port.BookmarkSource, ugoira port.UgoiraSource, repo port.BookmarkRepository, pool *preloader.Pool, locks *OwnerLocks, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PageInterval <= 0 {
		cfg.PageInterval = 500 * time.Millisecond
	}
	if len(cfg.Restricts) == 0 {
		cfg.Restricts = []string{"public", "private"}
	}
	if locks == nil {
		locks = NewOwnerLocks()
	}

	return &Service{
		config: cfg,
		source: source,
		ugoira: ugoira,
		repo:   repo,
		pool:   pool,
		locks:  locks,
		hub:    newStateHub(),
		logger: logger,
	}
}

// State returns the owner's current sync state
func (s *Service) State(ownerID string) domain.SyncState {
	return s.hub.get(ownerID)
}

// Subscribe registers a state listener for an owner
func (s *Service) Subscribe(ownerID string) (<-chan domain.SyncState, func()) {
	return s.hub.subscribe(ownerID)
}

// PerformFullSync starts an asynchronous full sync session for the
// owner and returns the current observable state. A call while a
// session is already active is a no-op that returns the live state;
// a duplicate sync would not improve freshness and would only double
// the network cost.
func (s *Service) PerformFullSync(ctx context.Context, userID, ownerID string, settings domain.Settings) domain.SyncState {
	if !settings.CacheEnabled {
		s.logger.Debug("bookmark cache disabled, sync skipped",
			zap.String("owner_id", ownerID))
		return s.hub.get(ownerID)
	}

	if !s.locks.TryAcquire(ownerID) {
		s.logger.Debug("sync already in progress",
			zap.String("owner_id", ownerID))
		return s.hub.get(ownerID)
	}

	sess := s.newSession(userID, ownerID, settings)
	s.hub.set(ownerID, domain.SyncFetching(0))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.locks.Release(ownerID)
		sess.run(ctx)
	}()

	return s.hub.get(ownerID)
}

// Wait blocks until every in-flight session has finished. Used for
// graceful shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

// LoadCachedBookmarks returns the owner's cached entries immediately,
// independent of sync activity. A store read failure degrades to an
// empty result so the UI can treat it as a cold start.
func (s *Service) LoadCachedBookmarks(ownerID string) []*domain.BookmarkEntry {
	entries, err := s.repo.GetByOwner(ownerID)
	if err != nil {
		s.logger.Error("failed to load cached bookmarks",
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return nil
	}
	return entries
}

// DeletedCount returns the number of the owner's entries flagged as
// remotely deleted
func (s *Service) DeletedCount(ownerID string) int {
	count, err := s.repo.DeletedCount(ownerID)
	if err != nil {
		s.logger.Error("failed to count deleted bookmarks",
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return 0
	}
	return count
}
