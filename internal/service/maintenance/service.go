package maintenance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/port"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/service/syncer"
	"go.uber.org/zap"
)

// Service owns the cache maintenance operations: clearing the image
// cache, purging an owner's data entirely, and size accounting. Purges
// of owner data take the owner's sync lock so they cannot race an
// in-flight session.
type Service struct {
	repo   port.BookmarkRepository
	cache  port.ImageCache
	locks  *syncer.OwnerLocks
	logger *zap.Logger
}

// New creates a new maintenance Service. locks must be the same
// registry the sync orchestrator uses.
func New(repo port.BookmarkRepository, cache port.ImageCache, locks *syncer.OwnerLocks, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		locks:  locks,
		logger: logger,
	}
}

// ClearImageCache purges the image cache's memory and disk tiers. It
// never touches the metadata store, is idempotent, and is safe to run
// while a sync is in progress: it affects image bytes, not entry
// metadata.
func (s *Service) ClearImageCache(ctx context.Context) error {
	s.cache.ClearMemory()
	if err := s.cache.ClearDisk(); err != nil {
		return fmt.Errorf("clear disk cache: %w", err)
	}

	s.logger.Info("image cache cleared")
	return nil
}

// ClearAllCache purges the owner's metadata entries, deletion flags,
// and associated image bytes. It blocks until any active sync session
// for the owner has finished, and returns only after the deletion is
// durable.
func (s *Service) ClearAllCache(ctx context.Context, ownerID string) error {
	if err := s.locks.Acquire(ctx, ownerID); err != nil {
		return err
	}
	defer s.locks.Release(ownerID)

	urls, err := s.ownerImageURLs(ownerID)
	if err != nil {
		return fmt.Errorf("collect owner image urls: %w", err)
	}

	if err := s.cache.Remove(urls); err != nil {
		return fmt.Errorf("remove owner images: %w", err)
	}
	if err := s.repo.RemoveByOwner(ownerID); err != nil {
		return fmt.Errorf("remove owner entries: %w", err)
	}

	s.logger.Info("owner cache cleared",
		zap.String("owner_id", ownerID),
		zap.Int("image_urls", len(urls)))
	return nil
}

// RemoveEntry purges a single entry and its image bytes. Takes the
// owner's sync lock like ClearAllCache.
func (s *Service) RemoveEntry(ctx context.Context, ownerID string, illustID int64) error {
	if err := s.locks.Acquire(ctx, ownerID); err != nil {
		return err
	}
	defer s.locks.Release(ownerID)

	entry, err := s.repo.Get(ownerID, illustID)
	if err != nil {
		return err
	}

	if err := s.cache.Remove(entryImageURLs(entry)); err != nil {
		return fmt.Errorf("remove entry images: %w", err)
	}
	return s.repo.Remove(ownerID, illustID)
}

// CalculateCacheSize returns the on-disk byte size of the cached images
// belonging to the owner's known entries. It takes no locks, so the
// result may be slightly stale while a sync or preload is writing.
func (s *Service) CalculateCacheSize(ownerID string) (int64, error) {
	urls, err := s.ownerImageURLs(ownerID)
	if err != nil {
		return 0, fmt.Errorf("collect owner image urls: %w", err)
	}
	return s.cache.SizeBytes(urls)
}

// TotalCacheSize returns the on-disk byte size of the whole image
// cache, across all owners.
func (s *Service) TotalCacheSize() (int64, error) {
	return s.cache.TotalSizeBytes()
}

// ownerImageURLs derives every image URL that may have been cached for
// the owner's entries.
func (s *Service) ownerImageURLs(ownerID string) ([]string, error) {
	entries, err := s.repo.GetByOwner(ownerID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, entry := range entries {
		for _, u := range entryImageURLs(entry) {
			add(u)
		}
	}
	return urls, nil
}

// entryImageURLs expands one entry into its candidate image URLs: the
// thumbnail column, every variant in the listing snapshot, and the
// resolved ugoira frame archive if one was recorded.
func entryImageURLs(entry *domain.BookmarkEntry) []string {
	urls := []string{}
	if entry.ThumbnailURL != "" {
		urls = append(urls, entry.ThumbnailURL)
	}

	if len(entry.IllustData) > 0 {
		var item port.BookmarkItem
		if err := json.Unmarshal(entry.IllustData, &item); err == nil {
			urls = append(urls, item.AllVariantURLs()...)
		}
	}

	if entry.ArchiveURL != "" {
		urls = append(urls, entry.ArchiveURL)
	}
	return urls
}
