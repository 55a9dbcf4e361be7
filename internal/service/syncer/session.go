package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/port"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/service/preloader"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/util/ratelimiter"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// session is the ephemeral state of one full sync run. It exists only
// for the lifetime of the run; outstanding work dies with it and can be
// re-enqueued by a future sync.
type session struct {
	userID   string
	ownerID  string
	settings domain.Settings

	config  *Config
	source  port.BookmarkSource
	ugoira  port.UgoiraSource
	repo    port.BookmarkRepository
	pool    *preloader.Pool
	hub     *stateHub
	limiter *ratelimiter.Limiter
	logger  *zap.Logger

	// accumulated remote view of the bookmark list
	items     []port.BookmarkItem
	remoteIDs map[int64]struct{}
}

func (s *Service) newSession(userID, ownerID string, settings domain.Settings) *session {
	return &session{
		userID:    userID,
		ownerID:   ownerID,
		settings:  settings,
		config:    s.config,
		source:    s.source,
		ugoira:    s.ugoira,
		repo:      s.repo,
		pool:      s.pool,
		hub:       s.hub,
		limiter:   ratelimiter.New(s.config.PageInterval),
		remoteIDs: make(map[int64]struct{}),
		logger: s.logger.With(
			zap.String("session_id", uuid.NewString()),
			zap.String("owner_id", ownerID)),
	}
}

// run drives the session through its phases. The phase order is a
// strict total order: fetching → detecting → preloading → completed,
// with failed as the only other terminal state. Entries upserted before
// a failure stay in the store; the operation favors partial progress
// over all-or-nothing atomicity.
func (sess *session) run(ctx context.Context) {
	start := time.Now()
	sess.logger.Info("full sync started", zap.String("user_id", sess.userID))

	if err := sess.fetch(ctx); err != nil {
		sess.fail(err)
		return
	}

	if err := sess.detect(); err != nil {
		sess.fail(err)
		return
	}

	sess.preload(ctx)

	sess.hub.set(sess.ownerID, domain.SyncCompleted())
	sess.logger.Info("full sync completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("fetched", len(sess.items)))
}

func (sess *session) fail(err error) {
	sess.hub.set(sess.ownerID, domain.SyncFailed(err.Error()))
	sess.logger.Error("full sync failed", zap.Error(err))
}

// fetch pages through the remote bookmark list, one restrict class at a
// time. Paging is inherently sequential: each page's cursor comes from
// the prior response. Every page is upserted immediately so a later
// failure keeps the pages already fetched.
func (sess *session) fetch(ctx context.Context) error {
	sess.hub.set(sess.ownerID, domain.SyncFetching(0))

	count := 0
	for _, restrict := range sess.config.Restricts {
		page, err := sess.source.ListBookmarks(ctx, sess.userID, restrict)
		for {
			if err != nil {
				return fmt.Errorf("list bookmarks (%s): %w", restrict, err)
			}

			if err := sess.commitPage(page, restrict); err != nil {
				return err
			}
			count += len(page.Items)
			sess.hub.set(sess.ownerID, domain.SyncFetching(count))

			sess.logger.Debug("fetched bookmark page",
				zap.String("restrict", restrict),
				zap.Int("items", len(page.Items)),
				zap.Int("total", count))

			if page.NextURL == "" {
				break
			}
			if err := sess.limiter.Wait(ctx); err != nil {
				return err
			}
			page, err = sess.source.ListBookmarksNext(ctx, page.NextURL)
		}
	}

	return nil
}

// commitPage accumulates one listing page and upserts its entries
func (sess *session) commitPage(page *port.BookmarkPage, restrict string) error {
	entries := make([]*domain.BookmarkEntry, 0, len(page.Items))
	for i := range page.Items {
		item := &page.Items[i]
		sess.remoteIDs[item.ID] = struct{}{}
		sess.items = append(sess.items, *item)
		entries = append(entries, entryFromItem(item, sess.ownerID, restrict))
	}

	if err := sess.repo.Upsert(entries); err != nil {
		return fmt.Errorf("upsert bookmark page: %w", err)
	}
	return nil
}

// entryFromItem builds a store entry from a listing item, including the
// raw JSON snapshot used later for offline URL derivation
func entryFromItem(item *port.BookmarkItem, ownerID, restrict string) *domain.BookmarkEntry {
	if item.BookmarkRestrict != "" {
		restrict = item.BookmarkRestrict
	}

	// Best effort: a snapshot that fails to marshal just disables
	// offline URL derivation for this entry.
	data, _ := json.Marshal(item)

	pageCount := item.PageCount
	if pageCount < 1 {
		pageCount = 1
	}

	return &domain.BookmarkEntry{
		IllustID:       item.ID,
		OwnerID:        ownerID,
		Restrict:       restrict,
		Title:          item.Title,
		AuthorID:       item.User.ID,
		AuthorName:     item.User.Name,
		ThumbnailURL:   item.ImageURLs.Medium,
		PageCount:      pageCount,
		IsUgoira:       item.IsUgoira(),
		TotalBookmarks: item.TotalBookmarks,
		IllustData:     data,
	}
}

// detect reconciles the store against the remote ID set: entries gone
// from the remote list are flagged deleted, and previously flagged
// entries that reappeared get the flag cleared. Only this phase ever
// writes the deleted flag.
func (sess *session) detect() error {
	sess.hub.set(sess.ownerID, domain.SyncDetecting())

	localIDs, err := sess.repo.IDsByOwner(sess.ownerID)
	if err != nil {
		return fmt.Errorf("load local ids: %w", err)
	}

	var toDelete, present []int64
	for _, id := range localIDs {
		if _, ok := sess.remoteIDs[id]; ok {
			present = append(present, id)
		} else {
			toDelete = append(toDelete, id)
		}
	}

	if len(toDelete) > 0 {
		if err := sess.repo.MarkDeleted(sess.ownerID, toDelete); err != nil {
			return fmt.Errorf("mark deleted: %w", err)
		}
	}
	if len(present) > 0 {
		if err := sess.repo.ClearDeleted(sess.ownerID, present); err != nil {
			return fmt.Errorf("clear deleted: %w", err)
		}
	}

	sess.logger.Info("deletion detection finished",
		zap.Int("local", len(localIDs)),
		zap.Int("remote", len(sess.remoteIDs)),
		zap.Int("marked_deleted", len(toDelete)))
	return nil
}

// preload warms the image cache for the fetched entries. Item failures
// are absorbed by the pool; nothing in this phase can fail the session.
func (sess *session) preload(ctx context.Context) {
	if !sess.settings.AutoPreload {
		sess.logger.Debug("auto preload disabled, skipping")
		return
	}

	queue, perEntry := sess.buildQueue(ctx)
	if len(queue) == 0 {
		return
	}

	sess.hub.set(sess.ownerID, domain.SyncPreloading(0, len(queue)))

	entryFailed := make(map[int64]bool)
	stats := sess.pool.Run(ctx, queue, func(done, total int, res preloader.Result) {
		sess.hub.set(sess.ownerID, domain.SyncPreloading(done, total))

		id := res.Item.IllustID
		if res.Err != nil {
			entryFailed[id] = true
		}
		perEntry[id]--
		if perEntry[id] == 0 && !entryFailed[id] {
			if err := sess.repo.SetPreloaded(sess.ownerID, id, sess.settings.Quality, sess.settings.AllPages); err != nil {
				sess.logger.Warn("failed to record preload state",
					zap.Int64("illust_id", id),
					zap.Error(err))
			}
		}
	})

	sess.logger.Info("preload finished",
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("discarded", stats.Discarded))
}

// buildQueue derives the (entry × variant) work queue from the fetched
// items and the quality settings. Returns the queue and the number of
// queued variants per illust.
func (sess *session) buildQueue(ctx context.Context) ([]preloader.Item, map[int64]int) {
	var queue []preloader.Item
	perEntry := make(map[int64]int)

	for i := range sess.items {
		item := &sess.items[i]
		urls := item.VariantURLs(sess.settings.Quality, sess.settings.AllPages)

		if sess.settings.UgoiraFrames && item.IsUgoira() && sess.ugoira != nil {
			archiveURL, err := sess.ugoira.UgoiraArchiveURL(ctx, item.ID)
			if err != nil {
				sess.logger.Warn("failed to resolve ugoira archive",
					zap.Int64("illust_id", item.ID),
					zap.Error(err))
			} else {
				// The archive URL is not in the listing snapshot, so
				// record it on the entry or the cached archive would be
				// unreachable for owner-scoped purge and size accounting.
				if err := sess.repo.SetArchiveURL(sess.ownerID, item.ID, archiveURL); err != nil {
					sess.logger.Warn("failed to record archive url",
						zap.Int64("illust_id", item.ID),
						zap.Error(err))
				}
				urls = append(urls, archiveURL)
			}
		}

		for _, u := range urls {
			queue = append(queue, preloader.Item{
				OwnerID:  sess.ownerID,
				IllustID: item.ID,
				URL:      u,
			})
			perEntry[item.ID]++
		}
	}

	return queue, perEntry
}
