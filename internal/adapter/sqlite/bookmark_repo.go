package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
)

const entryColumns = `id, owner_id, illust_id, restrict, title, author_id, author_name,
	thumbnail_url, page_count, is_ugoira, total_bookmarks, illust_data, archive_url,
	preloaded, preload_quality, all_pages_cached, deleted, cached_at, last_checked_at`

// GetByOwner returns all entries for an owner, newest cached first
func (s *Store) GetByOwner(ownerID string) ([]*domain.BookmarkEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM bookmark_cache
		WHERE owner_id = ?
		ORDER BY cached_at DESC, illust_id DESC`

	rows, err := s.db.Query(query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Get returns one entry, or domain.ErrNotFound
func (s *Store) Get(ownerID string, illustID int64) (*domain.BookmarkEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM bookmark_cache
		WHERE owner_id = ? AND illust_id = ?`

	entry, err := scanEntry(s.db.QueryRow(query, ownerID, illustID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// IDsByOwner returns the illust IDs of all entries for an owner
func (s *Store) IDsByOwner(ownerID string) ([]int64, error) {
	rows, err := s.db.Query(`SELECT illust_id FROM bookmark_cache WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Upsert inserts or merges entries in one transaction. The merge
// overwrites mutable metadata and bumps last_checked_at but leaves the
// deleted flag and preload bookkeeping alone.
func (s *Store) Upsert(entries []*domain.BookmarkEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO bookmark_cache (
			owner_id, illust_id, restrict, title, author_id, author_name,
			thumbnail_url, page_count, is_ugoira, total_bookmarks, illust_data,
			preload_quality, cached_at, last_checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, illust_id) DO UPDATE SET
			restrict = excluded.restrict,
			title = excluded.title,
			author_id = excluded.author_id,
			author_name = excluded.author_name,
			thumbnail_url = excluded.thumbnail_url,
			page_count = excluded.page_count,
			is_ugoira = excluded.is_ugoira,
			total_bookmarks = excluded.total_bookmarks,
			illust_data = excluded.illust_data,
			last_checked_at = excluded.last_checked_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		cachedAt := e.CachedAt
		if cachedAt.IsZero() {
			cachedAt = now
		}
		quality := e.PreloadQuality
		if !quality.Valid() {
			quality = domain.QualityLarge
		}

		if _, err := stmt.Exec(
			e.OwnerID, e.IllustID, e.Restrict, e.Title, e.AuthorID, e.AuthorName,
			e.ThumbnailURL, e.PageCount, e.IsUgoira, e.TotalBookmarks, e.IllustData,
			int(quality), cachedAt, now,
		); err != nil {
			return fmt.Errorf("upsert illust %d: %w", e.IllustID, err)
		}
	}

	return tx.Commit()
}

// MarkDeleted flags the given entries as remotely deleted
func (s *Store) MarkDeleted(ownerID string, illustIDs []int64) error {
	return s.setDeleted(ownerID, illustIDs, true)
}

// ClearDeleted removes the deleted flag from the given entries
func (s *Store) ClearDeleted(ownerID string, illustIDs []int64) error {
	return s.setDeleted(ownerID, illustIDs, false)
}

func (s *Store) setDeleted(ownerID string, illustIDs []int64, deleted bool) error {
	if len(illustIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(`
		UPDATE bookmark_cache SET
			deleted = ?, last_checked_at = ?
		WHERE owner_id = ? AND deleted = ? AND illust_id IN (%s)`,
		placeholders(len(illustIDs)))

	args := make([]interface{}, 0, len(illustIDs)+4)
	args = append(args, deleted, time.Now().UTC(), ownerID, !deleted)
	for _, id := range illustIDs {
		args = append(args, id)
	}

	_, err := s.db.Exec(query, args...)
	return err
}

// DeletedCount returns the number of entries flagged deleted
func (s *Store) DeletedCount(ownerID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM bookmark_cache WHERE owner_id = ? AND deleted = TRUE`,
		ownerID,
	).Scan(&count)
	return count, err
}

// SetPreloaded records a completed preload for one entry
func (s *Store) SetPreloaded(ownerID string, illustID int64, quality domain.Quality, allPages bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE bookmark_cache SET
			preloaded = TRUE, preload_quality = ?, all_pages_cached = ?
		WHERE owner_id = ? AND illust_id = ?`,
		int(quality), allPages, ownerID, illustID,
	)
	return err
}

// SetArchiveURL records the resolved ugoira frame archive URL
func (s *Store) SetArchiveURL(ownerID string, illustID int64, archiveURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE bookmark_cache SET
			archive_url = ?
		WHERE owner_id = ? AND illust_id = ?`,
		archiveURL, ownerID, illustID,
	)
	return err
}

// Remove deletes a single entry
func (s *Store) Remove(ownerID string, illustID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`DELETE FROM bookmark_cache WHERE owner_id = ? AND illust_id = ?`,
		ownerID, illustID,
	)
	return err
}

// RemoveByOwner deletes every entry of an owner
func (s *Store) RemoveByOwner(ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM bookmark_cache WHERE owner_id = ?`, ownerID)
	return err
}

// placeholders returns "?, ?, ..." with n markers
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*domain.BookmarkEntry, error) {
	e := &domain.BookmarkEntry{}
	var illustData []byte
	var quality int

	err := row.Scan(
		&e.ID, &e.OwnerID, &e.IllustID, &e.Restrict, &e.Title, &e.AuthorID, &e.AuthorName,
		&e.ThumbnailURL, &e.PageCount, &e.IsUgoira, &e.TotalBookmarks, &illustData, &e.ArchiveURL,
		&e.Preloaded, &quality, &e.AllPagesCached, &e.Deleted, &e.CachedAt, &e.LastCheckedAt,
	)
	if err != nil {
		return nil, err
	}

	e.IllustData = illustData
	e.PreloadQuality = domain.Quality(quality)
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]*domain.BookmarkEntry, error) {
	var entries []*domain.BookmarkEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
