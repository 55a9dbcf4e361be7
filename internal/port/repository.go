package port

import (
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
)

// BookmarkRepository is the durable, per-owner bookmark cache store.
// Every key is scoped by owner; no operation may cross owner boundaries.
// Mutations for one owner are totally ordered by the implementation.
type BookmarkRepository interface {
	// GetByOwner returns all entries for an owner, newest cached first
	GetByOwner(ownerID string) ([]*domain.BookmarkEntry, error)

	// Get returns one entry, or domain.ErrNotFound
	Get(ownerID string, illustID int64) (*domain.BookmarkEntry, error)

	// IDsByOwner returns the illust IDs of all entries for an owner
	IDsByOwner(ownerID string) ([]int64, error)

	// Upsert inserts or merges entries. The merge overwrites mutable
	// metadata but never touches the deleted flag or the preload
	// bookkeeping; those change only through the dedicated operations.
	Upsert(entries []*domain.BookmarkEntry) error

	// MarkDeleted flags the given entries as remotely deleted
	MarkDeleted(ownerID string, illustIDs []int64) error

	// ClearDeleted removes the deleted flag from the given entries
	ClearDeleted(ownerID string, illustIDs []int64) error

	// DeletedCount returns the number of entries flagged deleted
	DeletedCount(ownerID string) (int, error)

	// SetPreloaded records a completed preload for one entry
	SetPreloaded(ownerID string, illustID int64, quality domain.Quality, allPages bool) error

	// SetArchiveURL records the resolved ugoira frame archive URL
	SetArchiveURL(ownerID string, illustID int64, archiveURL string) error

	// Remove deletes a single entry
	Remove(ownerID string, illustID int64) error

	// RemoveByOwner deletes every entry of an owner
	RemoveByOwner(ownerID string) error
}

// Store is the full durable store handle
type Store interface {
	BookmarkRepository

	Ping() error
	Close() error
}
