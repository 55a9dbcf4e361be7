package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/port"
)

// Store implements port.Store using SQLite
type Store struct {
	db *sql.DB

	// mu serializes mutations so that interleaved upsert/markDeleted
	// calls for an owner cannot produce inconsistent snapshots. Reads
	// go straight to the database and may observe mid-sync state.
	mu sync.Mutex
}

// Ensure Store implements port.Store
var _ port.Store = (*Store)(nil)

// Open opens a connection to the SQLite database
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS bookmark_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			illust_id INTEGER NOT NULL,
			restrict TEXT NOT NULL DEFAULT 'public',
			title TEXT NOT NULL DEFAULT '',
			author_id INTEGER NOT NULL DEFAULT 0,
			author_name TEXT NOT NULL DEFAULT '',
			thumbnail_url TEXT NOT NULL DEFAULT '',
			page_count INTEGER NOT NULL DEFAULT 1,
			is_ugoira BOOLEAN NOT NULL DEFAULT FALSE,
			total_bookmarks INTEGER NOT NULL DEFAULT 0,
			illust_data BLOB,
			archive_url TEXT NOT NULL DEFAULT '',
			preloaded BOOLEAN NOT NULL DEFAULT FALSE,
			preload_quality INTEGER NOT NULL DEFAULT 1,
			all_pages_cached BOOLEAN NOT NULL DEFAULT FALSE,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			cached_at TIMESTAMP NOT NULL,
			last_checked_at TIMESTAMP NOT NULL,
			UNIQUE(owner_id, illust_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookmark_cache_owner ON bookmark_cache(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookmark_cache_owner_deleted ON bookmark_cache(owner_id, deleted)`,
		`CREATE INDEX IF NOT EXISTS idx_bookmark_cache_cached_at ON bookmark_cache(owner_id, cached_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}
