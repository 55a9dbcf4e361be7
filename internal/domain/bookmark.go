package domain

import (
	"time"
)

// Quality identifies the image variant tier used for preloading.
type Quality int

const (
	QualityMedium Quality = iota
	QualityLarge
	QualityOriginal
)

// String returns the human-readable tier name
func (q Quality) String() string {
	switch q {
	case QualityMedium:
		return "medium"
	case QualityLarge:
		return "large"
	case QualityOriginal:
		return "original"
	default:
		return "unknown"
	}
}

// Valid reports whether q is one of the defined tiers
func (q Quality) Valid() bool {
	return q >= QualityMedium && q <= QualityOriginal
}

// Settings contains the user-facing bookmark cache settings
type Settings struct {
	// CacheEnabled gates the whole bookmark cache feature
	CacheEnabled bool

	// AutoPreload enables the image preload phase after a sync
	AutoPreload bool

	// Quality selects the image variant tier to preload
	Quality Quality

	// AllPages preloads every page of multi-page works instead of the first
	AllPages bool

	// UgoiraFrames preloads the frame archive of ugoira works
	UgoiraFrames bool
}

// DefaultSettings returns the settings a fresh account starts with
func DefaultSettings() Settings {
	return Settings{
		CacheEnabled: false,
		AutoPreload:  true,
		Quality:      QualityLarge,
		AllPages:     false,
		UgoiraFrames: false,
	}
}

// BookmarkEntry is one cached bookmark record, scoped to an owner account.
// Entries flagged deleted are retained so the UI can show a "no longer
// available" state; only explicit user action removes them.
type BookmarkEntry struct {
	ID             int64
	IllustID       int64
	OwnerID        string
	Restrict       string // bookmark visibility: "public" or "private"
	Title          string
	AuthorID       int64
	AuthorName     string
	ThumbnailURL   string
	PageCount      int
	IsUgoira       bool
	TotalBookmarks int

	// IllustData is the raw JSON snapshot of the listing item, kept so
	// image variant URLs can be re-derived without a network call.
	IllustData []byte

	// ArchiveURL is the resolved ugoira frame archive URL. The listing
	// snapshot cannot contain it (it comes from a separate metadata
	// call), so it is recorded here once resolved, keeping the cached
	// archive reachable for owner-scoped purge and size accounting.
	ArchiveURL string

	Preloaded      bool
	PreloadQuality Quality
	AllPagesCached bool

	Deleted       bool
	CachedAt      time.Time
	LastCheckedAt time.Time
}
