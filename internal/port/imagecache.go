package port

// ImageCache is a keyed byte cache with a memory and a disk tier.
// Keys are image URLs. Implementations must be safe for concurrent use.
type ImageCache interface {
	// Store persists bytes for a URL in both tiers
	Store(url string, data []byte) error

	// Get returns cached bytes, or domain.ErrNotFound
	Get(url string) ([]byte, error)

	// Has reports whether the URL is cached in either tier
	Has(url string) bool

	// Remove deletes the given URLs from both tiers
	Remove(urls []string) error

	// ClearMemory drops the memory tier
	ClearMemory()

	// ClearDisk drops the disk tier
	ClearDisk() error

	// SizeBytes returns the on-disk size of the given URLs; missing
	// entries contribute zero
	SizeBytes(urls []string) (int64, error)

	// TotalSizeBytes returns the size of the whole disk tier
	TotalSizeBytes() (int64, error)
}
