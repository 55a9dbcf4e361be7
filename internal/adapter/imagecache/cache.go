package imagecache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/port"
)

// DefaultMemoryLimit bounds the memory tier at 50MB, matching the
// original application's cache configuration. The disk tier is
// unbounded and never expires.
const DefaultMemoryLimit = 50 * 1024 * 1024

// Cache is a keyed byte cache with a disk tier (sha256-named files
// under a root directory) and a byte-cost-bounded LRU memory tier with
// promote-on-access.
type Cache struct {
	rootDir  string
	memLimit int64

	mu      sync.Mutex
	mem     map[string]*list.Element
	lru     *list.List // front = most recently used
	memSize int64
}

// Ensure Cache implements port.ImageCache
var _ port.ImageCache = (*Cache)(nil)

type memEntry struct {
	key  string
	data []byte
}

// New creates a cache rooted at rootDir. memoryLimit <= 0 selects
// DefaultMemoryLimit.
func New(rootDir string, memoryLimit int64) (*Cache, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}
	if memoryLimit <= 0 {
		memoryLimit = DefaultMemoryLimit
	}

	return &Cache{
		rootDir:  rootDir,
		memLimit: memoryLimit,
		mem:      make(map[string]*list.Element),
		lru:      list.New(),
	}, nil
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) path(url string) string {
	return filepath.Join(c.rootDir, cacheKey(url))
}

// Store persists bytes for a URL in both tiers. The disk write goes
// through a temp file and a rename so readers never see partial content.
func (c *Cache) Store(url string, data []byte) error {
	path := c.path(url)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize cache file: %w", err)
	}

	c.memPut(cacheKey(url), data)
	return nil
}

// Get returns cached bytes, promoting disk hits into the memory tier
func (c *Cache) Get(url string) ([]byte, error) {
	key := cacheKey(url)

	c.mu.Lock()
	if el, ok := c.mem[key]; ok {
		c.lru.MoveToFront(el)
		data := el.Value.(*memEntry).data
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	data, err := os.ReadFile(c.path(url))
	if os.IsNotExist(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.memPut(key, data)
	return data, nil
}

// Has reports whether the URL is cached in either tier
func (c *Cache) Has(url string) bool {
	key := cacheKey(url)

	c.mu.Lock()
	_, ok := c.mem[key]
	c.mu.Unlock()
	if ok {
		return true
	}

	_, err := os.Stat(c.path(url))
	return err == nil
}

// Remove deletes the given URLs from both tiers
func (c *Cache) Remove(urls []string) error {
	for _, url := range urls {
		key := cacheKey(url)

		c.mu.Lock()
		if el, ok := c.mem[key]; ok {
			c.memSize -= int64(len(el.Value.(*memEntry).data))
			c.lru.Remove(el)
			delete(c.mem, key)
		}
		c.mu.Unlock()

		if err := os.Remove(c.path(url)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove cache file: %w", err)
		}
	}
	return nil
}

// ClearMemory drops the memory tier
func (c *Cache) ClearMemory() {
	c.mu.Lock()
	c.mem = make(map[string]*list.Element)
	c.lru = list.New()
	c.memSize = 0
	c.mu.Unlock()
}

// ClearDisk drops the disk tier, keeping the root directory
func (c *Cache) ClearDisk() error {
	entries, err := os.ReadDir(c.rootDir)
	if err != nil {
		return fmt.Errorf("failed to read cache dir: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(c.rootDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// SizeBytes returns the combined on-disk size of the given URLs.
// Missing entries contribute zero.
func (c *Cache) SizeBytes(urls []string) (int64, error) {
	var total int64
	for _, url := range urls {
		info, err := os.Stat(c.path(url))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return total, err
		}
		total += info.Size()
	}
	return total, nil
}

// TotalSizeBytes returns the size of the whole disk tier
func (c *Cache) TotalSizeBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(c.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// memPut inserts into the memory tier, evicting least-recently-used
// entries while over the byte limit. Items larger than the limit skip
// the memory tier entirely.
func (c *Cache) memPut(key string, data []byte) {
	if int64(len(data)) > c.memLimit {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.mem[key]; ok {
		entry := el.Value.(*memEntry)
		c.memSize += int64(len(data)) - int64(len(entry.data))
		entry.data = data
		c.lru.MoveToFront(el)
	} else {
		c.mem[key] = c.lru.PushFront(&memEntry{key: key, data: data})
		c.memSize += int64(len(data))
	}

	for c.memSize > c.memLimit {
		back := c.lru.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*memEntry)
		c.memSize -= int64(len(entry.data))
		c.lru.Remove(back)
		delete(c.mem, entry.key)
	}
}
