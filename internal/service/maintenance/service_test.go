package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/port"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/service/syncer"
	"go.uber.org/zap"
)

// mockRepo implements port.BookmarkRepository in memory
type mockRepo struct {
	mu      sync.Mutex
	entries map[string]map[int64]*domain.BookmarkEntry
}

func newMockRepo() *mockRepo {
	return &mockRepo{entries: make(map[string]map[int64]*domain.BookmarkEntry)}
}

func (m *mockRepo) owner(ownerID string) map[int64]*domain.BookmarkEntry {
	if m.entries[ownerID] == nil {
		m.entries[ownerID] = make(map[int64]*domain.BookmarkEntry)
	}
	return m.entries[ownerID]
}

func (m *mockRepo) GetByOwner(ownerID string) ([]*domain.BookmarkEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.BookmarkEntry
	for _, e := range m.owner(ownerID) {
		out = append(out, e)
	}
	return out, nil
}

func (m *mockRepo) Get(ownerID string, illustID int64) (*domain.BookmarkEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.owner(ownerID)[illustID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (m *mockRepo) IDsByOwner(ownerID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.owner(ownerID) {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockRepo) Upsert(entries []*domain.BookmarkEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.owner(e.OwnerID)[e.IllustID] = e
	}
	return nil
}

func (m *mockRepo) MarkDeleted(ownerID string, illustIDs []int64) error  { return nil }
func (m *mockRepo) ClearDeleted(ownerID string, illustIDs []int64) error { return nil }

func (m *mockRepo) DeletedCount(ownerID string) (int, error) { return 0, nil }

func (m *mockRepo) SetPreloaded(ownerID string, illustID int64, quality domain.Quality, allPages bool) error {
	return nil
}

func (m *mockRepo) SetArchiveURL(ownerID string, illustID int64, archiveURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.owner(ownerID)[illustID]; ok {
		e.ArchiveURL = archiveURL
	}
	return nil
}

func (m *mockRepo) Remove(ownerID string, illustID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owner(ownerID), illustID)
	return nil
}

func (m *mockRepo) RemoveByOwner(ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, ownerID)
	return nil
}

func (m *mockRepo) count(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[ownerID])
}

// mockImageCache implements port.ImageCache in memory
type mockImageCache struct {
	mu         sync.Mutex
	items      map[string][]byte
	diskClears int
	memClears  int
}

func newMockImageCache() *mockImageCache {
	return &mockImageCache{items: make(map[string][]byte)}
}

func (m *mockImageCache) Store(url string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[url] = data
	return nil
}

func (m *mockImageCache) Get(url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.items[url]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (m *mockImageCache) Has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[url]
	return ok
}

func (m *mockImageCache) Remove(urls []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range urls {
		delete(m.items, u)
	}
	return nil
}

func (m *mockImageCache) ClearMemory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memClears++
}

func (m *mockImageCache) ClearDisk() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string][]byte)
	m.diskClears++
	return nil
}

func (m *mockImageCache) SizeBytes(urls []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var size int64
	for _, u := range urls {
		size += int64(len(m.items[u]))
	}
	return size, nil
}

func (m *mockImageCache) TotalSizeBytes() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var size int64
	for _, data := range m.items {
		size += int64(len(data))
	}
	return size, nil
}

// seedEntry stores an entry whose snapshot references the given image
// URLs, and seeds the cache with bytes for each of them.
func seedEntry(t *testing.T, repo *mockRepo, cache *mockImageCache, ownerID string, illustID int64) []string {
	t.Helper()

	medium := fmt.Sprintf("https://i.example/%s/%d/medium.jpg", ownerID, illustID)
	large := fmt.Sprintf("https://i.example/%s/%d/large.jpg", ownerID, illustID)
	item := port.BookmarkItem{
		ID:        illustID,
		PageCount: 1,
		ImageURLs: port.ImageURLs{Medium: medium, Large: large},
	}
	data, err := json.Marshal(&item)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	err = repo.Upsert([]*domain.BookmarkEntry{{
		IllustID:     illustID,
		OwnerID:      ownerID,
		ThumbnailURL: medium,
		PageCount:    1,
		IllustData:   data,
	}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	urls := []string{medium, large}
	for _, u := range urls {
		cache.Store(u, []byte("image-bytes"))
	}
	return urls
}

// seedUgoiraEntry stores an ugoira entry with a resolved frame archive
// URL and seeds the cache with the archive bytes.
func seedUgoiraEntry(t *testing.T, repo *mockRepo, cache *mockImageCache, ownerID string, illustID int64) string {
	t.Helper()

	archive := fmt.Sprintf("https://i.example/%s/%d/frames.zip", ownerID, illustID)
	err := repo.Upsert([]*domain.BookmarkEntry{{
		IllustID:  illustID,
		OwnerID:   ownerID,
		IsUgoira:  true,
		PageCount: 1,
	}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.SetArchiveURL(ownerID, illustID, archive); err != nil {
		t.Fatalf("SetArchiveURL() error = %v", err)
	}

	cache.Store(archive, []byte("archive-bytes-zip"))
	return archive
}

func newTestService() (*Service, *mockRepo, *mockImageCache, *syncer.OwnerLocks) {
	repo := newMockRepo()
	cache := newMockImageCache()
	locks := syncer.NewOwnerLocks()
	return New(repo, cache, locks, zap.NewNop()), repo, cache, locks
}

func TestService_ClearImageCache(t *testing.T) {
	svc, repo, cache, _ := newTestService()
	seedEntry(t, repo, cache, "100", 1)

	if err := svc.ClearImageCache(context.Background()); err != nil {
		t.Fatalf("ClearImageCache() error = %v", err)
	}

	if size, _ := cache.TotalSizeBytes(); size != 0 {
		t.Errorf("cache size after clear = %d, want 0", size)
	}
	if cache.memClears != 1 || cache.diskClears != 1 {
		t.Errorf("memClears = %d, diskClears = %d, want 1 each", cache.memClears, cache.diskClears)
	}

	// Metadata is untouched
	if got := repo.count("100"); got != 1 {
		t.Errorf("entry count after clear = %d, want 1", got)
	}

	// Clearing an already empty cache succeeds
	if err := svc.ClearImageCache(context.Background()); err != nil {
		t.Errorf("second ClearImageCache() error = %v", err)
	}
}

func TestService_ClearAllCache(t *testing.T) {
	svc, repo, cache, _ := newTestService()
	aliceURLs := seedEntry(t, repo, cache, "alice", 1)
	bobURLs := seedEntry(t, repo, cache, "bob", 2)

	if err := svc.ClearAllCache(context.Background(), "alice"); err != nil {
		t.Fatalf("ClearAllCache() error = %v", err)
	}

	for _, u := range aliceURLs {
		if cache.Has(u) {
			t.Errorf("alice's image %s still cached", u)
		}
	}
	if got := repo.count("alice"); got != 0 {
		t.Errorf("alice's entry count = %d, want 0", got)
	}

	// Other owners are untouched
	for _, u := range bobURLs {
		if !cache.Has(u) {
			t.Errorf("bob's image %s was removed", u)
		}
	}
	if got := repo.count("bob"); got != 1 {
		t.Errorf("bob's entry count = %d, want 1", got)
	}

	// Purging an already empty owner succeeds
	if err := svc.ClearAllCache(context.Background(), "alice"); err != nil {
		t.Errorf("second ClearAllCache() error = %v", err)
	}
}

func TestService_ClearAllCache_WaitsForSync(t *testing.T) {
	svc, repo, cache, locks := newTestService()
	seedEntry(t, repo, cache, "100", 1)

	// Simulate an active sync session holding the owner's lock
	if !locks.TryAcquire("100") {
		t.Fatal("TryAcquire() = false, want true")
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.ClearAllCache(context.Background(), "100")
	}()

	select {
	case err := <-done:
		t.Fatalf("ClearAllCache() returned %v before the lock was released", err)
	case <-time.After(50 * time.Millisecond):
	}

	locks.Release("100")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ClearAllCache() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ClearAllCache() did not finish after lock release")
	}

	if got := repo.count("100"); got != 0 {
		t.Errorf("entry count = %d, want 0", got)
	}
}

func TestService_ClearAllCache_CancelledWhileWaiting(t *testing.T) {
	svc, _, _, locks := newTestService()
	locks.TryAcquire("100")
	defer locks.Release("100")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := svc.ClearAllCache(ctx, "100"); err == nil {
		t.Fatal("ClearAllCache() error = nil, want context error")
	}
}

func TestService_RemoveEntry(t *testing.T) {
	svc, repo, cache, _ := newTestService()
	removedURLs := seedEntry(t, repo, cache, "100", 1)
	keptURLs := seedEntry(t, repo, cache, "100", 2)

	if err := svc.RemoveEntry(context.Background(), "100", 1); err != nil {
		t.Fatalf("RemoveEntry() error = %v", err)
	}

	if _, err := repo.Get("100", 1); err != domain.ErrNotFound {
		t.Errorf("Get(1) error = %v, want ErrNotFound", err)
	}
	for _, u := range removedURLs {
		if cache.Has(u) {
			t.Errorf("removed entry's image %s still cached", u)
		}
	}
	for _, u := range keptURLs {
		if !cache.Has(u) {
			t.Errorf("kept entry's image %s was removed", u)
		}
	}

	if err := svc.RemoveEntry(context.Background(), "100", 99); err != domain.ErrNotFound {
		t.Errorf("RemoveEntry(99) error = %v, want ErrNotFound", err)
	}
}

func TestService_CalculateCacheSize(t *testing.T) {
	svc, repo, cache, _ := newTestService()
	aliceURLs := seedEntry(t, repo, cache, "alice", 1)
	seedEntry(t, repo, cache, "bob", 2)

	size, err := svc.CalculateCacheSize("alice")
	if err != nil {
		t.Fatalf("CalculateCacheSize() error = %v", err)
	}

	want := int64(len(aliceURLs) * len("image-bytes"))
	if size != want {
		t.Errorf("CalculateCacheSize() = %d, want %d", size, want)
	}

	// Unknown owners have zero cached bytes
	size, err = svc.CalculateCacheSize("nobody")
	if err != nil {
		t.Fatalf("CalculateCacheSize(nobody) error = %v", err)
	}
	if size != 0 {
		t.Errorf("CalculateCacheSize(nobody) = %d, want 0", size)
	}
}

func TestService_UgoiraArchiveAccounting(t *testing.T) {
	svc, repo, cache, _ := newTestService()
	urls := seedEntry(t, repo, cache, "100", 1)
	archive := seedUgoiraEntry(t, repo, cache, "100", 7)

	size, err := svc.CalculateCacheSize("100")
	if err != nil {
		t.Fatalf("CalculateCacheSize() error = %v", err)
	}
	want := int64(len(urls)*len("image-bytes") + len("archive-bytes-zip"))
	if size != want {
		t.Errorf("CalculateCacheSize() = %d, want %d", size, want)
	}

	if err := svc.ClearAllCache(context.Background(), "100"); err != nil {
		t.Fatalf("ClearAllCache() error = %v", err)
	}
	if cache.Has(archive) {
		t.Errorf("frame archive %s still cached after purge", archive)
	}
	if got, _ := cache.TotalSizeBytes(); got != 0 {
		t.Errorf("total cache size after purge = %d, want 0", got)
	}
}

func TestService_UgoiraArchiveRemovedWithEntry(t *testing.T) {
	svc, repo, cache, _ := newTestService()
	archive := seedUgoiraEntry(t, repo, cache, "100", 7)
	keptURLs := seedEntry(t, repo, cache, "100", 2)

	if err := svc.RemoveEntry(context.Background(), "100", 7); err != nil {
		t.Fatalf("RemoveEntry() error = %v", err)
	}

	if cache.Has(archive) {
		t.Errorf("frame archive %s still cached after entry removal", archive)
	}
	for _, u := range keptURLs {
		if !cache.Has(u) {
			t.Errorf("kept entry's image %s was removed", u)
		}
	}
}

func TestService_TotalCacheSize(t *testing.T) {
	svc, repo, cache, _ := newTestService()
	aliceURLs := seedEntry(t, repo, cache, "alice", 1)
	bobURLs := seedEntry(t, repo, cache, "bob", 2)

	size, err := svc.TotalCacheSize()
	if err != nil {
		t.Fatalf("TotalCacheSize() error = %v", err)
	}
	want := int64((len(aliceURLs) + len(bobURLs)) * len("image-bytes"))
	if size != want {
		t.Errorf("TotalCacheSize() = %d, want %d", size, want)
	}
}
