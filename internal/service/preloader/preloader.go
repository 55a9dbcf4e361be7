package preloader

import (
	"context"
	"sync"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/port"
	"go.uber.org/zap"
)

// DefaultWorkers is the worker count used when none is configured
const DefaultWorkers = 3

// Item is one unit of preload work: fetch a URL and cache the bytes
type Item struct {
	OwnerID  string
	IllustID int64
	URL      string
}

// Result reports the outcome of one item
type Result struct {
	Item    Item
	Err     error
	Skipped bool // already cached, no fetch performed
}

// Stats summarizes one pipeline run
type Stats struct {
	Succeeded int
	Failed    int
	Skipped   int

	// Discarded counts items never processed because the run was
	// cancelled. They are not failures; a future sync re-enqueues them.
	Discarded int
}

// Pool is a fixed-size worker pool that warms the image cache.
// Each item succeeds or fails independently; failures are counted and
// skipped, never fatal to the run.
type Pool struct {
	workers int
	fetcher port.ImageFetcher
	cache   port.ImageCache
	logger  *zap.Logger
}

// New creates a preload pool with the given worker count
func New(workers int, fetcher port.ImageFetcher, cache port.ImageCache, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Pool{
		workers: workers,
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
	}
}

// Workers returns the configured worker count
func (p *Pool) Workers() int {
	return p.workers
}

// Run processes the queue and blocks until every item has completed or
// the context is cancelled. progress, if non-nil, is invoked after each
// item (success or failure) with the monotonically increasing done
// count; invocations are serialized.
func (p *Pool) Run(ctx context.Context, items []Item, progress func(done, total int, res Result)) Stats {
	total := len(items)
	if total == 0 {
		return Stats{}
	}

	jobs := make(chan Item)
	var (
		mu    sync.Mutex
		done  int
		stats Stats
	)

	finish := func(res Result) {
		mu.Lock()
		defer mu.Unlock()

		done++
		switch {
		case res.Err != nil:
			stats.Failed++
		case res.Skipped:
			stats.Skipped++
		default:
			stats.Succeeded++
		}
		if progress != nil {
			progress(done, total, res)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				finish(p.process(ctx, item))
			}
		}()
	}

	// Feed the queue; on cancellation stop feeding so outstanding
	// items are discarded without being recorded as failures.
feed:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- item:
		}
	}
	close(jobs)
	wg.Wait()

	stats.Discarded = total - done
	return stats
}

// process handles a single item
func (p *Pool) process(ctx context.Context, item Item) Result {
	if p.cache.Has(item.URL) {
		return Result{Item: item, Skipped: true}
	}

	data, err := p.fetcher.FetchImage(ctx, item.URL)
	if err != nil {
		p.logger.Warn("preload fetch failed",
			zap.Int64("illust_id", item.IllustID),
			zap.String("url", item.URL),
			zap.Error(err))
		return Result{Item: item, Err: err}
	}

	if err := p.cache.Store(item.URL, data); err != nil {
		p.logger.Warn("preload store failed",
			zap.Int64("illust_id", item.IllustID),
			zap.String("url", item.URL),
			zap.Error(err))
		return Result{Item: item, Err: err}
	}

	return Result{Item: item}
}
