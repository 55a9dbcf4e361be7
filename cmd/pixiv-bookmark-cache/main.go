package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/adapter/imagecache"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/adapter/pixiv"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/adapter/sqlite"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/config"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/logger"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/port"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/service/maintenance"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/service/preloader"
	"github.com/eslzzyl/pixiv-bookmark-cache/internal/service/syncer"
	"go.uber.org/zap"
)

const version = "0.1.0"

const usageText = `Usage: pixiv-bookmark-cache [flags] <command>

Commands:
  sync          Run a full bookmark sync for the configured user
  list          List cached bookmarks for the owner
  size          Report the owner's cached image size and the disk total
  clear-images  Clear the image cache (metadata is kept)
  clear-all     Remove the owner's metadata and cached images
`

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	owner := flag.String("owner", "", "Owner ID (defaults to the configured user ID)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Info("starting pixiv-bookmark-cache",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("command", command),
	)

	ownerID := *owner
	if ownerID == "" {
		ownerID = cfg.Pixiv.UserID
	}
	if ownerID == "" {
		zapLogger.Fatal("no owner ID; set pixiv.user_id or pass -owner")
	}

	// Open database
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Cache.RootDir, "bookmarks.db")
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		zapLogger.Fatal("failed to open database", zap.Error(err), zap.String("path", dbPath))
	}
	defer store.Close()

	// Create image cache
	cache, err := imagecache.New(filepath.Join(cfg.Cache.RootDir, "images"), cfg.Cache.GetMemoryLimit())
	if err != nil {
		zapLogger.Fatal("failed to create image cache", zap.Error(err))
	}

	// Create Pixiv API client
	client := pixiv.NewClient(cfg.Pixiv.BaseURL, cfg.Pixiv.AccessToken)

	// Create preload worker pool
	pool := preloader.New(cfg.Cache.PreloadWorkers, client, cache, zapLogger)

	// Create sync orchestrator and maintenance service over a shared
	// lock registry
	locks := syncer.NewOwnerLocks()
	syncerCfg := &syncer.Config{
		PageInterval: cfg.Sync.GetPageInterval(),
	}
	var ugoira *pixiv.Client
	if cfg.Sync.Ugoira {
		ugoira = client
	}
	syncerService := syncer.New(syncerCfg, client, ugoiraSource(ugoira), store, pool, locks, zapLogger)
	maintenanceService := maintenance.New(store, cache, locks, zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg, ownerID, syncerService, maintenanceService, zapLogger); err != nil {
		zapLogger.Fatal("command failed", zap.String("command", command), zap.Error(err))
	}
}

func run(ctx context.Context, command string, cfg *config.Config, ownerID string, sync *syncer.Service, maint *maintenance.Service, log *zap.Logger) error {
	switch command {
	case "sync":
		return runSync(ctx, cfg, ownerID, sync, log)
	case "list":
		return runList(ownerID, sync)
	case "size":
		size, err := maint.CalculateCacheSize(ownerID)
		if err != nil {
			return err
		}
		total, err := maint.TotalCacheSize()
		if err != nil {
			return err
		}
		fmt.Printf("owner %s: %d bytes\ndisk total: %d bytes\n", ownerID, size, total)
		return nil
	case "clear-images":
		return maint.ClearImageCache(ctx)
	case "clear-all":
		return maint.ClearAllCache(ctx, ownerID)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// runSync starts a full sync and follows its state until the session
// reaches a terminal phase or the context is cancelled.
func runSync(ctx context.Context, cfg *config.Config, ownerID string, sync *syncer.Service, log *zap.Logger) error {
	states, cancel := sync.Subscribe(ownerID)
	defer cancel()

	settings := cfg.Sync.Settings()
	state := sync.PerformFullSync(ctx, cfg.Pixiv.UserID, ownerID, settings)
	if !state.IsRunning() {
		log.Warn("sync did not start", zap.String("phase", state.Phase.String()))
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			sync.Wait()
			return ctx.Err()
		case st := <-states:
			switch st.Phase {
			case domain.PhaseCompleted:
				log.Info("sync finished",
					zap.Int("fetched", st.Fetched),
					zap.Int("deleted", sync.DeletedCount(ownerID)))
				return nil
			case domain.PhaseFailed:
				return fmt.Errorf("sync failed: %s", st.Message)
			}
		}
	}
}

func runList(ownerID string, sync *syncer.Service) error {
	entries := sync.LoadCachedBookmarks(ownerID)
	for _, e := range entries {
		status := " "
		if e.Deleted {
			status = "D"
		}
		fmt.Printf("%s %10d  %-8s  %s\n", status, e.IllustID, e.Restrict, e.Title)
	}
	fmt.Printf("%d entries (%d marked deleted)\n", len(entries), sync.DeletedCount(ownerID))
	return nil
}

// ugoiraSource keeps the nil *pixiv.Client from becoming a non-nil
// interface value when ugoira preload is disabled.
func ugoiraSource(c *pixiv.Client) port.UgoiraSource {
	if c == nil {
		return nil
	}
	return c
}
