// Package control assembles the application: Drive client, loader
// cache, download manager, storage, and the HTTP API.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/justin2061/drivefetch/internal/api"
	"github.com/justin2061/drivefetch/internal/core/config"
	"github.com/justin2061/drivefetch/internal/core/downloader"
	"github.com/justin2061/drivefetch/internal/core/loader"
	"github.com/justin2061/drivefetch/internal/core/retry"
	"github.com/justin2061/drivefetch/internal/core/worker"
	"github.com/justin2061/drivefetch/internal/infra/drive"
	redisclient "github.com/justin2061/drivefetch/internal/infra/redis"
	"github.com/justin2061/drivefetch/internal/infra/storage"
	"github.com/justin2061/drivefetch/internal/infra/storage/memory"
	"github.com/justin2061/drivefetch/internal/infra/storage/postgres"
)

// App is the running application.
type App struct {
	cfg     *config.AppConfig
	client  *drive.Client
	cache   *loader.Cache
	manager *downloader.Manager
	server  *api.Server
	repo    storage.TaskRepository

	db          *postgres.DB
	redisClient *redisclient.Client

	cancel context.CancelFunc
}

// New creates the application with all dependencies initialized.
// Postgres and Redis are optional: without a database URL task history
// lives in memory, without Redis there is no cross-process dedup.
func New(cfg *config.AppConfig) (*App, error) {
	client, err := drive.NewClient(cfg.Drive)
	if err != nil {
		return nil, fmt.Errorf("failed to init drive client: %w", err)
	}

	engine := retry.New(cfg.Retry.Policy())
	cache := loader.NewCache(client, cfg.Cache.TTL, loader.WithEngine(engine))

	app := &App{
		cfg:    cfg,
		client: client,
		cache:  cache,
	}

	var repo storage.TaskRepository
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		app.db = db
		repo = postgres.NewTaskRepo(db)
		slog.Info("task history in postgres")
	} else {
		repo = memory.NewTaskStore()
		slog.Warn("no database configured, task history is in-memory only")
	}

	managerOpts := []downloader.Option{
		downloader.WithEngine(engine),
		downloader.WithConcurrency(cfg.Download.MaxConcurrent),
		downloader.WithOutputRoot(cfg.Download.OutputRoot),
	}

	var snapshots api.Snapshots
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		app.redisClient = rc
		store := redisclient.NewListingStore(rc, cfg.Cache.TTL)
		snapshots = store
		managerOpts = append(managerOpts, downloader.WithMarkers(store))
		slog.Info("redis listing snapshots and download dedup enabled")
	}

	app.repo = repo
	app.manager = downloader.NewManager(client, repo, managerOpts...)

	checkers := map[string]api.Checker{}
	if app.db != nil {
		checkers["postgres"] = app.db
	}
	if app.redisClient != nil {
		checkers["redis"] = app.redisClient
	}

	app.server = api.NewServer(cache, app.manager, repo, snapshots, checkers,
		cfg.Server.Port, cfg.Cache.CleanupInterval)

	return app, nil
}

// Start launches background services. Non-blocking.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.db != nil {
		a.db.StartMetricsCollector(runCtx)
	}

	go worker.NewPruner(a.cfg.Download.Retention, a.repo).Start(runCtx)

	go func() {
		if err := a.server.Start(runCtx); err != nil {
			slog.Error("api server stopped", "error", err)
		}
	}()

	return nil
}

// Stop shuts everything down in reverse order of startup.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	if err := a.server.Stop(ctx); err != nil {
		slog.Warn("api server shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.manager.Shutdown(shutdownCtx); err != nil {
		slog.Warn("download manager shutdown", "error", err)
	}

	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	return nil
}

// Manager exposes the download manager for CLI commands.
func (a *App) Manager() *downloader.Manager { return a.manager }

// Cache exposes the loader cache for CLI commands.
func (a *App) Cache() *loader.Cache { return a.cache }
