package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/handlers"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/services/events"
	"github.com/ternarybob/vigil/internal/services/feed"
	"github.com/ternarybob/vigil/internal/services/fetch"
	"github.com/ternarybob/vigil/internal/services/maintenance"
	"github.com/ternarybob/vigil/internal/services/monitor"
	storagebadger "github.com/ternarybob/vigil/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	DB           *storagebadger.BadgerDB
	CacheStorage interfaces.CacheStorage

	// Event-driven services
	EventService interfaces.EventService
	FeedService  *feed.Service

	// Upstream API client
	FetchService *fetch.Service

	// Monitor core
	MonitorService interfaces.MonitorService

	// Scheduled store maintenance
	MaintenanceService *maintenance.Service

	// HTTP handlers
	MonitorHandler *handlers.MonitorHandler
	StatusHandler  *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	db, err := storagebadger.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.DB = db

	app.EventService = events.NewService(logger)
	app.CacheStorage = storagebadger.NewCacheStorage(db, app.EventService, logger)

	feedService, err := feed.NewService(app.CacheStorage, app.EventService, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache feed: %w", err)
	}
	app.FeedService = feedService

	app.FetchService = fetch.NewService(&cfg.Fetch, logger)
	app.MonitorService = monitor.NewService(app.CacheStorage, app.FeedService, app.FetchService, &cfg.Monitor, logger)
	app.MaintenanceService = maintenance.NewService(db, &cfg.Maintenance, logger)

	app.MonitorHandler = handlers.NewMonitorHandler(app.MonitorService, logger)
	app.StatusHandler = handlers.NewStatusHandler(logger)

	logger.Info().Msg("Application initialized")

	return app, nil
}

// Start launches background services
func (a *App) Start() error {
	if err := a.MaintenanceService.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance service: %w", err)
	}
	return nil
}

// Close shuts down all services and releases resources
func (a *App) Close() error {
	a.cancelCtx()

	a.MaintenanceService.Stop()

	if err := a.FeedService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close cache feed")
	}
	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close event service")
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
