// -----------------------------------------------------------------------
// App - Application container and dependency wiring
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/handlers"
	"github.com/ternarybob/scriba/internal/services/batch"
	"github.com/ternarybob/scriba/internal/services/broker"
	"github.com/ternarybob/scriba/internal/services/cancel"
	"github.com/ternarybob/scriba/internal/services/cleanup"
	"github.com/ternarybob/scriba/internal/services/engine"
	"github.com/ternarybob/scriba/internal/services/jobs"
	"github.com/ternarybob/scriba/internal/services/worker"
	badgerstore "github.com/ternarybob/scriba/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *badgerstore.Manager
	Broker         *broker.Service
	Registry       *cancel.Registry
	Tracker        *engine.ProcessTracker
	Transcriber    *engine.Transcriber
	Diarizer       *engine.Diarizer
	Pool           *worker.Pool
	JobService     *jobs.Service
	Coordinator    *batch.Coordinator
	Sweeper        *cleanup.Sweeper

	// HTTP handlers
	TranscriptionHandler *handlers.TranscriptionHandler
	BatchHandler         *handlers.BatchHandler
	StreamHandler        *handlers.StreamHandler
	WSHandler            *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create working directories: %w", err)
	}

	storageManager, err := badgerstore.NewManager(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	// Broker and store are wired in two steps: the store is the only
	// publisher, the broker its only notifier.
	app.Broker = broker.NewService(logger)
	storageManager.Jobs().SetNotifier(app.Broker)

	// Jobs left in processing by a previous run cannot resume; fail them
	// before anything subscribes.
	recovered, err := storageManager.JobStorage().RecoverInterrupted(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warn().Int("count", recovered).Msg("Marked interrupted jobs as failed")
	}

	app.Registry = cancel.NewRegistry(logger)
	app.Tracker = engine.NewProcessTracker()
	app.Transcriber = engine.NewTranscriber(&cfg.Engine, cfg.ScratchDir(), app.Tracker, logger)
	app.Diarizer = engine.NewDiarizer(&cfg.Diarization, logger)

	app.Pool = worker.NewPool(
		cfg.Workers.Concurrency,
		cfg.Workers.QueueDepth,
		storageManager.JobStorage(),
		storageManager.ArtifactStore(),
		app.Transcriber,
		app.Diarizer,
		app.Registry,
		logger,
	)

	app.JobService = jobs.NewService(cfg, storageManager.JobStorage(), storageManager.ArtifactStore(),
		app.Pool, app.Registry, logger)
	app.Coordinator = batch.NewCoordinator(cfg, app.JobService, storageManager.BatchStorage(),
		app.Broker, logger)
	app.Sweeper = cleanup.NewSweeper(cfg, storageManager.JobStorage(), storageManager.BatchStorage(),
		storageManager.ArtifactStore(), app.Broker, logger)

	app.TranscriptionHandler = handlers.NewTranscriptionHandler(cfg, app.JobService, logger)
	app.BatchHandler = handlers.NewBatchHandler(app.Coordinator, logger)
	app.StreamHandler = handlers.NewStreamHandler(app.JobService, app.Broker, logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.JobService, app.Broker, logger)

	logger.Info().Msg("Application initialized")
	return app, nil
}

// Start launches the background services.
func (a *App) Start() error {
	if err := a.Pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.Sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start retention sweeper: %w", err)
	}
	return nil
}

// Shutdown stops background services and closes storage. Engine
// subprocesses still running are asked to terminate.
func (a *App) Shutdown() {
	a.Sweeper.Stop()
	a.Tracker.SignalAll(syscall.SIGTERM)
	a.Pool.Stop()

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage close failed")
	}
	a.Logger.Info().Msg("Application stopped")
}
