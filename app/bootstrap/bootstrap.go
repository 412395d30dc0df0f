package bootstrap

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aihub/docqa/internal/config"
	"github.com/aihub/docqa/internal/di"
	"github.com/aihub/docqa/internal/knowledge"
	"github.com/aihub/docqa/internal/logger"
	"github.com/aihub/docqa/internal/pipeline"
)

// App encapsulates the pipeline and the lifecycle resources that need to be
// cleaned up on shutdown.
type App struct {
	mu           sync.Mutex
	cleanupTasks []func() error
	factory      *pipeline.ConfigFactory
	retiring     sync.WaitGroup

	config       atomic.Pointer[config.Config]
	orchestrator atomic.Pointer[pipeline.Orchestrator]
	extractor    *knowledge.Extractor
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// NewApp wraps an already assembled orchestrator.
func NewApp(cfg *config.Config, orchestrator *pipeline.Orchestrator) *App {
	app := &App{}
	app.config.Store(cfg)
	app.orchestrator.Store(orchestrator)
	return app
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	return a.config.Load()
}

// Orchestrator returns the active pipeline orchestrator. It is swapped
// atomically when the config file changes.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orchestrator.Load()
}

// AddCleanup registers a task to run on Shutdown.
func (a *App) AddCleanup(task func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupTasks = append(a.cleanupTasks, task)
}

// Init bootstraps environment, logger, configuration and the dependency
// container, and returns an App holding the resolved orchestrator.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	if _, err := di.BuildContainer(cfg); err != nil {
		return nil, err
	}
	orchestrator, err := di.Resolve[*pipeline.Orchestrator]()
	if err != nil {
		return nil, err
	}
	extractor, err := di.Resolve[*knowledge.Extractor]()
	if err != nil {
		return nil, err
	}
	factory, err := di.Resolve[*pipeline.ConfigFactory]()
	if err != nil {
		return nil, err
	}

	app := NewApp(cfg, orchestrator)
	app.extractor = extractor
	app.factory = factory
	app.AddCleanup(app.closeFactory)

	// Hot reload: rebuild the orchestrator when the config file changes.
	if loader := config.GetLoader(); loader != nil {
		loader.RegisterCallback(app.applyConfig)
		if err := loader.StartWatching(); err != nil {
			logger.Debug("config hot reload disabled", zap.Error(err))
		}
	}

	logger.Info("application bootstrapped",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("index_provider", cfg.Index.Provider))
	return app, nil
}

// applyConfig swaps in an orchestrator built from the reloaded config. The
// previous factory is closed once runs on the old orchestrator have drained.
func (a *App) applyConfig(_, newConfig *config.Config) error {
	factory := pipeline.NewConfigFactory(newConfig)
	extractor := a.extractor
	if extractor == nil {
		extractor = knowledge.NewExtractor(knowledge.ExtractorOptions{
			OCRLanguages:     newConfig.Extractor.OCRLanguages,
			UnidocLicenseKey: newConfig.Extractor.UnidocLicenseKey,
		})
	}

	a.mu.Lock()
	previous := a.factory
	a.factory = factory
	a.mu.Unlock()
	if factory.Inherit(previous) {
		logger.Info("local embedding model reused across reload")
	}

	old := a.orchestrator.Swap(pipeline.NewFromConfig(newConfig, extractor, factory))
	a.config.Store(newConfig)
	if previous != nil {
		a.retiring.Add(1)
		go a.retire(old, previous)
	}

	logger.Info("pipeline reconfigured",
		zap.String("strategy", newConfig.Pipeline.Strategy),
		zap.Int("top_k", newConfig.Pipeline.TopK))
	return nil
}

func (a *App) retire(old *pipeline.Orchestrator, factory *pipeline.ConfigFactory) {
	defer a.retiring.Done()
	if old != nil {
		old.Drain()
	}
	if err := factory.Close(); err != nil {
		logger.Warn("failed to close previous component factory", zap.Error(err))
	}
}

func (a *App) closeFactory() error {
	a.mu.Lock()
	factory := a.factory
	a.mu.Unlock()
	if factory == nil {
		return nil
	}
	return factory.Close()
}

// Shutdown runs cleanup tasks and flushes the logger.
func (a *App) Shutdown() {
	// Let factories replaced by hot reload finish closing first.
	a.retiring.Wait()

	a.mu.Lock()
	tasks := make([]func() error, len(a.cleanupTasks))
	copy(tasks, a.cleanupTasks)
	a.mu.Unlock()

	// Execute cleanup tasks in reverse order (best effort).
	for i := len(tasks) - 1; i >= 0; i-- {
		if err := tasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
