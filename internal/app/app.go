// Package app owns the application lifecycle: open the dataset, start the
// controllers, wait for shutdown.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/arcfield/eraview/internal/cache"
	"github.com/arcfield/eraview/internal/dataset"
	"github.com/arcfield/eraview/internal/log"
	"github.com/arcfield/eraview/internal/managers"
	"github.com/arcfield/eraview/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfgData, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	// Open the field cache when configured
	var fieldCache *cache.Cache
	if cfgData.Cache != nil && cfgData.Cache.Enabled {
		fieldCache, err = cache.Open(cfgData.Cache.Path, a.logger)
		if err != nil {
			return err
		}
		defer fieldCache.Close()
	}

	// Open the dataset: fetch coordinates, triangulate, load variables
	data, err := dataset.New(ctx, a.configProvider, fieldCache, a.logger)
	if err != nil {
		return err
	}

	// Initialize the controller manager
	cm, err := managers.NewControllerManager(ctx, &wg, a.configProvider, data, a.logger)
	if err != nil {
		return err
	}
	if err := cm.StartControllers(); err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
