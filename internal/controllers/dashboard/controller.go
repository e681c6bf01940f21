// Package dashboard serves the interactive reanalysis dashboard: a JSON API
// over the regridded fields plus an embedded single-page viewer with a time
// slider.
package dashboard

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/arcfield/eraview/internal/dataset"
	"github.com/arcfield/eraview/internal/log"
	"github.com/arcfield/eraview/pkg/config"
)

var (
	//go:embed all:assets
	content embed.FS
)

// Controller represents the dashboard HTTP controller
type Controller struct {
	ctx       context.Context
	wg        *sync.WaitGroup
	dashboard config.DashboardData
	Server    http.Server
	FS        *fs.FS
	Data      *dataset.Service
	logger    *zap.SugaredLogger
	handlers  *Handlers
}

// NewController creates a new dashboard controller
func NewController(ctx context.Context, wg *sync.WaitGroup, dc config.DashboardData, data *dataset.Service, logger *zap.SugaredLogger) (*Controller, error) {
	if data == nil {
		return nil, fmt.Errorf("dashboard controller needs an opened dataset")
	}

	ctrl := &Controller{
		ctx:       ctx,
		wg:        wg,
		dashboard: dc,
		Data:      data,
		logger:    logger,
	}

	// If a listen address was not provided, listen on all interfaces
	if ctrl.dashboard.ListenAddr == "" {
		logger.Info("dashboard.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		ctrl.dashboard.ListenAddr = "0.0.0.0"
	}
	if ctrl.dashboard.Port == 0 {
		logger.Info("dashboard.port not provided; defaulting to 5006")
		ctrl.dashboard.Port = 5006
	}
	if ctrl.dashboard.PageTitle == "" {
		ctrl.dashboard.PageTitle = "Reanalysis Dashboard"
	}

	ctrl.handlers = NewHandlers(ctrl)

	assetsFS, _ := fs.Sub(fs.FS(content), "assets")
	ctrl.FS = &assetsFS

	router := ctrl.setupRouter()
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ctrl.dashboard.ListenAddr, ctrl.dashboard.Port)
	ctrl.Server.Handler = router

	return ctrl, nil
}

// StartController starts the dashboard server
func (c *Controller) StartController() error {
	log.Info("Starting dashboard controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		log.Infof("dashboard listening on %s", c.Server.Addr)
		if c.dashboard.TLSCertPath != "" && c.dashboard.TLSKeyPath != "" {
			if err := c.Server.ListenAndServeTLS(c.dashboard.TLSCertPath, c.dashboard.TLSKeyPath); err != http.ErrServerClosed {
				log.Errorf("dashboard server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("dashboard server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the dashboard server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.Use(c.requestIDMiddleware)
	router.Use(c.loggingMiddleware)
	if c.dashboard.EnableCORS {
		router.Use(corsMiddleware)
	}

	router.HandleFunc("/api/meta", c.handlers.GetMeta).Methods(http.MethodGet)
	router.HandleFunc("/api/field/{variable}/{time:[0-9]+}", c.handlers.GetField).Methods(http.MethodGet)
	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)

	// Static single-page app
	router.PathPrefix("/").Handler(http.FileServer(http.FS(*c.FS)))

	return router
}
