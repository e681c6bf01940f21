// Package managers wires configured controllers to the running application.
package managers

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/arcfield/eraview/internal/controllers/dashboard"
	"github.com/arcfield/eraview/internal/dataset"
	"github.com/arcfield/eraview/pkg/config"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	StartControllers() error
}

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// NewControllerManager creates a new controller manager
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, provider config.ConfigProvider, data *dataset.Service, logger *zap.SugaredLogger) (ControllerManager, error) {
	cm := &controllerManager{
		ctx:         ctx,
		wg:          wg,
		provider:    provider,
		data:        data,
		logger:      logger,
		controllers: make([]Controller, 0),
	}

	cons, err := provider.GetControllers()
	if err != nil {
		return nil, fmt.Errorf("error loading controller configuration: %v", err)
	}

	for _, con := range cons {
		controller, err := cm.createController(con)
		if err != nil {
			return nil, fmt.Errorf("error creating controller: %v", err)
		}
		cm.controllers = append(cm.controllers, controller)
	}

	return cm, nil
}

type controllerManager struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	provider    config.ConfigProvider
	data        *dataset.Service
	logger      *zap.SugaredLogger
	controllers []Controller
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		err := controller.StartController()
		if err != nil {
			return fmt.Errorf("error starting controller: %v", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}

// createController creates a controller based on the controller configuration
func (cm *controllerManager) createController(cc config.ControllerData) (Controller, error) {
	switch cc.Type {
	case "dashboard":
		dc := config.DashboardData{}
		if cc.Dashboard != nil {
			dc = *cc.Dashboard
		}
		return dashboard.NewController(cm.ctx, cm.wg, dc, cm.data, cm.logger)
	default:
		return nil, fmt.Errorf("unknown controller type: %s", cc.Type)
	}
}
