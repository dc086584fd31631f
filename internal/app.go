// Package internal wires the tally application together.
package internal

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"tally/internal/config"
	"tally/internal/database"
	"tally/internal/jobs"
	"tally/internal/pkg/geoip"
)

// Application wraps cartridge.Application with the migration-aware DB manager.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Logger    *slog.Logger
}

// NewServerConfig is the cartridge server setup shared by the binary and the
// HTTP tests. The global Sec-Fetch-Site check runs before any route could opt
// out of it, so it is off here and the ingestion routes carry their own.
func NewServerConfig() *cartridge.ServerConfig {
	cfg := cartridge.DefaultServerConfig()
	cfg.EnableTemplates = false
	cfg.EnableStaticAssets = false
	cfg.EnableSecFetchSite = false
	return cfg
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)
	geoip.InitLogger(logger)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	scheduler, err := jobs.NewScheduler(dbManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		ServerConfig:      NewServerConfig(),
		RouteMountFunc:    MountAppRoutes,
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Logger:      logger,
	}, nil
}
