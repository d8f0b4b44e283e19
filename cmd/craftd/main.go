package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prismarine/craftd/internal/api"
	"github.com/prismarine/craftd/internal/events"
	"github.com/prismarine/craftd/internal/middleware"
	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/internal/monitoring"
	"github.com/prismarine/craftd/internal/portmap"
	"github.com/prismarine/craftd/internal/provision"
	"github.com/prismarine/craftd/internal/repository"
	"github.com/prismarine/craftd/internal/service"
	"github.com/prismarine/craftd/internal/storage"
	"github.com/prismarine/craftd/internal/supervisor"
	"github.com/prismarine/craftd/internal/topology"
	"github.com/prismarine/craftd/pkg/config"
	"github.com/prismarine/craftd/pkg/logger"
)

func main() {
	cfg := config.Load()

	appLogger := logger.NewLogger(logger.ParseLevel(cfg.LogLevel), os.Stdout, cfg.LogJSON)
	logger.SetDefault(appLogger)

	logger.Info("Starting daemon", map[string]interface{}{
		"app":   cfg.AppName,
		"debug": cfg.Debug,
		"port":  cfg.Port,
	})

	if err := repository.InitDB(cfg); err != nil {
		logger.Fatal("Failed to initialize database", err, nil)
	}
	db := repository.GetDB()

	// Event storage: always the database, plus InfluxDB when configured.
	dbStorage := events.NewDatabaseEventStorage(db)
	var eventStorage events.EventStorage = dbStorage
	if cfg.InfluxDBURL != "" && cfg.InfluxDBToken != "" {
		influxClient, err := storage.NewInfluxDBClient(storage.InfluxDBConfig{
			URL:    cfg.InfluxDBURL,
			Token:  cfg.InfluxDBToken,
			Org:    cfg.InfluxDBOrg,
			Bucket: cfg.InfluxDBBucket,
		})
		if err != nil {
			logger.Warn("InfluxDB unavailable, using database event storage only", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer influxClient.Close()
			eventStorage = events.NewMultiEventStorage(dbStorage, events.NewInfluxDBEventStorage(influxClient))
			logger.Info("Event storage: PostgreSQL + InfluxDB", map[string]interface{}{
				"influxdb_url": cfg.InfluxDBURL,
			})
		}
	}
	events.SetEventStorage(eventStorage)

	serverRepo := repository.NewServerRepository(db)
	portRepo := repository.NewPortMappingRepository(db)
	linkRepo := repository.NewLinkRepository(db)

	provisioner := provision.NewProvisioner(cfg.ServersBasePath, cfg.RCONPassword)
	topologyManager := topology.NewManager(serverRepo, linkRepo, cfg.ServersBasePath)

	// The supervisor reports transitions into the server service, which
	// is built right after it; the indirection breaks the cycle.
	var serverService *service.ServerService
	sup := supervisor.New(supervisor.Options{
		BasePath:        cfg.ServersBasePath,
		JavaBinary:      cfg.JavaBinary,
		ReadyTimeout:    time.Duration(cfg.ReadyTimeout) * time.Second,
		StopGracePeriod: time.Duration(cfg.StopGracePeriod) * time.Second,
		BufferLines:     cfg.LogBufferLines,
		OnTransition: func(id string, status models.ServerStatus, detail string) {
			if serverService != nil {
				serverService.TransitionHandler()(id, status, detail)
			}
		},
	})
	serverService = service.NewServerService(serverRepo, sup, provisioner, topologyManager, cfg)

	consoleService := service.NewConsoleService(serverService)
	playerService := service.NewPlayerService(serverService, provisioner)
	propertiesService := service.NewPropertiesService(serverService, provisioner)
	pluginService := service.NewPluginService(serverService, provisioner)
	authService := service.NewAuthService(cfg)
	middleware.SetAuthService(authService)

	// Port mapping registry, reconciled against the router at boot.
	var mapper portmap.Mapper = portmap.NewDisabledMapper()
	if cfg.UPnPEnabled {
		mapper = portmap.NewUPnPMapper(time.Duration(cfg.UPnPDiscoveryTimeout) * time.Second)
	}
	portRegistry := portmap.NewRegistry(portRepo, mapper, cfg.MappingDescription)
	if cfg.UPnPEnabled {
		reconcileCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		portRegistry.Reconcile(reconcileCtx)
		cancel()
	}

	restartScheduler := service.NewRestartScheduler(serverRepo, sup, serverService, time.Duration(cfg.RestartTickSeconds)*time.Second)
	restartScheduler.Start()

	collector := monitoring.NewCollector(serverRepo, sup, cfg.RCONPassword, 30*time.Second)
	collector.Start()

	router := api.SetupRouter(
		api.NewServerHandler(serverService, propertiesService),
		api.NewConsoleHandler(consoleService),
		api.NewPortHandler(portRegistry),
		api.NewTopologyHandler(topologyManager),
		api.NewPlayerHandler(playerService),
		api.NewPluginHandler(pluginService),
		api.NewAuthHandler(authService),
		api.NewEventsHandler(),
		db,
		cfg,
	)

	// Graceful shutdown: stop every running server before exiting so
	// worlds save cleanly.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...", nil)
		restartScheduler.Stop()
		collector.Stop()

		servers, err := serverRepo.FindAll()
		if err == nil {
			for _, srv := range servers {
				if !sup.IsActive(srv.ID) {
					continue
				}
				logger.Info("Stopping server for shutdown", map[string]interface{}{
					"server_id": srv.ID,
					"name":      srv.Name,
				})
				if err := sup.Stop(srv.ID); err != nil {
					logger.Error("Could not stop server", err, map[string]interface{}{
						"server_id": srv.ID,
					})
				}
			}
		}

		logger.Info("Shutdown complete", nil)
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("API listening", map[string]interface{}{
		"address":      addr,
		"health_check": fmt.Sprintf("http://localhost%s/health", addr),
	})

	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", err, nil)
	}
}
