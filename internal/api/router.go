package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/prismarine/craftd/internal/middleware"
	"github.com/prismarine/craftd/pkg/config"
)

func SetupRouter(
	serverHandler *ServerHandler,
	consoleHandler *ConsoleHandler,
	portHandler *PortHandler,
	topologyHandler *TopologyHandler,
	playerHandler *PlayerHandler,
	pluginHandler *PluginHandler,
	authHandler *AuthHandler,
	eventsHandler *EventsHandler,
	db *gorm.DB,
	cfg *config.Config,
) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestLogger())

	// Unauthenticated surface: health, metrics, login.
	healthHandler := NewHealthHandler(db)
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/live", healthHandler.LivenessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := router.Group("/api/auth")
	auth.Use(middleware.RateLimit(middleware.LoginRateLimiter))
	{
		auth.POST("/login", authHandler.Login)
	}

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware())
	{
		servers := api.Group("/servers")
		{
			servers.POST("", middleware.RateLimit(middleware.ProvisionRateLimiter), serverHandler.CreateServer)
			servers.GET("", serverHandler.ListServers)
			servers.GET("/:id", serverHandler.GetServer)
			servers.DELETE("/:id", serverHandler.DeleteServer)

			servers.POST("/:id/start", serverHandler.StartServer)
			servers.POST("/:id/stop", serverHandler.StopServer)
			servers.POST("/:id/restart", serverHandler.RestartServer)
			servers.POST("/:id/command", serverHandler.SendCommand)
			servers.GET("/:id/logs", serverHandler.GetLogs)
			servers.PUT("/:id/autorestart", serverHandler.SetAutoRestart)

			servers.GET("/:id/properties", serverHandler.GetProperties)
			servers.PATCH("/:id/properties", serverHandler.UpdateProperties)

			servers.GET("/:id/players", playerHandler.OnlinePlayers)
			servers.GET("/:id/ops", playerHandler.ListOps)
			servers.POST("/:id/ops", playerHandler.GrantOp)
			servers.DELETE("/:id/ops/:player", playerHandler.RevokeOp)

			servers.GET("/:id/catalog/search", pluginHandler.SearchCatalog)
			servers.GET("/:id/plugins", pluginHandler.ListPlugins)
			servers.POST("/:id/plugins", middleware.RateLimit(middleware.ProvisionRateLimiter), pluginHandler.InstallPlugin)
			servers.DELETE("/:id/plugins/:file", pluginHandler.UninstallPlugin)

			servers.GET("/:id/console/stream", consoleHandler.HandleConsoleWebSocket)
		}

		ports := api.Group("/ports")
		{
			ports.GET("", portHandler.ListMappings)
			ports.PUT("/:slot", portHandler.OpenMapping)
			ports.PATCH("/:slot", portHandler.SetMappingActive)
			ports.DELETE("/:slot", portHandler.RemoveMapping)
		}
		api.GET("/router", portHandler.RouterStatus)

		topo := api.Group("/topology")
		{
			topo.POST("/links", topologyHandler.AttachBackend)
			topo.DELETE("/links", topologyHandler.DetachBackend)
			topo.POST("/peers", topologyHandler.ConnectPeers)
			topo.GET("/nodes", topologyHandler.ListNodes)
			topo.GET("/reachability/:id", topologyHandler.Reachability)
		}

		api.GET("/events", eventsHandler.QueryEvents)
	}

	return router
}
