package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prismarine/craftd/internal/middleware"
	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/internal/service"
)

type ServerHandler struct {
	servers    *service.ServerService
	properties *service.PropertiesService
}

func NewServerHandler(servers *service.ServerService, properties *service.PropertiesService) *ServerHandler {
	return &ServerHandler{servers: servers, properties: properties}
}

// CreateServerRequest is the body for POST /api/servers
type CreateServerRequest struct {
	Name     string `json:"name" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
	Version  string `json:"version" binding:"required"`
	Port     int    `json:"port" binding:"required"`
	MemoryMB int    `json:"memory_mb" binding:"required,min=256"`
}

// CreateServer handles POST /api/servers
func (h *ServerHandler) CreateServer(c *gin.Context) {
	var req CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	srv, err := h.servers.Create(req.Name, models.ServerKind(req.Kind), req.Version, req.Port, req.MemoryMB)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, srv)
}

// ListServers handles GET /api/servers
func (h *ServerHandler) ListServers(c *gin.Context) {
	servers, err := h.servers.List()
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": servers, "count": len(servers)})
}

// GetServer handles GET /api/servers/:id
func (h *ServerHandler) GetServer(c *gin.Context) {
	srv, err := h.servers.Get(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	status, detail, err := h.servers.Status(srv.ID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	srv.Status = status
	srv.StatusDetail = detail
	c.JSON(http.StatusOK, srv)
}

// StartServer handles POST /api/servers/:id/start
func (h *ServerHandler) StartServer(c *gin.Context) {
	if err := h.servers.Start(c.Param("id")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Server starting"})
}

// StopServer handles POST /api/servers/:id/stop
func (h *ServerHandler) StopServer(c *gin.Context) {
	if err := h.servers.Stop(c.Param("id")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Server stopped"})
}

// RestartServer handles POST /api/servers/:id/restart
func (h *ServerHandler) RestartServer(c *gin.Context) {
	if err := h.servers.Restart(c.Param("id"), "manual"); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Server restarting"})
}

// DeleteServer handles DELETE /api/servers/:id
func (h *ServerHandler) DeleteServer(c *gin.Context) {
	force := c.Query("force") == "true"
	if err := h.servers.Delete(c.Param("id"), force); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Server deleted"})
}

// CommandRequest is the body for POST /api/servers/:id/command
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// SendCommand handles POST /api/servers/:id/command
func (h *ServerHandler) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.servers.SendCommand(c.Param("id"), req.Command); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Command sent"})
}

// GetLogs handles GET /api/servers/:id/logs
func (h *ServerHandler) GetLogs(c *gin.Context) {
	lines, _ := strconv.Atoi(c.DefaultQuery("lines", "100"))

	logs, err := h.servers.Logs(c.Param("id"), lines)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// AutoRestartRequest is the body for PUT /api/servers/:id/autorestart
type AutoRestartRequest struct {
	Enabled         bool   `json:"enabled"`
	Mode            string `json:"mode"`
	IntervalSeconds int    `json:"interval_seconds"`
	At              string `json:"at"`
	Timezone        string `json:"timezone"`
}

// SetAutoRestart handles PUT /api/servers/:id/autorestart
func (h *ServerHandler) SetAutoRestart(c *gin.Context) {
	var req AutoRestartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.servers.SetAutoRestart(c.Param("id"), req.Enabled, models.RestartMode(req.Mode), req.IntervalSeconds, req.At, req.Timezone)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Restart policy updated"})
}

// GetProperties handles GET /api/servers/:id/properties
func (h *ServerHandler) GetProperties(c *gin.Context) {
	props, err := h.properties.Properties(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"properties": props})
}

// PropertiesRequest is the body for PATCH /api/servers/:id/properties
type PropertiesRequest struct {
	MOTD       *string `json:"motd"`
	MaxPlayers *int    `json:"max_players"`
}

// UpdateProperties handles PATCH /api/servers/:id/properties
func (h *ServerHandler) UpdateProperties(c *gin.Context) {
	var req PropertiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.properties.Update(c.Param("id"), req.MOTD, req.MaxPlayers); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Properties updated"})
}
