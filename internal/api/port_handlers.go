package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prismarine/craftd/internal/middleware"
	"github.com/prismarine/craftd/internal/portmap"
)

type PortHandler struct {
	registry *portmap.Registry
}

func NewPortHandler(registry *portmap.Registry) *PortHandler {
	return &PortHandler{registry: registry}
}

// ListMappings handles GET /api/ports
func (h *PortHandler) ListMappings(c *gin.Context) {
	mappings, err := h.registry.List()
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings})
}

// OpenMappingRequest is the body for PUT /api/ports/:slot
type OpenMappingRequest struct {
	ExternalPort int    `json:"external_port" binding:"required"`
	Protocol     string `json:"protocol" binding:"required"`
	Label        string `json:"label"`
}

// OpenMapping handles PUT /api/ports/:slot
func (h *PortHandler) OpenMapping(c *gin.Context) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slot must be a number"})
		return
	}

	var req OpenMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.Open(c.Request.Context(), slot, req.ExternalPort, req.Protocol, req.Label); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mapping opened"})
}

// SetActiveRequest is the body for PATCH /api/ports/:slot
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetMappingActive handles PATCH /api/ports/:slot
func (h *PortHandler) SetMappingActive(c *gin.Context) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slot must be a number"})
		return
	}

	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.SetActive(c.Request.Context(), slot, *req.Active); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mapping updated"})
}

// RemoveMapping handles DELETE /api/ports/:slot
func (h *PortHandler) RemoveMapping(c *gin.Context) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slot must be a number"})
		return
	}

	if err := h.registry.Remove(c.Request.Context(), slot); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Mapping removed"})
}

// RouterStatus handles GET /api/router
func (h *PortHandler) RouterStatus(c *gin.Context) {
	ctx := c.Request.Context()

	reachable := h.registry.RouterReachable(ctx)
	status := gin.H{"reachable": reachable}
	if reachable {
		if ip, err := h.registry.ExternalIP(ctx); err == nil {
			status["external_ip"] = ip
		}
	}
	c.JSON(http.StatusOK, status)
}
