package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prismarine/craftd/internal/middleware"
	"github.com/prismarine/craftd/internal/topology"
)

type TopologyHandler struct {
	manager *topology.Manager
}

func NewTopologyHandler(manager *topology.Manager) *TopologyHandler {
	return &TopologyHandler{manager: manager}
}

// LinkRequest is the body for POST and DELETE /api/topology/links
type LinkRequest struct {
	ProxyID   string `json:"proxy_id" binding:"required"`
	BackendID string `json:"backend_id" binding:"required"`
	Direct    bool   `json:"direct"`
}

// AttachBackend handles POST /api/topology/links
func (h *TopologyHandler) AttachBackend(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.AttachBackend(req.ProxyID, req.BackendID, req.Direct); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backend attached"})
}

// DetachBackend handles DELETE /api/topology/links
func (h *TopologyHandler) DetachBackend(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.DetachBackend(req.ProxyID, req.BackendID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backend detached"})
}

// PeerRequest is the body for POST /api/topology/peers
type PeerRequest struct {
	ServerA string `json:"server_a" binding:"required"`
	ServerB string `json:"server_b" binding:"required"`
}

// ConnectPeers handles POST /api/topology/peers
func (h *TopologyHandler) ConnectPeers(c *gin.Context) {
	var req PeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.ConnectPeers(req.ServerA, req.ServerB); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Peers connected"})
}

// ListNodes handles GET /api/topology/nodes
func (h *TopologyHandler) ListNodes(c *gin.Context) {
	nodes, err := h.manager.Nodes()
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

// Reachability handles GET /api/topology/reachability/:id
func (h *TopologyHandler) Reachability(c *gin.Context) {
	proxies, err := h.manager.ResolveIndirectReachability(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proxies": proxies})
}
