package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prismarine/craftd/internal/middleware"
	"github.com/prismarine/craftd/internal/service"
)

type PlayerHandler struct {
	players *service.PlayerService
}

func NewPlayerHandler(players *service.PlayerService) *PlayerHandler {
	return &PlayerHandler{players: players}
}

// OnlinePlayers handles GET /api/servers/:id/players
func (h *PlayerHandler) OnlinePlayers(c *gin.Context) {
	players, err := h.players.OnlinePlayers(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": players, "count": len(players)})
}

// ListOps handles GET /api/servers/:id/ops
func (h *PlayerHandler) ListOps(c *gin.Context) {
	ops, err := h.players.Ops(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ops": ops})
}

// OpRequest is the body for POST /api/servers/:id/ops
type OpRequest struct {
	Player string `json:"player" binding:"required"`
}

// GrantOp handles POST /api/servers/:id/ops
func (h *PlayerHandler) GrantOp(c *gin.Context) {
	var req OpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.players.GrantOp(c.Param("id"), req.Player); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Operator granted"})
}

// RevokeOp handles DELETE /api/servers/:id/ops/:player
func (h *PlayerHandler) RevokeOp(c *gin.Context) {
	if err := h.players.RevokeOp(c.Param("id"), c.Param("player")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Operator revoked"})
}
