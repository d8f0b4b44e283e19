package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prismarine/craftd/internal/middleware"
	"github.com/prismarine/craftd/internal/service"
)

type PluginHandler struct {
	plugins *service.PluginService
}

func NewPluginHandler(plugins *service.PluginService) *PluginHandler {
	return &PluginHandler{plugins: plugins}
}

// SearchCatalog handles GET /api/servers/:id/catalog/search
func (h *PluginHandler) SearchCatalog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	results, err := h.plugins.Search(c.Param("id"), c.Query("query"), limit, offset)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// InstallRequest is the body for POST /api/servers/:id/plugins
type InstallRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
}

// InstallPlugin handles POST /api/servers/:id/plugins
func (h *PluginHandler) InstallPlugin(c *gin.Context) {
	var req InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filename, err := h.plugins.Install(c.Param("id"), req.ProjectID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Plugin installed", "file": filename})
}

// ListPlugins handles GET /api/servers/:id/plugins
func (h *PluginHandler) ListPlugins(c *gin.Context) {
	files, err := h.plugins.Installed(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plugins": files})
}

// UninstallPlugin handles DELETE /api/servers/:id/plugins/:file
func (h *PluginHandler) UninstallPlugin(c *gin.Context) {
	if err := h.plugins.Uninstall(c.Param("id"), c.Param("file")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Plugin removed"})
}
