package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prismarine/craftd/internal/events"
	"github.com/prismarine/craftd/internal/middleware"
)

type EventsHandler struct{}

func NewEventsHandler() *EventsHandler {
	return &EventsHandler{}
}

// QueryEvents handles GET /api/events
func (h *EventsHandler) QueryEvents(c *gin.Context) {
	filters := events.EventFilters{
		ServerID: c.Query("server_id"),
	}

	if t := c.Query("type"); t != "" {
		filters.Types = []events.EventType{events.EventType(t)}
	}
	if s := c.Query("since"); s != "" {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			filters.StartTime = ts
		}
	}
	filters.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))

	result, err := events.GetEventBus().Query(filters)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": result, "count": len(result)})
}
