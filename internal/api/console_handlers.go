package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/prismarine/craftd/internal/service"
	"github.com/prismarine/craftd/pkg/logger"
)

// createUpgrader creates a WebSocket upgrader with CORS settings
func createUpgrader(allowAllOrigins bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAllOrigins {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == r.Host
		},
	}
}

type ConsoleHandler struct {
	console  *service.ConsoleService
	upgrader websocket.Upgrader
}

func NewConsoleHandler(console *service.ConsoleService) *ConsoleHandler {
	return &ConsoleHandler{
		console:  console,
		upgrader: createUpgrader(true),
	}
}

// ConsoleMessage is the websocket frame: "log" and "error" go out,
// "command" comes in, "ack" answers a command.
type ConsoleMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// HandleConsoleWebSocket handles GET /api/servers/:id/console/stream
func (h *ConsoleHandler) HandleConsoleWebSocket(c *gin.Context) {
	serverID := c.Param("id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", err, map[string]interface{}{
			"server_id": serverID,
		})
		return
	}
	defer conn.Close()

	logChan, cancel, err := h.console.StreamLogs(serverID)
	if err != nil {
		conn.WriteJSON(ConsoleMessage{Type: "error", Content: err.Error()})
		return
	}
	defer cancel()

	logger.Info("Console WebSocket connected", map[string]interface{}{
		"server_id": serverID,
	})

	done := make(chan struct{})

	// Reader: commands from the client into stdin.
	go func() {
		defer close(done)
		for {
			var msg ConsoleMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Error("WebSocket read error", err, map[string]interface{}{
						"server_id": serverID,
					})
				}
				return
			}

			if msg.Type != "command" {
				continue
			}
			if err := h.console.ExecuteCommand(serverID, msg.Content); err != nil {
				conn.WriteJSON(ConsoleMessage{Type: "error", Content: err.Error()})
				continue
			}
			conn.WriteJSON(ConsoleMessage{Type: "ack", Content: msg.Content})
		}
	}()

	// Writer: buffered backlog then live lines.
	for {
		select {
		case line, ok := <-logChan:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ConsoleMessage{Type: "log", Content: line}); err != nil {
				return
			}
		case <-done:
			logger.Info("Console WebSocket disconnected", map[string]interface{}{
				"server_id": serverID,
			})
			return
		}
	}
}
