package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/atrium-ops/bms-backend-go/internal/websocket"
)

// WebSocketHandler upgrades the connection and streams alert lifecycle events
func (h *Handlers) WebSocketHandler(hub *websocket.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		websocket.ServeWS(hub, c.Writer, c.Request, h.log)
	}
}
