package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

// Browsers cannot set headers on websocket upgrades, so the dashboard
// authenticates via query token instead of the Authorization header.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocket upgrades the connection and registers it on the hub under the
// authenticated user.
func (h *Handler) WebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		RespondWithError(c, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Missing token", nil)
		return
	}
	userID, err := h.verifyToken(token)
	if err != nil {
		RespondWithError(c, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Invalid token", nil)
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.hub.Register(userID, conn)
}
