package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vijay324/expense-tracker-sub000/internal/auth"
	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/hub"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

// StreamHandler serves the same per-user event stream as the SSE endpoint,
// over an upgraded WebSocket, for clients that prefer a socket transport.
type StreamHandler struct {
	registry *hub.Registry
	logger   logger.Logger
	upgrader websocket.Upgrader
}

func NewStreamHandler(registry *hub.Registry, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		registry: registry,
		logger:   log.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The browser client and the API share an origin in
				// production; tighten here when that changes.
				return true
			},
		},
	}
}

func (h *StreamHandler) Connect(c *gin.Context) {
	userID := auth.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("upgrade failed for user %s: %v", userID, err)
		return
	}

	connID := uuid.NewString()
	conn := hub.NewWebSocketConnection(connID, userID, wsConn, h.logger)

	h.registry.Register(conn)
	defer h.registry.Unregister(connID)

	if err := conn.Send(c.Request.Context(), event.Event{
		Type: event.TypeConnected,
		Data: event.ConnectedData{UserID: userID},
	}); err != nil {
		h.logger.Warnf("handshake write failed for %s: %v", connID, err)
		return
	}

	h.logger.Infof("websocket stream %s open for user %s", connID, userID)

	select {
	case <-conn.Context().Done():
	case <-c.Request.Context().Done():
	}
	h.logger.Infof("websocket stream %s closed", connID)
}
