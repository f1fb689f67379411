package sse

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vijay324/expense-tracker-sub000/internal/auth"
	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/hub"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

// StreamHandler upgrades an authenticated GET into a long-lived
// server-to-client event stream registered with the connection registry.
type StreamHandler struct {
	registry  *hub.Registry
	keepAlive time.Duration
	logger    logger.Logger
}

func NewStreamHandler(registry *hub.Registry, keepAlive time.Duration, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		registry:  registry,
		keepAlive: keepAlive,
		logger:    log.WithField("handler", "stream"),
	}
}

// Connect holds the request open for the lifetime of the stream. The auth
// middleware has already rejected unauthenticated callers.
func (h *StreamHandler) Connect(c *gin.Context) {
	userID := auth.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	// Clients that cannot consume an event stream get a one-shot JSON
	// answer telling them to poll instead.
	flusher, ok := c.Writer.(http.Flusher)
	if !ok || !acceptsEventStream(c.Request) {
		h.logger.Infof("stream unsupported for user %s, advising polling", userID)
		c.JSON(http.StatusOK, gin.H{
			"streaming": false,
			"message":   "event streaming unavailable, poll the collection endpoints",
		})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // nginx
	c.Writer.WriteHeader(http.StatusOK)

	connID := uuid.NewString()
	conn := hub.NewSSEConnection(c.Request.Context(), connID, userID, c.Writer, flusher, h.logger)

	h.registry.Register(conn)

	// Teardown must run exactly once no matter why the stream ends.
	var once sync.Once
	unregister := func() {
		once.Do(func() {
			h.registry.Unregister(connID)
		})
	}
	defer unregister()

	if err := conn.Send(c.Request.Context(), event.Event{
		Type: event.TypeConnected,
		Data: event.ConnectedData{UserID: userID},
	}); err != nil {
		h.logger.Warnf("handshake write failed for %s: %v", connID, err)
		return
	}

	h.logger.Infof("stream %s open for user %s", connID, userID)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.SendKeepAlive(); err != nil {
				h.logger.Debugf("keepalive failed for %s: %v", connID, err)
				return
			}

		case <-c.Request.Context().Done():
			h.logger.Infof("client disconnected from stream %s", connID)
			return

		case <-conn.Context().Done():
			h.logger.Infof("stream %s closed by server", connID)
			return
		}
	}
}

func acceptsEventStream(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" || accept == "*/*" {
		return true
	}
	return strings.Contains(accept, "text/event-stream")
}
