package websocket

import (
	"github.com/gin-gonic/gin"

	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/hub"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

// InitStreamRouter mounts the WebSocket stream endpoint. The caller attaches
// the auth middleware on the parent group.
func InitStreamRouter(log logger.Logger, registry *hub.Registry, rg *gin.RouterGroup) {
	handler := NewStreamHandler(registry, log)
	rg.GET("/ws", handler.Connect)
}
