package sse

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/hub"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

// InitStreamRouter mounts the event stream endpoint. The caller attaches the
// auth middleware on the parent group.
func InitStreamRouter(log logger.Logger, registry *hub.Registry, keepAlive time.Duration, rg *gin.RouterGroup) {
	handler := NewStreamHandler(registry, keepAlive, log)
	rg.GET("/stream", handler.Connect)
}
