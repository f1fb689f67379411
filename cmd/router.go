package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vijay324/expense-tracker-sub000/internal/auth"
	"github.com/vijay324/expense-tracker-sub000/internal/config"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/hub"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
	"github.com/vijay324/expense-tracker-sub000/internal/interfaces/rest/v1/handler"
	"github.com/vijay324/expense-tracker-sub000/internal/interfaces/sse"
	"github.com/vijay324/expense-tracker-sub000/internal/interfaces/websocket"
	"github.com/vijay324/expense-tracker-sub000/internal/store"
)

func InitRouter(
	cfg *config.Config,
	log logger.Logger,
	registry *hub.Registry,
	publisher hub.Publisher,
	recordStore store.RecordStore,
	ident auth.Identity,
) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	// Health check endpoint
	rootGroup.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"connections": registry.Len(),
		})
	})

	authed := rootGroup.Group("", auth.Middleware(ident, log))

	keepAlive := time.Duration(cfg.Stream.KeepAliveSec) * time.Second
	sse.InitStreamRouter(log, registry, keepAlive, authed)
	websocket.InitStreamRouter(log, registry, authed)

	apiGroup := authed.Group("/api/v1")
	handler.InitRecordRoutes(log, recordStore, publisher, apiGroup)

	return router
}
