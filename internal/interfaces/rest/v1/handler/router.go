package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/hub"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
	"github.com/vijay324/expense-tracker-sub000/internal/store"
)

// InitRecordRoutes mounts the income/expense CRUD and summary endpoints on an
// authenticated group.
func InitRecordRoutes(log logger.Logger, st store.RecordStore, pub hub.Publisher, rg *gin.RouterGroup) {
	expenses := NewExpenseHandler(st, pub, log)
	incomes := NewIncomeHandler(st, pub, log)
	summary := NewSummaryHandler(st, log)

	eg := rg.Group("/expenses")
	{
		eg.GET("", expenses.List)
		eg.POST("", expenses.Create)
		eg.PUT("/:id", expenses.Update)
		eg.DELETE("/:id", expenses.Delete)
	}

	ig := rg.Group("/incomes")
	{
		ig.GET("", incomes.List)
		ig.POST("", incomes.Create)
		ig.PUT("/:id", incomes.Update)
		ig.DELETE("/:id", incomes.Delete)
	}

	rg.GET("/summary", summary.Summary)
}
