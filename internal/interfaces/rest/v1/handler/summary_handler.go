package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vijay324/expense-tracker-sub000/internal/auth"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
	"github.com/vijay324/expense-tracker-sub000/internal/store"
)

// SummaryHandler aggregates a user's records into totals. Amounts are summed
// with decimals so float noise never reaches the report.
type SummaryHandler struct {
	store  store.RecordStore
	logger logger.Logger
}

type kindSummary struct {
	Total      string            `json:"total"`
	ByCategory map[string]string `json:"byCategory"`
	Count      int               `json:"count"`
}

type summaryResponse struct {
	Income  kindSummary `json:"income"`
	Expense kindSummary `json:"expense"`
	Balance string      `json:"balance"`
}

func NewSummaryHandler(st store.RecordStore, log logger.Logger) *SummaryHandler {
	return &SummaryHandler{
		store:  st,
		logger: log.WithField("handler", "summary"),
	}
}

func (h *SummaryHandler) Summary(c *gin.Context) {
	owner := auth.UserID(c)

	income, err := h.summarize(c, owner, store.KindIncome)
	if err != nil {
		h.logger.Errorf("summarize income for %s: %v", owner, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}
	expense, err := h.summarize(c, owner, store.KindExpense)
	if err != nil {
		h.logger.Errorf("summarize expenses for %s: %v", owner, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}

	incomeTotal, _ := decimal.NewFromString(income.Total)
	expenseTotal, _ := decimal.NewFromString(expense.Total)

	c.JSON(http.StatusOK, summaryResponse{
		Income:  income,
		Expense: expense,
		Balance: incomeTotal.Sub(expenseTotal).String(),
	})
}

func (h *SummaryHandler) summarize(c *gin.Context, owner string, kind store.Kind) (kindSummary, error) {
	records, err := h.store.List(c.Request.Context(), owner, kind)
	if err != nil {
		return kindSummary{}, err
	}

	total := decimal.Zero
	byCategory := make(map[string]decimal.Decimal)
	for _, rec := range records {
		amount := decimal.NewFromFloat(rec.Amount)
		total = total.Add(amount)
		byCategory[rec.Category] = byCategory[rec.Category].Add(amount)
	}

	out := kindSummary{
		Total:      total.String(),
		ByCategory: make(map[string]string, len(byCategory)),
		Count:      len(records),
	}
	for cat, amount := range byCategory {
		out.ByCategory[cat] = amount.String()
	}
	return out, nil
}
