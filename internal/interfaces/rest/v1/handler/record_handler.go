package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vijay324/expense-tracker-sub000/internal/auth"
	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/hub"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
	"github.com/vijay324/expense-tracker-sub000/internal/store"
)

// RecordHandler serves CRUD for one record kind and publishes a realtime
// event after each successful write. Fan-out never influences the HTTP
// outcome: the response reflects the store write alone.
type RecordHandler struct {
	store     store.RecordStore
	publisher hub.Publisher
	logger    logger.Logger

	kind    store.Kind
	created event.Type
	updated event.Type
	deleted event.Type
}

type recordRequest struct {
	Amount   *float64 `json:"amount" binding:"required"`
	Category string   `json:"category" binding:"required"`
	Note     string   `json:"note"`
	Date     string   `json:"date" binding:"required"`
}

func NewExpenseHandler(st store.RecordStore, pub hub.Publisher, log logger.Logger) *RecordHandler {
	return &RecordHandler{
		store:     st,
		publisher: pub,
		logger:    log.WithField("handler", "expense"),
		kind:      store.KindExpense,
		created:   event.TypeExpenseCreated,
		updated:   event.TypeExpenseUpdated,
		deleted:   event.TypeExpenseDeleted,
	}
}

func NewIncomeHandler(st store.RecordStore, pub hub.Publisher, log logger.Logger) *RecordHandler {
	return &RecordHandler{
		store:     st,
		publisher: pub,
		logger:    log.WithField("handler", "income"),
		kind:      store.KindIncome,
		created:   event.TypeIncomeCreated,
		updated:   event.TypeIncomeUpdated,
		deleted:   event.TypeIncomeDeleted,
	}
}

func (h *RecordHandler) List(c *gin.Context) {
	owner := auth.UserID(c)

	records, err := h.store.List(c.Request.Context(), owner, h.kind)
	if err != nil {
		h.logger.Errorf("list failed for %s: %v", owner, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list records"})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *RecordHandler) Create(c *gin.Context) {
	owner := auth.UserID(c)

	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record"})
		return
	}

	rec, err := h.store.Create(c.Request.Context(), owner, h.kind, store.Record{
		Amount:   *req.Amount,
		Category: req.Category,
		Note:     req.Note,
		Date:     req.Date,
	})
	if err != nil {
		h.logger.Errorf("create failed for %s: %v", owner, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create record"})
		return
	}

	h.publisher.Publish(c.Request.Context(), h.created, rec, hub.DirectedTo(owner))
	c.JSON(http.StatusCreated, rec)
}

func (h *RecordHandler) Update(c *gin.Context) {
	owner := auth.UserID(c)
	id := c.Param("id")

	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record"})
		return
	}

	rec, err := h.store.Update(c.Request.Context(), owner, h.kind, id, store.Record{
		Amount:   *req.Amount,
		Category: req.Category,
		Note:     req.Note,
		Date:     req.Date,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		h.logger.Errorf("update failed for %s/%s: %v", owner, id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update record"})
		return
	}

	h.publisher.Publish(c.Request.Context(), h.updated, rec, hub.DirectedTo(owner))
	c.JSON(http.StatusOK, rec)
}

func (h *RecordHandler) Delete(c *gin.Context) {
	owner := auth.UserID(c)
	id := c.Param("id")

	if err := h.store.Delete(c.Request.Context(), owner, h.kind, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		h.logger.Errorf("delete failed for %s/%s: %v", owner, id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete record"})
		return
	}

	h.publisher.Publish(c.Request.Context(), h.deleted, event.DeletedData{ID: id}, hub.DirectedTo(owner))
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
}
