package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vijay324/expense-tracker-sub000/internal/auth"
	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/hub"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
	"github.com/vijay324/expense-tracker-sub000/internal/store"
)

type publishedEvent struct {
	Type    event.Type
	Payload any
}

type spyPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (s *spyPublisher) Publish(ctx context.Context, t event.Type, payload any, opts ...hub.PublishOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, publishedEvent{Type: t, Payload: payload})
}

func (s *spyPublisher) published() []publishedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]publishedEvent(nil), s.events...)
}

type failingStore struct {
	store.RecordStore
}

func (f *failingStore) Create(ctx context.Context, owner string, kind store.Kind, rec store.Record) (store.Record, error) {
	return store.Record{}, errors.New("write failed")
}

func newRecordTestRouter(st store.RecordStore, pub hub.Publisher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	ident := auth.NewStaticTokens(map[string]string{"tok-alice": "alice"})

	router := gin.New()
	api := router.Group("/api/v1", auth.Middleware(ident, log))
	InitRecordRoutes(log, st, pub, api)
	return router
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer tok-alice")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateExpense_PublishesAfterWrite(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &spyPublisher{}
	router := newRecordTestRouter(st, pub)

	w := doJSON(router, http.MethodPost, "/api/v1/expenses", gin.H{
		"amount":   50,
		"category": "Food",
		"date":     "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var rec store.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 50.0, rec.Amount)

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeExpenseCreated, events[0].Type)
	payload, ok := events[0].Payload.(store.Record)
	require.True(t, ok)
	assert.Equal(t, rec.ID, payload.ID)

	// The write really committed before the publish.
	stored, err := st.Get(context.Background(), "alice", store.KindExpense, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Food", stored.Category)
}

func TestCreateExpense_StoreFailureDoesNotPublish(t *testing.T) {
	pub := &spyPublisher{}
	router := newRecordTestRouter(&failingStore{store.NewMemoryStore()}, pub)

	w := doJSON(router, http.MethodPost, "/api/v1/expenses", gin.H{
		"amount":   50,
		"category": "Food",
		"date":     "2024-01-01",
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, pub.published(), "no event may be published for a failed write")
}

func TestCreateExpense_RejectsInvalidBody(t *testing.T) {
	pub := &spyPublisher{}
	router := newRecordTestRouter(store.NewMemoryStore(), pub)

	w := doJSON(router, http.MethodPost, "/api/v1/expenses", gin.H{"category": "Food"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, pub.published())
}

func TestUpdateAndDeleteIncome_PublishTypedEvents(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &spyPublisher{}
	router := newRecordTestRouter(st, pub)

	created, err := st.Create(context.Background(), "alice", store.KindIncome, store.Record{
		Amount: 1000, Category: "Salary", Date: "2024-01-01",
	})
	require.NoError(t, err)

	w := doJSON(router, http.MethodPut, "/api/v1/incomes/"+created.ID, gin.H{
		"amount":   1200,
		"category": "Salary",
		"date":     "2024-01-01",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/v1/incomes/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, event.TypeIncomeUpdated, events[0].Type)
	assert.Equal(t, event.TypeIncomeDeleted, events[1].Type)

	deleted, ok := events[1].Payload.(event.DeletedData)
	require.True(t, ok)
	assert.Equal(t, created.ID, deleted.ID)
}

func TestUpdate_MissingRecordIs404(t *testing.T) {
	pub := &spyPublisher{}
	router := newRecordTestRouter(store.NewMemoryStore(), pub)

	w := doJSON(router, http.MethodPut, "/api/v1/expenses/nope", gin.H{
		"amount":   1,
		"category": "Misc",
		"date":     "2024-01-01",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, pub.published())
}

func TestSummary_AggregatesWithExactArithmetic(t *testing.T) {
	st := store.NewMemoryStore()
	router := newRecordTestRouter(st, &spyPublisher{})
	ctx := context.Background()

	// 0.1+0.2 style amounts stay exact through the decimal aggregation.
	_, _ = st.Create(ctx, "alice", store.KindExpense, store.Record{Amount: 0.1, Category: "Food", Date: "2024-01-01"})
	_, _ = st.Create(ctx, "alice", store.KindExpense, store.Record{Amount: 0.2, Category: "Food", Date: "2024-01-02"})
	_, _ = st.Create(ctx, "alice", store.KindIncome, store.Record{Amount: 100, Category: "Salary", Date: "2024-01-01"})

	w := doJSON(router, http.MethodGet, "/api/v1/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Income struct {
			Total string `json:"total"`
			Count int    `json:"count"`
		} `json:"income"`
		Expense struct {
			Total      string            `json:"total"`
			ByCategory map[string]string `json:"byCategory"`
		} `json:"expense"`
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "0.3", resp.Expense.Total)
	assert.Equal(t, "0.3", resp.Expense.ByCategory["Food"])
	assert.Equal(t, "100", resp.Income.Total)
	assert.Equal(t, 1, resp.Income.Count)
	assert.Equal(t, "99.7", resp.Balance)
}
