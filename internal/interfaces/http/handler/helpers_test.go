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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/lock"
	"github.com/shopcore/stockhold/internal/infrastructure/persistence/memory"
	"github.com/shopcore/stockhold/internal/interfaces/http/dto"
	"github.com/shopcore/stockhold/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, errors.New("lock held elsewhere")
}

type staticCarts map[string][]stock.CartLine

func (s staticCarts) ReadCart(_ context.Context, cartID string) ([]stock.CartLine, error) {
	lines, ok := s[cartID]
	if !ok {
		return nil, stock.ErrCartNotFound
	}
	return lines, nil
}

type testServer struct {
	engine  *gin.Engine
	clock   *testClock
	manager *reservation.Manager
	stock   *reservation.StockService
}

type serverOption func(*serverOptions)

type serverOptions struct {
	config reservation.Config
	locker reservation.SKULocker
	carts  stock.CartReader
}

func withConfig(cfg reservation.Config) serverOption {
	return func(o *serverOptions) { o.config = cfg }
}

func withManagerLocker(l reservation.SKULocker) serverOption {
	return func(o *serverOptions) { o.locker = l }
}

func withCarts(c stock.CartReader) serverOption {
	return func(o *serverOptions) { o.carts = c }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	options := serverOptions{config: reservation.DefaultConfig()}
	for _, opt := range opts {
		opt(&options)
	}

	logger := zap.NewNop()
	store := memory.NewStore()
	locker := lock.NewKeyedLocker()
	managerLocker := options.locker
	if managerLocker == nil {
		managerLocker = locker
	}

	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	manager := reservation.NewManager(store.StockRepo(), store.ReservationRepo(), store, managerLocker, options.config, logger)
	manager.SetClock(clock.Now)
	stockService := reservation.NewStockService(store.StockRepo(), store.ReservationRepo(), store, locker, options.config.LockWait, logger)
	validator := reservation.NewValidator(manager, nil, options.carts, logger)
	finalizer := reservation.NewOrderFinalizedHandler(manager, logger)
	sweeper := reservation.NewSweeper(manager, store.ReservationRepo(), 10, logger)

	stockHandler := NewStockHandler(manager, validator, stockService)
	reservationHandler := NewReservationHandler(manager, stockService)
	cartHandler := NewCartHandler(validator)
	orderHandler := NewOrderHandler(finalizer)
	adminHandler := NewAdminHandler(sweeper)

	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1")
	api.GET("/stock/availability", stockHandler.GetAvailability)
	api.POST("/stock/availability/batch", stockHandler.BatchAvailability)
	api.POST("/stock", stockHandler.CreateStock)
	api.GET("/stock", stockHandler.ListStock)
	api.GET("/stock/:product", stockHandler.GetStock)
	api.POST("/stock/restock", stockHandler.Restock)
	api.POST("/stock/discontinue", stockHandler.Discontinue)
	api.PUT("/stock/thresholds", stockHandler.UpdateThresholds)
	api.GET("/stock/audit", stockHandler.Audit)
	api.POST("/reservations", reservationHandler.Reserve)
	api.GET("/reservations", reservationHandler.ListByHolder)
	api.GET("/reservations/:id", reservationHandler.GetReservation)
	api.POST("/reservations/:id/release", reservationHandler.Release)
	api.POST("/reservations/:id/commit", reservationHandler.Commit)
	api.POST("/carts/validate", cartHandler.ValidateCart)
	api.POST("/carts/:id/validate", cartHandler.ValidateStoredCart)
	api.POST("/orders/:reference/finalize", orderHandler.Finalize)
	api.POST("/admin/sweep", adminHandler.Sweep)

	return &testServer{engine: r, clock: clock, manager: manager, stock: stockService}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) seed(t *testing.T, product string, onHand int64) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/stock", map[string]any{
		"product_id": product,
		"on_hand":    onHand,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (s *testServer) reserve(t *testing.T, product string, qty int64) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"product_id": product,
		"quantity":   qty,
		"holder":     "cart-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result reservation.ReserveResult
	decodeData(t, w, &result)
	return result.ReservationID.String()
}

// decodeData unmarshals the data field of a success envelope into out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}
