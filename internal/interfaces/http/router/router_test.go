package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/infrastructure/lock"
	"github.com/shopcore/stockhold/internal/infrastructure/persistence/memory"
	"github.com/shopcore/stockhold/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMount(t *testing.T) {
	echo := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method+" "+c.FullPath()) }
	guard := func(c *gin.Context) {
		c.Header("X-Guard", "applied")
		c.Next()
	}

	engine := gin.New()
	Mount(engine, "v2",
		Group{
			Prefix: "/items",
			Routes: []Route{
				{http.MethodGet, "", echo},
				{http.MethodPost, "", echo},
				{http.MethodPut, "/:id", echo},
			},
		},
		Group{
			Prefix:     "/guarded",
			Middleware: []gin.HandlerFunc{guard},
			Routes:     []Route{{http.MethodGet, "/ping", echo}},
		},
	)

	tests := []struct {
		method, path string
		wantBody     string
		wantGuard    string
	}{
		{http.MethodGet, "/api/v2/items", "GET /api/v2/items", ""},
		{http.MethodPost, "/api/v2/items", "POST /api/v2/items", ""},
		{http.MethodPut, "/api/v2/items/7", "PUT /api/v2/items/:id", ""},
		{http.MethodGet, "/api/v2/guarded/ping", "GET /api/v2/guarded/ping", "applied"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
			assert.Equal(t, tt.wantGuard, w.Header().Get("X-Guard"))
		})
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/items", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func newHandlers(t *testing.T) Handlers {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	locker := lock.NewKeyedLocker()
	cfg := reservation.DefaultConfig()

	manager := reservation.NewManager(store.StockRepo(), store.ReservationRepo(), store, locker, cfg, logger)
	stockService := reservation.NewStockService(store.StockRepo(), store.ReservationRepo(), store, locker, cfg.LockWait, logger)
	validator := reservation.NewValidator(manager, nil, nil, logger)

	return Handlers{
		Stock:       handler.NewStockHandler(manager, validator, stockService),
		Reservation: handler.NewReservationHandler(manager, stockService),
		Cart:        handler.NewCartHandler(validator),
		Order:       handler.NewOrderHandler(reservation.NewOrderFinalizedHandler(manager, logger)),
		Admin:       handler.NewAdminHandler(reservation.NewSweeper(manager, store.ReservationRepo(), 10, logger)),
	}
}

func TestGroups_RouteTable(t *testing.T) {
	engine := gin.New()
	Mount(engine, APIVersion, Groups(newHandlers(t))...)

	registered := make(map[string]bool)
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /api/v1/stock/availability",
		"POST /api/v1/stock/availability/batch",
		"GET /api/v1/stock/audit",
		"GET /api/v1/stock",
		"POST /api/v1/stock",
		"GET /api/v1/stock/:product",
		"POST /api/v1/stock/restock",
		"POST /api/v1/stock/discontinue",
		"PUT /api/v1/stock/thresholds",
		"POST /api/v1/reservations",
		"GET /api/v1/reservations",
		"GET /api/v1/reservations/:id",
		"POST /api/v1/reservations/:id/release",
		"POST /api/v1/reservations/:id/commit",
		"POST /api/v1/carts/validate",
		"POST /api/v1/carts/:id/validate",
		"POST /api/v1/orders/:reference/finalize",
		"POST /api/v1/admin/sweep",
	}
	for _, route := range expected {
		assert.True(t, registered[route], "missing route %s", route)
	}
	assert.Len(t, registered, len(expected))
}

func TestGroups_StaticRoutesWinOverProductParam(t *testing.T) {
	engine := gin.New()
	Mount(engine, APIVersion, Groups(newHandlers(t))...)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stock/audit", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"consistent":true`))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stock/unknown-product", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGroups_BindsSKUFields(t *testing.T) {
	engine := gin.New()
	Mount(engine, APIVersion, Groups(newHandlers(t))...)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stock/availability?sku=a:b", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_VALIDATION")

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stock/availability?sku=widget", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
