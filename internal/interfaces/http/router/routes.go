package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopcore/stockhold/internal/interfaces/http/handler"
	"github.com/shopcore/stockhold/internal/interfaces/http/middleware"
)

// APIVersion is the path segment every route below is mounted under.
const APIVersion = "v1"

// Handlers are the HTTP handlers mounted under /api/v1
type Handlers struct {
	Stock       *handler.StockHandler
	Reservation *handler.ReservationHandler
	Cart        *handler.CartHandler
	Order       *handler.OrderHandler
	Admin       *handler.AdminHandler
	// AdminMiddleware guards /admin, e.g. a stricter rate limit
	AdminMiddleware []gin.HandlerFunc
}

// Groups builds the route table. Static stock paths such as /stock/audit
// take precedence over /stock/:product. The request validators the
// handlers bind against are registered here.
func Groups(h Handlers) []Group {
	middleware.SetupValidator()
	return []Group{
		{
			Prefix: "/stock",
			Routes: []Route{
				{http.MethodGet, "/availability", h.Stock.GetAvailability},
				{http.MethodPost, "/availability/batch", h.Stock.BatchAvailability},
				{http.MethodGet, "/audit", h.Stock.Audit},
				{http.MethodGet, "", h.Stock.ListStock},
				{http.MethodPost, "", h.Stock.CreateStock},
				{http.MethodGet, "/:product", h.Stock.GetStock},
				{http.MethodPost, "/restock", h.Stock.Restock},
				{http.MethodPost, "/discontinue", h.Stock.Discontinue},
				{http.MethodPut, "/thresholds", h.Stock.UpdateThresholds},
			},
		},
		{
			Prefix: "/reservations",
			Routes: []Route{
				{http.MethodPost, "", h.Reservation.Reserve},
				{http.MethodGet, "", h.Reservation.ListByHolder}, // ?holder=
				{http.MethodGet, "/:id", h.Reservation.GetReservation},
				{http.MethodPost, "/:id/release", h.Reservation.Release},
				{http.MethodPost, "/:id/commit", h.Reservation.Commit},
			},
		},
		{
			Prefix: "/carts",
			Routes: []Route{
				{http.MethodPost, "/validate", h.Cart.ValidateCart},
				{http.MethodPost, "/:id/validate", h.Cart.ValidateStoredCart},
			},
		},
		{
			Prefix: "/orders",
			Routes: []Route{
				{http.MethodPost, "/:reference/finalize", h.Order.Finalize},
			},
		},
		{
			Prefix:     "/admin",
			Middleware: h.AdminMiddleware,
			Routes: []Route{
				{http.MethodPost, "/sweep", h.Admin.Sweep},
			},
		},
	}
}
