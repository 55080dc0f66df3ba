package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/interfaces/http/dto"
	"github.com/shopcore/stockhold/internal/interfaces/http/middleware"
)

// ReservationHandler serves the reserve, release and commit lifecycle
type ReservationHandler struct {
	BaseHandler
	manager      *reservation.Manager
	stockService *reservation.StockService
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(manager *reservation.Manager, stockService *reservation.StockService) *ReservationHandler {
	return &ReservationHandler{
		BaseHandler:  BaseHandler{RetryAfter: manager.Config().LockWait},
		manager:      manager,
		stockService: stockService,
	}
}

// Reserve handles POST /reservations
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req ReserveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	c.Set(middleware.HolderContextKey, req.Holder)
	sku, ok := h.parseSKU(c, req.ProductID, req.VariantID)
	if !ok {
		return
	}

	result, err := h.manager.Reserve(c.Request.Context(), reservation.ReserveCommand{
		SKU:      sku,
		Quantity: req.Quantity,
		Holder:   req.Holder,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// GetReservation handles GET /reservations/:id
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	id, ok := h.reservationID(c)
	if !ok {
		return
	}

	view, err := h.stockService.GetReservation(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Set(middleware.HolderContextKey, view.Holder)
	h.Success(c, view)
}

// ListByHolder handles GET /reservations?holder=
func (h *ReservationHandler) ListByHolder(c *gin.Context) {
	var q HolderQuery
	if !h.BindQuery(c, &q) {
		return
	}

	views, err := h.stockService.ListReservationsByHolder(c.Request.Context(), q.Holder, q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, views)
}

// Release handles POST /reservations/:id/release. The body is optional.
func (h *ReservationHandler) Release(c *gin.Context) {
	id, ok := h.reservationID(c)
	if !ok {
		return
	}
	var req ReleaseRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	sku, err := optionalSKU(req.ProductID, req.VariantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	outcome, err := h.manager.Release(c.Request.Context(), reservation.ReleaseCommand{
		ReservationID: id,
		SKU:           sku,
		Quantity:      req.Quantity,
	})
	h.RespondOutcome(c, outcome, err)
}

// Commit handles POST /reservations/:id/commit
func (h *ReservationHandler) Commit(c *gin.Context) {
	id, ok := h.reservationID(c)
	if !ok {
		return
	}
	var req CommitRequest
	if !h.BindJSON(c, &req) {
		return
	}
	sku, err := optionalSKU(req.ProductID, req.VariantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	outcome, err := h.manager.Commit(c.Request.Context(), reservation.CommitCommand{
		ReservationID:  id,
		OrderReference: req.OrderReference,
		SKU:            sku,
		Quantity:       req.Quantity,
	})
	h.RespondOutcome(c, outcome, err)
}

func (h *ReservationHandler) reservationID(c *gin.Context) (uuid.UUID, bool) {
	var path dto.IDRequest
	if !h.BindURI(c, &path) {
		return uuid.Nil, false
	}
	return uuid.MustParse(path.ID), true
}
