package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/stock"
)

// OrderHandler accepts order finalization calls from the order system
type OrderHandler struct {
	BaseHandler
	finalizer *reservation.OrderFinalizedHandler
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(finalizer *reservation.OrderFinalizedHandler) *OrderHandler {
	return &OrderHandler{finalizer: finalizer}
}

// Finalize handles POST /orders/:reference/finalize.
// The report is returned with 200 even when some lines failed; callers
// inspect the per-line status.
func (h *OrderHandler) Finalize(c *gin.Context) {
	var req FinalizeOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	lines := make([]stock.OrderLine, len(req.Lines))
	for i, line := range req.Lines {
		sku, err := optionalSKU(line.ProductID, line.VariantID)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		lines[i] = stock.OrderLine{
			ReservationID: uuid.MustParse(line.ReservationID),
			SKU:           sku,
			Quantity:      line.Quantity,
		}
	}

	report, err := h.finalizer.OnOrderFinalized(c.Request.Context(), c.Param("reference"), lines)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
