package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/stock"
)

// CartHandler serves pre-checkout cart validation
type CartHandler struct {
	BaseHandler
	validator *reservation.Validator
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(validator *reservation.Validator) *CartHandler {
	return &CartHandler{validator: validator}
}

// ValidateCart handles POST /carts/validate. Problems with individual lines
// come back inside the result with 200; only infrastructure failures are errors.
func (h *CartHandler) ValidateCart(c *gin.Context) {
	var req ValidateCartRequest
	if !h.BindJSON(c, &req) {
		return
	}

	lines := make([]stock.CartLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = stock.CartLine{
			SKU:      lenientSKU(item.ProductID, item.VariantID),
			Quantity: item.Quantity,
		}
	}

	result, err := h.validator.ValidateCart(c.Request.Context(), lines)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ValidateStoredCart handles POST /carts/:id/validate
func (h *CartHandler) ValidateStoredCart(c *gin.Context) {
	cartID := strings.TrimSpace(c.Param("id"))
	if cartID == "" {
		h.BadRequest(c, "cart id is required")
		return
	}

	result, err := h.validator.ValidateStoredCart(c.Request.Context(), cartID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
