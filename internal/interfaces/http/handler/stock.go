package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/stock"
)

// StockHandler serves availability checks and stock administration
type StockHandler struct {
	BaseHandler
	manager      *reservation.Manager
	validator    *reservation.Validator
	stockService *reservation.StockService
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(
	manager *reservation.Manager,
	validator *reservation.Validator,
	stockService *reservation.StockService,
) *StockHandler {
	return &StockHandler{
		BaseHandler:  BaseHandler{RetryAfter: manager.Config().LockWait},
		manager:      manager,
		validator:    validator,
		stockService: stockService,
	}
}

// GetAvailability handles GET /stock/availability.
// Quantity defaults to 1 when omitted.
func (h *StockHandler) GetAvailability(c *gin.Context) {
	var q AvailabilityQuery
	if !h.BindQuery(c, &q) {
		return
	}
	sku, ok := h.parseSKU(c, q.SKU, q.Variant)
	if !ok {
		return
	}
	if _, present := c.GetQuery("quantity"); !present {
		q.Quantity = 1
	}

	availability, err := h.manager.CheckAvailability(c.Request.Context(), sku, q.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, availability)
}

// BatchAvailability handles POST /stock/availability/batch.
// Every item is answered on its own; bad items never fail the batch.
func (h *StockHandler) BatchAvailability(c *gin.Context) {
	var req BatchAvailabilityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	queries := make([]reservation.AvailabilityQuery, len(req.Items))
	for i, item := range req.Items {
		queries[i] = reservation.AvailabilityQuery{
			SKU:      lenientSKU(item.ProductID, item.VariantID),
			Quantity: item.Quantity,
		}
	}
	h.Success(c, gin.H{
		"results": h.validator.BatchAvailability(c.Request.Context(), queries),
		"notice":  reservation.SnapshotNotice,
	})
}

// CreateStock handles POST /stock
func (h *StockHandler) CreateStock(c *gin.Context) {
	var req CreateStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	sku, ok := h.parseSKU(c, req.ProductID, req.VariantID)
	if !ok {
		return
	}

	view, err := h.stockService.CreateStock(c.Request.Context(), reservation.CreateStockCommand{
		SKU:               sku,
		OnHand:            req.OnHand,
		ReorderThreshold:  req.ReorderThreshold,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, view)
}

// GetStock handles GET /stock/:product with an optional variant query
func (h *StockHandler) GetStock(c *gin.Context) {
	var path StockPath
	if !h.BindURI(c, &path) {
		return
	}
	sku, ok := h.parseSKU(c, path.Product, c.Query("variant"))
	if !ok {
		return
	}

	view, err := h.stockService.GetStock(c.Request.Context(), sku)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// ListStock handles GET /stock
func (h *StockHandler) ListStock(c *gin.Context) {
	var q ListStockQuery
	if !h.BindQuery(c, &q) {
		return
	}
	q.ListRequest = q.Normalized()

	views, total, err := h.stockService.ListStock(c.Request.Context(), stock.StockFilter{
		ProductID:    q.ProductID,
		Status:       stock.StockStatus(q.Status),
		LowStockOnly: q.LowStockOnly,
		Page:         q.Page,
		PageSize:     q.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Paged(c, views, total, q.ListRequest)
}

// Restock handles POST /stock/restock
func (h *StockHandler) Restock(c *gin.Context) {
	var req RestockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	sku, ok := h.parseSKU(c, req.ProductID, req.VariantID)
	if !ok {
		return
	}

	view, err := h.stockService.Restock(c.Request.Context(), sku, req.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Discontinue handles POST /stock/discontinue
func (h *StockHandler) Discontinue(c *gin.Context) {
	var req SKURequest
	if !h.BindJSON(c, &req) {
		return
	}
	sku, ok := h.parseSKU(c, req.ProductID, req.VariantID)
	if !ok {
		return
	}

	view, err := h.stockService.Discontinue(c.Request.Context(), sku)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// UpdateThresholds handles PUT /stock/thresholds
func (h *StockHandler) UpdateThresholds(c *gin.Context) {
	var req ThresholdsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	sku, ok := h.parseSKU(c, req.ProductID, req.VariantID)
	if !ok {
		return
	}

	view, err := h.stockService.UpdateThresholds(c.Request.Context(), reservation.ThresholdsCommand{
		SKU:               sku,
		ReorderThreshold:  req.ReorderThreshold,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// Audit handles GET /stock/audit
func (h *StockHandler) Audit(c *gin.Context) {
	report, err := h.stockService.Audit(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
