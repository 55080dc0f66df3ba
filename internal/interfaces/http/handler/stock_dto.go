package handler

import "github.com/shopcore/stockhold/internal/interfaces/http/dto"

// SKURequest names a SKU in a request body
type SKURequest struct {
	ProductID string `json:"product_id" binding:"required,sku"`
	VariantID string `json:"variant_id" binding:"omitempty,sku"`
}

// AvailabilityQuery is the query string of GET /stock/availability
type AvailabilityQuery struct {
	SKU      string `form:"sku" binding:"required,sku"`
	Variant  string `form:"variant" binding:"omitempty,sku"`
	Quantity int64  `form:"quantity"`
}

// BatchAvailabilityItem is one entry of a batch availability request.
// Entries are not validated at binding time so one bad entry cannot fail
// the batch.
type BatchAvailabilityItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
}

// BatchAvailabilityRequest asks about several SKUs at once
type BatchAvailabilityRequest struct {
	Items []BatchAvailabilityItem `json:"items" binding:"required,min=1,max=100"`
}

// CreateStockRequest stocks a SKU for the first time
type CreateStockRequest struct {
	SKURequest
	OnHand            int64 `json:"on_hand" binding:"gte=0"`
	ReorderThreshold  int64 `json:"reorder_threshold" binding:"gte=0"`
	LowStockThreshold int64 `json:"low_stock_threshold" binding:"gte=0"`
}

// RestockRequest adds units to on-hand stock
type RestockRequest struct {
	SKURequest
	Quantity int64 `json:"quantity"`
}

// ThresholdsRequest replaces a SKU's alert thresholds
type ThresholdsRequest struct {
	SKURequest
	ReorderThreshold  int64 `json:"reorder_threshold" binding:"gte=0"`
	LowStockThreshold int64 `json:"low_stock_threshold" binding:"gte=0"`
}

// ListStockQuery filters GET /stock
type ListStockQuery struct {
	dto.ListRequest
	ProductID    string `form:"product_id"`
	Status       string `form:"status" binding:"omitempty,oneof=active out_of_stock discontinued"`
	LowStockOnly bool   `form:"low_stock"`
}

// StockPath is the path of GET /stock/:product
type StockPath struct {
	Product string `uri:"product" binding:"required,sku"`
}
