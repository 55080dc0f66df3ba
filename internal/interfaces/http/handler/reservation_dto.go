package handler

import "github.com/shopcore/stockhold/internal/domain/stock"

// ReserveRequest places a hold
type ReserveRequest struct {
	SKURequest
	Quantity int64  `json:"quantity"`
	Holder   string `json:"holder" binding:"required,max=128"`
}

// ReleaseRequest optionally cross-checks the reservation being released
type ReleaseRequest struct {
	ProductID string `json:"product_id" binding:"omitempty,sku"`
	VariantID string `json:"variant_id" binding:"omitempty,sku"`
	Quantity  int64  `json:"quantity" binding:"gte=0"`
}

// CommitRequest commits a hold for an order
type CommitRequest struct {
	OrderReference string `json:"order_reference" binding:"required,max=128"`
	ProductID      string `json:"product_id" binding:"omitempty,sku"`
	VariantID      string `json:"variant_id" binding:"omitempty,sku"`
	Quantity       int64  `json:"quantity" binding:"gte=0"`
}

// HolderQuery filters GET /reservations
type HolderQuery struct {
	Holder string `form:"holder" binding:"required,max=128"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// CartLineRequest is one line of an inline cart. Bad lines are reported
// per line in the validation result rather than rejected here.
type CartLineRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
}

// ValidateCartRequest carries the cart lines to check
type ValidateCartRequest struct {
	Items []CartLineRequest `json:"items"`
}

// FinalizeOrderRequest lists the reserved lines of a finalized order
type FinalizeOrderRequest struct {
	Lines []FinalizeLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// FinalizeLineRequest is one order line
type FinalizeLineRequest struct {
	ReservationID string `json:"reservation_id" binding:"required,uuid"`
	ProductID     string `json:"product_id" binding:"omitempty,sku"`
	VariantID     string `json:"variant_id" binding:"omitempty,sku"`
	Quantity      int64  `json:"quantity" binding:"gte=0"`
}

// optionalSKU returns the zero SKU when no product is given
func optionalSKU(productID, variantID string) (stock.SKU, error) {
	if productID == "" {
		return stock.SKU{}, nil
	}
	return stock.NewSKU(productID, variantID)
}

// lenientSKU returns the zero SKU for malformed input so the item is
// reported as INVALID_SKU on its own result
func lenientSKU(productID, variantID string) stock.SKU {
	sku, err := stock.NewSKU(productID, variantID)
	if err != nil {
		return stock.SKU{}
	}
	return sku
}
