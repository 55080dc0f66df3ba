package stock

import (
	"strings"
)

const (
	skuSeparator = ":"
	maxKeyLength = 64
)

// SKU identifies one sellable inventory line: a product and an optional variant.
type SKU struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

// NewSKU validates and builds a SKU. Surrounding whitespace is trimmed.
func NewSKU(productID, variantID string) (SKU, error) {
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	if productID == "" {
		return SKU{}, ErrInvalidSKU
	}
	if len(productID) > maxKeyLength || len(variantID) > maxKeyLength {
		return SKU{}, ErrInvalidSKU
	}
	if strings.Contains(productID, skuSeparator) || strings.Contains(variantID, skuSeparator) {
		return SKU{}, ErrInvalidSKU
	}
	return SKU{ProductID: productID, VariantID: variantID}, nil
}

// MustSKU is NewSKU for literals known to be valid. It panics otherwise.
func MustSKU(productID, variantID string) SKU {
	sku, err := NewSKU(productID, variantID)
	if err != nil {
		panic("invalid sku: " + productID + skuSeparator + variantID)
	}
	return sku
}

// ParseSKU parses "product" or "product:variant".
func ParseSKU(s string) (SKU, error) {
	product, variant, _ := strings.Cut(s, skuSeparator)
	return NewSKU(product, variant)
}

// String renders the SKU in the form accepted by ParseSKU
func (s SKU) String() string {
	if s.VariantID == "" {
		return s.ProductID
	}
	return s.ProductID + skuSeparator + s.VariantID
}

// IsZero reports whether the SKU is unset
func (s SKU) IsZero() bool {
	return s.ProductID == ""
}

// HasVariant reports whether the SKU names a specific variant
func (s SKU) HasVariant() bool {
	return s.VariantID != ""
}
