package stock

import "context"

// Catalog answers whether a product is known and currently sellable.
// It is owned by another system; this module only reads it.
type Catalog interface {
	ProductExists(ctx context.Context, productID string) (bool, error)
	IsActive(ctx context.Context, productID string) (bool, error)
}

// CartLine is one line of a shopping cart
type CartLine struct {
	SKU      SKU   `json:"sku"`
	Quantity int64 `json:"quantity"`
}

// CartReader loads a stored cart's lines. ErrCartNotFound when absent.
type CartReader interface {
	ReadCart(ctx context.Context, cartID string) ([]CartLine, error)
}
