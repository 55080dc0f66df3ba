package models

import (
	"time"

	"github.com/shopcore/stockhold/internal/domain/stock"
)

// CatalogProductModel is a read-only projection of the product catalog.
// The catalog service owns these rows; this service only reads them.
type CatalogProductModel struct {
	ProductID string    `gorm:"type:varchar(64);primaryKey"`
	Name      string    `gorm:"type:varchar(200);not null"`
	Status    string    `gorm:"type:varchar(20);not null;default:'active'"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CatalogProductModel) TableName() string {
	return "catalog_products"
}

// IsActive reports whether the product is currently sold
func (m *CatalogProductModel) IsActive() bool {
	return m.Status == "active"
}

// CartItemModel is one line of a stored cart, owned by the cart service.
type CartItemModel struct {
	CartID    string `gorm:"type:varchar(64);primaryKey"`
	LineNo    int    `gorm:"primaryKey"`
	ProductID string `gorm:"type:varchar(64);not null"`
	VariantID string `gorm:"type:varchar(64);not null;default:''"`
	Quantity  int64  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CartItemModel) TableName() string {
	return "cart_items"
}

// ToDomain converts the cart line to a domain CartLine
func (m *CartItemModel) ToDomain() stock.CartLine {
	return stock.CartLine{
		SKU:      stock.SKU{ProductID: m.ProductID, VariantID: m.VariantID},
		Quantity: m.Quantity,
	}
}
