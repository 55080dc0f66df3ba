package persistence

import (
	"context"
	"errors"

	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCatalog reads the catalog_products projection
type GormCatalog struct {
	db *gorm.DB
}

// NewGormCatalog creates a new GormCatalog
func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

// ProductExists reports whether the catalog knows the product
func (c *GormCatalog) ProductExists(ctx context.Context, productID string) (bool, error) {
	var count int64
	if err := c.db.WithContext(ctx).
		Model(&models.CatalogProductModel{}).
		Where("product_id = ?", productID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsActive reports whether the product is currently sold. Unknown products are inactive.
func (c *GormCatalog) IsActive(ctx context.Context, productID string) (bool, error) {
	var model models.CatalogProductModel
	if err := c.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return model.IsActive(), nil
}

// GormCartReader reads stored carts from cart_items
type GormCartReader struct {
	db *gorm.DB
}

// NewGormCartReader creates a new GormCartReader
func NewGormCartReader(db *gorm.DB) *GormCartReader {
	return &GormCartReader{db: db}
}

// ReadCart returns the cart's lines in line order
func (c *GormCartReader) ReadCart(ctx context.Context, cartID string) ([]stock.CartLine, error) {
	var rows []models.CartItemModel
	if err := c.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("line_no ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, stock.ErrCartNotFound
	}

	lines := make([]stock.CartLine, len(rows))
	for i := range rows {
		lines[i] = rows[i].ToDomain()
	}
	return lines, nil
}

var (
	_ stock.Catalog    = (*GormCatalog)(nil)
	_ stock.CartReader = (*GormCartReader)(nil)
)
