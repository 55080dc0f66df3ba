package persistence

import (
	"context"
	"testing"

	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormCatalog(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDatabase(t).DB
	require.NoError(t, db.Create([]models.CatalogProductModel{
		{ProductID: "A", Name: "Anvil", Status: "active", UpdatedAt: testNow},
		{ProductID: "B", Name: "Bucket", Status: "archived", UpdatedAt: testNow},
	}).Error)
	catalog := NewGormCatalog(db)

	tests := []struct {
		productID  string
		wantExists bool
		wantActive bool
	}{
		{"A", true, true},
		{"B", true, false},
		{"C", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.productID, func(t *testing.T) {
			exists, err := catalog.ProductExists(ctx, tt.productID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExists, exists)

			active, err := catalog.IsActive(ctx, tt.productID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantActive, active)
		})
	}
}

func TestGormCartReader(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDatabase(t).DB
	require.NoError(t, db.Create([]models.CartItemModel{
		{CartID: "cart-1", LineNo: 2, ProductID: "B", Quantity: 1},
		{CartID: "cart-1", LineNo: 1, ProductID: "A", VariantID: "red", Quantity: 3},
	}).Error)
	reader := NewGormCartReader(db)

	lines, err := reader.ReadCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, []stock.CartLine{
		{SKU: stock.MustSKU("A", "red"), Quantity: 3},
		{SKU: stock.MustSKU("B", ""), Quantity: 1},
	}, lines)

	_, err = reader.ReadCart(ctx, "cart-2")
	assert.ErrorIs(t, err, stock.ErrCartNotFound)
}
