package stock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSKU(t *testing.T) {
	t.Run("trims whitespace", func(t *testing.T) {
		sku, err := NewSKU("  P-100 ", " red ")
		require.NoError(t, err)
		assert.Equal(t, "P-100", sku.ProductID)
		assert.Equal(t, "red", sku.VariantID)
		assert.True(t, sku.HasVariant())
	})

	t.Run("variant is optional", func(t *testing.T) {
		sku, err := NewSKU("P-100", "")
		require.NoError(t, err)
		assert.False(t, sku.HasVariant())
		assert.Equal(t, "P-100", sku.String())
	})

	t.Run("rejects empty product", func(t *testing.T) {
		_, err := NewSKU("   ", "red")
		assert.ErrorIs(t, err, ErrInvalidSKU)
	})

	t.Run("rejects separator inside identifiers", func(t *testing.T) {
		_, err := NewSKU("P:100", "")
		assert.ErrorIs(t, err, ErrInvalidSKU)
		_, err = NewSKU("P-100", "a:b")
		assert.ErrorIs(t, err, ErrInvalidSKU)
	})
}

func TestParseSKU(t *testing.T) {
	tests := []struct {
		in      string
		want    SKU
		wantErr bool
	}{
		{in: "P-1", want: SKU{ProductID: "P-1"}},
		{in: "P-1:XL", want: SKU{ProductID: "P-1", VariantID: "XL"}},
		{in: ":XL", wantErr: true},
		{in: "", wantErr: true},
		{in: "P-1:XL:extra", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSKU(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestMustSKU_Panics(t *testing.T) {
	assert.Panics(t, func() { MustSKU("", "") })
	assert.NotPanics(t, func() { MustSKU("P-1", "") })
}
