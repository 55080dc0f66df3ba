package handler

import (
	"net/http"
	"testing"

	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartHandler_ValidateCart(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "widget", 5)

	t.Run("valid cart", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/carts/validate", map[string]any{
			"items": []map[string]any{{"product_id": "widget", "quantity": 2}},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var result reservation.CartValidation
		decodeData(t, w, &result)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("problems are reported per line", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/carts/validate", map[string]any{
			"items": []map[string]any{
				{"product_id": "widget", "quantity": 9},
				{"product_id": "", "quantity": 1},
			},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var result reservation.CartValidation
		decodeData(t, w, &result)
		assert.False(t, result.Valid)

		codes := make([]string, 0, len(result.Errors))
		for _, issue := range result.Errors {
			codes = append(codes, issue.Code)
		}
		assert.Contains(t, codes, reservation.IssueInsufficientStock)
		assert.Contains(t, codes, reservation.IssueInvalidSKU)
	})

	t.Run("empty cart", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/carts/validate", map[string]any{"items": []any{}})
		require.Equal(t, http.StatusOK, w.Code)
		var result reservation.CartValidation
		decodeData(t, w, &result)
		assert.False(t, result.Valid)
		require.NotEmpty(t, result.Errors)
		assert.Equal(t, reservation.IssueEmptyCart, result.Errors[0].Code)
	})
}

func TestCartHandler_ValidateStoredCart(t *testing.T) {
	carts := staticCarts{
		"c-1": {{SKU: stock.SKU{ProductID: "widget"}, Quantity: 1}},
	}
	s := newTestServer(t, withCarts(carts))
	s.seed(t, "widget", 5)

	w := s.do(t, http.MethodPost, "/api/v1/carts/c-1/validate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result reservation.CartValidation
	decodeData(t, w, &result)
	assert.True(t, result.Valid)

	w = s.do(t, http.MethodPost, "/api/v1/carts/c-2/validate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
