package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopcore/stockhold/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reserveInput struct {
	ProductID string `json:"product_id" binding:"required,sku"`
	VariantID string `json:"variant_id" binding:"omitempty,sku"`
	Quantity  int64  `json:"quantity" binding:"required,gt=0"`
}

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	require.True(t, ok)

	tests := []struct {
		name    string
		input   reserveInput
		wantErr bool
	}{
		{"product only", reserveInput{ProductID: "p-1", Quantity: 1}, false},
		{"product and variant", reserveInput{ProductID: "p-1", VariantID: "red", Quantity: 1}, false},
		{"separator in product", reserveInput{ProductID: "p:1", Quantity: 1}, true},
		{"separator in variant", reserveInput{ProductID: "p-1", VariantID: "a:b", Quantity: 1}, true},
		{"blank product", reserveInput{ProductID: "   ", Quantity: 1}, true},
		{"too long", reserveInput{ProductID: strings.Repeat("x", 65), Quantity: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatValidationErrors(t *testing.T) {
	SetupValidator()

	router := gin.New()
	router.POST("/test", func(c *gin.Context) {
		var req reserveInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	t.Run("returns field errors keyed by json name", func(t *testing.T) {
		body := strings.NewReader(`{"product_id": "p:1", "quantity": 0}`)
		req := httptest.NewRequest(http.MethodPost, "/test", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-ID", "req-val-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, "Request validation failed", resp.Error.Message)
		assert.Equal(t, "req-val-1", resp.Error.RequestID)
		require.NotNil(t, resp.Error.Details)
		require.Len(t, resp.Error.Details.Fields, 2)

		fields := map[string]string{}
		for _, f := range resp.Error.Details.Fields {
			fields[f.Field] = f.Message
		}
		assert.Contains(t, fields["product_id"], "without ':'")
		assert.Equal(t, "This field is required", fields["quantity"])
	})

	t.Run("returns success for valid input", func(t *testing.T) {
		body := strings.NewReader(`{"product_id": "p-1", "quantity": 2}`)
		req := httptest.NewRequest(http.MethodPost, "/test", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed json has no field list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Nil(t, resp.Error.Details)
	})
}

func TestFieldMessage(t *testing.T) {
	type TestStruct struct {
		Required string `validate:"required"`
		Min      string `validate:"min=5"`
		Max      string `validate:"max=3"`
		Len      string `validate:"len=5"`
		UUID     string `validate:"uuid"`
		OneOf    string `validate:"oneof=revalidate reject"`
		GT       int    `validate:"gt=0"`
		Lines    []int  `validate:"min=1"`
		Odd      string `validate:"email"`
	}

	v := validator.New()
	err := v.Struct(TestStruct{Min: "ab", Max: "abcd", Len: "ab", UUID: "nope", OneOf: "x", GT: 0, Odd: "nope"})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	expected := map[string]string{
		"Required": "This field is required",
		"Min":      "Must be at least 5 characters",
		"Max":      "Must be at most 3 characters",
		"Len":      "Must be exactly 5 characters",
		"UUID":     "Invalid UUID format",
		"OneOf":    "Must be one of: revalidate reject",
		"GT":       "Must be greater than 0",
		"Lines":    "Must be at least 1 items",
		"Odd":      "Invalid value",
	}

	for _, e := range validationErrs {
		want, ok := expected[e.Field()]
		require.True(t, ok, "unexpected field %s", e.Field())
		assert.Equal(t, want, fieldMessage(e), e.Field())
	}
}
