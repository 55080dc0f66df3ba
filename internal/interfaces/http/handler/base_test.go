package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/interfaces/http/dto"
	"github.com/shopcore/stockhold/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRequestID(t *testing.T) {
	t.Run("from context", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Set(RequestIDKey, "ctx-id")
		c.Request.Header.Set(RequestIDKey, "header-id")
		assert.Equal(t, "ctx-id", getRequestID(c))
	})

	t.Run("from header", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set(RequestIDKey, "header-id")
		assert.Equal(t, "header-id", getRequestID(c))
	})

	t.Run("missing", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		assert.Empty(t, getRequestID(c))
	})
}

func TestHandleError(t *testing.T) {
	sku := stock.SKU{ProductID: "widget"}
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", stock.ErrStockNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"invalid quantity", stock.ErrInvalidQuantity, http.StatusBadRequest, dto.ErrCodeInvalidQuantity},
		{"invalid sku", stock.ErrInvalidSKU, http.StatusBadRequest, dto.ErrCodeInvalidSKU},
		{"insufficient", &stock.InsufficientStockError{SKU: sku, Requested: 4, Available: 1}, http.StatusUnprocessableEntity, dto.ErrCodeInsufficientStock},
		{"expired", stock.ErrReservationExpired, http.StatusGone, dto.ErrCodeReservationExpired},
		{"busy", stock.ErrBusy, http.StatusServiceUnavailable, dto.ErrCodeBusy},
		{"deadline counts as busy", fmt.Errorf("waiting: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, dto.ErrCodeBusy},
		{"already exists", stock.ErrStockAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"ledger invariant", stock.ErrLedgerInvariant, http.StatusInternalServerError, dto.ErrCodeInternal},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

			h := &BaseHandler{}
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantCode, c.GetString(middleware.ErrorCodeContextKey))
		})
	}
}

func TestHandleError_InternalMessageIsGeneric(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	(&BaseHandler{}).HandleError(c, errors.New("pq: password authentication failed"))
	assert.NotContains(t, w.Body.String(), "password")
}

func TestBusy_RetryAfter(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{0, "1"},
		{200 * time.Millisecond, "1"},
		{2 * time.Second, "2"},
		{2500 * time.Millisecond, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.wait.String(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

			(&BaseHandler{RetryAfter: tt.wait}).Busy(c, "busy")
			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Retry-After"))
		})
	}
}

func TestRespondOutcome(t *testing.T) {
	outcome := stock.Outcome{
		ReservationID: uuid.New(),
		SKU:           stock.SKU{ProductID: "widget"},
		Quantity:      2,
		Status:        stock.ReservationStatusCommitted,
	}

	t.Run("already terminal answers with stored outcome", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

		(&BaseHandler{}).RespondOutcome(c, nil, &stock.AlreadyTerminalError{Outcome: outcome})
		require.Equal(t, http.StatusOK, w.Code)
		var resp OutcomeResponse
		decodeData(t, w, &resp)
		assert.True(t, resp.AlreadyTerminal)
		assert.Equal(t, outcome.ReservationID, resp.Outcome.ReservationID)
	})

	t.Run("fresh outcome", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

		(&BaseHandler{}).RespondOutcome(c, &outcome, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp OutcomeResponse
		decodeData(t, w, &resp)
		assert.False(t, resp.AlreadyTerminal)
	})
}
