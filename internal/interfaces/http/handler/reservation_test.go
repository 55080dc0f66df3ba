package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationHandler_Reserve(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "widget", 5)

	t.Run("holds stock", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
			"product_id": "widget", "quantity": 3, "holder": "cart-1",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var result reservation.ReserveResult
		decodeData(t, w, &result)
		assert.Equal(t, int64(2), result.Available)
		assert.WithinDuration(t, s.clock.Now().Add(reservation.DefaultTTL), result.ExpiresAt, time.Millisecond)
	})

	t.Run("insufficient stock reports available", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
			"product_id": "widget", "quantity": 3, "holder": "cart-2",
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		info := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeInsufficientStock, info.Code)
		require.NotNil(t, info.Details)
		require.NotNil(t, info.Details.Available)
		assert.Equal(t, int64(2), *info.Details.Available)
		assert.Equal(t, int64(3), *info.Details.Requested)
	})

	t.Run("zero quantity", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
			"product_id": "widget", "quantity": 0, "holder": "cart-1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidQuantity, decodeError(t, w).Code)
	})

	t.Run("unknown sku", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
			"product_id": "ghost", "quantity": 1, "holder": "cart-1",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("holder is required", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
			"product_id": "widget", "quantity": 1,
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		info := decodeError(t, w)
		require.NotNil(t, info.Details)
		assert.Equal(t, "holder", info.Details.Fields[0].Field)
	})
}

func TestReservationHandler_ReleaseIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "widget", 5)
	id := s.reserve(t, "widget", 2)

	w := s.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/release", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first OutcomeResponse
	decodeData(t, w, &first)
	assert.False(t, first.AlreadyTerminal)
	assert.Equal(t, stock.ReservationStatusReleased, first.Outcome.Status)

	w = s.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/release", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var second OutcomeResponse
	decodeData(t, w, &second)
	assert.True(t, second.AlreadyTerminal)
	assert.Equal(t, first.Outcome.ReservationID, second.Outcome.ReservationID)
	assert.Equal(t, stock.ReservationStatusReleased, second.Outcome.Status)

	w = s.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/commit", map[string]any{"order_reference": "ord-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var commit OutcomeResponse
	decodeData(t, w, &commit)
	assert.True(t, commit.AlreadyTerminal)
	assert.Equal(t, stock.ReservationStatusReleased, commit.Outcome.Status)

	w = s.do(t, http.MethodGet, "/api/v1/stock/widget", nil)
	var view reservation.StockView
	decodeData(t, w, &view)
	assert.Equal(t, int64(0), view.Reserved)
	assert.Equal(t, int64(5), view.OnHand)
}

func TestReservationHandler_Commit(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "widget", 5)
	id := s.reserve(t, "widget", 2)

	t.Run("mismatched quantity", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/commit", map[string]any{
			"order_reference": "ord-1", "quantity": 3,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})

	t.Run("order reference is required", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/commit", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w := s.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/commit", map[string]any{
		"order_reference": "ord-1", "product_id": "widget", "quantity": 2,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp OutcomeResponse
	decodeData(t, w, &resp)
	assert.Equal(t, stock.ReservationStatusCommitted, resp.Outcome.Status)
	assert.Equal(t, "ord-1", resp.Outcome.OrderReference)

	w = s.do(t, http.MethodGet, "/api/v1/stock/widget", nil)
	var view reservation.StockView
	decodeData(t, w, &view)
	assert.Equal(t, int64(3), view.OnHand)
	assert.Equal(t, int64(0), view.Reserved)

	w = s.do(t, http.MethodGet, "/api/v1/reservations/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res reservation.ReservationView
	decodeData(t, w, &res)
	assert.Equal(t, stock.ReservationStatusCommitted, res.Status)
}

func TestReservationHandler_LateCommitRejected(t *testing.T) {
	cfg := reservation.DefaultConfig()
	cfg.LateCommit = reservation.LateCommitReject
	s := newTestServer(t, withConfig(cfg))
	s.seed(t, "widget", 5)
	id := s.reserve(t, "widget", 2)

	s.clock.Advance(reservation.DefaultTTL + time.Second)

	w := s.do(t, http.MethodPost, "/api/v1/reservations/"+id+"/commit", map[string]any{"order_reference": "ord-1"})
	assert.Equal(t, http.StatusGone, w.Code, w.Body.String())
	assert.Equal(t, dto.ErrCodeReservationExpired, decodeError(t, w).Code)
}

func TestReservationHandler_LookupErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/reservations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/reservations/7f1d8d3e-3f7a-4c1b-9a57-0c3f1d1a2b3c", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/reservations/7f1d8d3e-3f7a-4c1b-9a57-0c3f1d1a2b3c/release", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReservationHandler_ListByHolder(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "widget", 5)
	s.reserve(t, "widget", 1)
	s.reserve(t, "widget", 1)

	w := s.do(t, http.MethodGet, "/api/v1/reservations?holder=cart-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var views []reservation.ReservationView
	decodeData(t, w, &views)
	assert.Len(t, views, 2)

	w = s.do(t, http.MethodGet, "/api/v1/reservations", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReservationHandler_Busy(t *testing.T) {
	s := newTestServer(t, withManagerLocker(busyLocker{}))
	s.seed(t, "widget", 5)

	w := s.do(t, http.MethodPost, "/api/v1/reservations", map[string]any{
		"product_id": "widget", "quantity": 1, "holder": "cart-1",
	})
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	info := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeBusy, info.Code)
	require.NotNil(t, info.Details)
	assert.Equal(t, 2, info.Details.RetryAfterSeconds)
}

func TestReservationHandler_ReleaseWithChunkedBody(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "widget", 5)

	release := func(body string) *httptest.ResponseRecorder {
		id := s.reserve(t, "widget", 1)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations/"+id+"/release", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = -1
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		return w
	}

	t.Run("empty body releases", func(t *testing.T) {
		w := release("")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out OutcomeResponse
		decodeData(t, w, &out)
		assert.Equal(t, stock.ReservationStatusReleased, out.Outcome.Status)
	})

	t.Run("matching body releases", func(t *testing.T) {
		w := release(`{"product_id":"widget","quantity":1}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		w := release(`{"quantity":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
