package handler

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/logger"
	"github.com/shopcore/stockhold/internal/interfaces/http/dto"
	"github.com/shopcore/stockhold/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "X-Request-ID"

// DefaultRetryAfter is advertised on busy answers when no lock wait is configured
const DefaultRetryAfter = time.Second

// BaseHandler provides common handler utilities
type BaseHandler struct {
	// RetryAfter is sent with 503 busy answers
	RetryAfter time.Duration
}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	if id := c.GetHeader(RequestIDKey); id != "" {
		return id
	}
	return ""
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.OK(data))
}

// Paged sends one page of a list with its meta
func (h *BaseHandler) Paged(c *gin.Context, data any, total int64, req dto.ListRequest) {
	c.JSON(http.StatusOK, dto.Paged(data, total, req))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.OK(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	h.respondError(c, statusCode, dto.Fail(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// Busy sends a 503 with Retry-After
func (h *BaseHandler) Busy(c *gin.Context, message string) {
	seconds := h.retryAfterSeconds()
	c.Header("Retry-After", strconv.Itoa(seconds))
	resp := dto.Fail(dto.ErrCodeBusy, message, getRequestID(c)).
		WithDetails(&dto.ErrorDetails{RetryAfterSeconds: seconds})
	h.respondError(c, http.StatusServiceUnavailable, resp)
}

// BindJSON binds the request body and answers 400 on failure.
// It returns false when the handler should stop.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.validationError(c, err)
		return false
	}
	return true
}

// BindOptionalJSON is BindJSON for endpoints whose body may be omitted.
// An empty body, chunked or not, leaves obj untouched.
func (h *BaseHandler) BindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		h.validationError(c, err)
		return false
	}
	return true
}

// BindQuery binds query parameters and answers 400 on failure
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.validationError(c, err)
		return false
	}
	return true
}

// BindURI binds path parameters and answers 400 on failure
func (h *BaseHandler) BindURI(c *gin.Context, obj any) bool {
	if err := c.ShouldBindUri(obj); err != nil {
		h.validationError(c, err)
		return false
	}
	return true
}

func (h *BaseHandler) validationError(c *gin.Context, err error) {
	c.Set(middleware.ErrorCodeContextKey, dto.ErrCodeValidation)
	middleware.HandleValidationError(c, err)
}

// HandleError maps reservation errors onto HTTP answers:
// not found 404, invalid input 400, insufficient stock 422 with the
// available quantity, expired 410, busy 503 with Retry-After, conflict 409.
// Already-terminal errors are not failures; use RespondOutcome for those.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := getRequestID(c)

	switch stock.KindOf(err) {
	case stock.KindBusy:
		h.Busy(c, stock.ErrBusy.Message)
		return
	case stock.KindInsufficientStock:
		resp := dto.Fail(dto.ErrCodeInsufficientStock, err.Error(), requestID)
		if insufficient, ok := stock.AsInsufficientStock(err); ok {
			available, requested := insufficient.Available, insufficient.Requested
			resp = resp.WithDetails(&dto.ErrorDetails{Available: &available, Requested: &requested})
		}
		h.respondError(c, http.StatusUnprocessableEntity, resp)
		return
	case stock.KindInternal:
		logger.For(c.Request.Context()).Error("Unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		h.InternalError(c, "An unexpected error occurred")
		return
	}

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		h.InternalError(c, "An unexpected error occurred")
		return
	}
	code := dto.NormalizeErrorCode(domainErr.Code)
	h.respondError(c, dto.GetHTTPStatus(code), dto.Fail(code, domainErr.Message, requestID))
}

// OutcomeResponse answers release and commit. Retried calls against a
// finalized reservation get AlreadyTerminal set and the stored outcome.
type OutcomeResponse struct {
	AlreadyTerminal bool          `json:"already_terminal"`
	Outcome         stock.Outcome `json:"outcome"`
}

// RespondOutcome writes a release or commit result. An AlreadyTerminalError
// is answered with 200 and the stored outcome; other errors go to HandleError.
func (h *BaseHandler) RespondOutcome(c *gin.Context, outcome *stock.Outcome, err error) {
	if terminal, ok := stock.AsAlreadyTerminal(err); ok {
		h.Success(c, OutcomeResponse{AlreadyTerminal: true, Outcome: terminal.Outcome})
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, OutcomeResponse{Outcome: *outcome})
}

func (h *BaseHandler) respondError(c *gin.Context, status int, resp dto.Response) {
	if resp.Error != nil {
		c.Set(middleware.ErrorCodeContextKey, resp.Error.Code)
	}
	c.JSON(status, resp)
}

func (h *BaseHandler) retryAfterSeconds() int {
	wait := h.RetryAfter
	if wait <= 0 {
		wait = DefaultRetryAfter
	}
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// parseSKU builds a SKU from request fields, answering 400 on failure
func (h *BaseHandler) parseSKU(c *gin.Context, productID, variantID string) (stock.SKU, bool) {
	sku, err := stock.NewSKU(productID, variantID)
	if err != nil {
		h.HandleError(c, err)
		return stock.SKU{}, false
	}
	return sku, true
}
