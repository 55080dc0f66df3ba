package dto

import "net/http"

// Wire error codes. Every code the API emits starts with ERR_.
const (
	ErrCodeInternal    = "ERR_INTERNAL"
	ErrCodeUnavailable = "ERR_UNAVAILABLE"

	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidQuantity = "ERR_INVALID_QUANTITY"
	ErrCodeInvalidSKU      = "ERR_INVALID_SKU"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "ERR_RATE_LIMITED"

	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"

	ErrCodeInvalidState       = "ERR_INVALID_STATE"
	ErrCodeInsufficientStock  = "ERR_INSUFFICIENT_STOCK"
	ErrCodeReservationExpired = "ERR_RESERVATION_EXPIRED"
	ErrCodeAlreadyTerminal    = "ERR_ALREADY_TERMINAL"
	ErrCodeStockDiscontinued  = "ERR_STOCK_DISCONTINUED"
	// ErrCodeBusy means the SKU lock was not granted within the wait bound.
	ErrCodeBusy = "ERR_BUSY"
	// ErrCodeLedgerInvariant means a write would have broken
	// reserved + committed <= on hand; it is a server fault.
	ErrCodeLedgerInvariant = "ERR_LEDGER_INVARIANT"
)

type wireCode struct {
	domain string // code carried by shared.DomainError, "" when HTTP-only
	status int
}

var wireCodes = map[string]wireCode{
	ErrCodeInternal:    {"INTERNAL_ERROR", http.StatusInternalServerError},
	ErrCodeUnavailable: {"", http.StatusServiceUnavailable},

	ErrCodeValidation:      {"VALIDATION_ERROR", http.StatusBadRequest},
	ErrCodeBadRequest:      {"BAD_REQUEST", http.StatusBadRequest},
	ErrCodeInvalidInput:    {"INVALID_INPUT", http.StatusBadRequest},
	ErrCodeInvalidQuantity: {"INVALID_QUANTITY", http.StatusBadRequest},
	ErrCodeInvalidSKU:      {"INVALID_SKU", http.StatusBadRequest},
	ErrCodeRequestTooLarge: {"", http.StatusRequestEntityTooLarge},
	ErrCodeRateLimited:     {"RATE_LIMIT_EXCEEDED", http.StatusTooManyRequests},

	ErrCodeNotFound:            {"NOT_FOUND", http.StatusNotFound},
	ErrCodeAlreadyExists:       {"ALREADY_EXISTS", http.StatusConflict},
	ErrCodeConcurrencyConflict: {"CONCURRENCY_CONFLICT", http.StatusConflict},

	ErrCodeInvalidState:       {"INVALID_STATE", http.StatusUnprocessableEntity},
	ErrCodeInsufficientStock:  {"INSUFFICIENT_STOCK", http.StatusUnprocessableEntity},
	ErrCodeStockDiscontinued:  {"STOCK_DISCONTINUED", http.StatusUnprocessableEntity},
	ErrCodeReservationExpired: {"RESERVATION_EXPIRED", http.StatusGone},
	ErrCodeAlreadyTerminal:    {"ALREADY_TERMINAL", http.StatusConflict},
	ErrCodeBusy:               {"BUSY", http.StatusServiceUnavailable},
	ErrCodeLedgerInvariant:    {"LEDGER_INVARIANT", http.StatusInternalServerError},
}

var domainToWire = func() map[string]string {
	m := make(map[string]string, len(wireCodes))
	for wire, info := range wireCodes {
		if info.domain != "" {
			m[info.domain] = wire
		}
	}
	return m
}()

// GetHTTPStatus returns the status for a wire or domain code; unknown codes are 500.
func GetHTTPStatus(code string) int {
	if info, ok := wireCodes[NormalizeErrorCode(code)]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// NormalizeErrorCode maps a domain error code to its ERR_ wire code.
// Wire codes and unknown codes pass through unchanged.
func NormalizeErrorCode(code string) string {
	if wire, ok := domainToWire[code]; ok {
		return wire
	}
	return code
}
