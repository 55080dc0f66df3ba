package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopcore/stockhold/internal/domain/shared"
)

// Error codes specific to stock and reservations
const (
	CodeInvalidQuantity    = "INVALID_QUANTITY"
	CodeReservationExpired = "RESERVATION_EXPIRED"
	CodeBusy               = "BUSY"
	CodeAlreadyTerminal    = "ALREADY_TERMINAL"
	CodeInvalidSKU         = "INVALID_SKU"
	CodeStockDiscontinued  = "STOCK_DISCONTINUED"
	CodeLedgerInvariant    = "LEDGER_INVARIANT"
)

var (
	ErrStockNotFound          = shared.NewDomainError("NOT_FOUND", "Stock record not found")
	ErrReservationNotFound    = shared.NewDomainError("NOT_FOUND", "Reservation not found")
	ErrCartNotFound           = shared.NewDomainError("NOT_FOUND", "Cart not found")
	ErrStockAlreadyExists     = shared.NewDomainError("ALREADY_EXISTS", "Stock record already exists for this SKU")
	ErrInvalidQuantity        = shared.NewDomainError(CodeInvalidQuantity, "Quantity must be a positive integer")
	ErrReservationExpired     = shared.NewDomainError(CodeReservationExpired, "Reservation hold has lapsed")
	ErrBusy                   = shared.NewDomainError(CodeBusy, "Stock record is busy, retry shortly")
	ErrAlreadyTerminal        = shared.NewDomainError(CodeAlreadyTerminal, "Reservation is already finalized")
	ErrInvalidSKU             = shared.NewDomainError(CodeInvalidSKU, "SKU requires a product identifier without ':'")
	ErrStockDiscontinued      = shared.NewDomainError(CodeStockDiscontinued, "Stock record is discontinued")
	ErrLedgerInvariant        = shared.NewDomainError(CodeLedgerInvariant, "Adjustment would break 0 <= reserved <= on_hand")
	ErrHolderRequired         = shared.NewDomainError("INVALID_INPUT", "Reservation holder is required")
	ErrOrderReferenceRequired = shared.NewDomainError("INVALID_INPUT", "Order reference is required")
	ErrSKUMismatch            = shared.NewDomainError("INVALID_INPUT", "Reservation does not belong to the given SKU")
	ErrInvalidThreshold       = shared.NewDomainError("INVALID_INPUT", "Thresholds must not be negative")
	ErrNotYetDue              = shared.NewDomainError("INVALID_STATE", "Reservation has not reached its expiry")
)

// InsufficientStockError reports how much was available when a request could not be met.
type InsufficientStockError struct {
	SKU       SKU
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

// Unwrap exposes the shared domain error so code-based handlers still match.
func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrInsufficientStock
}

// AlreadyTerminalError carries the stored outcome of a reservation that was
// already finalized. Retried calls treat it as the answer, not a failure.
type AlreadyTerminalError struct {
	Outcome Outcome
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("reservation %s is already %s", e.Outcome.ReservationID, e.Outcome.Status)
}

func (e *AlreadyTerminalError) Unwrap() error {
	return ErrAlreadyTerminal
}

// AsInsufficientStock extracts an InsufficientStockError from err's chain
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var target *InsufficientStockError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// AsAlreadyTerminal extracts an AlreadyTerminalError from err's chain
func AsAlreadyTerminal(err error) (*AlreadyTerminalError, bool) {
	var target *AlreadyTerminalError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// ErrorKind classifies errors returned by reservation operations
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindNotFound          ErrorKind = "not_found"
	KindInvalidQuantity   ErrorKind = "invalid_quantity"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindAlreadyTerminal   ErrorKind = "already_terminal"
	KindExpired           ErrorKind = "expired"
	KindBusy              ErrorKind = "busy"
	KindInvalid           ErrorKind = "invalid"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// KindOf maps err onto the error taxonomy. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if _, ok := AsInsufficientStock(err); ok {
		return KindInsufficientStock
	}
	if _, ok := AsAlreadyTerminal(err); ok {
		return KindAlreadyTerminal
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindBusy
	}

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		return KindInternal
	}
	switch domainErr.Code {
	case "NOT_FOUND":
		return KindNotFound
	case CodeInvalidQuantity:
		return KindInvalidQuantity
	case "INSUFFICIENT_STOCK":
		return KindInsufficientStock
	case CodeAlreadyTerminal:
		return KindAlreadyTerminal
	case CodeReservationExpired:
		return KindExpired
	case CodeBusy:
		return KindBusy
	case "CONCURRENCY_CONFLICT":
		return KindConflict
	case CodeLedgerInvariant:
		return KindInternal
	default:
		return KindInvalid
	}
}

// Retryable reports whether the same call may succeed if simply retried
func (k ErrorKind) Retryable() bool {
	return k == KindBusy || k == KindConflict
}
