package reservation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
)

// SnapshotNotice accompanies every availability answer shown to buyers.
const SnapshotNotice = "Availability is a point-in-time snapshot and may change before checkout completes."

// ReserveCommand places a hold
type ReserveCommand struct {
	SKU      stock.SKU
	Quantity int64
	Holder   string
}

// ReleaseCommand gives back a hold. SKU and Quantity are optional and, when
// set, must match the stored reservation.
type ReleaseCommand struct {
	ReservationID uuid.UUID
	SKU           stock.SKU
	Quantity      int64
}

// CommitCommand turns a hold into a permanent deduction for an order.
// SKU and Quantity are optional cross-checks like in ReleaseCommand.
type CommitCommand struct {
	ReservationID  uuid.UUID
	OrderReference string
	SKU            stock.SKU
	Quantity       int64
}

// ReserveResult is returned for a successful hold
type ReserveResult struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	SKU           stock.SKU `json:"sku"`
	Quantity      int64     `json:"quantity"`
	Holder        string    `json:"holder"`
	ExpiresAt     time.Time `json:"expires_at"`
	Available     int64     `json:"available_quantity"`
}

// Availability is a point-in-time answer for one SKU and quantity
type Availability struct {
	SKU               stock.SKU         `json:"sku"`
	AvailableQuantity int64             `json:"available_quantity"`
	RequestedQuantity int64             `json:"requested_quantity"`
	IsAvailable       bool              `json:"is_available"`
	CanFulfill        bool              `json:"can_fulfill"`
	Status            stock.StockStatus `json:"status"`
	LowStockThreshold int64             `json:"low_stock_threshold"`
	CheckedAt         time.Time         `json:"checked_at"`
}

// ItemError is a per-item failure inside a batch answer
type ItemError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Available *int64 `json:"available,omitempty"`
}

// NewItemError converts err into its wire code and message
func NewItemError(err error) *ItemError {
	item := &ItemError{Code: ErrorCode(err), Message: err.Error()}
	if insufficient, ok := stock.AsInsufficientStock(err); ok {
		available := insufficient.Available
		item.Available = &available
	}
	return item
}

// ErrorCode returns the domain code carried by err, or INTERNAL_ERROR
func ErrorCode(err error) string {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "INTERNAL_ERROR"
}

// AvailabilityQuery is one entry of a batch availability request
type AvailabilityQuery struct {
	SKU      stock.SKU `json:"sku"`
	Quantity int64     `json:"quantity"`
}

// AvailabilityResult answers one AvailabilityQuery: either Availability or Error is set
type AvailabilityResult struct {
	Index        int           `json:"index"`
	SKU          stock.SKU     `json:"sku"`
	Availability *Availability `json:"availability,omitempty"`
	Error        *ItemError    `json:"error,omitempty"`
}

// Cart issue codes
const (
	IssueUnknownSKU        = "UNKNOWN_SKU"
	IssueInactiveSKU       = "INACTIVE_SKU"
	IssueInsufficientStock = "INSUFFICIENT_STOCK"
	IssueInvalidQuantity   = "INVALID_QUANTITY"
	IssueInvalidSKU        = "INVALID_SKU"
	IssueEmptyCart         = "EMPTY_CART"
	IssueDuplicateSKU      = "DUPLICATE_SKU"
	IssueLowStock          = "LOW_STOCK"
)

// CartIssue is one error or warning found while validating a cart
type CartIssue struct {
	Line      int       `json:"line"`
	SKU       stock.SKU `json:"sku"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Requested int64     `json:"requested,omitempty"`
	Available *int64    `json:"available,omitempty"`
}

// CartItemResult reports one cart line. Duplicate lines share the
// availability of their combined quantity. Issue is the error code that
// rejected the line, if any.
type CartItemResult struct {
	Line              int       `json:"line"`
	SKU               stock.SKU `json:"sku"`
	RequestedQuantity int64     `json:"requested_quantity"`
	AvailableQuantity int64     `json:"available_quantity"`
	CanFulfill        bool      `json:"can_fulfill"`
	Issue             string    `json:"issue,omitempty"`
}

// CartValidation is the result of validating a cart. Valid is true iff Errors is empty.
type CartValidation struct {
	Valid     bool             `json:"valid"`
	Items     []CartItemResult `json:"items"`
	Errors    []CartIssue      `json:"errors"`
	Warnings  []CartIssue      `json:"warnings"`
	CheckedAt time.Time        `json:"checked_at"`
	Notice    string           `json:"notice"`
}

// Finalize line statuses
const (
	LineCommitted        = "committed"
	LineAlreadyCommitted = "already_committed"
	LineFailed           = "failed"
)

// FinalizeLineResult is the outcome of committing one order line
type FinalizeLineResult struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	SKU           stock.SKU  `json:"sku"`
	Quantity      int64      `json:"quantity"`
	Status        string     `json:"status"`
	Late          bool       `json:"late,omitempty"`
	Error         *ItemError `json:"error,omitempty"`
}

// FinalizeReport summarizes OnOrderFinalized
type FinalizeReport struct {
	OrderReference   string               `json:"order_reference"`
	Committed        int                  `json:"committed"`
	AlreadyCommitted int                  `json:"already_committed"`
	Failed           int                  `json:"failed"`
	Lines            []FinalizeLineResult `json:"lines"`
}

// Succeeded reports whether every line ended up committed
func (r *FinalizeReport) Succeeded() bool {
	return r.Failed == 0
}

// SweepStats contains statistics about one sweep
type SweepStats struct {
	TotalDue    int           `json:"total_due"`
	Expired     int           `json:"expired"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	ProcessedAt time.Time     `json:"processed_at"`
	Duration    time.Duration `json:"duration"`
}

// ReservationView is the read model of a reservation
type ReservationView struct {
	ID             uuid.UUID               `json:"id"`
	SKU            stock.SKU               `json:"sku"`
	Quantity       int64                   `json:"quantity"`
	Holder         string                  `json:"holder"`
	Status         stock.ReservationStatus `json:"status"`
	CreatedAt      time.Time               `json:"created_at"`
	ExpiresAt      time.Time               `json:"expires_at"`
	OrderReference string                  `json:"order_reference,omitempty"`
	ResolvedAt     *time.Time              `json:"resolved_at,omitempty"`
	Late           bool                    `json:"late,omitempty"`
}

// ToReservationView converts a reservation to its read model
func ToReservationView(r *stock.Reservation) ReservationView {
	return ReservationView{
		ID:             r.ID,
		SKU:            r.SKU,
		Quantity:       r.Quantity,
		Holder:         r.Holder,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
		OrderReference: r.OrderReference,
		ResolvedAt:     r.ResolvedAt,
		Late:           r.WasLate(),
	}
}

// StockView is the read model of a stock record
type StockView struct {
	SKU               stock.SKU         `json:"sku"`
	OnHand            int64             `json:"on_hand"`
	Reserved          int64             `json:"reserved"`
	Available         int64             `json:"available"`
	ReorderThreshold  int64             `json:"reorder_threshold"`
	LowStockThreshold int64             `json:"low_stock_threshold"`
	Status            stock.StockStatus `json:"status"`
	LowStock          bool              `json:"low_stock"`
	NeedsReorder      bool              `json:"needs_reorder"`
	Version           int               `json:"version"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// ToStockView converts a stock record to its read model
func ToStockView(r *stock.StockRecord) StockView {
	return StockView{
		SKU:               r.SKU,
		OnHand:            r.OnHand,
		Reserved:          r.Reserved,
		Available:         r.Available(),
		ReorderThreshold:  r.ReorderThreshold,
		LowStockThreshold: r.LowStockThreshold,
		Status:            r.Status,
		LowStock:          r.IsLowStock(),
		NeedsReorder:      r.NeedsReorder(),
		Version:           r.Version,
		UpdatedAt:         r.UpdatedAt,
	}
}

// CreateStockCommand stocks a SKU for the first time
type CreateStockCommand struct {
	SKU               stock.SKU
	OnHand            int64
	ReorderThreshold  int64
	LowStockThreshold int64
}

// ThresholdsCommand replaces a SKU's thresholds
type ThresholdsCommand struct {
	SKU               stock.SKU
	ReorderThreshold  int64
	LowStockThreshold int64
}

// AuditEntry compares a SKU's reserved counter with its open reservations
type AuditEntry struct {
	SKU       stock.SKU `json:"sku"`
	OnHand    int64     `json:"on_hand"`
	Reserved  int64     `json:"reserved"`
	OpenTotal int64     `json:"open_total"`
	Drift     int64     `json:"drift"`
}

// AuditReport lists every SKU whose counters disagree with its reservations
type AuditReport struct {
	Checked    int          `json:"checked"`
	Consistent bool         `json:"consistent"`
	Drifted    []AuditEntry `json:"drifted"`
	CheckedAt  time.Time    `json:"checked_at"`
}
