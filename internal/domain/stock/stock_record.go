package stock

import (
	"time"

	"github.com/shopcore/stockhold/internal/domain/shared"
)

// StockStatus is the lifecycle state of a stock record
type StockStatus string

const (
	StockStatusActive       StockStatus = "active"
	StockStatusOutOfStock   StockStatus = "out_of_stock"
	StockStatusDiscontinued StockStatus = "discontinued"
)

// IsValid reports whether s is a known status
func (s StockStatus) IsValid() bool {
	switch s {
	case StockStatusActive, StockStatusOutOfStock, StockStatusDiscontinued:
		return true
	}
	return false
}

// Levels is a point-in-time snapshot of a SKU's counters.
type Levels struct {
	OnHand   int64 `json:"on_hand"`
	Reserved int64 `json:"reserved"`
}

// Available is on-hand minus reserved: the quantity sellable right now.
func (l Levels) Available() int64 {
	return l.OnHand - l.Reserved
}

// Valid reports whether 0 <= reserved <= on_hand.
func (l Levels) Valid() bool {
	return l.Reserved >= 0 && l.Reserved <= l.OnHand
}

// StockRecord is the aggregate root holding the authoritative counters for one SKU.
// Counters are mutated only through the Ledger; the aggregate carries settings
// (thresholds, status) and the rules derived from them.
type StockRecord struct {
	shared.BaseAggregateRoot
	SKU               SKU
	OnHand            int64
	Reserved          int64
	ReorderThreshold  int64
	LowStockThreshold int64
	Status            StockStatus
}

var _ shared.AggregateRoot = (*StockRecord)(nil)

// NewStockRecord creates a stock record for a SKU that is stocked for the first time.
func NewStockRecord(sku SKU, onHand, reorderThreshold, lowStockThreshold int64, now time.Time) (*StockRecord, error) {
	if sku.IsZero() {
		return nil, ErrInvalidSKU
	}
	if onHand < 0 {
		return nil, ErrInvalidQuantity
	}
	if reorderThreshold < 0 || lowStockThreshold < 0 {
		return nil, ErrInvalidThreshold
	}

	record := &StockRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		SKU:               sku,
		OnHand:            onHand,
		ReorderThreshold:  reorderThreshold,
		LowStockThreshold: lowStockThreshold,
	}
	record.Status = StatusFor(StockStatusActive, record.Levels())
	return record, nil
}

// Levels returns the record's counters
func (r *StockRecord) Levels() Levels {
	return Levels{OnHand: r.OnHand, Reserved: r.Reserved}
}

// Available returns on-hand minus reserved
func (r *StockRecord) Available() int64 {
	return r.OnHand - r.Reserved
}

// IsSellable reports whether new reservations may be placed against the record.
// Out-of-stock records stay sellable; they simply have nothing available.
func (r *StockRecord) IsSellable() bool {
	return r.Status != StockStatusDiscontinued
}

// IsLowStock reports whether available stock is at or below the low-stock threshold
func (r *StockRecord) IsLowStock() bool {
	return IsLowStock(r.Levels(), r.LowStockThreshold)
}

// NeedsReorder reports whether on-hand stock is at or below the reorder threshold
func (r *StockRecord) NeedsReorder() bool {
	return r.ReorderThreshold > 0 && r.OnHand <= r.ReorderThreshold
}

// SetThresholds updates the reorder and low-stock thresholds
func (r *StockRecord) SetThresholds(reorderThreshold, lowStockThreshold int64, now time.Time) error {
	if reorderThreshold < 0 || lowStockThreshold < 0 {
		return ErrInvalidThreshold
	}
	r.ReorderThreshold = reorderThreshold
	r.LowStockThreshold = lowStockThreshold
	r.Touch(now)
	r.IncrementVersion()
	return nil
}

// Discontinue retires the record. Discontinued records are kept for history.
func (r *StockRecord) Discontinue(now time.Time) error {
	if r.Status == StockStatusDiscontinued {
		return nil
	}
	r.Status = StockStatusDiscontinued
	r.Touch(now)
	r.IncrementVersion()
	return nil
}

// ApplyLevels copies counters returned by the Ledger and re-derives the status.
func (r *StockRecord) ApplyLevels(l Levels, now time.Time) {
	r.OnHand = l.OnHand
	r.Reserved = l.Reserved
	r.Status = StatusFor(r.Status, l)
	r.Touch(now)
}

// StatusFor derives the status implied by the given levels.
// Discontinued is sticky; otherwise zero on-hand means out of stock.
func StatusFor(current StockStatus, l Levels) StockStatus {
	if current == StockStatusDiscontinued {
		return current
	}
	if l.OnHand == 0 {
		return StockStatusOutOfStock
	}
	return StockStatusActive
}

// IsLowStock reports whether available stock is at or below threshold.
// A zero threshold disables the check.
func IsLowStock(l Levels, threshold int64) bool {
	return threshold > 0 && l.Available() <= threshold
}

// CrossedLowStock reports whether moving from before to after dropped
// available stock to or below threshold for the first time.
func CrossedLowStock(before, after Levels, threshold int64) bool {
	return !IsLowStock(before, threshold) && IsLowStock(after, threshold)
}
