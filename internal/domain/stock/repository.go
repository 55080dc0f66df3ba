package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ledger is the authoritative per-SKU counter store. Every adjustment is a
// single compare-and-adjust that keeps 0 <= reserved <= on_hand.
type Ledger interface {
	// GetAvailable returns on_hand - reserved, or ErrStockNotFound
	GetAvailable(ctx context.Context, sku SKU) (int64, error)

	// GetLevels returns the full counter snapshot, or ErrStockNotFound
	GetLevels(ctx context.Context, sku SKU) (Levels, error)

	// AdjustReserved adds delta to reserved. A positive delta that exceeds
	// available stock fails with *InsufficientStockError; a negative delta
	// below zero fails with ErrLedgerInvariant.
	AdjustReserved(ctx context.Context, sku SKU, delta int64) (Levels, error)

	// AdjustOnHand adds delta to on_hand. With alsoReduceReserved and a
	// negative delta, reserved shrinks by the same amount (a commit).
	// Without it, on_hand may not fall below reserved.
	AdjustOnHand(ctx context.Context, sku SKU, delta int64, alsoReduceReserved bool) (Levels, error)
}

// StockFilter narrows stock listings
type StockFilter struct {
	ProductID    string
	Status       StockStatus
	LowStockOnly bool
	Page         int
	PageSize     int
}

// StockRepository persists stock records
type StockRepository interface {
	Ledger

	FindBySKU(ctx context.Context, sku SKU) (*StockRecord, error)
	FindAll(ctx context.Context, filter StockFilter) ([]StockRecord, int64, error)
	Create(ctx context.Context, record *StockRecord) error

	// SaveSettings persists thresholds, and the status only when it is
	// discontinued. It checks the version the record was loaded at and fails
	// with shared.ErrConcurrencyConflict on mismatch.
	SaveSettings(ctx context.Context, record *StockRecord) error

	// SyncStatus re-derives active/out_of_stock from current levels.
	// Discontinued records are left untouched.
	SyncStatus(ctx context.Context, sku SKU) (StockStatus, error)
}

// ReservationRepository persists reservations
type ReservationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	Create(ctx context.Context, reservation *Reservation) error

	// Transition stores r's new state only if the stored status is still from.
	// Otherwise it returns shared.ErrConcurrencyConflict and changes nothing.
	Transition(ctx context.Context, r *Reservation, from ReservationStatus) error

	// FindDue returns open reservations with expires_at <= now, oldest first
	FindDue(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	CountDue(ctx context.Context, now time.Time) (int64, error)

	FindByHolder(ctx context.Context, holder string, limit int) ([]Reservation, error)

	// SumOpen totals the quantity of open reservations per SKU
	SumOpen(ctx context.Context) (map[SKU]int64, error)
}
