package stock

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/domain/shared"
)

const maxHolderLength = 128

// ReservationStatus is the state of a hold
type ReservationStatus string

const (
	ReservationStatusOpen      ReservationStatus = "open"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// IsTerminal reports whether the status ends the hold.
// Expired is terminal for release and sweep, but may still be committed late.
func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationStatusOpen
}

// IsValid reports whether s is a known status
func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationStatusOpen, ReservationStatusCommitted, ReservationStatusReleased, ReservationStatusExpired:
		return true
	}
	return false
}

// Reservation is one time-boxed hold against a SKU's stock.
type Reservation struct {
	shared.BaseEntity
	SKU            SKU
	Quantity       int64
	Holder         string
	Status         ReservationStatus
	ExpiresAt      time.Time
	OrderReference string
	ResolvedAt     *time.Time
}

// Outcome is the stored result of a reservation, returned verbatim to retried calls.
type Outcome struct {
	ReservationID  uuid.UUID         `json:"reservation_id"`
	SKU            SKU               `json:"sku"`
	Quantity       int64             `json:"quantity"`
	Status         ReservationStatus `json:"status"`
	OrderReference string            `json:"order_reference,omitempty"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
	Late           bool              `json:"late,omitempty"`
}

// NewReservation creates an open reservation expiring ttl after now.
func NewReservation(sku SKU, quantity int64, holder string, ttl time.Duration, now time.Time) (*Reservation, error) {
	if sku.IsZero() {
		return nil, ErrInvalidSKU
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	holder = strings.TrimSpace(holder)
	if holder == "" || len(holder) > maxHolderLength {
		return nil, ErrHolderRequired
	}
	if ttl <= 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Reservation TTL must be positive")
	}

	return &Reservation{
		BaseEntity: shared.NewBaseEntity(now),
		SKU:        sku,
		Quantity:   quantity,
		Holder:     holder,
		Status:     ReservationStatusOpen,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// IsOpen reports whether the hold is still in force
func (r *Reservation) IsOpen() bool {
	return r.Status == ReservationStatusOpen
}

// IsTerminal reports whether the reservation has left the open state
func (r *Reservation) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// IsPastDue reports whether expires_at <= now
func (r *Reservation) IsPastDue(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TimeUntilExpiry returns the remaining hold time, zero once past due
func (r *Reservation) TimeUntilExpiry(now time.Time) time.Duration {
	if r.IsPastDue(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// Release ends an open hold at the holder's request
func (r *Reservation) Release(now time.Time) error {
	if !r.IsOpen() {
		return &AlreadyTerminalError{Outcome: r.Outcome()}
	}
	r.resolve(ReservationStatusReleased, now)
	return nil
}

// Expire ends an open hold whose TTL has elapsed
func (r *Reservation) Expire(now time.Time) error {
	if !r.IsOpen() {
		return &AlreadyTerminalError{Outcome: r.Outcome()}
	}
	if !r.IsPastDue(now) {
		return ErrNotYetDue
	}
	r.resolve(ReservationStatusExpired, now)
	return nil
}

// Commit converts the hold into a permanent deduction tied to an order.
// Open and expired reservations may be committed; whether an expired one
// should be is a policy decision made by the caller.
func (r *Reservation) Commit(orderReference string, now time.Time) error {
	orderReference = strings.TrimSpace(orderReference)
	if orderReference == "" {
		return ErrOrderReferenceRequired
	}
	switch r.Status {
	case ReservationStatusOpen, ReservationStatusExpired:
		r.OrderReference = orderReference
		r.resolve(ReservationStatusCommitted, now)
		return nil
	default:
		return &AlreadyTerminalError{Outcome: r.Outcome()}
	}
}

// WasLate reports whether the reservation was committed at or after its expiry
func (r *Reservation) WasLate() bool {
	return r.Status == ReservationStatusCommitted && r.ResolvedAt != nil && !r.ResolvedAt.Before(r.ExpiresAt)
}

// Outcome returns the reservation's current result
func (r *Reservation) Outcome() Outcome {
	return Outcome{
		ReservationID:  r.ID,
		SKU:            r.SKU,
		Quantity:       r.Quantity,
		Status:         r.Status,
		OrderReference: r.OrderReference,
		ResolvedAt:     r.ResolvedAt,
		Late:           r.WasLate(),
	}
}

func (r *Reservation) resolve(status ReservationStatus, now time.Time) {
	r.Status = status
	resolvedAt := now
	r.ResolvedAt = &resolvedAt
	r.Touch(now)
}

// Line returns the reservation as an order line
func (r *Reservation) Line() OrderLine {
	return OrderLine{ReservationID: r.ID, SKU: r.SKU, Quantity: r.Quantity}
}
