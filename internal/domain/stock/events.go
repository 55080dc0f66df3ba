package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/domain/shared"
)

// Aggregate types
const (
	AggregateTypeStock       = "StockRecord"
	AggregateTypeReservation = "Reservation"
	AggregateTypeOrder       = "Order"
)

// Event types
const (
	EventTypeReservationCreated   = "ReservationCreated"
	EventTypeReservationReleased  = "ReservationReleased"
	EventTypeReservationExpired   = "ReservationExpired"
	EventTypeReservationCommitted = "ReservationCommitted"
	EventTypeStockBelowThreshold  = "StockBelowThreshold"
	EventTypeStockRestocked       = "StockRestocked"
	EventTypeFulfillmentFailed    = "FulfillmentFailed"
	EventTypeOrderFinalized       = "OrderFinalized"
)

// ReservationCreatedEvent is published after a hold is placed
type ReservationCreatedEvent struct {
	shared.BaseDomainEvent
	ReservationID uuid.UUID `json:"reservation_id"`
	SKU           SKU       `json:"sku"`
	Quantity      int64     `json:"quantity"`
	Holder        string    `json:"holder"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func NewReservationCreatedEvent(r *Reservation) *ReservationCreatedEvent {
	return &ReservationCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReservationCreated, AggregateTypeReservation, r.ID.String()),
		ReservationID:   r.ID,
		SKU:             r.SKU,
		Quantity:        r.Quantity,
		Holder:          r.Holder,
		ExpiresAt:       r.ExpiresAt,
	}
}

// ReservationReleasedEvent is published after a holder gives back a hold
type ReservationReleasedEvent struct {
	shared.BaseDomainEvent
	ReservationID uuid.UUID `json:"reservation_id"`
	SKU           SKU       `json:"sku"`
	Quantity      int64     `json:"quantity"`
}

func NewReservationReleasedEvent(r *Reservation) *ReservationReleasedEvent {
	return &ReservationReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReservationReleased, AggregateTypeReservation, r.ID.String()),
		ReservationID:   r.ID,
		SKU:             r.SKU,
		Quantity:        r.Quantity,
	}
}

// ReservationExpiredEvent is published by the sweeper for each lapsed hold
type ReservationExpiredEvent struct {
	shared.BaseDomainEvent
	ReservationID uuid.UUID `json:"reservation_id"`
	SKU           SKU       `json:"sku"`
	Quantity      int64     `json:"quantity"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func NewReservationExpiredEvent(r *Reservation) *ReservationExpiredEvent {
	return &ReservationExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReservationExpired, AggregateTypeReservation, r.ID.String()),
		ReservationID:   r.ID,
		SKU:             r.SKU,
		Quantity:        r.Quantity,
		ExpiresAt:       r.ExpiresAt,
	}
}

// ReservationCommittedEvent is published once a hold becomes a permanent deduction
type ReservationCommittedEvent struct {
	shared.BaseDomainEvent
	ReservationID  uuid.UUID `json:"reservation_id"`
	SKU            SKU       `json:"sku"`
	Quantity       int64     `json:"quantity"`
	OrderReference string    `json:"order_reference"`
	Late           bool      `json:"late"`
}

func NewReservationCommittedEvent(r *Reservation) *ReservationCommittedEvent {
	return &ReservationCommittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReservationCommitted, AggregateTypeReservation, r.ID.String()),
		ReservationID:   r.ID,
		SKU:             r.SKU,
		Quantity:        r.Quantity,
		OrderReference:  r.OrderReference,
		Late:            r.WasLate(),
	}
}

// StockBelowThresholdEvent is published when available stock first drops
// to or below the record's low-stock threshold
type StockBelowThresholdEvent struct {
	shared.BaseDomainEvent
	SKU       SKU   `json:"sku"`
	Available int64 `json:"available"`
	Threshold int64 `json:"threshold"`
}

func NewStockBelowThresholdEvent(sku SKU, available, threshold int64) *StockBelowThresholdEvent {
	return &StockBelowThresholdEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockBelowThreshold, AggregateTypeStock, sku.String()),
		SKU:             sku,
		Available:       available,
		Threshold:       threshold,
	}
}

// StockRestockedEvent is published after on-hand stock is increased
type StockRestockedEvent struct {
	shared.BaseDomainEvent
	SKU      SKU   `json:"sku"`
	Quantity int64 `json:"quantity"`
	OnHand   int64 `json:"on_hand"`
}

func NewStockRestockedEvent(sku SKU, quantity, onHand int64) *StockRestockedEvent {
	return &StockRestockedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockRestocked, AggregateTypeStock, sku.String()),
		SKU:             sku,
		Quantity:        quantity,
		OnHand:          onHand,
	}
}

// FulfillmentFailedEvent is published when a late commit finds the stock gone
type FulfillmentFailedEvent struct {
	shared.BaseDomainEvent
	OrderReference string    `json:"order_reference"`
	ReservationID  uuid.UUID `json:"reservation_id"`
	SKU            SKU       `json:"sku"`
	Quantity       int64     `json:"quantity"`
	Available      int64     `json:"available"`
	Reason         string    `json:"reason"`
}

func NewFulfillmentFailedEvent(orderReference string, line OrderLine, available int64, reason string) *FulfillmentFailedEvent {
	return &FulfillmentFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeFulfillmentFailed, AggregateTypeOrder, orderReference),
		OrderReference:  orderReference,
		ReservationID:   line.ReservationID,
		SKU:             line.SKU,
		Quantity:        line.Quantity,
		Available:       available,
		Reason:          reason,
	}
}

// OrderLine is one reserved line of a finalized order
type OrderLine struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	SKU           SKU       `json:"sku"`
	Quantity      int64     `json:"quantity"`
}

// OrderFinalizedEvent is consumed from the order system; each line commits its reservation.
type OrderFinalizedEvent struct {
	shared.BaseDomainEvent
	OrderReference string      `json:"order_reference"`
	Lines          []OrderLine `json:"lines"`
}

// IdempotencyKey identifies the order, so a republished message is a duplicate
// even with a new event ID.
func (e *OrderFinalizedEvent) IdempotencyKey() string {
	return e.OrderReference
}

func NewOrderFinalizedEvent(orderReference string, lines []OrderLine) *OrderFinalizedEvent {
	return &OrderFinalizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderFinalized, AggregateTypeOrder, orderReference),
		OrderReference:  orderReference,
		Lines:           lines,
	}
}
