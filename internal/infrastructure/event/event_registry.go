package event

import "github.com/shopcore/stockhold/internal/domain/stock"

// RegisterStockEvents registers the event types that cross the process
// boundary. The order consumer decodes OrderFinalized; the forwarder
// publishes the rest.
func RegisterStockEvents(s *EventSerializer) {
	RegisterType[stock.ReservationCreatedEvent](s, stock.EventTypeReservationCreated)
	RegisterType[stock.ReservationReleasedEvent](s, stock.EventTypeReservationReleased)
	RegisterType[stock.ReservationExpiredEvent](s, stock.EventTypeReservationExpired)
	RegisterType[stock.ReservationCommittedEvent](s, stock.EventTypeReservationCommitted)
	RegisterType[stock.StockBelowThresholdEvent](s, stock.EventTypeStockBelowThreshold)
	RegisterType[stock.StockRestockedEvent](s, stock.EventTypeStockRestocked)
	RegisterType[stock.FulfillmentFailedEvent](s, stock.EventTypeFulfillmentFailed)
	RegisterType[stock.OrderFinalizedEvent](s, stock.EventTypeOrderFinalized)
}
