package reservation

import (
	"context"

	"github.com/shopcore/stockhold/internal/domain/stock"
)

// TransactionScope runs a unit of work atomically over the stock and
// reservation repositories. If fn returns an error nothing it did is kept.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes repositories bound to the current transaction.
type TransactionalRepositories interface {
	// StockRepo returns the stock repository scoped to the current transaction
	StockRepo() stock.StockRepository
	// ReservationRepo returns the reservation repository scoped to the current transaction
	ReservationRepo() stock.ReservationRepository
}
