package port

import (
	"context"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

// RestingOrder is an open order together with the reservation holding its funds.
type RestingOrder struct {
	Order         domain.Order
	ReservationID domain.ReservationID
}

type Repository interface {
	SaveOrder(ctx context.Context, o domain.Order, res domain.ReservationID) error
	SaveTrades(ctx context.Context, trades []domain.Trade) error
	// LoadOpenOrders returns resting orders for symbol in time priority.
	LoadOpenOrders(ctx context.Context, symbol domain.TradingPair) ([]RestingOrder, error)
	LoadOrder(ctx context.Context, id domain.OrderID) (domain.Order, error)
	LoadTradesForOrder(ctx context.Context, id domain.OrderID) ([]domain.Trade, error)
}
