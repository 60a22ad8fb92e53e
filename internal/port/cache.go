package port

import (
	"context"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

// Cache holds the latest orderbook snapshot per pair. A miss returns (nil, nil).
type Cache interface {
	SetOrderbook(ctx context.Context, symbol domain.TradingPair, ob *domain.OrderbookSnapshot) error
	GetOrderbook(ctx context.Context, symbol domain.TradingPair) (*domain.OrderbookSnapshot, error)
	Invalidate(ctx context.Context, symbol domain.TradingPair) error
}
