package in_memory

import (
	"context"
	"sync"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/port"
)

type Cache struct {
	mu    sync.Mutex
	store map[domain.TradingPair]*domain.OrderbookSnapshot
}

var _ port.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{store: make(map[domain.TradingPair]*domain.OrderbookSnapshot)}
}

func (c *Cache) SetOrderbook(ctx context.Context, symbol domain.TradingPair, ob *domain.OrderbookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[symbol] = ob.DeepCopy()
	return nil
}

func (c *Cache) GetOrderbook(ctx context.Context, symbol domain.TradingPair) (*domain.OrderbookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ob, ok := c.store[symbol]
	if !ok {
		return nil, nil
	}
	return ob.DeepCopy(), nil
}

func (c *Cache) Invalidate(ctx context.Context, symbol domain.TradingPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, symbol)
	return nil
}
