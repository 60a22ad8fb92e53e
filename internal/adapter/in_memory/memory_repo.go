package in_memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/port"
)

type storedOrder struct {
	seq   int
	order domain.Order
	res   domain.ReservationID
}

type MemoryRepo struct {
	mu     sync.Mutex
	seq    int
	orders map[domain.OrderID]*storedOrder
	trades map[domain.OrderID][]domain.Trade
}

var _ port.Repository = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orders: make(map[domain.OrderID]*storedOrder),
		trades: make(map[domain.OrderID][]domain.Trade),
	}
}

func (r *MemoryRepo) SaveOrder(ctx context.Context, o domain.Order, res domain.ReservationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.orders[o.ID]; ok {
		s.order, s.res = o, res
		return nil
	}
	r.seq++
	r.orders[o.ID] = &storedOrder{seq: r.seq, order: o, res: res}
	return nil
}

func (r *MemoryRepo) SaveTrades(ctx context.Context, trades []domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range trades {
		r.trades[t.MakerOrderID] = append(r.trades[t.MakerOrderID], t)
		r.trades[t.TakerOrderID] = append(r.trades[t.TakerOrderID], t)
	}
	return nil
}

// LoadOpenOrders returns resting orders in arrival order.
func (r *MemoryRepo) LoadOpenOrders(ctx context.Context, symbol domain.TradingPair) ([]port.RestingOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var open []*storedOrder
	for _, s := range r.orders {
		o := s.order
		if o.Symbol == symbol && (o.Status == domain.Open || o.Status == domain.PartiallyFilled) && o.Remaining.IsPositive() {
			open = append(open, s)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].seq < open[j].seq })
	res := make([]port.RestingOrder, 0, len(open))
	for _, s := range open {
		res = append(res, port.RestingOrder{Order: s.order, ReservationID: s.res})
	}
	return res, nil
}

func (r *MemoryRepo) LoadOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.orders[id]
	if !ok {
		return domain.Order{}, &domain.NotFoundError{Resource: "order", ID: string(id)}
	}
	return s.order, nil
}

func (r *MemoryRepo) LoadTradesForOrder(ctx context.Context, id domain.OrderID) ([]domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Trade(nil), r.trades[id]...), nil
}
