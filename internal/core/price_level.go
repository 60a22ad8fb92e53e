package core

import (
	"container/list"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

// Visit tells MatchQuantity what to do with the maker at the head of the queue.
type Visit int

const (
	// Take trades against the maker.
	Take Visit = iota
	// Evict removes the maker from the level without trading.
	Evict
	// Halt stops matching before the maker.
	Halt
)

// Fill is one maker's share of an incoming quantity. Order is the maker
// after the fill has been applied.
type Fill struct {
	Order    domain.Order
	Quantity decimal.Decimal
}

type LevelMatch struct {
	Fills     []Fill
	Evicted   []domain.Order
	Remaining decimal.Decimal
	Halted    bool
}

// PriceLevel is the FIFO queue of resting orders at one price on one side.
type PriceLevel struct {
	side  domain.Side
	price decimal.Decimal
	total decimal.Decimal
	queue *list.List
	index map[domain.OrderID]*list.Element
}

func NewPriceLevel(side domain.Side, price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		side:  side,
		price: price,
		total: decimal.Zero,
		queue: list.New(),
		index: make(map[domain.OrderID]*list.Element),
	}
}

func (l *PriceLevel) Side() domain.Side              { return l.side }
func (l *PriceLevel) Price() decimal.Decimal         { return l.price }
func (l *PriceLevel) TotalQuantity() decimal.Decimal { return l.total }
func (l *PriceLevel) OrderCount() int                { return l.queue.Len() }
func (l *PriceLevel) IsEmpty() bool                  { return l.queue.Len() == 0 }

// Add appends o to the back of the queue. A duplicate id is ignored and
// reported with false.
func (l *PriceLevel) Add(o domain.Order) bool {
	if _, ok := l.index[o.ID]; ok {
		return false
	}
	stored := o
	l.index[o.ID] = l.queue.PushBack(&stored)
	l.total = l.total.Add(o.Remaining)
	return true
}

func (l *PriceLevel) Remove(id domain.OrderID) (domain.Order, bool) {
	el, ok := l.index[id]
	if !ok {
		return domain.Order{}, false
	}
	return l.unlink(el), true
}

func (l *PriceLevel) Get(id domain.OrderID) (domain.Order, bool) {
	el, ok := l.index[id]
	if !ok {
		return domain.Order{}, false
	}
	return *el.Value.(*domain.Order), true
}

// First returns the order with time priority without removing it.
func (l *PriceLevel) First() (domain.Order, bool) {
	el := l.queue.Front()
	if el == nil {
		return domain.Order{}, false
	}
	return *el.Value.(*domain.Order), true
}

// Orders returns the resting orders in time priority.
func (l *PriceLevel) Orders() []domain.Order {
	out := make([]domain.Order, 0, l.queue.Len())
	for el := l.queue.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*domain.Order))
	}
	return out
}

// UpdateQuantity sets the remaining quantity of a resting order in place,
// moving the difference into its filled quantity. The order keeps its
// queue position and status.
func (l *PriceLevel) UpdateQuantity(id domain.OrderID, remaining decimal.Decimal, now time.Time) error {
	el, ok := l.index[id]
	if !ok {
		return &domain.NotFoundError{Resource: "order", ID: string(id)}
	}
	o := el.Value.(*domain.Order)
	if !remaining.IsPositive() || remaining.GreaterThan(o.Quantity) {
		return &domain.InvalidOrderError{Field: "remaining_quantity", Reason: "must be in (0, quantity]"}
	}
	l.total = l.total.Add(remaining.Sub(o.Remaining))
	o.Remaining = remaining
	o.FilledQuantity = o.Quantity.Sub(remaining)
	o.UpdatedAt = now
	return nil
}

// MatchQuantity consumes incoming against the queue in time priority.
// Fully filled makers leave the level; a partially filled maker stays at
// the head. visit may be nil, which takes every maker.
func (l *PriceLevel) MatchQuantity(incoming decimal.Decimal, now time.Time, visit func(maker domain.Order) Visit) LevelMatch {
	res := LevelMatch{Remaining: incoming}
	el := l.queue.Front()
	for el != nil && res.Remaining.IsPositive() {
		maker := el.Value.(*domain.Order)
		next := el.Next()

		action := Take
		if visit != nil {
			action = visit(*maker)
		}
		switch action {
		case Halt:
			res.Halted = true
			return res
		case Evict:
			res.Evicted = append(res.Evicted, l.unlink(el))
			el = next
			continue
		}

		qty := decimal.Min(res.Remaining, maker.Remaining)
		maker.Remaining = maker.Remaining.Sub(qty)
		maker.FilledQuantity = maker.FilledQuantity.Add(qty)
		maker.UpdatedAt = now
		l.total = l.total.Sub(qty)
		res.Remaining = res.Remaining.Sub(qty)

		if maker.Remaining.IsZero() {
			maker.Status = domain.Filled
			filled := l.unlink(el)
			res.Fills = append(res.Fills, Fill{Order: filled, Quantity: qty})
		} else {
			res.Fills = append(res.Fills, Fill{Order: *maker, Quantity: qty})
		}
		el = next
	}
	return res
}

func (l *PriceLevel) Snapshot() domain.LevelSnapshot {
	return domain.LevelSnapshot{Price: l.price, Quantity: l.total, OrderCount: l.queue.Len()}
}

func (l *PriceLevel) unlink(el *list.Element) domain.Order {
	o := l.queue.Remove(el).(*domain.Order)
	delete(l.index, o.ID)
	l.total = l.total.Sub(o.Remaining)
	return *o
}
