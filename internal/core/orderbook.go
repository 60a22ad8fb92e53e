package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/money"
)

type location struct {
	side  domain.Side
	price decimal.Decimal
}

// BookMatch is the outcome of walking one side of the book for a taker.
type BookMatch struct {
	Fills     []Fill
	Evicted   []domain.Order
	Remaining decimal.Decimal
	Halted    bool
}

// OrderBook keeps both sides of one pair. Each side is a btree of price
// levels ordered best first, so Min is always the top of book.
// Not safe for concurrent use; MatchingEngine serializes access.
type OrderBook struct {
	symbol domain.TradingPair
	bids   *btree.BTreeG[*PriceLevel]
	asks   *btree.BTreeG[*PriceLevel]
	index  map[domain.OrderID]location
}

func NewOrderBook(symbol domain.TradingPair) *OrderBook {
	opts := btree.Options{NoLocks: true}
	return &OrderBook{
		symbol: symbol,
		bids: btree.NewBTreeGOptions(func(a, b *PriceLevel) bool {
			return a.price.GreaterThan(b.price)
		}, opts),
		asks: btree.NewBTreeGOptions(func(a, b *PriceLevel) bool {
			return a.price.LessThan(b.price)
		}, opts),
		index: make(map[domain.OrderID]location),
	}
}

func (ob *OrderBook) Symbol() domain.TradingPair { return ob.symbol }

func (ob *OrderBook) tree(side domain.Side) *btree.BTreeG[*PriceLevel] {
	if side == domain.Buy {
		return ob.bids
	}
	return ob.asks
}

// Add rests a limit order at its price.
func (ob *OrderBook) Add(o domain.Order) error {
	if o.Symbol != ob.symbol {
		return &domain.InvalidOrderError{Field: "symbol", Reason: fmt.Sprintf("order for %s sent to %s book", o.Symbol, ob.symbol)}
	}
	if o.Type.RequiresPrice() && !o.Price.Valid {
		return &domain.InvalidOrderError{Field: "price", Reason: "required for " + string(o.Type)}
	}
	if o.Type != domain.Limit {
		return &domain.InvalidOrderError{Field: "type", Reason: string(o.Type) + " orders cannot rest"}
	}
	if !o.Side.Valid() {
		return &domain.InvalidOrderError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if !o.Remaining.IsPositive() {
		return &domain.InvalidOrderError{Field: "remaining_quantity", Reason: "must be positive"}
	}
	if _, ok := ob.index[o.ID]; ok {
		return &domain.InvalidOrderError{Field: "id", Reason: "order " + string(o.ID) + " already resting"}
	}
	tree := ob.tree(o.Side)
	lvl, ok := tree.Get(pivot(o.Price.Decimal))
	if !ok {
		lvl = NewPriceLevel(o.Side, o.Price.Decimal)
		tree.Set(lvl)
	}
	lvl.Add(o)
	ob.index[o.ID] = location{side: o.Side, price: o.Price.Decimal}
	return nil
}

// Remove takes a resting order out of the book, dropping its level when emptied.
func (ob *OrderBook) Remove(id domain.OrderID) (domain.Order, error) {
	loc, ok := ob.index[id]
	if !ok {
		return domain.Order{}, &domain.InvalidOrderError{Field: "id", Reason: "order " + string(id) + " not in book"}
	}
	tree := ob.tree(loc.side)
	lvl, ok := tree.Get(pivot(loc.price))
	if !ok {
		return domain.Order{}, &domain.OrderBookCorruptionError{Symbol: ob.symbol, Details: "index points at missing level " + loc.price.String()}
	}
	o, ok := lvl.Remove(id)
	if !ok {
		return domain.Order{}, &domain.OrderBookCorruptionError{Symbol: ob.symbol, Details: "index points at missing order " + string(id)}
	}
	delete(ob.index, id)
	if lvl.IsEmpty() {
		tree.Delete(lvl)
	}
	return o, nil
}

// Order looks up a resting order by id.
func (ob *OrderBook) Order(id domain.OrderID) (domain.Order, bool) {
	loc, ok := ob.index[id]
	if !ok {
		return domain.Order{}, false
	}
	lvl, ok := ob.tree(loc.side).Get(pivot(loc.price))
	if !ok {
		return domain.Order{}, false
	}
	return lvl.Get(id)
}

// Orders returns every resting order, bids then asks, each best first.
func (ob *OrderBook) Orders() []domain.Order {
	out := make([]domain.Order, 0, len(ob.index))
	for _, tree := range []*btree.BTreeG[*PriceLevel]{ob.bids, ob.asks} {
		tree.Scan(func(lvl *PriceLevel) bool {
			out = append(out, lvl.Orders()...)
			return true
		})
	}
	return out
}

func (ob *OrderBook) PriceLevel(side domain.Side, price decimal.Decimal) (*PriceLevel, bool) {
	return ob.tree(side).Get(pivot(price))
}

func (ob *OrderBook) LiquidityAt(side domain.Side, price decimal.Decimal) decimal.Decimal {
	if lvl, ok := ob.PriceLevel(side, price); ok {
		return lvl.TotalQuantity()
	}
	return decimal.Zero
}

func (ob *OrderBook) BestBid() (decimal.Decimal, bool) { return best(ob.bids) }
func (ob *OrderBook) BestAsk() (decimal.Decimal, bool) { return best(ob.asks) }

func (ob *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, okb := ob.BestBid()
	ask, oka := ob.BestAsk()
	if !okb || !oka {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

func (ob *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, okb := ob.BestBid()
	ask, oka := ob.BestAsk()
	if !okb || !oka {
		return decimal.Zero, false
	}
	mid, err := money.Mid(bid, ask)
	if err != nil {
		return decimal.Zero, false
	}
	return mid, true
}

func (ob *OrderBook) BidLevels(depth int) []*PriceLevel { return levels(ob.bids, depth) }
func (ob *OrderBook) AskLevels(depth int) []*PriceLevel { return levels(ob.asks, depth) }

func (ob *OrderBook) Snapshot(depth int, now time.Time) domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		Symbol:    ob.symbol,
		Bids:      []domain.LevelSnapshot{},
		Asks:      []domain.LevelSnapshot{},
		Timestamp: now,
	}
	for _, lvl := range ob.BidLevels(depth) {
		snap.Bids = append(snap.Bids, lvl.Snapshot())
	}
	for _, lvl := range ob.AskLevels(depth) {
		snap.Asks = append(snap.Asks, lvl.Snapshot())
	}
	return snap
}

func (ob *OrderBook) IsCrossed() bool {
	bid, okb := ob.BestBid()
	ask, oka := ob.BestAsk()
	return okb && oka && bid.GreaterThanOrEqual(ask)
}

func (ob *OrderBook) OrderCount() int { return len(ob.index) }

func (ob *OrderBook) Clear() {
	ob.bids.Clear()
	ob.asks.Clear()
	ob.index = make(map[domain.OrderID]location)
}

// Validate checks the structural invariants of the book.
func (ob *OrderBook) Validate() error {
	if ob.IsCrossed() {
		bid, _ := ob.BestBid()
		ask, _ := ob.BestAsk()
		return ob.corrupt("crossed book: best bid %s >= best ask %s", bid, ask)
	}
	seen := 0
	for _, side := range []domain.Side{domain.Buy, domain.Sell} {
		var prev *PriceLevel
		var err error
		ob.tree(side).Scan(func(lvl *PriceLevel) bool {
			switch {
			case prev != nil && side == domain.Buy && !lvl.price.LessThan(prev.price):
				err = ob.corrupt("bids not strictly descending at %s", lvl.price)
			case prev != nil && side == domain.Sell && !lvl.price.GreaterThan(prev.price):
				err = ob.corrupt("asks not strictly ascending at %s", lvl.price)
			case lvl.side != side:
				err = ob.corrupt("%s level %s filed under %s", lvl.side, lvl.price, side)
			case lvl.IsEmpty():
				err = ob.corrupt("empty %s level %s", side, lvl.price)
			}
			if err != nil {
				return false
			}
			sum := decimal.Zero
			for _, o := range lvl.Orders() {
				sum = sum.Add(o.Remaining)
				loc, ok := ob.index[o.ID]
				if !ok || loc.side != side || !loc.price.Equal(lvl.price) {
					err = ob.corrupt("order %s not indexed at %s %s", o.ID, side, lvl.price)
					return false
				}
				if !o.Remaining.IsPositive() || !o.Conserved() {
					err = ob.corrupt("order %s has remaining %s of %s", o.ID, o.Remaining, o.Quantity)
					return false
				}
				seen++
			}
			if !sum.Equal(lvl.total) {
				err = ob.corrupt("%s level %s aggregate %s != resting %s", side, lvl.price, lvl.total, sum)
				return false
			}
			prev = lvl
			return true
		})
		if err != nil {
			return err
		}
	}
	if seen != len(ob.index) {
		return ob.corrupt("index holds %d orders, levels hold %d", len(ob.index), seen)
	}
	return nil
}

// Fillable walks the liquidity a taker on side could reach within limit
// (any price when limit is null) and returns how much of qty it covers and
// the notional of that quantity. The book is not modified.
func (ob *OrderBook) Fillable(taker domain.Side, limit decimal.NullDecimal, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	filled, notional := decimal.Zero, decimal.Zero
	ob.tree(taker.Opposite()).Scan(func(lvl *PriceLevel) bool {
		if !crosses(taker, limit, lvl.price) {
			return false
		}
		take := decimal.Min(qty.Sub(filled), lvl.total)
		filled = filled.Add(take)
		notional = notional.Add(take.Mul(lvl.price))
		return filled.LessThan(qty)
	})
	return filled, notional
}

// Walk visits the makers a taker on side could reach within limit, in
// priority order, until fn returns false. The book is not modified.
func (ob *OrderBook) Walk(taker domain.Side, limit decimal.NullDecimal, fn func(maker domain.Order) bool) {
	ob.tree(taker.Opposite()).Scan(func(lvl *PriceLevel) bool {
		if !crosses(taker, limit, lvl.price) {
			return false
		}
		for _, maker := range lvl.Orders() {
			if !fn(maker) {
				return false
			}
		}
		return true
	})
}

// SelfMatch reports the first maker owned by user that a taker would reach
// before qty is exhausted.
func (ob *OrderBook) SelfMatch(taker domain.Side, limit decimal.NullDecimal, qty decimal.Decimal, user domain.UserID) (domain.Order, bool) {
	remaining := qty
	var hit domain.Order
	found := false
	ob.Walk(taker, limit, func(maker domain.Order) bool {
		if maker.UserID == user {
			hit, found = maker, true
			return false
		}
		remaining = remaining.Sub(decimal.Min(remaining, maker.Remaining))
		return remaining.IsPositive()
	})
	return hit, found
}

// Match walks the side opposite taker best first, trading qty against every
// level that crosses limit. Filled and evicted makers leave the index and
// emptied levels are pruned.
func (ob *OrderBook) Match(taker domain.Side, limit decimal.NullDecimal, qty decimal.Decimal, now time.Time, visit func(maker domain.Order) Visit) BookMatch {
	res := BookMatch{Remaining: qty}
	tree := ob.tree(taker.Opposite())
	for res.Remaining.IsPositive() {
		lvl, ok := tree.Min()
		if !ok || !crosses(taker, limit, lvl.price) {
			break
		}
		lm := lvl.MatchQuantity(res.Remaining, now, visit)
		res.Remaining = lm.Remaining
		res.Fills = append(res.Fills, lm.Fills...)
		res.Evicted = append(res.Evicted, lm.Evicted...)
		for _, f := range lm.Fills {
			if f.Order.Remaining.IsZero() {
				delete(ob.index, f.Order.ID)
			}
		}
		for _, o := range lm.Evicted {
			delete(ob.index, o.ID)
		}
		if lvl.IsEmpty() {
			tree.Delete(lvl)
		}
		if lm.Halted {
			res.Halted = true
			break
		}
	}
	return res
}

func (ob *OrderBook) corrupt(format string, args ...any) error {
	return &domain.OrderBookCorruptionError{Symbol: ob.symbol, Details: fmt.Sprintf(format, args...)}
}

// crosses reports whether a taker on side with limit may trade at price.
func crosses(taker domain.Side, limit decimal.NullDecimal, price decimal.Decimal) bool {
	if !limit.Valid {
		return true
	}
	if taker == domain.Buy {
		return price.LessThanOrEqual(limit.Decimal)
	}
	return price.GreaterThanOrEqual(limit.Decimal)
}

func pivot(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{price: price}
}

func best(tree *btree.BTreeG[*PriceLevel]) (decimal.Decimal, bool) {
	lvl, ok := tree.Min()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.price, true
}

func levels(tree *btree.BTreeG[*PriceLevel], depth int) []*PriceLevel {
	var out []*PriceLevel
	tree.Scan(func(lvl *PriceLevel) bool {
		if depth > 0 && len(out) >= depth {
			return false
		}
		out = append(out, lvl)
		return true
	})
	return out
}
