package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/money"
)

type STPMode string

const (
	CancelTaker STPMode = "CANCEL_TAKER"
	CancelMaker STPMode = "CANCEL_MAKER"
	CancelBoth  STPMode = "CANCEL_BOTH"
)

func (m STPMode) Valid() bool {
	return m == CancelTaker || m == CancelMaker || m == CancelBoth
}

const DefaultSnapshotDepth = 50

var (
	DefaultMakerFee = decimal.RequireFromString("0.0001")
	DefaultTakerFee = decimal.RequireFromString("0.0005")
)

type EngineConfig struct {
	Symbol                domain.TradingPair
	MakerFee              decimal.Decimal
	TakerFee              decimal.Decimal
	SelfTradePrevention   STPMode
	SnapshotDepth         int
	ValidateAfterMutation bool
	Clock                 func() time.Time
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.SelfTradePrevention == "" {
		c.SelfTradePrevention = CancelTaker
	}
	if c.SnapshotDepth <= 0 {
		c.SnapshotDepth = DefaultSnapshotDepth
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// TradeResult is everything one ProcessOrder call changed.
type TradeResult struct {
	Trades []domain.Trade
	// Order is the incoming order after matching.
	Order domain.Order
	// Makers holds each traded maker in its post-fill state.
	Makers []domain.Order
	// CancelledMakers were removed by self-trade prevention.
	CancelledMakers []domain.Order
}

// Rested reports whether the incoming order is now on the book. Market
// orders never rest, even when partially filled.
func (r *TradeResult) Rested() bool {
	if r.Order.Type != domain.Limit {
		return false
	}
	return r.Order.Status == domain.Open || r.Order.Status == domain.PartiallyFilled
}

// Resting returns the book's copy of a rested order. Book-resident orders
// are always OPEN, whatever status the submission reported.
func (r *TradeResult) Resting() (domain.Order, bool) {
	if !r.Rested() {
		return domain.Order{}, false
	}
	o := r.Order
	o.Status = domain.Open
	return o, true
}

type BestPrices struct {
	Bid    decimal.NullDecimal `json:"best_bid"`
	Ask    decimal.NullDecimal `json:"best_ask"`
	Spread decimal.NullDecimal `json:"spread"`
}

// MatchingEngine matches orders for a single pair with price-time priority.
// All methods are serialized on one mutex.
type MatchingEngine struct {
	cfg EngineConfig
	log *zap.Logger

	mu     sync.Mutex
	book   *OrderBook
	halted error
}

func NewMatchingEngine(cfg EngineConfig, logger *zap.Logger) *MatchingEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &MatchingEngine{
		cfg:  cfg,
		log:  logger.With(zap.String("symbol", string(cfg.Symbol))),
		book: NewOrderBook(cfg.Symbol),
	}
}

func (e *MatchingEngine) Symbol() domain.TradingPair { return e.cfg.Symbol }
func (e *MatchingEngine) Config() EngineConfig       { return e.cfg }

// ProcessOrder matches order against the book and rests any limit remainder.
func (e *MatchingEngine) ProcessOrder(order domain.Order) (TradeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.admit(order); err != nil {
		return TradeResult{}, err
	}

	now := e.cfg.Clock()
	o := order
	o.UpdatedAt = now
	res := TradeResult{}

	limit := matchLimit(o)

	if o.Expired(now) {
		o.Status = domain.Expired
		res.Order = o
		return res, nil
	}

	if e.cfg.SelfTradePrevention == CancelTaker {
		if maker, ok := e.book.SelfMatch(o.Side, limit, o.Remaining, o.UserID); ok {
			e.log.Debug("self-trade prevented",
				zap.String("order_id", string(o.ID)),
				zap.String("maker_id", string(maker.ID)),
				zap.String("user_id", string(o.UserID)))
			return TradeResult{}, &domain.MatchingError{Reason: "self-trade prevented", Err: &domain.SelfTradeError{OrderID: o.ID}}
		}
	}

	if o.TimeInForce == domain.FOK {
		if filled, _ := e.reach(o); filled.LessThan(o.Remaining) {
			o.Status = domain.Expired
			res.Order = o
			return res, nil
		}
	}

	cancelRest := false
	visit := func(maker domain.Order) Visit {
		if cancelRest {
			return Halt
		}
		if maker.UserID != o.UserID {
			return Take
		}
		e.log.Debug("self-trade prevention cancels maker",
			zap.String("order_id", string(o.ID)),
			zap.String("maker_id", string(maker.ID)),
			zap.String("mode", string(e.cfg.SelfTradePrevention)))
		switch e.cfg.SelfTradePrevention {
		case CancelMaker:
			return Evict
		case CancelBoth:
			cancelRest = true
			return Evict
		}
		return Halt
	}

	bm := e.book.Match(o.Side, limit, o.Remaining, now, visit)

	for _, f := range bm.Fills {
		res.Trades = append(res.Trades, e.trade(o, f, now))
		res.Makers = append(res.Makers, f.Order)
		o.FilledQuantity = o.FilledQuantity.Add(f.Quantity)
	}
	o.Remaining = bm.Remaining
	for _, m := range bm.Evicted {
		m.Status = domain.Cancelled
		m.UpdatedAt = now
		res.CancelledMakers = append(res.CancelledMakers, m)
	}

	switch {
	case o.Remaining.IsZero():
		o.Status = domain.Filled
	case cancelRest:
		o.Status = domain.Cancelled
	case o.Type == domain.Market:
		if o.FilledQuantity.IsZero() {
			o.Status = domain.Rejected
		} else {
			o.Status = domain.PartiallyFilled
		}
	case o.TimeInForce == domain.IOC || o.TimeInForce == domain.FOK:
		o.Status = domain.Expired
	default:
		o.Status = domain.Open
		if o.PartiallyFilled() {
			o.Status = domain.PartiallyFilled
		}
		resting := o
		resting.Status = domain.Open
		if err := e.book.Add(resting); err != nil {
			e.log.Error("resting remainder failed", zap.String("order_id", string(o.ID)), zap.Error(err))
			o.Status = domain.Rejected
			res.Order = o
			return res, &domain.MatchingError{Reason: "book insertion failed", Err: err}
		}
	}
	res.Order = o

	if err := e.checkBook(); err != nil {
		return res, err
	}
	return res, nil
}

// CancelOrder removes a resting order and returns it as CANCELLED.
func (e *MatchingEngine) CancelOrder(id domain.OrderID) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted != nil {
		return domain.Order{}, e.haltedErr()
	}
	if _, ok := e.book.Order(id); !ok {
		return domain.Order{}, &domain.MatchingError{Reason: "cancel failed", Err: &domain.NotFoundError{Resource: "order", ID: string(id)}}
	}
	o, err := e.book.Remove(id)
	if err != nil {
		return domain.Order{}, e.halt(err)
	}
	o.Status = domain.Cancelled
	o.UpdatedAt = e.cfg.Clock()
	if err := e.checkBook(); err != nil {
		return o, err
	}
	return o, nil
}

// ExpireOrders removes every resting GTD order whose expiry is at or before now.
func (e *MatchingEngine) ExpireOrders(now time.Time) ([]domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted != nil {
		return nil, e.haltedErr()
	}
	var expired []domain.Order
	for _, o := range e.book.Orders() {
		if !o.Expired(now) {
			continue
		}
		removed, err := e.book.Remove(o.ID)
		if err != nil {
			return expired, e.halt(err)
		}
		removed.Status = domain.Expired
		removed.UpdatedAt = now
		expired = append(expired, removed)
	}
	return expired, nil
}

// RestoreOrder rests a previously accepted order without matching it.
func (e *MatchingEngine) RestoreOrder(o domain.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o.Symbol != e.cfg.Symbol {
		return &domain.MatchingError{Reason: "restore failed", Err: &domain.InvalidOrderError{Field: "symbol", Reason: "belongs to " + string(o.Symbol)}}
	}
	if o.Price.Valid && crossesOpposite(e.book, o) {
		return &domain.MatchingError{Reason: "restore failed", Err: &domain.InvalidOrderError{Field: "price", Reason: "would cross the resting book"}}
	}
	o.Status = domain.Open
	if err := e.book.Add(o); err != nil {
		return &domain.MatchingError{Reason: "restore failed", Err: err}
	}
	return e.checkBook()
}

func (e *MatchingEngine) Order(id domain.OrderID) (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Order(id)
}

func (e *MatchingEngine) OrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.OrderCount()
}

func (e *MatchingEngine) BestPrices() BestPrices {
	e.mu.Lock()
	defer e.mu.Unlock()
	var bp BestPrices
	if bid, ok := e.book.BestBid(); ok {
		bp.Bid = decimal.NewNullDecimal(bid)
	}
	if ask, ok := e.book.BestAsk(); ok {
		bp.Ask = decimal.NewNullDecimal(ask)
	}
	if spread, ok := e.book.Spread(); ok {
		bp.Spread = decimal.NewNullDecimal(spread)
	}
	return bp
}

// Snapshot returns the top depth levels per side; depth <= 0 uses the configured default.
func (e *MatchingEngine) Snapshot(depth int) domain.OrderbookSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if depth <= 0 {
		depth = e.cfg.SnapshotDepth
	}
	return e.book.Snapshot(depth, e.cfg.Clock())
}

// Quote reports how much of o could fill right now under the engine's
// self-trade policy, and the notional of that fill.
func (e *MatchingEngine) Quote(o domain.Order) (decimal.Decimal, decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reach(o)
}

func (e *MatchingEngine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted != nil {
		return e.halted
	}
	return e.book.Validate()
}

// Halted returns the corruption that stopped trading, if any.
func (e *MatchingEngine) Halted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

func (e *MatchingEngine) admit(o domain.Order) error {
	if e.halted != nil {
		return e.haltedErr()
	}
	if o.Symbol != e.cfg.Symbol {
		return &domain.MatchingError{Reason: "wrong engine", Err: &domain.InvalidOrderError{
			Field: "symbol", Reason: fmt.Sprintf("order for %s sent to %s engine", o.Symbol, e.cfg.Symbol)}}
	}
	if err := o.Validate(); err != nil {
		return &domain.MatchingError{Reason: "invalid order", Err: err}
	}
	if !o.Type.Matchable() {
		return &domain.MatchingError{Reason: "unsupported order type", Err: &domain.InvalidOrderError{
			Field: "type", Reason: string(o.Type) + " orders are not matched"}}
	}
	if o.Status.Terminal() {
		return &domain.MatchingError{Reason: "invalid order", Err: &domain.InvalidOrderError{
			Field: "status", Reason: "order already " + string(o.Status)}}
	}
	if _, ok := e.book.Order(o.ID); ok {
		return &domain.MatchingError{Reason: "duplicate order", Err: &domain.InvalidOrderError{
			Field: "id", Reason: "order " + string(o.ID) + " already resting"}}
	}
	return nil
}

// reach walks the liquidity o could take, skipping makers that self-trade
// prevention would cancel and stopping where it would cancel the taker.
func (e *MatchingEngine) reach(o domain.Order) (decimal.Decimal, decimal.Decimal) {
	limit := matchLimit(o)
	if e.cfg.SelfTradePrevention == CancelTaker {
		return e.book.Fillable(o.Side, limit, o.Remaining)
	}
	filled, notional := decimal.Zero, decimal.Zero
	e.book.Walk(o.Side, limit, func(maker domain.Order) bool {
		if maker.UserID == o.UserID {
			return e.cfg.SelfTradePrevention == CancelMaker
		}
		take := money.Min(o.Remaining.Sub(filled), maker.Remaining)
		filled = filled.Add(take)
		notional = notional.Add(take.Mul(maker.Price.Decimal))
		return filled.LessThan(o.Remaining)
	})
	return filled, notional
}

func matchLimit(o domain.Order) decimal.NullDecimal {
	if o.Type == domain.Limit {
		return o.Price
	}
	return decimal.NullDecimal{}
}

func (e *MatchingEngine) trade(taker domain.Order, f Fill, now time.Time) domain.Trade {
	price := f.Order.Price.Decimal
	volume := price.Mul(f.Quantity)
	return domain.Trade{
		ID:           domain.NewTradeID(),
		Symbol:       e.cfg.Symbol,
		MakerOrderID: f.Order.ID,
		TakerOrderID: taker.ID,
		MakerUserID:  f.Order.UserID,
		TakerUserID:  taker.UserID,
		Price:        price,
		Quantity:     f.Quantity,
		Side:         taker.Side,
		MakerFee:     money.Fee(volume, e.cfg.MakerFee),
		TakerFee:     money.Fee(volume, e.cfg.TakerFee),
		Timestamp:    now,
	}
}

func (e *MatchingEngine) checkBook() error {
	if !e.cfg.ValidateAfterMutation {
		return nil
	}
	if err := e.book.Validate(); err != nil {
		return e.halt(err)
	}
	return nil
}

func (e *MatchingEngine) halt(err error) error {
	e.halted = err
	e.log.Error("orderbook corrupted, trading halted", zap.Error(err))
	return &domain.MatchingError{Reason: "orderbook corrupted", Err: err}
}

func (e *MatchingEngine) haltedErr() error {
	return &domain.MatchingError{Reason: "trading halted", Err: e.halted}
}

func crossesOpposite(ob *OrderBook, o domain.Order) bool {
	if o.Side == domain.Buy {
		ask, ok := ob.BestAsk()
		return ok && o.Price.Decimal.GreaterThanOrEqual(ask)
	}
	bid, ok := ob.BestBid()
	return ok && o.Price.Decimal.LessThanOrEqual(bid)
}
