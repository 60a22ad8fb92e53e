package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/money"
	"github.com/ChipaDevTeam/ChipaX/internal/port"
)

// Exchange runs the full order lifecycle around the matching engines:
// funds are reserved before an order reaches the book, trades are settled
// against those reservations, and the outcome is persisted, cached and
// published. Work on one pair is serialized; pairs run independently.
type Exchange struct {
	registry   *Registry
	wallet     port.Wallet
	repo       port.Repository
	cache      port.Cache
	pub        port.Publisher
	feeAccount domain.UserID
	log        *zap.Logger

	pairs map[domain.TradingPair]*sync.Mutex

	mu    sync.Mutex
	holds map[domain.OrderID]domain.ReservationID
}

type ExchangeOption func(*Exchange)

func WithRepository(r port.Repository) ExchangeOption { return func(x *Exchange) { x.repo = r } }
func WithCache(c port.Cache) ExchangeOption           { return func(x *Exchange) { x.cache = c } }
func WithPublisher(p port.Publisher) ExchangeOption   { return func(x *Exchange) { x.pub = p } }
func WithFeeAccount(u domain.UserID) ExchangeOption   { return func(x *Exchange) { x.feeAccount = u } }

const DefaultFeeAccount domain.UserID = "fees"

func NewExchange(registry *Registry, wallet port.Wallet, logger *zap.Logger, opts ...ExchangeOption) *Exchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	x := &Exchange{
		registry:   registry,
		wallet:     wallet,
		feeAccount: DefaultFeeAccount,
		log:        logger,
		pairs:      make(map[domain.TradingPair]*sync.Mutex),
		holds:      make(map[domain.OrderID]domain.ReservationID),
	}
	for _, s := range registry.Symbols() {
		x.pairs[s] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Exchange) Registry() *Registry { return x.registry }

// PlaceOrder reserves funds for o, matches it and settles the resulting trades.
func (x *Exchange) PlaceOrder(ctx context.Context, o domain.Order) (TradeResult, error) {
	eng, err := x.registry.Engine(o.Symbol)
	if err != nil {
		return TradeResult{}, err
	}
	unlock := x.lockPair(o.Symbol)
	defer unlock()

	if err := o.Validate(); err != nil {
		return TradeResult{}, &domain.MatchingError{Reason: "invalid order", Err: err}
	}
	if !o.Type.Matchable() {
		return eng.ProcessOrder(o)
	}
	if o.Expired(eng.cfg.Clock()) {
		res, err := eng.ProcessOrder(o)
		if err == nil {
			x.record(ctx, eng, res, "")
		}
		return res, err
	}

	amount, currency := x.hold(eng, o)
	if !amount.IsPositive() {
		o.Status = domain.Rejected
		o.UpdatedAt = eng.cfg.Clock()
		x.log.Info("market order rejected, no liquidity", zap.String("order_id", string(o.ID)))
		x.record(ctx, eng, TradeResult{Order: o}, "")
		return TradeResult{Order: o}, nil
	}
	resID, err := x.wallet.ReserveFunds(o.UserID, amount, currency)
	if err != nil {
		return TradeResult{}, err
	}

	res, err := eng.ProcessOrder(o)
	if err != nil && len(res.Trades) == 0 && !res.Rested() {
		if rerr := x.wallet.ReleaseFunds(resID); rerr != nil {
			x.log.Error("release after failed order", zap.String("reservation_id", string(resID)), zap.Error(rerr))
		}
		if domain.KindOf(err) == domain.KindSelfTrade {
			rejected := o
			rejected.Status = domain.Rejected
			rejected.UpdatedAt = eng.cfg.Clock()
			x.record(ctx, eng, TradeResult{Order: rejected}, "")
		}
		return res, err
	}

	st, serr := x.settlement(eng, res, resID, o.Side)
	if serr == nil {
		serr = x.wallet.Settle(st)
	}
	if serr != nil {
		x.log.Error("settlement failed",
			zap.String("order_id", string(o.ID)),
			zap.Int("trades", len(res.Trades)),
			zap.Error(serr))
		err = errors.Join(err, serr)
	}
	x.forget(res, resID)

	held := domain.ReservationID("")
	if res.Rested() {
		held = resID
	}
	x.record(ctx, eng, res, held)
	return res, err
}

// CancelOrder cancels a resting order and releases its funds.
func (x *Exchange) CancelOrder(ctx context.Context, symbol domain.TradingPair, id domain.OrderID) (domain.Order, error) {
	eng, err := x.registry.Engine(symbol)
	if err != nil {
		return domain.Order{}, err
	}
	unlock := x.lockPair(symbol)
	defer unlock()

	o, err := eng.CancelOrder(id)
	if err != nil {
		return o, err
	}
	x.releaseHold(o.ID)
	x.record(ctx, eng, TradeResult{Order: o}, "")
	return o, nil
}

// ExpireOrders sweeps GTD orders past their expiry on every pair.
func (x *Exchange) ExpireOrders(ctx context.Context, now time.Time) ([]domain.Order, error) {
	var all []domain.Order
	var errs []error
	for _, s := range x.registry.Symbols() {
		eng, _ := x.registry.Engine(s)
		unlock := x.lockPair(s)
		expired, err := eng.ExpireOrders(now)
		for _, o := range expired {
			x.releaseHold(o.ID)
		}
		if len(expired) > 0 {
			x.record(ctx, eng, TradeResult{CancelledMakers: expired}, "")
			x.log.Info("orders expired", zap.String("symbol", string(s)), zap.Int("count", len(expired)))
		}
		unlock()
		all = append(all, expired...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return all, errors.Join(errs...)
}

// Restore reloads resting orders and their reservations from the repository.
func (x *Exchange) Restore(ctx context.Context) error {
	if x.repo == nil {
		return nil
	}
	for _, s := range x.registry.Symbols() {
		eng, _ := x.registry.Engine(s)
		resting, err := x.repo.LoadOpenOrders(ctx, s)
		if err != nil {
			return err
		}
		unlock := x.lockPair(s)
		for _, r := range resting {
			if r.ReservationID == "" {
				unlock()
				return &domain.WalletError{Reason: "resting order " + string(r.Order.ID) + " has no reservation"}
			}
			if err := eng.RestoreOrder(r.Order); err != nil {
				unlock()
				return err
			}
			x.mu.Lock()
			x.holds[r.Order.ID] = r.ReservationID
			x.mu.Unlock()
		}
		x.refreshCache(ctx, eng)
		unlock()
		x.log.Info("orderbook restored", zap.String("symbol", string(s)), zap.Int("orders", len(resting)))
	}
	return nil
}

// Snapshot serves from the cache when it can, else from the engine.
func (x *Exchange) Snapshot(ctx context.Context, symbol domain.TradingPair, depth int) (domain.OrderbookSnapshot, error) {
	eng, err := x.registry.Engine(symbol)
	if err != nil {
		return domain.OrderbookSnapshot{}, err
	}
	return x.loadSnapshot(ctx, eng, depth), nil
}

func (x *Exchange) BestPrices(symbol domain.TradingPair) (BestPrices, error) {
	return x.registry.BestPrices(symbol)
}

func (x *Exchange) Deposit(user domain.UserID, currency domain.Currency, amount decimal.Decimal) (domain.Balance, error) {
	if err := x.wallet.CreditFunds(user, amount, currency); err != nil {
		return domain.Balance{}, err
	}
	return x.wallet.Balance(user, currency)
}

func (x *Exchange) Balances(user domain.UserID) ([]domain.Balance, error) {
	return x.wallet.Balances(user)
}

func (x *Exchange) TradesForOrder(ctx context.Context, id domain.OrderID) ([]domain.Trade, error) {
	if x.repo == nil {
		return nil, &domain.NotFoundError{Resource: "trades for order", ID: string(id)}
	}
	return x.repo.LoadTradesForOrder(ctx, id)
}

// Order returns a resting order, falling back to the repository.
func (x *Exchange) Order(ctx context.Context, symbol domain.TradingPair, id domain.OrderID) (domain.Order, error) {
	eng, err := x.registry.Engine(symbol)
	if err != nil {
		return domain.Order{}, err
	}
	if o, ok := eng.Order(id); ok {
		return o, nil
	}
	if x.repo == nil {
		return domain.Order{}, &domain.NotFoundError{Resource: "order", ID: string(id)}
	}
	return x.repo.LoadOrder(ctx, id)
}

// hold is the amount and currency reserved for o. A zero amount means a
// market buy with nothing to buy.
func (x *Exchange) hold(eng *MatchingEngine, o domain.Order) (decimal.Decimal, domain.Currency) {
	cfg := eng.Config()
	if o.Side == domain.Sell {
		return o.Remaining, o.Symbol.Base()
	}
	if o.Type == domain.Market {
		_, notional := eng.Quote(o)
		return notional.Mul(money.One.Add(cfg.TakerFee)), o.Symbol.Quote()
	}
	rate := money.Max(cfg.MakerFee, cfg.TakerFee)
	return o.Price.Decimal.Mul(o.Remaining).Mul(money.One.Add(rate)), o.Symbol.Quote()
}

func (x *Exchange) settlement(eng *MatchingEngine, res TradeResult, takerRes domain.ReservationID, takerSide domain.Side) (domain.Settlement, error) {
	base, quote := eng.Symbol().Base(), eng.Symbol().Quote()
	var st domain.Settlement
	fees := decimal.Zero

	for _, t := range res.Trades {
		buyOrder, buyer, buyerFee := t.Buyer()
		sellOrder, seller, sellerFee := t.Seller()
		volume := t.Volume()

		buyRes, sellRes := takerRes, takerRes
		if takerSide == domain.Buy {
			sellRes = x.holdOf(sellOrder)
		} else {
			buyRes = x.holdOf(buyOrder)
		}
		if buyRes == "" || sellRes == "" {
			return domain.Settlement{}, &domain.WalletError{
				Reason: "trade " + string(t.ID) + " between " + string(buyOrder) + " and " + string(sellOrder) + " has no reservation"}
		}

		st.Commits = append(st.Commits,
			domain.Commit{Reservation: buyRes, Amount: volume.Add(buyerFee)},
			domain.Commit{Reservation: sellRes, Amount: t.Quantity},
		)
		st.Credits = append(st.Credits, domain.Credit{UserID: buyer, Currency: base, Amount: t.Quantity})
		if proceeds := volume.Sub(sellerFee); proceeds.IsPositive() {
			st.Credits = append(st.Credits, domain.Credit{UserID: seller, Currency: quote, Amount: proceeds})
		}
		fees = fees.Add(buyerFee).Add(sellerFee)
	}
	if fees.IsPositive() {
		st.Credits = append(st.Credits, domain.Credit{UserID: x.feeAccount, Currency: quote, Amount: fees})
	}

	for _, m := range res.Makers {
		if m.Status == domain.Filled {
			if id := x.holdOf(m.ID); id != "" {
				st.Releases = append(st.Releases, id)
			}
		}
	}
	for _, m := range res.CancelledMakers {
		if id := x.holdOf(m.ID); id != "" {
			st.Releases = append(st.Releases, id)
		}
	}
	if !res.Rested() {
		st.Releases = append(st.Releases, takerRes)
	}
	return st, nil
}

// forget updates the hold index after settlement.
func (x *Exchange) forget(res TradeResult, takerRes domain.ReservationID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, m := range res.Makers {
		if m.Status == domain.Filled {
			delete(x.holds, m.ID)
		}
	}
	for _, m := range res.CancelledMakers {
		delete(x.holds, m.ID)
	}
	if res.Rested() {
		x.holds[res.Order.ID] = takerRes
	}
}

func (x *Exchange) holdOf(id domain.OrderID) domain.ReservationID {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.holds[id]
}

func (x *Exchange) releaseHold(id domain.OrderID) {
	x.mu.Lock()
	resID, ok := x.holds[id]
	delete(x.holds, id)
	x.mu.Unlock()
	if !ok {
		return
	}
	if err := x.wallet.Settle(domain.Settlement{Releases: []domain.ReservationID{resID}}); err != nil {
		x.log.Error("release failed", zap.String("order_id", string(id)), zap.String("reservation_id", string(resID)), zap.Error(err))
	}
}

// record persists, caches and publishes a matching outcome. Failures are
// logged; they never undo what the engine and wallet already did.
func (x *Exchange) record(ctx context.Context, eng *MatchingEngine, res TradeResult, takerRes domain.ReservationID) {
	symbol := eng.Symbol()
	orders := make([]domain.Order, 0, 1+len(res.Makers)+len(res.CancelledMakers))
	if resting, ok := res.Resting(); ok {
		orders = append(orders, resting)
	} else if res.Order.ID != "" {
		orders = append(orders, res.Order)
	}
	orders = append(orders, res.Makers...)
	orders = append(orders, res.CancelledMakers...)

	if x.repo != nil {
		if len(res.Trades) > 0 {
			if err := x.repo.SaveTrades(ctx, res.Trades); err != nil {
				x.log.Warn("save trades", zap.String("symbol", string(symbol)), zap.Error(err))
			}
		}
		for _, o := range orders {
			resID := x.holdOf(o.ID)
			if o.ID == res.Order.ID {
				resID = takerRes
			}
			if err := x.repo.SaveOrder(ctx, o, resID); err != nil {
				x.log.Warn("save order", zap.String("order_id", string(o.ID)), zap.Error(err))
			}
		}
	}

	snap := x.refreshCache(ctx, eng)

	if x.pub == nil {
		return
	}
	now := eng.cfg.Clock()
	events := make([]port.Event, 0, len(res.Trades)+len(orders)+1)
	for _, t := range res.Trades {
		events = append(events, port.Event{Type: port.EventTrade, Symbol: symbol, Payload: t, Timestamp: now})
	}
	for _, o := range orders {
		events = append(events, port.Event{Type: port.EventOrder, Symbol: symbol, Payload: o, Timestamp: now})
	}
	events = append(events, port.Event{Type: port.EventOrderbook, Symbol: symbol, Payload: snap, Timestamp: now})
	if err := x.pub.Publish(ctx, events...); err != nil {
		x.log.Warn("publish events", zap.String("symbol", string(symbol)), zap.Int("events", len(events)), zap.Error(err))
	}
}

func (x *Exchange) lockPair(symbol domain.TradingPair) func() {
	mu := x.pairs[symbol]
	mu.Lock()
	return mu.Unlock
}
