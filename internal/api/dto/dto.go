package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ChipaDevTeam/ChipaX/internal/core"
	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/money"
)

// Decimal values travel as strings so clients never round through floats.

type SubmitOrderRequest struct {
	ClientOrderID string     `json:"client_order_id,omitempty"`
	UserID        string     `json:"user_id" binding:"required"`
	Symbol        string     `json:"symbol" binding:"required"`
	Side          string     `json:"side" binding:"required,oneof=BUY SELL"`
	Type          string     `json:"type" binding:"required"`
	Price         string     `json:"price,omitempty"`
	StopPrice     string     `json:"stop_price,omitempty"`
	Quantity      string     `json:"quantity" binding:"required"`
	TimeInForce   string     `json:"time_in_force,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ToOrder validates the raw fields and builds a PENDING order.
func (r *SubmitOrderRequest) ToOrder(now time.Time) (domain.Order, error) {
	user, err := domain.ParseUserID(r.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	symbol, err := domain.ParseTradingPair(r.Symbol)
	if err != nil {
		return domain.Order{}, err
	}
	qty, err := money.ParsePositive("quantity", r.Quantity)
	if err != nil {
		return domain.Order{}, err
	}
	var price decimal.NullDecimal
	if r.Price != "" {
		p, err := money.ParsePositive("price", r.Price)
		if err != nil {
			return domain.Order{}, err
		}
		price = decimal.NewNullDecimal(p)
	}
	o := domain.NewOrder(user, symbol, domain.Side(r.Side), domain.OrderType(r.Type), price, qty,
		domain.TimeInForce(r.TimeInForce), now)
	if r.StopPrice != "" {
		sp, err := money.ParsePositive("stop_price", r.StopPrice)
		if err != nil {
			return domain.Order{}, err
		}
		o.StopPrice = decimal.NewNullDecimal(sp)
	}
	o.ExpiresAt = r.ExpiresAt
	o.ClientOrderID = r.ClientOrderID
	if err := o.Validate(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

type SubmitOrderResponse struct {
	Order           Order   `json:"order"`
	Trades          []Trade `json:"trades"`
	CancelledMakers []Order `json:"cancelled_makers,omitempty"`
}

type CancelOrderResponse struct {
	Order Order `json:"order"`
}

type GetTradesResponse struct {
	Trades []Trade `json:"trades"`
}

type DepositRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

type Order struct {
	ID            string     `json:"id"`
	ClientOrderID string     `json:"client_order_id,omitempty"`
	UserID        string     `json:"user_id"`
	Symbol        string     `json:"symbol"`
	Side          string     `json:"side"`
	Type          string     `json:"type"`
	Price         string     `json:"price,omitempty"`
	StopPrice     string     `json:"stop_price,omitempty"`
	Quantity      string     `json:"quantity"`
	Filled        string     `json:"filled_quantity"`
	Remaining     string     `json:"remaining_quantity"`
	Status        string     `json:"status"`
	TimeInForce   string     `json:"time_in_force"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type Trade struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	MakerOrderID string    `json:"maker_order_id"`
	TakerOrderID string    `json:"taker_order_id"`
	Side         string    `json:"side"`
	Price        string    `json:"price"`
	Quantity     string    `json:"quantity"`
	MakerFee     string    `json:"maker_fee"`
	TakerFee     string    `json:"taker_fee"`
	Timestamp    time.Time `json:"timestamp"`
}

type Level struct {
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	OrderCount int    `json:"order_count"`
}

type GetOrderbookResponse struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

type BestPricesResponse struct {
	Symbol  string `json:"symbol"`
	BestBid string `json:"best_bid,omitempty"`
	BestAsk string `json:"best_ask,omitempty"`
	Spread  string `json:"spread,omitempty"`
}

type Balance struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
	Total     string `json:"total"`
}

type BalancesResponse struct {
	UserID   string    `json:"user_id"`
	Balances []Balance `json:"balances"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func FromOrder(o domain.Order) Order {
	return Order{
		ID:            string(o.ID),
		ClientOrderID: o.ClientOrderID,
		UserID:        string(o.UserID),
		Symbol:        string(o.Symbol),
		Side:          string(o.Side),
		Type:          string(o.Type),
		Price:         nullString(o.Price),
		StopPrice:     nullString(o.StopPrice),
		Quantity:      o.Quantity.String(),
		Filled:        o.FilledQuantity.String(),
		Remaining:     o.Remaining.String(),
		Status:        string(o.Status),
		TimeInForce:   string(o.TimeInForce),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		ExpiresAt:     o.ExpiresAt,
	}
}

func FromOrders(orders []domain.Order) []Order {
	res := make([]Order, len(orders))
	for i, o := range orders {
		res[i] = FromOrder(o)
	}
	return res
}

func FromTrades(trades []domain.Trade) []Trade {
	res := make([]Trade, len(trades))
	for i, t := range trades {
		res[i] = Trade{
			ID:           string(t.ID),
			Symbol:       string(t.Symbol),
			MakerOrderID: string(t.MakerOrderID),
			TakerOrderID: string(t.TakerOrderID),
			Side:         string(t.Side),
			Price:        t.Price.String(),
			Quantity:     t.Quantity.String(),
			MakerFee:     t.MakerFee.String(),
			TakerFee:     t.TakerFee.String(),
			Timestamp:    t.Timestamp,
		}
	}
	return res
}

func FromResult(res core.TradeResult) SubmitOrderResponse {
	out := SubmitOrderResponse{
		Order:  FromOrder(res.Order),
		Trades: FromTrades(res.Trades),
	}
	if len(res.CancelledMakers) > 0 {
		out.CancelledMakers = FromOrders(res.CancelledMakers)
	}
	return out
}

func levels(ls []domain.LevelSnapshot) []Level {
	res := make([]Level, len(ls))
	for i, l := range ls {
		res[i] = Level{Price: l.Price.String(), Quantity: l.Quantity.String(), OrderCount: l.OrderCount}
	}
	return res
}

func FromSnapshot(s domain.OrderbookSnapshot) GetOrderbookResponse {
	return GetOrderbookResponse{
		Symbol:    string(s.Symbol),
		Bids:      levels(s.Bids),
		Asks:      levels(s.Asks),
		Timestamp: s.Timestamp,
	}
}

func FromBestPrices(symbol domain.TradingPair, bp core.BestPrices) BestPricesResponse {
	return BestPricesResponse{
		Symbol:  string(symbol),
		BestBid: nullString(bp.Bid),
		BestAsk: nullString(bp.Ask),
		Spread:  nullString(bp.Spread),
	}
}

func FromBalances(user domain.UserID, bs []domain.Balance) BalancesResponse {
	out := BalancesResponse{UserID: string(user), Balances: make([]Balance, len(bs))}
	for i, b := range bs {
		out.Balances[i] = Balance{
			Currency:  string(b.Currency),
			Available: b.Available.String(),
			Locked:    b.Locked.String(),
			Total:     b.Total.String(),
		}
	}
	return out
}
