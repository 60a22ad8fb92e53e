package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderType string
type OrderStatus string
type TimeInForce string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"

	Market          OrderType = "MARKET"
	Limit           OrderType = "LIMIT"
	StopLoss        OrderType = "STOP_LOSS"
	StopLimit       OrderType = "STOP_LIMIT"
	StopMarket      OrderType = "STOP_MARKET"
	TakeProfit      OrderType = "TAKE_PROFIT"
	TakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"

	Pending         OrderStatus = "PENDING"
	Open            OrderStatus = "OPEN"
	PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	Filled          OrderStatus = "FILLED"
	Cancelled       OrderStatus = "CANCELLED"
	Rejected        OrderStatus = "REJECTED"
	Expired         OrderStatus = "EXPIRED"

	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
	GTD TimeInForce = "GTD"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (t OrderType) Valid() bool {
	switch t {
	case Market, Limit, StopLoss, StopLimit, StopMarket, TakeProfit, TakeProfitLimit:
		return true
	}
	return false
}

// RequiresPrice reports whether orders of this type carry a limit price.
func (t OrderType) RequiresPrice() bool {
	return t == Limit || t == StopLimit || t == TakeProfitLimit
}

// Matchable reports whether the engine matches this type. Stop variants are data only.
func (t OrderType) Matchable() bool { return t == Market || t == Limit }

func (t TimeInForce) Valid() bool {
	switch t {
	case GTC, IOC, FOK, GTD:
		return true
	}
	return false
}

// Terminal statuses end an order's presence in the book.
func (s OrderStatus) Terminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	}
	return false
}

type Order struct {
	ID             OrderID             `json:"id"`
	UserID         UserID              `json:"user_id"`
	Symbol         TradingPair         `json:"symbol"`
	Side           Side                `json:"side"`
	Type           OrderType           `json:"type"`
	Price          decimal.NullDecimal `json:"price"`
	StopPrice      decimal.NullDecimal `json:"stop_price"`
	Quantity       decimal.Decimal     `json:"quantity"`
	FilledQuantity decimal.Decimal     `json:"filled_quantity"`
	Remaining      decimal.Decimal     `json:"remaining_quantity"`
	Status         OrderStatus         `json:"status"`
	TimeInForce    TimeInForce         `json:"time_in_force"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	ExpiresAt      *time.Time          `json:"expires_at,omitempty"`
	ClientOrderID  string              `json:"client_order_id,omitempty"`
}

// NewOrder builds a PENDING order with the full quantity remaining.
func NewOrder(user UserID, symbol TradingPair, side Side, typ OrderType, price decimal.NullDecimal, qty decimal.Decimal, tif TimeInForce, now time.Time) Order {
	if tif == "" {
		tif = GTC
	}
	return Order{
		ID:             NewOrderID(),
		UserID:         user,
		Symbol:         symbol,
		Side:           side,
		Type:           typ,
		Price:          price,
		Quantity:       qty,
		FilledQuantity: decimal.Zero,
		Remaining:      qty,
		Status:         Pending,
		TimeInForce:    tif,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (o *Order) PartiallyFilled() bool {
	return o.FilledQuantity.GreaterThan(decimal.Zero) &&
		o.FilledQuantity.LessThan(o.Quantity)
}

// Conserved reports filled + remaining == quantity with neither negative.
func (o *Order) Conserved() bool {
	return !o.FilledQuantity.IsNegative() && !o.Remaining.IsNegative() &&
		o.FilledQuantity.Add(o.Remaining).Equal(o.Quantity)
}

// Expired reports whether a GTD order is past its expiry at now.
func (o *Order) Expired(now time.Time) bool {
	return o.TimeInForce == GTD && o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Validate checks the structural invariants the core relies on.
func (o *Order) Validate() error {
	switch {
	case o.ID == "":
		return &InvalidOrderError{Field: "id", Reason: "missing"}
	case o.UserID == "":
		return &InvalidOrderError{Field: "user_id", Reason: "missing"}
	case !o.Side.Valid():
		return &InvalidOrderError{Field: "side", Reason: "must be BUY or SELL"}
	case !o.Type.Valid():
		return &InvalidOrderError{Field: "type", Reason: "unknown order type " + string(o.Type)}
	case !o.TimeInForce.Valid():
		return &InvalidOrderError{Field: "time_in_force", Reason: "unknown time in force " + string(o.TimeInForce)}
	case !o.Quantity.IsPositive():
		return &InvalidOrderError{Field: "quantity", Reason: "must be positive"}
	case !o.Conserved():
		return &InvalidOrderError{Field: "quantity", Reason: "filled + remaining must equal quantity"}
	case o.Type.RequiresPrice() && !o.Price.Valid:
		return &InvalidOrderError{Field: "price", Reason: "required for " + string(o.Type)}
	case o.Type == Market && o.Price.Valid:
		return &InvalidOrderError{Field: "price", Reason: "market orders carry no price"}
	case o.Price.Valid && !o.Price.Decimal.IsPositive():
		return &InvalidOrderError{Field: "price", Reason: "must be positive"}
	case o.TimeInForce == GTD && o.ExpiresAt == nil:
		return &InvalidOrderError{Field: "expires_at", Reason: "required for GTD"}
	}
	return nil
}
