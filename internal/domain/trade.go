package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one match between a resting maker and an incoming taker.
type Trade struct {
	ID           TradeID         `json:"id"`
	Symbol       TradingPair     `json:"symbol"`
	MakerOrderID OrderID         `json:"maker_order_id"`
	TakerOrderID OrderID         `json:"taker_order_id"`
	MakerUserID  UserID          `json:"maker_user_id"`
	TakerUserID  UserID          `json:"taker_user_id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Side         Side            `json:"side"`
	MakerFee     decimal.Decimal `json:"maker_fee"`
	TakerFee     decimal.Decimal `json:"taker_fee"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (t *Trade) Volume() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

func (t *Trade) Buyer() (OrderID, UserID, decimal.Decimal) {
	if t.Side == Buy {
		return t.TakerOrderID, t.TakerUserID, t.TakerFee
	}
	return t.MakerOrderID, t.MakerUserID, t.MakerFee
}

func (t *Trade) Seller() (OrderID, UserID, decimal.Decimal) {
	if t.Side == Sell {
		return t.TakerOrderID, t.TakerUserID, t.TakerFee
	}
	return t.MakerOrderID, t.MakerUserID, t.MakerFee
}
