package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LevelSnapshot struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderCount int             `json:"order_count"`
}

type OrderbookSnapshot struct {
	Symbol    TradingPair     `json:"symbol"`
	Bids      []LevelSnapshot `json:"bids"`
	Asks      []LevelSnapshot `json:"asks"`
	Timestamp time.Time       `json:"timestamp"`
}

func (s *OrderbookSnapshot) DeepCopy() *OrderbookSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Bids = append([]LevelSnapshot(nil), s.Bids...)
	cp.Asks = append([]LevelSnapshot(nil), s.Asks...)
	return &cp
}
