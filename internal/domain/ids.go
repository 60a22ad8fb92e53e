package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type (
	OrderID       string
	UserID        string
	TradeID       string
	TradingPair   string
	Currency      string
	ReservationID string
)

var pairPattern = regexp.MustCompile(`^[A-Z0-9]+/[A-Z0-9]+$`)

func NewOrderID() OrderID             { return OrderID(uuid.NewString()) }
func NewTradeID() TradeID             { return TradeID(uuid.NewString()) }
func NewReservationID() ReservationID { return ReservationID("RES-" + uuid.NewString()) }

func ParseOrderID(s string) (OrderID, error) {
	if err := checkToken("order_id", s); err != nil {
		return "", err
	}
	return OrderID(s), nil
}

func ParseUserID(s string) (UserID, error) {
	if err := checkToken("user_id", s); err != nil {
		return "", err
	}
	return UserID(s), nil
}

func ParseCurrency(s string) (Currency, error) {
	if err := checkToken("currency", s); err != nil {
		return "", err
	}
	return Currency(strings.ToUpper(s)), nil
}

// ParseTradingPair accepts BASE/QUOTE in upper case, e.g. BTC/USDT.
func ParseTradingPair(s string) (TradingPair, error) {
	if !pairPattern.MatchString(s) {
		return "", &ValidationError{Field: "symbol", Reason: fmt.Sprintf("%q is not a BASE/QUOTE pair", s)}
	}
	return TradingPair(s), nil
}

func (p TradingPair) Base() Currency {
	base, _, _ := strings.Cut(string(p), "/")
	return Currency(base)
}

func (p TradingPair) Quote() Currency {
	_, quote, _ := strings.Cut(string(p), "/")
	return Currency(quote)
}

func checkToken(field, s string) error {
	if s == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return &ValidationError{Field: field, Reason: "must not contain whitespace"}
	}
	return nil
}
