package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	KindInvalidOrder      ErrorKind = "INVALID_ORDER"
	KindMatching          ErrorKind = "MATCHING_ERROR"
	KindSelfTrade         ErrorKind = "SELF_TRADE"
	KindBookCorruption    ErrorKind = "ORDERBOOK_CORRUPTION"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindBalanceLock       ErrorKind = "BALANCE_LOCK"
	KindNegativeBalance   ErrorKind = "NEGATIVE_BALANCE"
	KindWallet            ErrorKind = "WALLET_ERROR"
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInternal          ErrorKind = "INTERNAL"
)

type kinded interface {
	Kind() ErrorKind
}

// KindOf returns the most specific kind found in err's chain.
// A MatchingError wrapping a SelfTradeError reports KindSelfTrade.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	kind := KindInternal
	for e := err; e != nil; e = errors.Unwrap(e) {
		if k, ok := e.(kinded); ok {
			kind = k.Kind()
		}
	}
	return kind
}

type InvalidOrderError struct {
	Field  string
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: %s: %s", e.Field, e.Reason)
}
func (e *InvalidOrderError) Kind() ErrorKind { return KindInvalidOrder }

type MatchingError struct {
	Reason string
	Err    error
}

func (e *MatchingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("matching: %s: %v", e.Reason, e.Err)
	}
	return "matching: " + e.Reason
}
func (e *MatchingError) Unwrap() error   { return e.Err }
func (e *MatchingError) Kind() ErrorKind { return KindMatching }

type SelfTradeError struct {
	OrderID OrderID
}

func (e *SelfTradeError) Error() string {
	return fmt.Sprintf("self-trade prevented for order %s", e.OrderID)
}
func (e *SelfTradeError) Kind() ErrorKind { return KindSelfTrade }

type OrderBookCorruptionError struct {
	Symbol  TradingPair
	Details string
}

func (e *OrderBookCorruptionError) Error() string {
	return fmt.Sprintf("orderbook %s corrupted: %s", e.Symbol, e.Details)
}
func (e *OrderBookCorruptionError) Kind() ErrorKind { return KindBookCorruption }

type InsufficientFundsError struct {
	UserID    UserID
	Currency  Currency
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s funds for %s: required %s, available %s",
		e.Currency, e.UserID, e.Required, e.Available)
}
func (e *InsufficientFundsError) Kind() ErrorKind { return KindInsufficientFunds }

type BalanceLockError struct {
	UserID   UserID
	Currency Currency
	Reason   string
}

func (e *BalanceLockError) Error() string {
	return fmt.Sprintf("cannot lock %s balance of %s: %s", e.Currency, e.UserID, e.Reason)
}
func (e *BalanceLockError) Kind() ErrorKind { return KindBalanceLock }

type NegativeBalanceError struct {
	UserID   UserID
	Currency Currency
	Balance  Balance
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("invalid %s balance for %s: available %s, locked %s, total %s",
		e.Currency, e.UserID, e.Balance.Available, e.Balance.Locked, e.Balance.Total)
}
func (e *NegativeBalanceError) Kind() ErrorKind { return KindNegativeBalance }

type WalletError struct {
	Reason string
}

func (e *WalletError) Error() string   { return "wallet: " + e.Reason }
func (e *WalletError) Kind() ErrorKind { return KindWallet }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}
func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }
