package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance holds one user's funds in one currency. Total == Available + Locked.
type Balance struct {
	UserID    UserID          `json:"user_id"`
	Currency  Currency        `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
	Total     decimal.Decimal `json:"total"`
}

func ZeroBalance(user UserID, currency Currency) Balance {
	return Balance{UserID: user, Currency: currency, Available: decimal.Zero, Locked: decimal.Zero, Total: decimal.Zero}
}

// Reservation is a hold of Amount moved from available to locked.
// Amount shrinks as partial commits settle against it.
type Reservation struct {
	ID       ReservationID   `json:"id"`
	UserID   UserID          `json:"user_id"`
	Currency Currency        `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	LockedAt time.Time       `json:"locked_at"`
}

// Commit settles Amount out of a reservation.
type Commit struct {
	Reservation ReservationID   `json:"reservation_id"`
	Amount      decimal.Decimal `json:"amount"`
}

// Credit adds Amount to a user's available balance.
type Credit struct {
	UserID   UserID          `json:"user_id"`
	Currency Currency        `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// Settlement is the wallet side of one matching outcome, applied atomically.
// Releases return whatever is left of each reservation; reservations already
// fully committed are skipped.
type Settlement struct {
	Commits  []Commit        `json:"commits"`
	Credits  []Credit        `json:"credits"`
	Releases []ReservationID `json:"releases"`
}

func (s *Settlement) Empty() bool {
	return len(s.Commits) == 0 && len(s.Credits) == 0 && len(s.Releases) == 0
}
