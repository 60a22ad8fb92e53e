package port

import (
	"github.com/shopspring/decimal"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

type Wallet interface {
	ReserveFunds(user domain.UserID, amount decimal.Decimal, currency domain.Currency) (domain.ReservationID, error)
	ReleaseFunds(id domain.ReservationID) error
	CreditFunds(user domain.UserID, amount decimal.Decimal, currency domain.Currency) error
	Settle(s domain.Settlement) error
	Balance(user domain.UserID, currency domain.Currency) (domain.Balance, error)
	Balances(user domain.UserID) ([]domain.Balance, error)
}
