package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

// txn stages balance and reservation edits over a Store snapshot.
// A nil reservation entry marks a deletion.
type txn struct {
	store        Store
	now          time.Time
	balances     map[balanceKey]domain.Balance
	order        []balanceKey
	reservations map[domain.ReservationID]*domain.Reservation
	resOrder     []domain.ReservationID
}

func (t *txn) balance(user domain.UserID, currency domain.Currency) (domain.Balance, bool, error) {
	k := balanceKey{user, currency}
	if b, ok := t.balances[k]; ok {
		return b, true, nil
	}
	b, ok, err := t.store.Balance(user, currency)
	if err != nil {
		return domain.Balance{}, false, &domain.WalletError{Reason: "read balance: " + err.Error()}
	}
	if !ok {
		return domain.ZeroBalance(user, currency), false, nil
	}
	return b, true, nil
}

func (t *txn) putBalance(b domain.Balance) {
	k := balanceKey{b.UserID, b.Currency}
	if _, ok := t.balances[k]; !ok {
		t.order = append(t.order, k)
	}
	t.balances[k] = b
}

func (t *txn) reservation(id domain.ReservationID) (domain.Reservation, bool, error) {
	if r, ok := t.reservations[id]; ok {
		if r == nil {
			return domain.Reservation{}, false, nil
		}
		return *r, true, nil
	}
	r, ok, err := t.store.Reservation(id)
	if err != nil {
		return domain.Reservation{}, false, &domain.WalletError{Reason: "read reservation: " + err.Error()}
	}
	return r, ok, nil
}

func (t *txn) putReservation(id domain.ReservationID, r *domain.Reservation) {
	if _, ok := t.reservations[id]; !ok {
		t.resOrder = append(t.resOrder, id)
	}
	t.reservations[id] = r
}

func (t *txn) reserve(user domain.UserID, amount decimal.Decimal, currency domain.Currency) (domain.ReservationID, error) {
	if !amount.IsPositive() {
		return "", &domain.BalanceLockError{UserID: user, Currency: currency, Reason: "amount must be positive"}
	}
	b, _, err := t.balance(user, currency)
	if err != nil {
		return "", err
	}
	if b.Available.LessThan(amount) {
		return "", &domain.InsufficientFundsError{UserID: user, Currency: currency, Required: amount, Available: b.Available}
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	t.putBalance(b)

	r := domain.Reservation{ID: domain.NewReservationID(), UserID: user, Currency: currency, Amount: amount, LockedAt: t.now}
	t.putReservation(r.ID, &r)
	return r.ID, nil
}

func (t *txn) release(id domain.ReservationID, skipMissing bool) error {
	r, ok, err := t.reservation(id)
	if err != nil {
		return err
	}
	if !ok {
		if skipMissing {
			return nil
		}
		return &domain.WalletError{Reason: "reservation " + string(id) + " not found"}
	}
	b, _, err := t.balance(r.UserID, r.Currency)
	if err != nil {
		return err
	}
	b.Locked = b.Locked.Sub(r.Amount)
	b.Available = b.Available.Add(r.Amount)
	if b.Locked.IsNegative() {
		return &domain.NegativeBalanceError{UserID: r.UserID, Currency: r.Currency, Balance: b}
	}
	t.putBalance(b)
	t.putReservation(id, nil)
	return nil
}

func (t *txn) commit(id domain.ReservationID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &domain.WalletError{Reason: "commit amount must not be negative"}
	}
	r, ok, err := t.reservation(id)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.WalletError{Reason: "reservation " + string(id) + " not found"}
	}
	if amount.GreaterThan(r.Amount) {
		return &domain.WalletError{Reason: "commit " + amount.String() + " exceeds reserved " + r.Amount.String()}
	}
	b, _, err := t.balance(r.UserID, r.Currency)
	if err != nil {
		return err
	}
	b.Locked = b.Locked.Sub(amount)
	b.Total = b.Total.Sub(amount)
	if b.Locked.IsNegative() || b.Total.IsNegative() {
		return &domain.NegativeBalanceError{UserID: r.UserID, Currency: r.Currency, Balance: b}
	}
	t.putBalance(b)

	r.Amount = r.Amount.Sub(amount)
	if r.Amount.IsZero() {
		t.putReservation(id, nil)
	} else {
		t.putReservation(id, &r)
	}
	return nil
}

func (t *txn) credit(user domain.UserID, amount decimal.Decimal, currency domain.Currency) error {
	if !amount.IsPositive() {
		return &domain.WalletError{Reason: "credit amount must be positive"}
	}
	b, _, err := t.balance(user, currency)
	if err != nil {
		return err
	}
	b.Available = b.Available.Add(amount)
	b.Total = b.Total.Add(amount)
	t.putBalance(b)
	return nil
}

func (t *txn) changes() Changes {
	var ch Changes
	for _, k := range t.order {
		ch.Balances = append(ch.Balances, t.balances[k])
	}
	for _, id := range t.resOrder {
		if r := t.reservations[id]; r != nil {
			ch.Reservations = append(ch.Reservations, *r)
		} else {
			ch.Deleted = append(ch.Deleted, id)
		}
	}
	return ch
}
