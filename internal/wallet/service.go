// Package wallet tracks per-user, per-currency balances and the
// reservations that hold funds for open orders.
package wallet

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

// Service serializes every operation per (user, currency). Operations that
// touch several balances lock them in key order and write one Changes batch.
type Service struct {
	store Store
	log   *zap.Logger
	clock func() time.Time
	locks keyLocks
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if store == nil {
		store = NewMemStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store: store,
		log:   logger,
		clock: func() time.Time { return time.Now().UTC() },
		locks: keyLocks{m: make(map[string]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReserveFunds moves amount from available to locked and returns the hold's id.
func (s *Service) ReserveFunds(user domain.UserID, amount decimal.Decimal, currency domain.Currency) (domain.ReservationID, error) {
	unlock := s.locks.lock(balanceKey{user, currency}.String())
	defer unlock()

	tx := s.begin()
	id, err := tx.reserve(user, amount, currency)
	if err != nil {
		return "", err
	}
	if err := s.apply(tx); err != nil {
		return "", err
	}
	s.log.Debug("funds reserved",
		zap.String("reservation_id", string(id)),
		zap.String("user_id", string(user)),
		zap.String("currency", string(currency)),
		zap.Stringer("amount", amount))
	return id, nil
}

// ReleaseFunds returns the reservation's remaining amount to available.
func (s *Service) ReleaseFunds(id domain.ReservationID) error {
	unlock, err := s.lockReservations(id)
	if err != nil {
		return err
	}
	defer unlock()

	tx := s.begin()
	if err := tx.release(id, false); err != nil {
		return err
	}
	return s.apply(tx)
}

// CommitFunds removes amount from the reservation's locked and total balance.
// The reservation survives until its whole amount has been committed.
func (s *Service) CommitFunds(id domain.ReservationID, amount decimal.Decimal) error {
	unlock, err := s.lockReservations(id)
	if err != nil {
		return err
	}
	defer unlock()

	tx := s.begin()
	if err := tx.commit(id, amount); err != nil {
		return err
	}
	return s.apply(tx)
}

// CreditFunds adds amount to available and total, creating the balance if needed.
func (s *Service) CreditFunds(user domain.UserID, amount decimal.Decimal, currency domain.Currency) error {
	unlock := s.locks.lock(balanceKey{user, currency}.String())
	defer unlock()

	tx := s.begin()
	if err := tx.credit(user, amount, currency); err != nil {
		return err
	}
	return s.apply(tx)
}

// Settle applies commits, then credits, then releases as one batch. Either
// every leg is written or none is.
func (s *Service) Settle(st domain.Settlement) error {
	if st.Empty() {
		return nil
	}
	ids := make([]domain.ReservationID, 0, len(st.Commits)+len(st.Releases))
	for _, c := range st.Commits {
		ids = append(ids, c.Reservation)
	}
	ids = append(ids, st.Releases...)
	keys, err := s.reservationKeys(ids, true)
	if err != nil {
		return err
	}
	for _, c := range st.Credits {
		keys = append(keys, balanceKey{c.UserID, c.Currency}.String())
	}
	unlock := s.locks.lock(keys...)
	defer unlock()

	tx := s.begin()
	for _, c := range st.Commits {
		if err := tx.commit(c.Reservation, c.Amount); err != nil {
			return err
		}
	}
	for _, c := range st.Credits {
		if err := tx.credit(c.UserID, c.Amount, c.Currency); err != nil {
			return err
		}
	}
	for _, id := range st.Releases {
		if err := tx.release(id, true); err != nil {
			return err
		}
	}
	return s.apply(tx)
}

// Balance returns a zero balance for an unknown (user, currency).
func (s *Service) Balance(user domain.UserID, currency domain.Currency) (domain.Balance, error) {
	b, ok, err := s.store.Balance(user, currency)
	if err != nil {
		return domain.Balance{}, &domain.WalletError{Reason: "read balance: " + err.Error()}
	}
	if !ok {
		return domain.ZeroBalance(user, currency), nil
	}
	return b, nil
}

func (s *Service) Balances(user domain.UserID) ([]domain.Balance, error) {
	bs, err := s.store.UserBalances(user)
	if err != nil {
		return nil, &domain.WalletError{Reason: "read balances: " + err.Error()}
	}
	return bs, nil
}

func (s *Service) Reservation(id domain.ReservationID) (domain.Reservation, bool, error) {
	return s.store.Reservation(id)
}

// ValidateBalances checks every balance is non-negative and that
// total == available + locked.
func (s *Service) ValidateBalances() error {
	bs, err := s.store.AllBalances()
	if err != nil {
		return &domain.WalletError{Reason: "read balances: " + err.Error()}
	}
	for _, b := range bs {
		if err := checkBalance(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) begin() *txn {
	return &txn{
		store:        s.store,
		now:          s.clock(),
		balances:     make(map[balanceKey]domain.Balance),
		reservations: make(map[domain.ReservationID]*domain.Reservation),
	}
}

func (s *Service) apply(tx *txn) error {
	ch := tx.changes()
	for _, b := range ch.Balances {
		if err := checkBalance(b); err != nil {
			s.log.Error("refusing balance write", zap.Error(err))
			return err
		}
	}
	if err := s.store.Apply(ch); err != nil {
		return &domain.WalletError{Reason: "write: " + err.Error()}
	}
	return nil
}

// lockReservations locks the balances behind ids. Unknown ids fail.
func (s *Service) lockReservations(ids ...domain.ReservationID) (func(), error) {
	keys, err := s.reservationKeys(ids, false)
	if err != nil {
		return nil, err
	}
	return s.locks.lock(keys...), nil
}

func (s *Service) reservationKeys(ids []domain.ReservationID, skipMissing bool) ([]string, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		r, ok, err := s.store.Reservation(id)
		if err != nil {
			return nil, &domain.WalletError{Reason: "read reservation: " + err.Error()}
		}
		if !ok {
			if skipMissing {
				continue
			}
			return nil, &domain.WalletError{Reason: "reservation " + string(id) + " not found"}
		}
		keys = append(keys, balanceKey{r.UserID, r.Currency}.String())
	}
	return keys, nil
}

func checkBalance(b domain.Balance) error {
	if b.Available.IsNegative() || b.Locked.IsNegative() || b.Total.IsNegative() ||
		!b.Total.Equal(b.Available.Add(b.Locked)) {
		return &domain.NegativeBalanceError{UserID: b.UserID, Currency: b.Currency, Balance: b}
	}
	return nil
}

type keyLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// lock acquires the mutexes for keys in sorted order and returns the release func.
func (k *keyLocks) lock(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	var held []*sync.Mutex
	prev := ""
	for i, key := range sorted {
		if i > 0 && key == prev {
			continue
		}
		prev = key
		k.mu.Lock()
		mu, ok := k.m[key]
		if !ok {
			mu = &sync.Mutex{}
			k.m[key] = mu
		}
		k.mu.Unlock()
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
