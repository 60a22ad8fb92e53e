package wallet

import (
	"sort"
	"sync"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

// Changes is one atomic write to a Store.
type Changes struct {
	Balances     []domain.Balance
	Reservations []domain.Reservation
	Deleted      []domain.ReservationID
}

func (c *Changes) Empty() bool {
	return len(c.Balances) == 0 && len(c.Reservations) == 0 && len(c.Deleted) == 0
}

// Store persists balances and reservations. Apply must be all or nothing.
type Store interface {
	Balance(user domain.UserID, currency domain.Currency) (domain.Balance, bool, error)
	UserBalances(user domain.UserID) ([]domain.Balance, error)
	AllBalances() ([]domain.Balance, error)
	Reservation(id domain.ReservationID) (domain.Reservation, bool, error)
	Apply(ch Changes) error
}

type balanceKey struct {
	user     domain.UserID
	currency domain.Currency
}

func (k balanceKey) String() string { return string(k.user) + "\x00" + string(k.currency) }

// MemStore keeps everything in process memory.
type MemStore struct {
	mu           sync.RWMutex
	balances     map[balanceKey]domain.Balance
	reservations map[domain.ReservationID]domain.Reservation
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		balances:     make(map[balanceKey]domain.Balance),
		reservations: make(map[domain.ReservationID]domain.Reservation),
	}
}

func (m *MemStore) Balance(user domain.UserID, currency domain.Currency) (domain.Balance, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[balanceKey{user, currency}]
	return b, ok, nil
}

func (m *MemStore) UserBalances(user domain.UserID) ([]domain.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Balance
	for k, b := range m.balances {
		if k.user == user {
			out = append(out, b)
		}
	}
	sortBalances(out)
	return out, nil
}

func (m *MemStore) AllBalances() ([]domain.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Balance, 0, len(m.balances))
	for _, b := range m.balances {
		out = append(out, b)
	}
	sortBalances(out)
	return out, nil
}

func (m *MemStore) Reservation(id domain.ReservationID) (domain.Reservation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	return r, ok, nil
}

func (m *MemStore) Apply(ch Changes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range ch.Balances {
		m.balances[balanceKey{b.UserID, b.Currency}] = b
	}
	for _, r := range ch.Reservations {
		m.reservations[r.ID] = r
	}
	for _, id := range ch.Deleted {
		delete(m.reservations, id)
	}
	return nil
}

func sortBalances(bs []domain.Balance) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].UserID != bs[j].UserID {
			return bs[i].UserID < bs[j].UserID
		}
		return bs[i].Currency < bs[j].Currency
	})
}
