package pebble

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/wallet"
)

const (
	balancePrefix     = "bal/"
	reservationPrefix = "res/"
)

var _ wallet.Store = (*WalletStore)(nil)

// WalletStore keeps balances and reservations in a pebble database.
// Values are JSON; every Apply is a single synced batch.
type WalletStore struct {
	db *pebble.DB
}

func OpenWalletStore(dir string) (*WalletStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open wallet store %s: %w", dir, err)
	}
	return &WalletStore{db: db}, nil
}

func (s *WalletStore) Close() error {
	return s.db.Close()
}

func (s *WalletStore) Balance(user domain.UserID, currency domain.Currency) (domain.Balance, bool, error) {
	var b domain.Balance
	ok, err := s.get(balanceKey(user, currency), &b)
	return b, ok, err
}

func (s *WalletStore) UserBalances(user domain.UserID) ([]domain.Balance, error) {
	return s.scanBalances([]byte(balancePrefix + string(user) + "\x00"))
}

func (s *WalletStore) AllBalances() ([]domain.Balance, error) {
	return s.scanBalances([]byte(balancePrefix))
}

func (s *WalletStore) Reservation(id domain.ReservationID) (domain.Reservation, bool, error) {
	var r domain.Reservation
	ok, err := s.get(reservationKey(id), &r)
	return r, ok, err
}

func (s *WalletStore) Apply(ch wallet.Changes) error {
	if ch.Empty() {
		return nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, b := range ch.Balances {
		val, err := json.Marshal(b)
		if err != nil {
			return err
		}
		if err := batch.Set(balanceKey(b.UserID, b.Currency), val, nil); err != nil {
			return err
		}
	}
	for _, r := range ch.Reservations {
		val, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := batch.Set(reservationKey(r.ID), val, nil); err != nil {
			return err
		}
	}
	for _, id := range ch.Deleted {
		if err := batch.Delete(reservationKey(id), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *WalletStore) get(key []byte, v any) (bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(val, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// scanBalances returns balances in key order, which is user then currency.
func (s *WalletStore) scanBalances(prefix []byte) ([]domain.Balance, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []domain.Balance
	for iter.First(); iter.Valid(); iter.Next() {
		var b domain.Balance
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("decode %q: %w", iter.Key(), err)
		}
		out = append(out, b)
	}
	return out, iter.Error()
}

func balanceKey(user domain.UserID, currency domain.Currency) []byte {
	return []byte(balancePrefix + string(user) + "\x00" + string(currency))
}

func reservationKey(id domain.ReservationID) []byte {
	return []byte(reservationPrefix + string(id))
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
