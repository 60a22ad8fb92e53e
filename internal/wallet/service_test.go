package wallet

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertBalance(t *testing.T, s *Service, user domain.UserID, cur domain.Currency, avail, locked string) {
	t.Helper()
	b, err := s.Balance(user, cur)
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(d(avail)), "available %s, want %s", b.Available, avail)
	assert.True(t, b.Locked.Equal(d(locked)), "locked %s, want %s", b.Locked, locked)
	assert.True(t, b.Total.Equal(b.Available.Add(b.Locked)), "total %s", b.Total)
}

func TestReserveReleaseCommit(t *testing.T) {
	s := NewService(nil, nil)
	require.NoError(t, s.CreditFunds("alice", d("100"), "USDT"))
	assertBalance(t, s, "alice", "USDT", "100", "0")

	id, err := s.ReserveFunds("alice", d("40"), "USDT")
	require.NoError(t, err)
	assertBalance(t, s, "alice", "USDT", "60", "40")

	require.NoError(t, s.CommitFunds(id, d("15")))
	assertBalance(t, s, "alice", "USDT", "60", "25")
	r, ok, err := s.Reservation(id)
	require.NoError(t, err)
	require.True(t, ok, "partial commit keeps the reservation")
	assert.True(t, r.Amount.Equal(d("25")))

	require.NoError(t, s.ReleaseFunds(id))
	assertBalance(t, s, "alice", "USDT", "85", "0")
	_, ok, _ = s.Reservation(id)
	assert.False(t, ok)

	var we *domain.WalletError
	assert.ErrorAs(t, s.ReleaseFunds(id), &we)
}

func TestFullCommitDeletesReservation(t *testing.T) {
	s := NewService(nil, nil)
	require.NoError(t, s.CreditFunds("bob", d("2"), "BTC"))
	id, err := s.ReserveFunds("bob", d("1.5"), "BTC")
	require.NoError(t, err)
	require.NoError(t, s.CommitFunds(id, d("1")))
	require.NoError(t, s.CommitFunds(id, d("0.5")))
	assertBalance(t, s, "bob", "BTC", "0.5", "0")
	_, ok, _ := s.Reservation(id)
	assert.False(t, ok)
}

func TestReserveFailures(t *testing.T) {
	s := NewService(nil, nil)

	_, err := s.ReserveFunds("carol", d("1"), "USDT")
	var ife *domain.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.True(t, ife.Available.IsZero())

	require.NoError(t, s.CreditFunds("carol", d("5"), "USDT"))
	_, err = s.ReserveFunds("carol", d("5.01"), "USDT")
	require.ErrorAs(t, err, &ife)
	assert.True(t, ife.Required.Equal(d("5.01")))
	assert.True(t, ife.Available.Equal(d("5")))

	_, err = s.ReserveFunds("carol", d("0"), "USDT")
	var ble *domain.BalanceLockError
	assert.ErrorAs(t, err, &ble)

	assertBalance(t, s, "carol", "USDT", "5", "0")
}

func TestCommitFailures(t *testing.T) {
	s := NewService(nil, nil)
	require.NoError(t, s.CreditFunds("dave", d("10"), "USDT"))
	id, err := s.ReserveFunds("dave", d("4"), "USDT")
	require.NoError(t, err)

	var we *domain.WalletError
	assert.ErrorAs(t, s.CommitFunds(id, d("4.5")), &we)
	assert.ErrorAs(t, s.CommitFunds("RES-unknown", d("1")), &we)
	assertBalance(t, s, "dave", "USDT", "6", "4")
}

func TestCreditRequiresPositive(t *testing.T) {
	s := NewService(nil, nil)
	var we *domain.WalletError
	assert.ErrorAs(t, s.CreditFunds("erin", d("0"), "USDT"), &we)
	assert.ErrorAs(t, s.CreditFunds("erin", d("-1"), "USDT"), &we)
	b, err := s.Balance("erin", "USDT")
	require.NoError(t, err)
	assert.True(t, b.Total.IsZero())
}

func TestSettleIsAtomic(t *testing.T) {
	s := NewService(nil, nil)
	require.NoError(t, s.CreditFunds("buyer", d("1000"), "USDT"))
	require.NoError(t, s.CreditFunds("seller", d("1"), "BTC"))
	buyRes, err := s.ReserveFunds("buyer", d("600"), "USDT")
	require.NoError(t, err)
	sellRes, err := s.ReserveFunds("seller", d("1"), "BTC")
	require.NoError(t, err)

	ok := domain.Settlement{
		Commits: []domain.Commit{
			{Reservation: buyRes, Amount: d("500.25")},
			{Reservation: sellRes, Amount: d("1")},
		},
		Credits: []domain.Credit{
			{UserID: "buyer", Currency: "BTC", Amount: d("1")},
			{UserID: "seller", Currency: "USDT", Amount: d("499.95")},
			{UserID: "fees", Currency: "USDT", Amount: d("0.3")},
		},
		Releases: []domain.ReservationID{buyRes, sellRes},
	}
	require.NoError(t, s.Settle(ok))
	assertBalance(t, s, "buyer", "USDT", "499.75", "0")
	assertBalance(t, s, "buyer", "BTC", "1", "0")
	assertBalance(t, s, "seller", "BTC", "0", "0")
	assertBalance(t, s, "seller", "USDT", "499.95", "0")
	assertBalance(t, s, "fees", "USDT", "0.3", "0")

	require.NoError(t, s.CreditFunds("buyer", d("100"), "USDT"))
	res, err := s.ReserveFunds("buyer", d("100"), "USDT")
	require.NoError(t, err)
	bad := domain.Settlement{
		Credits: []domain.Credit{{UserID: "seller", Currency: "USDT", Amount: d("5")}},
		Commits: []domain.Commit{{Reservation: res, Amount: d("101")}},
	}
	require.Error(t, s.Settle(bad))
	assertBalance(t, s, "seller", "USDT", "499.95", "0")
	assertBalance(t, s, "buyer", "USDT", "499.75", "100")
	require.NoError(t, s.ValidateBalances())
}

func TestBalancesAndValidate(t *testing.T) {
	store := NewMemStore()
	s := NewService(store, nil)
	require.NoError(t, s.CreditFunds("frank", d("1"), "ETH"))
	require.NoError(t, s.CreditFunds("frank", d("2"), "BTC"))
	bs, err := s.Balances("frank")
	require.NoError(t, err)
	require.Len(t, bs, 2)
	assert.Equal(t, domain.Currency("BTC"), bs[0].Currency)
	require.NoError(t, s.ValidateBalances())

	require.NoError(t, store.Apply(Changes{Balances: []domain.Balance{{
		UserID: "frank", Currency: "ETH", Available: d("1"), Locked: d("1"), Total: d("1"),
	}}}))
	var nbe *domain.NegativeBalanceError
	assert.ErrorAs(t, s.ValidateBalances(), &nbe)
}

func TestConcurrentReserveNeverOverdraws(t *testing.T) {
	s := NewService(nil, nil)
	require.NoError(t, s.CreditFunds("gina", d("10"), "USDT"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ReserveFunds("gina", d("1"), "USDT"); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, granted)
	assertBalance(t, s, "gina", "USDT", "0", "10")
}

func TestWalletConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewService(nil, nil)
		users := []domain.UserID{"u1", "u2"}
		var holds []domain.ReservationID
		amount := func(label string) decimal.Decimal {
			return decimal.New(rapid.Int64Range(0, 5000).Draw(t, label), -2)
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			user := rapid.SampledFrom(users).Draw(t, "user")
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				_ = s.CreditFunds(user, amount("credit"), "USDT")
			case 1:
				if id, err := s.ReserveFunds(user, amount("reserve"), "USDT"); err == nil {
					holds = append(holds, id)
				}
			case 2:
				if len(holds) > 0 {
					j := rapid.IntRange(0, len(holds)-1).Draw(t, "release")
					_ = s.ReleaseFunds(holds[j])
				}
			case 3:
				if len(holds) > 0 {
					j := rapid.IntRange(0, len(holds)-1).Draw(t, "commit")
					_ = s.CommitFunds(holds[j], amount("commit_amount"))
				}
			}
			if err := s.ValidateBalances(); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}

		for _, u := range users {
			b, err := s.Balance(u, "USDT")
			if err != nil {
				t.Fatal(err)
			}
			locked := decimal.Zero
			for _, id := range holds {
				if r, ok, _ := s.Reservation(id); ok && r.UserID == u {
					locked = locked.Add(r.Amount)
				}
			}
			if !locked.Equal(b.Locked) {
				t.Fatalf("%s locked %s but reservations hold %s", u, b.Locked, locked)
			}
		}
	})
}
