package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

func TestOrderBookAddRejects(t *testing.T) {
	ob := NewOrderBook(btc)
	var ie *domain.InvalidOrderError

	wrong := limitOrder("u", domain.Buy, "1", "1")
	wrong.Symbol = "ETH/USDT"
	require.ErrorAs(t, ob.Add(wrong), &ie)
	assert.Equal(t, "symbol", ie.Field)

	require.ErrorAs(t, ob.Add(marketOrder("u", domain.Buy, "1")), &ie)
	assert.Equal(t, "type", ie.Field)

	noPrice := limitOrder("u", domain.Buy, "1", "1")
	noPrice.Price = decimal.NullDecimal{}
	require.ErrorAs(t, ob.Add(noPrice), &ie)
	assert.Equal(t, "price", ie.Field)

	ok := limitOrder("u", domain.Buy, "1", "1")
	require.NoError(t, ob.Add(ok))
	require.ErrorAs(t, ob.Add(ok), &ie)
	assert.Equal(t, 1, ob.OrderCount())
}

func TestOrderBookSortingAndBest(t *testing.T) {
	ob := NewOrderBook(btc)
	for _, p := range []string{"99", "101", "100"} {
		require.NoError(t, ob.Add(limitOrder("b", domain.Buy, p, "1")))
	}
	for _, p := range []string{"105", "103", "104", "103"} {
		require.NoError(t, ob.Add(limitOrder("s", domain.Sell, p, "2")))
	}

	bid, ok := ob.BestBid()
	require.True(t, ok)
	decEqual(t, "101", bid)
	ask, ok := ob.BestAsk()
	require.True(t, ok)
	decEqual(t, "103", ask)
	spread, _ := ob.Spread()
	decEqual(t, "2", spread)
	mid, _ := ob.MidPrice()
	decEqual(t, "102", mid)

	var bids []string
	for _, l := range ob.BidLevels(0) {
		bids = append(bids, l.Price().String())
	}
	assert.Equal(t, []string{"101", "100", "99"}, bids)
	asks := ob.AskLevels(2)
	require.Len(t, asks, 2)
	decEqual(t, "103", asks[0].Price())
	decEqual(t, "4", asks[0].TotalQuantity())
	assert.Equal(t, 2, asks[0].OrderCount())
	decEqual(t, "104", asks[1].Price())

	decEqual(t, "4", ob.LiquidityAt(domain.Sell, dec("103")))
	assert.True(t, ob.LiquidityAt(domain.Sell, dec("1")).IsZero())
	assert.False(t, ob.IsCrossed())
	require.NoError(t, ob.Validate())
}

func TestOrderBookRemovePrunesLevel(t *testing.T) {
	ob := NewOrderBook(btc)
	o := limitOrder("u", domain.Sell, "50000", "1")
	require.NoError(t, ob.Add(o))

	got, ok := ob.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, o.ID, got.ID)

	removed, err := ob.Remove(o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, removed.ID)
	_, ok = ob.PriceLevel(domain.Sell, dec("50000"))
	assert.False(t, ok, "emptied level must be purged")
	_, ok = ob.BestAsk()
	assert.False(t, ok)

	_, err = ob.Remove(o.ID)
	var ie *domain.InvalidOrderError
	assert.ErrorAs(t, err, &ie)
	require.NoError(t, ob.Validate())
}

func TestOrderBookSnapshotDepth(t *testing.T) {
	ob := NewOrderBook(btc)
	require.NoError(t, ob.Add(limitOrder("a", domain.Buy, "100", "1")))
	require.NoError(t, ob.Add(limitOrder("b", domain.Buy, "100", "0.5")))
	require.NoError(t, ob.Add(limitOrder("c", domain.Sell, "101", "2")))

	snap := ob.Snapshot(10, epoch)
	assert.Equal(t, btc, snap.Symbol)
	assert.Equal(t, epoch, snap.Timestamp)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
	decEqual(t, "100", snap.Bids[0].Price)
	decEqual(t, "1.5", snap.Bids[0].Quantity)
	assert.Equal(t, 2, snap.Bids[0].OrderCount)
	decEqual(t, "2", snap.Asks[0].Quantity)

	ob.Clear()
	assert.Equal(t, 0, ob.OrderCount())
	empty := ob.Snapshot(10, epoch)
	assert.Empty(t, empty.Bids)
	assert.NotNil(t, empty.Bids)
}

func TestOrderBookMatchKeepsIndex(t *testing.T) {
	ob := NewOrderBook(btc)
	a := limitOrder("a", domain.Sell, "100", "1")
	b := limitOrder("b", domain.Sell, "101", "1")
	c := limitOrder("c", domain.Sell, "102", "1")
	for _, o := range []domain.Order{a, b, c} {
		require.NoError(t, ob.Add(o))
	}

	m := ob.Match(domain.Buy, price("101"), dec("1.5"), epoch, nil)
	require.Len(t, m.Fills, 2)
	assert.True(t, m.Remaining.IsZero())
	_, ok := ob.Order(a.ID)
	assert.False(t, ok)
	left, ok := ob.Order(b.ID)
	require.True(t, ok)
	decEqual(t, "0.5", left.Remaining)
	require.NoError(t, ob.Validate())

	m = ob.Match(domain.Buy, price("101"), dec("5"), epoch, nil)
	require.Len(t, m.Fills, 1)
	decEqual(t, "4.5", m.Remaining)
	ask, _ := ob.BestAsk()
	decEqual(t, "102", ask, "limit guard stops before 102")
	require.NoError(t, ob.Validate())
}

func TestOrderBookFillableAndSelfMatch(t *testing.T) {
	ob := NewOrderBook(btc)
	require.NoError(t, ob.Add(limitOrder("x", domain.Sell, "100", "1")))
	mine := limitOrder("me", domain.Sell, "101", "1")
	require.NoError(t, ob.Add(mine))

	filled, notional := ob.Fillable(domain.Buy, decimal.NullDecimal{}, dec("1.5"))
	decEqual(t, "1.5", filled)
	decEqual(t, "150.5", notional)

	filled, _ = ob.Fillable(domain.Buy, price("100"), dec("3"))
	decEqual(t, "1", filled)

	_, hit := ob.SelfMatch(domain.Buy, price("101"), dec("1"), "me")
	assert.False(t, hit, "quantity runs out before reaching own order")
	got, hit := ob.SelfMatch(domain.Buy, price("101"), dec("1.1"), "me")
	require.True(t, hit)
	assert.Equal(t, mine.ID, got.ID)
	_, hit = ob.SelfMatch(domain.Buy, price("100"), dec("5"), "me")
	assert.False(t, hit, "own order beyond the limit")
}

func TestOrderBookValidateDetectsCorruption(t *testing.T) {
	var ce *domain.OrderBookCorruptionError

	ob := NewOrderBook(btc)
	require.NoError(t, ob.Add(limitOrder("a", domain.Buy, "100", "1")))
	require.NoError(t, ob.Add(limitOrder("b", domain.Sell, "100", "1")))
	require.True(t, ob.IsCrossed())
	assert.ErrorAs(t, ob.Validate(), &ce)

	ob = NewOrderBook(btc)
	require.NoError(t, ob.Add(limitOrder("a", domain.Buy, "100", "1")))
	lvl, _ := ob.PriceLevel(domain.Buy, dec("100"))
	lvl.total = dec("7")
	require.ErrorAs(t, ob.Validate(), &ce)
	assert.Contains(t, ce.Details, "aggregate")

	ob = NewOrderBook(btc)
	o := limitOrder("a", domain.Buy, "100", "1")
	require.NoError(t, ob.Add(o))
	delete(ob.index, o.ID)
	require.ErrorAs(t, ob.Validate(), &ce)
	assert.Contains(t, ce.Details, "not indexed")
}
