package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

func TestPriceLevelFIFO(t *testing.T) {
	l := NewPriceLevel(domain.Sell, dec("100"))
	o1 := limitOrder("a", domain.Sell, "100", "1")
	o2 := limitOrder("b", domain.Sell, "100", "2")
	require.True(t, l.Add(o1))
	require.True(t, l.Add(o2))
	assert.False(t, l.Add(o1), "duplicate ids are ignored")

	decEqual(t, "3", l.TotalQuantity())
	assert.Equal(t, 2, l.OrderCount())
	first, ok := l.First()
	require.True(t, ok)
	assert.Equal(t, o1.ID, first.ID)

	ids := []domain.OrderID{}
	for _, o := range l.Orders() {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []domain.OrderID{o1.ID, o2.ID}, ids)

	removed, ok := l.Remove(o1.ID)
	require.True(t, ok)
	assert.Equal(t, o1.ID, removed.ID)
	decEqual(t, "2", l.TotalQuantity())
	_, ok = l.Remove(o1.ID)
	assert.False(t, ok)
}

func TestPriceLevelUpdateQuantity(t *testing.T) {
	l := NewPriceLevel(domain.Buy, dec("10"))
	o := limitOrder("a", domain.Buy, "10", "5")
	l.Add(o)

	require.NoError(t, l.UpdateQuantity(o.ID, dec("3"), epoch))
	got, _ := l.Get(o.ID)
	decEqual(t, "3", got.Remaining)
	decEqual(t, "2", got.FilledQuantity)
	assert.Equal(t, o.Status, got.Status)
	decEqual(t, "3", l.TotalQuantity())

	assert.Error(t, l.UpdateQuantity(o.ID, dec("0"), epoch))
	assert.Error(t, l.UpdateQuantity(o.ID, dec("6"), epoch))
	var nf *domain.NotFoundError
	assert.ErrorAs(t, l.UpdateQuantity("missing", dec("1"), epoch), &nf)
}

func TestPriceLevelMatchQuantity(t *testing.T) {
	l := NewPriceLevel(domain.Sell, dec("50000"))
	o1 := limitOrder("s1", domain.Sell, "50000", "0.5")
	o2 := limitOrder("s2", domain.Sell, "50000", "0.3")
	o3 := limitOrder("s3", domain.Sell, "50000", "0.4")
	l.Add(o1)
	l.Add(o2)
	l.Add(o3)

	m := l.MatchQuantity(dec("1.0"), epoch, nil)
	require.Len(t, m.Fills, 3)
	decEqual(t, "0.5", m.Fills[0].Quantity)
	decEqual(t, "0.3", m.Fills[1].Quantity)
	decEqual(t, "0.2", m.Fills[2].Quantity)
	assert.Equal(t, domain.Filled, m.Fills[0].Order.Status)
	assert.Equal(t, o3.Status, m.Fills[2].Order.Status, "partially filled maker keeps its status")
	assert.True(t, m.Remaining.IsZero())

	assert.Equal(t, 1, l.OrderCount())
	head, _ := l.First()
	assert.Equal(t, o3.ID, head.ID, "partially filled maker keeps its place")
	decEqual(t, "0.2", head.Remaining)
	decEqual(t, "0.2", l.TotalQuantity())
}

func TestPriceLevelMatchVisit(t *testing.T) {
	l := NewPriceLevel(domain.Sell, dec("10"))
	mine := limitOrder("me", domain.Sell, "10", "1")
	other := limitOrder("other", domain.Sell, "10", "1")
	last := limitOrder("late", domain.Sell, "10", "1")
	l.Add(mine)
	l.Add(other)
	l.Add(last)

	m := l.MatchQuantity(dec("5"), epoch, func(o domain.Order) Visit {
		switch o.UserID {
		case "me":
			return Evict
		case "late":
			return Halt
		}
		return Take
	})
	require.Len(t, m.Evicted, 1)
	assert.Equal(t, mine.ID, m.Evicted[0].ID)
	require.Len(t, m.Fills, 1)
	assert.Equal(t, other.ID, m.Fills[0].Order.ID)
	assert.True(t, m.Halted)
	decEqual(t, "4", m.Remaining)
	assert.Equal(t, 1, l.OrderCount())
	decEqual(t, "1", l.TotalQuantity())

	snap := l.Snapshot()
	decEqual(t, "10", snap.Price)
	assert.Equal(t, 1, snap.OrderCount)
}
