package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

const btc domain.TradingPair = "BTC/USDT"

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func price(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

func limitOrder(user domain.UserID, side domain.Side, p, qty string) domain.Order {
	return domain.NewOrder(user, btc, side, domain.Limit, price(p), dec(qty), domain.GTC, epoch)
}

func marketOrder(user domain.UserID, side domain.Side, qty string) domain.Order {
	return domain.NewOrder(user, btc, side, domain.Market, decimal.NullDecimal{}, dec(qty), domain.GTC, epoch)
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func engineConfig(mode STPMode) EngineConfig {
	clock := &stepClock{now: epoch}
	return EngineConfig{
		Symbol:                btc,
		MakerFee:              DefaultMakerFee,
		TakerFee:              DefaultTakerFee,
		SelfTradePrevention:   mode,
		ValidateAfterMutation: true,
		Clock:                 clock.Now,
	}
}

func newEngine(t *testing.T, mode STPMode) *MatchingEngine {
	t.Helper()
	return NewMatchingEngine(engineConfig(mode), zaptest.NewLogger(t))
}

func rest(t *testing.T, e *MatchingEngine, o domain.Order) domain.Order {
	t.Helper()
	res, err := e.ProcessOrder(o)
	require.NoError(t, err)
	require.Empty(t, res.Trades, "order was expected to rest")
	require.Equal(t, domain.Open, res.Order.Status)
	return res.Order
}

func decEqual(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}
