package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChipaDevTeam/ChipaX/internal/core"
	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, core.DefaultSnapshotDepth, cfg.Engine.SnapshotDepth)
	assert.Equal(t, WalletMemory, cfg.Wallet.Store)

	ecs, err := cfg.EngineConfigs()
	require.NoError(t, err)
	require.Len(t, ecs, 4)
	assert.Equal(t, domain.TradingPair("BTC/USDT"), ecs[0].Symbol)
	assert.True(t, ecs[0].TakerFee.Equal(core.DefaultTakerFee))
	assert.Equal(t, core.CancelTaker, ecs[0].SelfTradePrevention)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9090"
engine:
  snapshot_depth: 20
  expiry_interval: 250ms
fees:
  maker: "0.001"
  taker: "0.002"
matching:
  self_trade_prevention: CANCEL_BOTH
pairs:
  - symbol: BTC/USDT
    taker_fee: "0.003"
  - symbol: ETH/USDT
    enabled: false
wallet:
  store: pebble
  path: /tmp/wallet
`)
	t.Setenv("EXCHANGE_HTTP_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.ExpiryInterval)
	assert.Equal(t, WalletPebble, cfg.Wallet.Store)

	ecs, err := cfg.EngineConfigs()
	require.NoError(t, err)
	require.Len(t, ecs, 1)
	assert.Equal(t, "0.001", ecs[0].MakerFee.String())
	assert.Equal(t, "0.003", ecs[0].TakerFee.String())
	assert.Equal(t, core.CancelBoth, ecs[0].SelfTradePrevention)
	assert.Equal(t, 20, ecs[0].SnapshotDepth)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"stp", func(c *Config) { c.Matching.SelfTradePrevention = "CANCEL_NOBODY" }, "matching.self_trade_prevention"},
		{"depth", func(c *Config) { c.Engine.SnapshotDepth = 0 }, "engine.snapshot_depth"},
		{"negative fee", func(c *Config) { c.Fees.Maker = "-0.1" }, "fees.maker"},
		{"bad symbol", func(c *Config) { c.Pairs = []PairConfig{{Symbol: "btcusdt"}} }, "pairs[0].symbol"},
		{"duplicate", func(c *Config) { c.Pairs = []PairConfig{{Symbol: "BTC/USDT"}, {Symbol: "BTC/USDT"}} }, "pairs[1].symbol"},
		{"store", func(c *Config) { c.Wallet.Store = "sqlite" }, "wallet.store"},
		{"pebble path", func(c *Config) { c.Wallet.Store = WalletPebble; c.Wallet.Path = "" }, "wallet.path"},
		{"kafka topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.Topic = "" }, "kafka.topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.edit(cfg)
			err := cfg.Validate()
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
