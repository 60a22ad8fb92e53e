package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/ChipaDevTeam/ChipaX/internal/core"
	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/money"
)

const EnvPrefix = "EXCHANGE"

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Fees     FeeConfig      `mapstructure:"fees"`
	Matching MatchingConfig `mapstructure:"matching"`
	Pairs    []PairConfig   `mapstructure:"pairs"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type EngineConfig struct {
	SnapshotDepth         int           `mapstructure:"snapshot_depth"`
	ValidateAfterMutation bool          `mapstructure:"validate_after_mutation"`
	ExpiryInterval        time.Duration `mapstructure:"expiry_interval"`
}

// FeeConfig rates are decimal strings, e.g. "0.0005".
type FeeConfig struct {
	Maker   string `mapstructure:"maker"`
	Taker   string `mapstructure:"taker"`
	Account string `mapstructure:"account"`
}

type MatchingConfig struct {
	SelfTradePrevention string `mapstructure:"self_trade_prevention"`
}

// PairConfig fee fields override FeeConfig when set.
type PairConfig struct {
	Symbol   string `mapstructure:"symbol"`
	MakerFee string `mapstructure:"maker_fee"`
	TakerFee string `mapstructure:"taker_fee"`
	Enabled  *bool  `mapstructure:"enabled"`
}

func (p PairConfig) enabled() bool { return p.Enabled == nil || *p.Enabled }

// PostgresConfig with an empty DSN selects the in-memory repository.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig with an empty Addr selects the in-memory cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig with no brokers disables event export.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

const (
	WalletMemory = "memory"
	WalletPebble = "pebble"
)

type WalletConfig struct {
	Store string `mapstructure:"store"`
	Path  string `mapstructure:"path"`
}

var defaultPairs = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "XRP/USDT"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("engine.snapshot_depth", core.DefaultSnapshotDepth)
	v.SetDefault("engine.validate_after_mutation", false)
	v.SetDefault("engine.expiry_interval", time.Second)
	v.SetDefault("fees.maker", core.DefaultMakerFee.String())
	v.SetDefault("fees.taker", core.DefaultTakerFee.String())
	v.SetDefault("fees.account", string(core.DefaultFeeAccount))
	v.SetDefault("matching.self_trade_prevention", string(core.CancelTaker))
	pairs := make([]map[string]any, len(defaultPairs))
	for i, s := range defaultPairs {
		pairs[i] = map[string]any{"symbol": s}
	}
	v.SetDefault("pairs", pairs)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "exchange.events")
	v.SetDefault("wallet.store", WalletMemory)
	v.SetDefault("wallet.path", "data/wallet")
}

// Load reads .env (if present), then the config file, then EXCHANGE_*
// environment overrides. An empty path looks for ./config.yaml and falls
// back to defaults when there is none.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return &domain.ValidationError{Field: "http.addr", Reason: "required"}
	}
	if c.Engine.SnapshotDepth <= 0 {
		return &domain.ValidationError{Field: "engine.snapshot_depth", Reason: "must be positive"}
	}
	if c.Engine.ExpiryInterval <= 0 {
		return &domain.ValidationError{Field: "engine.expiry_interval", Reason: "must be positive"}
	}
	if !core.STPMode(c.Matching.SelfTradePrevention).Valid() {
		return &domain.ValidationError{Field: "matching.self_trade_prevention", Reason: "unknown mode " + c.Matching.SelfTradePrevention}
	}
	if _, err := domain.ParseUserID(c.Fees.Account); err != nil {
		return &domain.ValidationError{Field: "fees.account", Reason: err.Error()}
	}
	if _, err := c.EngineConfigs(); err != nil {
		return err
	}
	switch c.Wallet.Store {
	case WalletMemory:
	case WalletPebble:
		if c.Wallet.Path == "" {
			return &domain.ValidationError{Field: "wallet.path", Reason: "required for the pebble store"}
		}
	default:
		return &domain.ValidationError{Field: "wallet.store", Reason: "must be memory or pebble"}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return &domain.ValidationError{Field: "kafka.topic", Reason: "required when brokers are set"}
	}
	return nil
}

// EngineConfigs builds one engine config per enabled pair.
func (c *Config) EngineConfigs() ([]core.EngineConfig, error) {
	maker, err := feeRate("fees.maker", c.Fees.Maker)
	if err != nil {
		return nil, err
	}
	taker, err := feeRate("fees.taker", c.Fees.Taker)
	if err != nil {
		return nil, err
	}

	seen := make(map[domain.TradingPair]bool, len(c.Pairs))
	var out []core.EngineConfig
	for i, p := range c.Pairs {
		field := fmt.Sprintf("pairs[%d]", i)
		symbol, err := domain.ParseTradingPair(p.Symbol)
		if err != nil {
			return nil, &domain.ValidationError{Field: field + ".symbol", Reason: err.Error()}
		}
		if seen[symbol] {
			return nil, &domain.ValidationError{Field: field + ".symbol", Reason: "duplicate pair " + p.Symbol}
		}
		seen[symbol] = true

		ec := core.EngineConfig{
			Symbol:                symbol,
			MakerFee:              maker,
			TakerFee:              taker,
			SelfTradePrevention:   core.STPMode(c.Matching.SelfTradePrevention),
			SnapshotDepth:         c.Engine.SnapshotDepth,
			ValidateAfterMutation: c.Engine.ValidateAfterMutation,
		}
		if p.MakerFee != "" {
			if ec.MakerFee, err = feeRate(field+".maker_fee", p.MakerFee); err != nil {
				return nil, err
			}
		}
		if p.TakerFee != "" {
			if ec.TakerFee, err = feeRate(field+".taker_fee", p.TakerFee); err != nil {
				return nil, err
			}
		}
		if p.enabled() {
			out = append(out, ec)
		}
	}
	if len(out) == 0 {
		return nil, &domain.ValidationError{Field: "pairs", Reason: "no enabled trading pairs"}
	}
	return out, nil
}

func feeRate(field, s string) (decimal.Decimal, error) {
	d, err := money.Parse(s)
	if err != nil {
		return decimal.Zero, &domain.ValidationError{Field: field, Reason: err.Error()}
	}
	if d.IsNegative() {
		return decimal.Zero, &domain.ValidationError{Field: field, Reason: "must not be negative"}
	}
	return d, nil
}
