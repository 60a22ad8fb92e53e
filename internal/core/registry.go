package core

import (
	"errors"

	"go.uber.org/zap"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

// Registry owns one MatchingEngine per configured pair. It is built once at
// startup and is read-only afterwards, so lookups take no lock.
type Registry struct {
	engines map[domain.TradingPair]*MatchingEngine
	symbols []domain.TradingPair
}

func NewRegistry(cfgs []EngineConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{engines: make(map[domain.TradingPair]*MatchingEngine, len(cfgs))}
	for _, cfg := range cfgs {
		if _, err := domain.ParseTradingPair(string(cfg.Symbol)); err != nil {
			return nil, err
		}
		if _, dup := r.engines[cfg.Symbol]; dup {
			return nil, &domain.ValidationError{Field: "symbol", Reason: "duplicate pair " + string(cfg.Symbol)}
		}
		if cfg.SelfTradePrevention != "" && !cfg.SelfTradePrevention.Valid() {
			return nil, &domain.ValidationError{Field: "self_trade_prevention", Reason: "unknown mode " + string(cfg.SelfTradePrevention)}
		}
		r.engines[cfg.Symbol] = NewMatchingEngine(cfg, logger)
		r.symbols = append(r.symbols, cfg.Symbol)
	}
	logger.Info("matching engines ready", zap.Int("pairs", len(r.symbols)))
	return r, nil
}

func (r *Registry) Engine(symbol domain.TradingPair) (*MatchingEngine, error) {
	e, ok := r.engines[symbol]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "trading pair", ID: string(symbol)}
	}
	return e, nil
}

func (r *Registry) Symbols() []domain.TradingPair {
	return append([]domain.TradingPair(nil), r.symbols...)
}

func (r *Registry) ProcessOrder(o domain.Order) (TradeResult, error) {
	e, err := r.Engine(o.Symbol)
	if err != nil {
		return TradeResult{}, err
	}
	return e.ProcessOrder(o)
}

func (r *Registry) CancelOrder(symbol domain.TradingPair, id domain.OrderID) (domain.Order, error) {
	e, err := r.Engine(symbol)
	if err != nil {
		return domain.Order{}, err
	}
	return e.CancelOrder(id)
}

func (r *Registry) Snapshot(symbol domain.TradingPair, depth int) (domain.OrderbookSnapshot, error) {
	e, err := r.Engine(symbol)
	if err != nil {
		return domain.OrderbookSnapshot{}, err
	}
	return e.Snapshot(depth), nil
}

func (r *Registry) BestPrices(symbol domain.TradingPair) (BestPrices, error) {
	e, err := r.Engine(symbol)
	if err != nil {
		return BestPrices{}, err
	}
	return e.BestPrices(), nil
}

// ValidateAll checks every book and joins the failures.
func (r *Registry) ValidateAll() error {
	var errs []error
	for _, s := range r.symbols {
		if err := r.engines[s].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
