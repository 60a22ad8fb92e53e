package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

// refreshCache stores the engine's default-depth snapshot, or drops the
// cached one when the write fails so readers fall back to the engine.
func (x *Exchange) refreshCache(ctx context.Context, eng *MatchingEngine) domain.OrderbookSnapshot {
	snap := eng.Snapshot(0)
	if x.cache == nil {
		return snap
	}
	if err := x.cache.SetOrderbook(ctx, eng.Symbol(), snap.DeepCopy()); err != nil {
		x.log.Warn("cache orderbook", zap.String("symbol", string(eng.Symbol())), zap.Error(err))
		if err := x.cache.Invalidate(ctx, eng.Symbol()); err != nil {
			x.log.Warn("invalidate orderbook", zap.String("symbol", string(eng.Symbol())), zap.Error(err))
		}
	}
	return snap
}

// loadSnapshot reads through the cache. Cached snapshots are stored at the
// engine's default depth, so deeper requests always go to the engine.
func (x *Exchange) loadSnapshot(ctx context.Context, eng *MatchingEngine, depth int) domain.OrderbookSnapshot {
	cached := eng.Config().SnapshotDepth
	if depth > cached {
		return eng.Snapshot(depth)
	}
	if depth <= 0 {
		depth = cached
	}
	if x.cache != nil {
		ob, err := x.cache.GetOrderbook(ctx, eng.Symbol())
		if err != nil {
			x.log.Debug("cache miss", zap.String("symbol", string(eng.Symbol())), zap.Error(err))
		} else if ob != nil {
			return trimSnapshot(*ob, depth)
		}
	}
	snap := eng.Snapshot(0)
	if x.cache != nil {
		if err := x.cache.SetOrderbook(ctx, eng.Symbol(), snap.DeepCopy()); err != nil {
			x.log.Warn("cache orderbook", zap.String("symbol", string(eng.Symbol())), zap.Error(err))
		}
	}
	return trimSnapshot(snap, depth)
}

func trimSnapshot(s domain.OrderbookSnapshot, depth int) domain.OrderbookSnapshot {
	if len(s.Bids) > depth {
		s.Bids = s.Bids[:depth]
	}
	if len(s.Asks) > depth {
		s.Asks = s.Asks[:depth]
	}
	return s
}
