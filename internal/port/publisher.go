package port

import (
	"context"
	"errors"
	"time"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

type EventType string

const (
	EventTrade     EventType = "trade"
	EventOrder     EventType = "order"
	EventOrderbook EventType = "orderbook"
)

type Event struct {
	Type      EventType          `json:"type"`
	Symbol    domain.TradingPair `json:"symbol"`
	Payload   any                `json:"payload"`
	Timestamp time.Time          `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Publishers fans every batch out to all members and joins their errors.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
