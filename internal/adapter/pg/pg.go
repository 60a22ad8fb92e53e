package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/port"
)

var _ port.Repository = (*PgRepo)(nil)

type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PgRepo) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("pg: ensure schema: %w", err)
	}
	return nil
}

func (p *PgRepo) SaveOrder(ctx context.Context, o domain.Order, res domain.ReservationID) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO orders(id, user_id, client_order_id, symbol, side, type, price, stop_price, quantity,
                   filled_quantity, remaining, status, time_in_force, reservation_id, created_at, updated_at, expires_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  price = EXCLUDED.price,
  quantity = EXCLUDED.quantity,
  filled_quantity = EXCLUDED.filled_quantity,
  remaining = EXCLUDED.remaining,
  status = EXCLUDED.status,
  reservation_id = EXCLUDED.reservation_id,
  updated_at = EXCLUDED.updated_at
`, string(o.ID), string(o.UserID), o.ClientOrderID, string(o.Symbol), string(o.Side), string(o.Type),
		o.Price, o.StopPrice, o.Quantity, o.FilledQuantity, o.Remaining, string(o.Status), string(o.TimeInForce),
		string(res), o.CreatedAt, o.UpdatedAt, o.ExpiresAt)
	return err
}

// SaveTrades writes all trades of one match in a single transaction.
func (p *PgRepo) SaveTrades(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return withTx(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range trades {
			batch.Queue(`
INSERT INTO trades(id, symbol, maker_order_id, taker_order_id, maker_user_id, taker_user_id,
                   price, quantity, side, maker_fee, taker_fee, timestamp)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO NOTHING
`, string(t.ID), string(t.Symbol), string(t.MakerOrderID), string(t.TakerOrderID), string(t.MakerUserID),
				string(t.TakerUserID), t.Price, t.Quantity, string(t.Side), t.MakerFee, t.TakerFee, t.Timestamp)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

const orderColumns = `id, user_id, client_order_id, symbol, side, type, price, stop_price, quantity,
  filled_quantity, remaining, status, time_in_force, reservation_id, created_at, updated_at, expires_at`

// LoadOpenOrders returns resting orders for a symbol in arrival order (FIFO).
func (p *PgRepo) LoadOpenOrders(ctx context.Context, symbol domain.TradingPair) ([]port.RestingOrder, error) {
	rows, err := p.pool.Query(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE symbol = $1 AND remaining > 0 AND status IN ('OPEN', 'PARTIALLY_FILLED')
ORDER BY seq ASC
`, string(symbol))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []port.RestingOrder
	for rows.Next() {
		o, resID, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, port.RestingOrder{Order: o, ReservationID: resID})
	}
	return res, rows.Err()
}

func (p *PgRepo) LoadOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, _, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, &domain.NotFoundError{Resource: "order", ID: string(id)}
	}
	return o, err
}

func (p *PgRepo) LoadTradesForOrder(ctx context.Context, id domain.OrderID) ([]domain.Trade, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, symbol, maker_order_id, taker_order_id, maker_user_id, taker_user_id,
       price, quantity, side, maker_fee, taker_fee, timestamp
FROM trades
WHERE maker_order_id = $1 OR taker_order_id = $1
ORDER BY timestamp ASC
`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var tid, symbol, makerOrder, takerOrder, makerUser, takerUser, side string
		if err := rows.Scan(&tid, &symbol, &makerOrder, &takerOrder, &makerUser, &takerUser,
			&t.Price, &t.Quantity, &side, &t.MakerFee, &t.TakerFee, &t.Timestamp); err != nil {
			return nil, err
		}
		t.ID = domain.TradeID(tid)
		t.Symbol = domain.TradingPair(symbol)
		t.MakerOrderID, t.TakerOrderID = domain.OrderID(makerOrder), domain.OrderID(takerOrder)
		t.MakerUserID, t.TakerUserID = domain.UserID(makerUser), domain.UserID(takerUser)
		t.Side = domain.Side(side)
		res = append(res, t)
	}
	return res, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, domain.ReservationID, error) {
	var o domain.Order
	var id, user, symbol, side, typ, status, tif, res string
	var price, stop decimal.NullDecimal
	var expires *time.Time
	if err := row.Scan(&id, &user, &o.ClientOrderID, &symbol, &side, &typ, &price, &stop, &o.Quantity,
		&o.FilledQuantity, &o.Remaining, &status, &tif, &res, &o.CreatedAt, &o.UpdatedAt, &expires); err != nil {
		return domain.Order{}, "", err
	}
	o.ID = domain.OrderID(id)
	o.UserID = domain.UserID(user)
	o.Symbol = domain.TradingPair(symbol)
	o.Side = domain.Side(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)
	o.TimeInForce = domain.TimeInForce(tif)
	o.Price, o.StopPrice = price, stop
	o.ExpiresAt = expires
	return o, domain.ReservationID(res), nil
}
