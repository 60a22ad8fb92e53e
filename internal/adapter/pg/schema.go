package pg

const schema = `
CREATE TABLE IF NOT EXISTS orders (
  id               TEXT PRIMARY KEY,
  user_id          TEXT NOT NULL,
  client_order_id  TEXT NOT NULL DEFAULT '',
  symbol           TEXT NOT NULL,
  side             TEXT NOT NULL,
  type             TEXT NOT NULL,
  price            NUMERIC,
  stop_price       NUMERIC,
  quantity         NUMERIC NOT NULL,
  filled_quantity  NUMERIC NOT NULL,
  remaining        NUMERIC NOT NULL,
  status           TEXT NOT NULL,
  time_in_force    TEXT NOT NULL,
  reservation_id   TEXT NOT NULL DEFAULT '',
  created_at       TIMESTAMPTZ NOT NULL,
  updated_at       TIMESTAMPTZ NOT NULL,
  expires_at       TIMESTAMPTZ,
  seq              BIGSERIAL
);
CREATE INDEX IF NOT EXISTS orders_open_idx ON orders (symbol, seq) WHERE status IN ('OPEN', 'PARTIALLY_FILLED');

CREATE TABLE IF NOT EXISTS trades (
  id              TEXT PRIMARY KEY,
  symbol          TEXT NOT NULL,
  maker_order_id  TEXT NOT NULL,
  taker_order_id  TEXT NOT NULL,
  maker_user_id   TEXT NOT NULL,
  taker_user_id   TEXT NOT NULL,
  price           NUMERIC NOT NULL,
  quantity        NUMERIC NOT NULL,
  side            TEXT NOT NULL,
  maker_fee       NUMERIC NOT NULL,
  taker_fee       NUMERIC NOT NULL,
  timestamp       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_maker_idx ON trades (maker_order_id);
CREATE INDEX IF NOT EXISTS trades_taker_idx ON trades (taker_order_id);
`
