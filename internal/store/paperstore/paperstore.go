// Package paperstore persists Paper Engine state (orders, positions, funds,
// trade log) to SQLite in WAL mode, generalizing the teacher's single-table
// trade journal (internal/execution/journal.go) to the engine's four
// logical collections.
package paperstore

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"tradingcore/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const globalFundsID = "global_state"

// Store is a SQLite-backed implementation of paperengine.Store.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// New opens (or creates) the paper-trading database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("paperstore: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("paperstore: schema: %w", err)
	}

	log.Printf("[paperstore] opened database at %s", dbPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id      TEXT PRIMARY KEY,
			symbol        TEXT NOT NULL,
			exchange      TEXT NOT NULL,
			side          TEXT NOT NULL,
			qty           INTEGER NOT NULL,
			type          TEXT NOT NULL,
			product       TEXT NOT NULL,
			status        TEXT NOT NULL,
			price         INTEGER,
			trigger_price INTEGER,
			avg_price     INTEGER,
			filled_qty    INTEGER,
			pending_qty   INTEGER,
			cancelled_qty INTEGER,
			tag           TEXT,
			placed_at     TEXT,
			exchange_ts   TEXT,
			updated_at    TEXT
		);

		CREATE TABLE IF NOT EXISTS positions (
			position_key  TEXT PRIMARY KEY,
			symbol        TEXT NOT NULL,
			exchange      TEXT NOT NULL,
			product       TEXT NOT NULL,
			net_qty       INTEGER NOT NULL,
			avg_price     INTEGER,
			last_price    INTEGER,
			buy_qty       INTEGER,
			sell_qty      INTEGER,
			buy_value     INTEGER,
			sell_value    INTEGER,
			realized_pnl  INTEGER,
			opened_at     TEXT,
			updated_at    TEXT
		);

		CREATE TABLE IF NOT EXISTS trades (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			ts         TEXT NOT NULL,
			order_id   TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			exchange   TEXT NOT NULL,
			side       TEXT NOT NULL,
			qty        INTEGER NOT NULL,
			price      INTEGER NOT NULL,
			tag        TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, exchange);

		CREATE TABLE IF NOT EXISTS funds (
			id            TEXT PRIMARY KEY,
			capital       INTEGER NOT NULL,
			available     INTEGER NOT NULL,
			reserved      INTEGER NOT NULL,
			invested      INTEGER NOT NULL,
			realized_pnl  INTEGER NOT NULL,
			daily_pnl     INTEGER NOT NULL,
			total_pnl     INTEGER NOT NULL,
			trades_today  INTEGER NOT NULL,
			updated_at    TEXT
		);
	`)
	return err
}

func (s *Store) SaveOrder(o model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO orders (order_id, symbol, exchange, side, qty, type, product, status,
			price, trigger_price, avg_price, filled_qty, pending_qty, cancelled_qty, tag,
			placed_at, exchange_ts, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(order_id) DO UPDATE SET
			status=excluded.status, price=excluded.price, trigger_price=excluded.trigger_price,
			avg_price=excluded.avg_price, filled_qty=excluded.filled_qty, pending_qty=excluded.pending_qty,
			cancelled_qty=excluded.cancelled_qty, exchange_ts=excluded.exchange_ts, updated_at=excluded.updated_at`,
		o.OrderID, o.Symbol, o.Exchange, string(o.Side), o.Qty, string(o.Type), o.Product, string(o.Status),
		o.Price, o.TriggerPrice, o.AvgPrice, o.FilledQty, o.PendingQty, o.CancelledQty, o.Tag,
		timeOrNil(o.PlacedAt), timeOrNil(o.ExchangeTS), timeOrNil(o.UpdatedAt))
	return err
}

func (s *Store) SavePosition(p model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO positions (position_key, symbol, exchange, product, net_qty, avg_price, last_price,
			buy_qty, sell_qty, buy_value, sell_value, realized_pnl, opened_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(position_key) DO UPDATE SET
			net_qty=excluded.net_qty, avg_price=excluded.avg_price, last_price=excluded.last_price,
			buy_qty=excluded.buy_qty, sell_qty=excluded.sell_qty, buy_value=excluded.buy_value,
			sell_value=excluded.sell_value, realized_pnl=excluded.realized_pnl, updated_at=excluded.updated_at`,
		p.Key(), p.Symbol, p.Exchange, p.Product, p.NetQty, p.AvgPrice, p.LastPrice,
		p.BuyQty, p.SellQty, p.BuyValue, p.SellValue, p.RealizedPnL,
		timeOrNil(p.OpenedAt), timeOrNil(p.UpdatedAt))
	return err
}

func (s *Store) DeletePosition(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM positions WHERE position_key = ?`, key)
	return err
}

func (s *Store) SaveFunds(f model.Funds) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO funds (id, capital, available, reserved, invested, realized_pnl, daily_pnl, total_pnl, trades_today, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			capital=excluded.capital, available=excluded.available, reserved=excluded.reserved,
			invested=excluded.invested, realized_pnl=excluded.realized_pnl, daily_pnl=excluded.daily_pnl,
			total_pnl=excluded.total_pnl, trades_today=excluded.trades_today, updated_at=excluded.updated_at`,
		globalFundsID, f.Capital, f.Available, f.Reserved, f.Invested, f.RealizedPnL, f.DailyPnL, f.TotalPnL, f.TradesToday,
		timeOrNil(f.UpdatedAt))
	return err
}

func (s *Store) AppendTrade(t model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO trades (ts, order_id, symbol, exchange, side, qty, price, tag)
		VALUES (?,?,?,?,?,?,?,?)`,
		timeOrNil(t.TS), t.OrderID, t.Symbol, t.Exchange, string(t.Side), t.Qty, t.Price, t.Tag)
	return err
}

// LoadAll reconstructs orders, positions, and funds from the store.
func (s *Store) LoadAll() ([]model.Order, []model.Position, *model.Funds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.loadOrders()
	if err != nil {
		return nil, nil, nil, err
	}
	positions, err := s.loadPositions()
	if err != nil {
		return nil, nil, nil, err
	}
	funds, err := s.loadFunds()
	if err != nil {
		return nil, nil, nil, err
	}
	return orders, positions, funds, nil
}

func (s *Store) loadOrders() ([]model.Order, error) {
	rows, err := s.db.Query(`SELECT order_id, symbol, exchange, side, qty, type, product, status,
		price, trigger_price, avg_price, filled_qty, pending_qty, cancelled_qty, tag, placed_at, exchange_ts, updated_at
		FROM orders`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var o model.Order
		var side, typ, product, status string
		var placedAt, exchangeTS, updatedAt sql.NullString
		if err := rows.Scan(&o.OrderID, &o.Symbol, &o.Exchange, &side, &o.Qty, &typ, &product, &status,
			&o.Price, &o.TriggerPrice, &o.AvgPrice, &o.FilledQty, &o.PendingQty, &o.CancelledQty, &o.Tag,
			&placedAt, &exchangeTS, &updatedAt); err != nil {
			return nil, err
		}
		o.Side = model.Side(side)
		o.Type = model.OrderType(typ)
		o.Product = product
		o.Status = model.OrderStatus(status)
		o.PlacedAt = parseTime(placedAt)
		o.ExchangeTS = parseTime(exchangeTS)
		o.UpdatedAt = parseTime(updatedAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) loadPositions() ([]model.Position, error) {
	rows, err := s.db.Query(`SELECT symbol, exchange, product, net_qty, avg_price, last_price,
		buy_qty, sell_qty, buy_value, sell_value, realized_pnl, opened_at, updated_at FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var p model.Position
		var openedAt, updatedAt sql.NullString
		if err := rows.Scan(&p.Symbol, &p.Exchange, &p.Product, &p.NetQty, &p.AvgPrice, &p.LastPrice,
			&p.BuyQty, &p.SellQty, &p.BuyValue, &p.SellValue, &p.RealizedPnL, &openedAt, &updatedAt); err != nil {
			return nil, err
		}
		p.OpenedAt = parseTime(openedAt)
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) loadFunds() (*model.Funds, error) {
	row := s.db.QueryRow(`SELECT capital, available, reserved, invested, realized_pnl, daily_pnl, total_pnl, trades_today, updated_at
		FROM funds WHERE id = ?`, globalFundsID)
	var f model.Funds
	var updatedAt sql.NullString
	err := row.Scan(&f.Capital, &f.Available, &f.Reserved, &f.Invested, &f.RealizedPnL, &f.DailyPnL, &f.TotalPnL, &f.TradesToday, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
