// Package paperengine implements the simulation-only order, position, and
// funds accounting core: a single-writer engine serialized under one mutex,
// persisting every mutation to a Store before it is considered committed.
package paperengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradingcore/internal/engineerr"
	"tradingcore/internal/model"
)

// PriceOracle fetches a last-traded price when the LTP cache has nothing for
// a symbol — the synchronous fallback path of the fill procedure.
type PriceOracle interface {
	LTP(ctx context.Context, exchange, symbol string) (int64, error)
}

// Config holds the risk gates and operating mode the engine enforces on
// every order placement.
type Config struct {
	LiveMode        bool  // if true, this engine must refuse all orders — live orders route elsewhere
	MaxLossPerDay   int64 // paise
	MaxTradesPerDay int
	MaxPositions    int
	FallbackPrice   int64 // paise, last resort when market data is unreachable
}

// Engine is the Paper Engine: orders, positions, and funds, all mutated
// under mu and persisted through store before a call returns success.
type Engine struct {
	mu     sync.Mutex
	store  Store
	oracle PriceOracle
	cfg    Config

	orders    map[string]*model.Order   // by order_id
	positions map[string]*model.Position // by composite key
	funds     model.Funds
	ltpCache  map[string]int64 // "exchange:symbol" -> paise

	orderSeq int64
}

// PlaceOrderRequest is the input to PlaceOrder.
type PlaceOrderRequest struct {
	Symbol       string
	Exchange     string
	Side         model.Side
	Qty          int64
	Type         model.OrderType
	Product      string
	Price        int64 // limit price, 0 for MARKET
	TriggerPrice int64
	Tag          string
}

// New creates an Engine seeded with startingCapital as available funds.
func New(store Store, oracle PriceOracle, cfg Config, startingCapital int64) *Engine {
	return &Engine{
		store:  store,
		oracle: oracle,
		cfg:    cfg,

		orders:    make(map[string]*model.Order),
		positions: make(map[string]*model.Position),
		ltpCache:  make(map[string]int64),

		funds: model.Funds{
			Capital:   startingCapital,
			Available: startingCapital,
			UpdatedAt: time.Now(),
		},
	}
}

// Restore reconstructs engine state from the store: funds, then orders,
// then positions, matching the spec's restart-reconstruction ordering.
func (e *Engine) Restore() error {
	orders, positions, funds, err := e.store.LoadAll()
	if err != nil {
		return engineerr.NewPersistenceError("restore", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if funds != nil {
		e.funds = *funds
	}
	for i := range orders {
		o := orders[i]
		e.orders[o.OrderID] = &o
		var seq int64
		if _, scanErr := fmt.Sscanf(o.OrderID, "PAPER-%d", &seq); scanErr == nil && seq > e.orderSeq {
			e.orderSeq = seq
		}
	}
	for i := range positions {
		p := positions[i]
		e.positions[p.Key()] = &p
	}
	return nil
}

func ltpKey(exchange, symbol string) string { return exchange + ":" + symbol }

func isBot(tag string) bool { return strings.HasPrefix(tag, "BOT_") }

// Allocate moves amount from available to reserved. Fails if amount exceeds
// available — used when a strategy is granted its per-symbol capital.
func (e *Engine) Allocate(amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount > e.funds.Available {
		return engineerr.NewValidationError(engineerr.InsufficientFunds, "allocate exceeds available funds")
	}
	e.funds.Available -= amount
	e.funds.Reserved += amount
	e.funds.UpdatedAt = time.Now()
	return e.persistFunds()
}

// Reclaim moves all reserved funds back to available — called on bot stop.
func (e *Engine) Reclaim() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.funds.Available += e.funds.Reserved
	e.funds.Reserved = 0
	e.funds.UpdatedAt = time.Now()
	return e.persistFunds()
}

// PlaceOrder validates and accepts a new order, running the fill procedure
// immediately for MARKET orders.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (string, error) {
	if req.Qty <= 0 {
		return "", engineerr.NewValidationError(engineerr.BadQty, "qty must be positive")
	}
	if req.Type == model.Limit && req.Price <= 0 {
		return "", engineerr.NewValidationError(engineerr.BadPrice, "limit order requires a positive price")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.LiveMode {
		return "", engineerr.NewSafetyGuardError("paper engine refuses orders while the process is configured for live trading")
	}

	if e.cfg.MaxLossPerDay > 0 && -e.funds.DailyPnL >= e.cfg.MaxLossPerDay {
		return "", engineerr.NewRiskLimitError("max_loss_per_day", "daily loss limit reached")
	}
	if e.cfg.MaxTradesPerDay > 0 && e.funds.TradesToday >= int64(e.cfg.MaxTradesPerDay) {
		return "", engineerr.NewRiskLimitError("max_trades_per_day", "daily trade count limit reached")
	}
	if e.cfg.MaxPositions > 0 && len(e.positions) >= e.cfg.MaxPositions {
		if _, exists := e.positions[positionKey(req.Symbol, req.Exchange, req.Product)]; !exists {
			return "", engineerr.NewRiskLimitError("max_positions", "max open positions reached")
		}
	}

	if req.Side == model.Buy {
		priceHint := req.Price
		if priceHint == 0 {
			priceHint = e.resolvePrice(ctx, req.Exchange, req.Symbol)
		}
		estCost := req.Qty * priceHint
		limit := e.funds.Available
		if isBot(req.Tag) {
			limit += e.funds.Reserved
		}
		if estCost > limit {
			return "", engineerr.NewValidationError(engineerr.InsufficientFunds, "estimated cost exceeds available funds")
		}
	}

	e.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", e.orderSeq)
	now := time.Now()

	order := &model.Order{
		OrderID:      orderID,
		Symbol:       req.Symbol,
		Exchange:     req.Exchange,
		Side:         req.Side,
		Qty:          req.Qty,
		Type:         req.Type,
		Product:      req.Product,
		Status:       model.OrderPending,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		PendingQty:   req.Qty,
		Tag:          req.Tag,
		PlacedAt:     now,
		UpdatedAt:    now,
	}
	e.orders[orderID] = order
	if err := e.store.SaveOrder(*order); err != nil {
		delete(e.orders, orderID)
		return "", engineerr.NewPersistenceError("save_order", err)
	}

	if req.Type == model.Market {
		if err := e.fill(ctx, order); err != nil {
			return orderID, err
		}
	} else {
		order.Status = model.OrderOpen
		order.UpdatedAt = time.Now()
		if err := e.store.SaveOrder(*order); err != nil {
			return orderID, engineerr.NewPersistenceError("save_order", err)
		}
	}

	return orderID, nil
}

// resolvePrice returns the cached LTP, falling back to the oracle, then to
// the configured fallback price as a last resort.
func (e *Engine) resolvePrice(ctx context.Context, exchange, symbol string) int64 {
	if p, ok := e.ltpCache[ltpKey(exchange, symbol)]; ok && p > 0 {
		return p
	}
	if e.oracle != nil {
		if p, err := e.oracle.LTP(ctx, exchange, symbol); err == nil && p > 0 {
			e.ltpCache[ltpKey(exchange, symbol)] = p
			return p
		}
	}
	return e.cfg.FallbackPrice
}

// fill runs the fill procedure for a MARKET order and applies position/fund
// math. Caller must hold e.mu.
func (e *Engine) fill(ctx context.Context, order *model.Order) error {
	fillPrice := order.Price
	if order.Type == model.Market {
		fillPrice = e.resolvePrice(ctx, order.Exchange, order.Symbol)
	}

	order.Status = model.OrderComplete
	order.FilledQty = order.Qty
	order.PendingQty = 0
	order.AvgPrice = fillPrice
	order.ExchangeTS = time.Now()
	order.UpdatedAt = order.ExchangeTS

	pos := e.applyFill(order, fillPrice)

	e.funds.TradesToday++
	e.funds.TotalPnL = e.funds.RealizedPnL
	e.funds.UpdatedAt = time.Now()

	trade := model.Trade{
		TS:       order.ExchangeTS,
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		Exchange: order.Exchange,
		Side:     order.Side,
		Qty:      order.Qty,
		Price:    fillPrice,
		Tag:      order.Tag,
	}

	if err := e.store.SaveOrder(*order); err != nil {
		return engineerr.NewPersistenceError("save_order", err)
	}
	if pos != nil {
		if pos.IsFlat() {
			if err := e.store.DeletePosition(pos.Key()); err != nil {
				return engineerr.NewPersistenceError("delete_position", err)
			}
			delete(e.positions, pos.Key())
		} else {
			if err := e.store.SavePosition(*pos); err != nil {
				return engineerr.NewPersistenceError("save_position", err)
			}
		}
	}
	if err := e.persistFunds(); err != nil {
		return err
	}
	if err := e.store.AppendTrade(trade); err != nil {
		return engineerr.NewPersistenceError("append_trade", err)
	}
	return nil
}

// applyFill performs the position & fund math from the spec's BUY/SELL
// procedure and returns the (possibly now-flat) position.
func (e *Engine) applyFill(order *model.Order, fillPrice int64) *model.Position {
	key := positionKey(order.Symbol, order.Exchange, order.Product)
	pos, ok := e.positions[key]
	if !ok {
		pos = &model.Position{
			Symbol:   order.Symbol,
			Exchange: order.Exchange,
			Product:  order.Product,
			OpenedAt: time.Now(),
		}
		e.positions[key] = pos
	}

	t := order.Qty * fillPrice
	bot := isBot(order.Tag)

	if order.Side == model.Buy {
		if bot && e.funds.Reserved > 0 {
			fromReserved := min64(e.funds.Reserved, t)
			e.funds.Reserved -= fromReserved
			e.funds.Available -= t - fromReserved
		} else {
			e.funds.Available -= t
		}
		e.funds.Invested += t
		pos.BuyQty += order.Qty
		pos.BuyValue += t
		pos.NetQty += order.Qty
	} else {
		pos.SellQty += order.Qty
		pos.SellValue += t
		pos.NetQty -= order.Qty

		var avgCost int64
		if pos.BuyQty > 0 {
			avgCost = pos.BuyValue / pos.BuyQty
		}
		costOfSold := order.Qty * avgCost
		if pos.NetQty == 0 {
			// fully closing: settle against whatever cost basis remains,
			// not against prior sell proceeds (those already carried their
			// own realized P&L out of Invested).
			costOfSold = pos.BuyValue - (pos.SellQty-order.Qty)*avgCost
			if costOfSold < 0 {
				costOfSold = 0
			}
		}
		deltaRealized := t - costOfSold
		e.funds.Invested -= costOfSold

		if bot {
			e.funds.Reserved += t
		} else {
			e.funds.Available += t
		}

		e.funds.RealizedPnL += deltaRealized
		e.funds.DailyPnL += deltaRealized
		e.funds.TotalPnL += deltaRealized
		pos.RealizedPnL += deltaRealized
	}

	pos.UpdatedAt = time.Now()

	if pos.NetQty == 0 {
		return pos
	}

	denom := pos.NetQty
	if denom < 0 {
		denom = -denom
	}
	pos.AvgPrice = absInt64(pos.BuyValue-pos.SellValue) / denom
	return pos
}

// UpdateLTP records a new last-traded price and recomputes unrealized P&L
// for every position matching (symbol, exchange, *). Persists affected
// positions and a funds snapshot.
func (e *Engine) UpdateLTP(symbol, exchange string, price int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ltpCache[ltpKey(exchange, symbol)] = price

	for _, pos := range e.positions {
		if pos.Symbol != symbol || pos.Exchange != exchange {
			continue
		}
		pos.LastPrice = price
		pos.UpdatedAt = time.Now()
		if err := e.store.SavePosition(*pos); err != nil {
			return engineerr.NewPersistenceError("save_position", err)
		}
	}
	return e.persistFunds()
}

// ModifyOrder changes qty/price/trigger_price on an order still in
// PENDING or OPEN state.
func (e *Engine) ModifyOrder(orderID string, qty, price, triggerPrice *int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return engineerr.NewValidationError(engineerr.UnknownSymbol, "unknown order id")
	}
	if order.Status != model.OrderPending && order.Status != model.OrderOpen {
		return engineerr.NewValidationError(engineerr.BadQty, "order is no longer modifiable")
	}
	if qty != nil {
		if *qty <= 0 {
			return engineerr.NewValidationError(engineerr.BadQty, "qty must be positive")
		}
		order.Qty = *qty
		order.PendingQty = *qty - order.FilledQty - order.CancelledQty
	}
	if price != nil {
		order.Price = *price
	}
	if triggerPrice != nil {
		order.TriggerPrice = *triggerPrice
	}
	order.UpdatedAt = time.Now()
	if err := e.store.SaveOrder(*order); err != nil {
		return engineerr.NewPersistenceError("save_order", err)
	}
	return nil
}

// CancelOrder moves remaining pending_qty to cancelled_qty and marks the
// order CANCELLED. Only permitted while PENDING or OPEN.
func (e *Engine) CancelOrder(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return engineerr.NewValidationError(engineerr.UnknownSymbol, "unknown order id")
	}
	if order.Status != model.OrderPending && order.Status != model.OrderOpen {
		return engineerr.NewValidationError(engineerr.BadQty, "order is not cancellable")
	}
	order.CancelledQty += order.PendingQty
	order.PendingQty = 0
	order.Status = model.OrderCancelled
	order.UpdatedAt = time.Now()
	if err := e.store.SaveOrder(*order); err != nil {
		return engineerr.NewPersistenceError("save_order", err)
	}
	return nil
}

// Positions returns a snapshot copy of all open positions.
func (e *Engine) Positions() []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// Orders returns a snapshot copy of all orders.
func (e *Engine) Orders() []model.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out
}

// Funds returns a snapshot copy of the funds record.
func (e *Engine) Funds() model.Funds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.funds
}

// persistFunds writes the current funds snapshot. Caller must hold e.mu.
func (e *Engine) persistFunds() error {
	if err := e.store.SaveFunds(e.funds); err != nil {
		return engineerr.NewPersistenceError("save_funds", err)
	}
	return nil
}

func positionKey(symbol, exchange, product string) string {
	return symbol + ":" + exchange + ":" + product
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
