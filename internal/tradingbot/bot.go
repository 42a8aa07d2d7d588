// Package tradingbot implements the bot lifecycle that turns registered
// strategies into live paper orders: a monitoring loop that refreshes
// prices, checks market hours, triggers auto square-off, and evaluates
// strategies on their rolling bar windows.
package tradingbot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tradingcore/internal/markethours"
	"tradingcore/internal/model"
	"tradingcore/internal/notification"
	"tradingcore/internal/paperengine"
	"tradingcore/internal/strategy"
)

// Status is the bot's lifecycle state.
type Status string

const (
	StatusStopped  Status = "STOPPED"
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusPaused   Status = "PAUSED"
	StatusStopping Status = "STOPPING"
	StatusError    Status = "ERROR"
)

// PriceOracle fetches a last-traded price for mark-to-market and entry
// sizing. Satisfied by the same oracle the Paper Engine uses.
type PriceOracle interface {
	LTP(ctx context.Context, exchange, symbol string) (int64, error)
}

// Entry binds one strategy instance to the symbol/exchange it trades.
// Kept separate from Strategy.GetStatus() because exchange routing is the
// bot's concern, not the strategy's.
type Entry struct {
	Strategy strategy.Strategy
	Symbol   string
	Exchange string
}

// Config holds the monitoring loop's cadence and risk posture.
type Config struct {
	CheckInterval      time.Duration // default 60s, matches the upstream bot loop
	BarWindow          int           // periodic bars retained per symbol, default 200
	TimeframeSeconds   int           // TF candles this bot evaluates on, default 60
	SquareOffHour      int           // 0,0 disables auto square-off
	SquareOffMinute    int
	CapitalPerStrategy int64 // paise, reserved per registered strategy on Start
}

func (c Config) withDefaults() Config {
	if c.CheckInterval == 0 {
		c.CheckInterval = 60 * time.Second
	}
	if c.BarWindow == 0 {
		c.BarWindow = 200
	}
	if c.TimeframeSeconds == 0 {
		c.TimeframeSeconds = 60
	}
	return c
}

// symbolWindow is a bounded, mutex-guarded ring of the most recent bars
// for one symbol.
type symbolWindow struct {
	mu    sync.Mutex
	bars  []model.Candle
	limit int
}

func (w *symbolWindow) push(c model.Candle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bars = append(w.bars, c)
	if len(w.bars) > w.limit {
		w.bars = w.bars[len(w.bars)-w.limit:]
	}
}

func (w *symbolWindow) snapshot() []model.Candle {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Candle, len(w.bars))
	copy(out, w.bars)
	return out
}

// Stats is the bot's introspection payload.
type Stats struct {
	Status           Status `json:"status"`
	SignalsGenerated int    `json:"signals_generated"`
	OrdersPlaced     int    `json:"orders_placed"`
}

// Bot runs the monitoring loop described by the upstream bot's five
// numbered steps: refresh LTPs (always, even when the market is closed),
// check market hours, check auto square-off, evaluate strategies and
// place orders, update today's counters.
type Bot struct {
	mu     sync.Mutex
	status Status
	cfg    Config

	paper    *paperengine.Engine
	prices   PriceOracle
	notifier notification.Notifier

	engine    *strategy.Engine
	exchanges map[string]string // symbol -> exchange
	windows   map[string]*symbolWindow
	slOrders  map[string]string // symbol -> resting stop-loss order id

	signalsGenerated int
	ordersPlaced     int

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	listeners []func(Status)
}

// New creates a Bot bound to a Paper Engine and a price source.
func New(paper *paperengine.Engine, prices PriceOracle, cfg Config) *Bot {
	return &Bot{
		status:    StatusStopped,
		cfg:       cfg.withDefaults(),
		paper:     paper,
		prices:    prices,
		notifier:  notification.NewLogNotifier(),
		exchanges: make(map[string]string),
		windows:   make(map[string]*symbolWindow),
		slOrders:  make(map[string]string),
	}
}

// SetNotifier swaps the alert backend (Telegram, webhook, etc.); defaults to
// logging alerts if never called.
func (b *Bot) SetNotifier(n notification.Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifier = n
}

func (b *Bot) notify(level notification.AlertLevel, title, message string) {
	b.mu.Lock()
	n := b.notifier
	b.mu.Unlock()
	if n == nil {
		return
	}
	if err := n.Send(context.Background(), notification.Alert{Level: level, Title: title, Message: message}); err != nil {
		log.Printf("[tradingbot] notify failed: %v", err)
	}
}

// Status returns the current lifecycle state.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Stats returns today's counters.
func (b *Bot) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Status: b.status, SignalsGenerated: b.signalsGenerated, OrdersPlaced: b.ordersPlaced}
}

// OnStatusChange registers a callback invoked whenever the bot transitions
// state, used by the API layer to push status updates to clients.
func (b *Bot) OnStatusChange(f func(Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, f)
}

func (b *Bot) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	listeners := append([]func(Status){}, b.listeners...)
	b.mu.Unlock()
	for _, l := range listeners {
		l(s)
	}
}

// Start reserves capital for each entry's strategy, registers it with a
// fresh strategy engine, and launches the monitoring loop.
func (b *Bot) Start(ctx context.Context, entries []Entry) error {
	b.mu.Lock()
	if b.status == StatusRunning || b.status == StatusStarting {
		status := b.status
		b.mu.Unlock()
		return fmt.Errorf("tradingbot: already %s", status)
	}
	b.status = StatusStarting
	b.mu.Unlock()

	total := b.cfg.CapitalPerStrategy * int64(len(entries))
	if total > 0 {
		if err := b.paper.Allocate(total); err != nil {
			b.setStatus(StatusError)
			return fmt.Errorf("tradingbot: allocate capital: %w", err)
		}
	}

	eng := strategy.NewEngine(256)
	exchanges := make(map[string]string, len(entries))
	windows := make(map[string]*symbolWindow, len(entries))
	for _, e := range entries {
		eng.Register(e.Strategy)
		exchanges[e.Symbol] = e.Exchange
		windows[e.Symbol] = &symbolWindow{limit: b.cfg.BarWindow}
	}

	b.mu.Lock()
	b.engine = eng
	b.exchanges = exchanges
	b.windows = windows
	b.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.wg.Add(1)
	go b.loop(runCtx)

	b.setStatus(StatusRunning)
	log.Printf("[tradingbot] started with %d strategies, capital reserved=%d", len(entries), total)
	b.notify(notification.AlertInfo, "Bot started", fmt.Sprintf("%d strategies, capital reserved=%d", len(entries), total))
	return nil
}

// Stop halts the monitoring loop, optionally squaring off every open
// position, and releases reserved capital back to available funds.
func (b *Bot) Stop(ctx context.Context, squareOff bool) error {
	b.mu.Lock()
	if b.status == StatusStopped {
		b.mu.Unlock()
		return fmt.Errorf("tradingbot: already stopped")
	}
	b.status = StatusStopping
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	if squareOff {
		b.squareOffAll(ctx)
	}
	if err := b.paper.Reclaim(); err != nil {
		log.Printf("[tradingbot] reclaim on stop failed: %v", err)
	}

	b.mu.Lock()
	b.engine = nil
	b.exchanges = make(map[string]string)
	b.windows = make(map[string]*symbolWindow)
	b.slOrders = make(map[string]string)
	b.mu.Unlock()

	b.setStatus(StatusStopped)
	b.notify(notification.AlertInfo, "Bot stopped", fmt.Sprintf("square_off=%v", squareOff))
	return nil
}

// Pause suspends strategy evaluation; the monitoring loop keeps refreshing
// LTPs and checking market hours so a resume picks up seamlessly.
func (b *Bot) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != StatusRunning {
		return fmt.Errorf("tradingbot: can only pause while running, currently %s", b.status)
	}
	b.status = StatusPaused
	return nil
}

// Resume returns a paused bot to RUNNING.
func (b *Bot) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != StatusPaused {
		return fmt.Errorf("tradingbot: can only resume while paused, currently %s", b.status)
	}
	b.status = StatusRunning
	return nil
}

// ResetState clears today's counters without stopping the bot, for use at
// the start of a new trading session.
func (b *Bot) ResetState() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signalsGenerated = 0
	b.ordersPlaced = 0
}

// PushCandle feeds one timeframe candle from the shared market data
// pipeline (see cmd/mdengine's tfbuilder/bus chain, or a Redis consumer
// reading what it published) into the matching symbol's rolling bar
// window. Forming (not-yet-closed) candles and candles on a timeframe
// this bot doesn't evaluate on are ignored.
func (b *Bot) PushCandle(c model.TFCandle) {
	if c.Forming || c.TF != b.cfg.TimeframeSeconds {
		return
	}
	b.PushBar(c.Token, model.Candle{
		Token: c.Token, Exchange: c.Exchange, TS: c.TS,
		Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
	})
}

// PushBar appends an already-closed, already-filtered bar straight to the
// symbol's rolling window. Used by callers that buffer candles themselves
// (e.g. a ringbuf.Ring decoupling a Redis consumer from bot processing)
// and have already done PushCandle's Forming/TF filtering upstream.
func (b *Bot) PushBar(token string, bar model.Candle) {
	b.mu.Lock()
	w, tracked := b.windows[token]
	b.mu.Unlock()
	if !tracked {
		return
	}
	w.push(bar)
}

// ConsumeCandles runs PushCandle over every candle received on tfCh until
// ctx is cancelled or the channel closes. Run it in its own goroutine.
func (b *Bot) ConsumeCandles(ctx context.Context, tfCh <-chan model.TFCandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-tfCh:
			if !ok {
				return
			}
			b.PushCandle(c)
		}
	}
}

func (b *Bot) loop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick is one iteration of the monitoring loop.
func (b *Bot) tick(ctx context.Context) {
	now := time.Now().In(markethours.IST)

	b.refreshLTPs(ctx) // always, even when the market is closed

	if !markethours.ShouldStreamData(now) {
		return
	}
	if b.pastSquareOffTime(now) {
		b.squareOffAll(ctx)
		return
	}

	b.mu.Lock()
	status, eng := b.status, b.engine
	b.mu.Unlock()
	if status != StatusRunning || eng == nil {
		return
	}

	bars := make(map[string][]model.Candle)
	prices := make(map[string]int64)
	for symbol, exchange := range b.exchangesSnapshot() {
		if w, ok := b.windowSnapshot(symbol); ok {
			bars[symbol] = w
		}
		if p, err := b.prices.LTP(ctx, exchange, symbol); err == nil {
			prices[symbol] = p
		}
	}

	eng.EvaluateAll(bars, prices)
	b.drainSignals(ctx, eng)
}

func (b *Bot) exchangesSnapshot() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.exchanges))
	for k, v := range b.exchanges {
		out[k] = v
	}
	return out
}

func (b *Bot) windowSnapshot(symbol string) ([]model.Candle, bool) {
	b.mu.Lock()
	w, ok := b.windows[symbol]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	return w.snapshot(), true
}

func (b *Bot) refreshLTPs(ctx context.Context) {
	for symbol, exchange := range b.exchangesSnapshot() {
		price, err := b.prices.LTP(ctx, exchange, symbol)
		if err != nil {
			continue
		}
		if err := b.paper.UpdateLTP(symbol, exchange, price); err != nil {
			log.Printf("[tradingbot] update ltp failed for %s: %v", symbol, err)
		}
	}
}

func (b *Bot) pastSquareOffTime(now time.Time) bool {
	if b.cfg.SquareOffHour == 0 && b.cfg.SquareOffMinute == 0 {
		return false
	}
	return now.Hour() > b.cfg.SquareOffHour ||
		(now.Hour() == b.cfg.SquareOffHour && now.Minute() >= b.cfg.SquareOffMinute)
}

func (b *Bot) drainSignals(ctx context.Context, eng *strategy.Engine) {
	for {
		select {
		case sig := <-eng.Signals():
			b.handleSignal(ctx, sig)
		default:
			return
		}
	}
}

// handleSignal maps a strategy signal onto Paper Engine orders: BUY/SELL
// opens a market order (plus a resting stop-loss order) tagged
// BOT_<symbol>; EXIT closes the position and cancels the resting
// stop-loss; HOLD with metadata action "update_sl" trails it.
func (b *Bot) handleSignal(ctx context.Context, sig strategy.Signal) {
	b.mu.Lock()
	b.signalsGenerated++
	exchange := b.exchanges[sig.Symbol]
	b.mu.Unlock()

	tag := "BOT_" + sig.Symbol

	switch sig.Kind {
	case strategy.Buy, strategy.Sell:
		b.openPosition(ctx, sig, exchange, tag)
	case strategy.Exit:
		b.closePosition(ctx, sig, exchange, tag)
	case strategy.Hold:
		b.trailStopLoss(sig)
	}
}

func (b *Bot) openPosition(ctx context.Context, sig strategy.Signal, exchange, tag string) {
	side := model.Buy
	if sig.Kind == strategy.Sell {
		side = model.Sell
	}

	orderID, err := b.paper.PlaceOrder(ctx, paperengine.PlaceOrderRequest{
		Symbol: sig.Symbol, Exchange: exchange, Side: side, Qty: sig.Qty,
		Type: model.Market, Product: "INTRADAY", Tag: tag,
	})
	if err != nil {
		log.Printf("[tradingbot] entry order failed for %s: %v", sig.Symbol, err)
		b.notify(notification.AlertWarning, "Entry order failed", fmt.Sprintf("%s %s: %v", sig.Kind, sig.Symbol, err))
		return
	}
	b.mu.Lock()
	b.ordersPlaced++
	b.mu.Unlock()
	log.Printf("[tradingbot] %s %s qty=%d order_id=%s reason=%s", sig.Kind, sig.Symbol, sig.Qty, orderID, sig.Reason)
	b.notify(notification.AlertInfo, fmt.Sprintf("%s %s", sig.Kind, sig.Symbol), fmt.Sprintf("qty=%d order_id=%s reason=%s", sig.Qty, orderID, sig.Reason))

	if sig.StopLoss <= 0 {
		return
	}
	slSide := model.Sell
	if side == model.Sell {
		slSide = model.Buy
	}
	slOrderID, err := b.paper.PlaceOrder(ctx, paperengine.PlaceOrderRequest{
		Symbol: sig.Symbol, Exchange: exchange, Side: slSide, Qty: sig.Qty,
		Type: model.SL, Product: "INTRADAY", Price: sig.StopLoss, TriggerPrice: sig.StopLoss, Tag: tag,
	})
	if err != nil {
		log.Printf("[tradingbot] stop-loss order failed for %s: %v", sig.Symbol, err)
		return
	}
	b.mu.Lock()
	b.slOrders[sig.Symbol] = slOrderID
	b.mu.Unlock()
}

func (b *Bot) closePosition(ctx context.Context, sig strategy.Signal, exchange, tag string) {
	b.mu.Lock()
	slOrderID, hasSL := b.slOrders[sig.Symbol]
	delete(b.slOrders, sig.Symbol)
	b.mu.Unlock()
	if hasSL {
		if err := b.paper.CancelOrder(slOrderID); err != nil {
			log.Printf("[tradingbot] cancel stop-loss on exit failed for %s: %v", sig.Symbol, err)
		}
	}

	exitSide, _ := sig.Metadata["exit_side"].(string)
	if exitSide == "" {
		return
	}
	qty := b.netPositionQty(sig.Symbol, exchange)
	if qty <= 0 {
		return
	}

	orderID, err := b.paper.PlaceOrder(ctx, paperengine.PlaceOrderRequest{
		Symbol: sig.Symbol, Exchange: exchange, Side: model.Side(exitSide), Qty: qty,
		Type: model.Market, Product: "INTRADAY", Tag: tag,
	})
	if err != nil {
		log.Printf("[tradingbot] exit order failed for %s: %v", sig.Symbol, err)
		return
	}
	b.mu.Lock()
	b.ordersPlaced++
	b.mu.Unlock()
	log.Printf("[tradingbot] EXIT %s qty=%d order_id=%s reason=%s", sig.Symbol, qty, orderID, sig.Reason)
}

func (b *Bot) trailStopLoss(sig strategy.Signal) {
	action, _ := sig.Metadata["action"].(string)
	if action != "update_sl" || sig.StopLoss <= 0 {
		return
	}
	b.mu.Lock()
	orderID, ok := b.slOrders[sig.Symbol]
	b.mu.Unlock()
	if !ok {
		return
	}
	newTrigger := sig.StopLoss
	if err := b.paper.ModifyOrder(orderID, nil, &newTrigger, &newTrigger); err != nil {
		log.Printf("[tradingbot] trailing stop modify failed for %s: %v", sig.Symbol, err)
	}
}

func (b *Bot) netPositionQty(symbol, exchange string) int64 {
	for _, p := range b.paper.Positions() {
		if p.Symbol == symbol && p.Exchange == exchange {
			if p.NetQty < 0 {
				return -p.NetQty
			}
			return p.NetQty
		}
	}
	return 0
}

func (b *Bot) squareOffAll(ctx context.Context) {
	positions := b.paper.Positions()
	for _, p := range positions {
		if p.NetQty == 0 {
			continue
		}
		side, qty := model.Sell, p.NetQty
		if p.NetQty < 0 {
			side, qty = model.Buy, -p.NetQty
		}
		if _, err := b.paper.PlaceOrder(ctx, paperengine.PlaceOrderRequest{
			Symbol: p.Symbol, Exchange: p.Exchange, Side: side, Qty: qty,
			Type: model.Market, Product: p.Product, Tag: "BOT_" + p.Symbol + "_SQUAREOFF",
		}); err != nil {
			log.Printf("[tradingbot] square-off failed for %s: %v", p.Symbol, err)
		}
	}

	b.mu.Lock()
	for symbol, orderID := range b.slOrders {
		if err := b.paper.CancelOrder(orderID); err != nil {
			log.Printf("[tradingbot] cancel resting stop-loss on square-off failed for %s: %v", symbol, err)
		}
	}
	b.slOrders = make(map[string]string)
	b.mu.Unlock()

	log.Printf("[tradingbot] square-off complete, %d positions checked", len(positions))
}
