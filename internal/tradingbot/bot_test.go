package tradingbot

import (
	"context"
	"testing"

	"tradingcore/internal/model"
	"tradingcore/internal/paperengine"
	"tradingcore/internal/strategy"
)

type fakeStore struct {
	orders    map[string]model.Order
	positions map[string]model.Position
	funds     model.Funds
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]model.Order), positions: make(map[string]model.Position)}
}

func (f *fakeStore) SaveOrder(o model.Order) error       { f.orders[o.OrderID] = o; return nil }
func (f *fakeStore) SavePosition(p model.Position) error { f.positions[p.Key()] = p; return nil }
func (f *fakeStore) DeletePosition(key string) error     { delete(f.positions, key); return nil }
func (f *fakeStore) SaveFunds(fu model.Funds) error      { f.funds = fu; return nil }
func (f *fakeStore) AppendTrade(t model.Trade) error     { return nil }
func (f *fakeStore) Close() error                        { return nil }
func (f *fakeStore) LoadAll() ([]model.Order, []model.Position, *model.Funds, error) {
	return nil, nil, &f.funds, nil
}

type fakeOracle struct{ price int64 }

func (o *fakeOracle) LTP(ctx context.Context, exchange, symbol string) (int64, error) {
	return o.price, nil
}

type stubStrategy struct {
	name   string
	signal *strategy.Signal
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) GenerateSignal(bars []model.Candle, currentPrice int64) *strategy.Signal {
	return s.signal
}
func (s *stubStrategy) ProcessTick(tick model.Tick) {}
func (s *stubStrategy) CalculateStopLoss(entry int64, side model.Side) int64 { return entry - 100 }
func (s *stubStrategy) CalculateTarget(entry int64, side model.Side) int64   { return entry + 100 }
func (s *stubStrategy) GetStatus() strategy.Status {
	return strategy.Status{Name: s.name, Symbol: "RELIANCE"}
}

func newTestBot(t *testing.T) (*Bot, *paperengine.Engine) {
	t.Helper()
	store := newFakeStore()
	paper := paperengine.New(store, &fakeOracle{price: 10000}, paperengine.Config{MaxTradesPerDay: 50, MaxPositions: 10}, 1000000)
	bot := New(paper, &fakeOracle{price: 10000}, Config{CapitalPerStrategy: 100000})
	return bot, paper
}

func TestBot_StartReservesCapitalAndTransitionsToRunning(t *testing.T) {
	bot, paper := newTestBot(t)
	entries := []Entry{{Strategy: &stubStrategy{name: "s1"}, Symbol: "RELIANCE", Exchange: "NSE"}}

	if err := bot.Start(context.Background(), entries); err != nil {
		t.Fatalf("unexpected error starting bot: %v", err)
	}
	defer bot.Stop(context.Background(), false)

	if bot.Status() != StatusRunning {
		t.Fatalf("expected RUNNING, got %s", bot.Status())
	}
	if got := paper.Funds().Reserved; got != 100000 {
		t.Fatalf("expected 100000 reserved, got %d", got)
	}
}

func TestBot_StartTwiceReturnsError(t *testing.T) {
	bot, _ := newTestBot(t)
	entries := []Entry{{Strategy: &stubStrategy{name: "s1"}, Symbol: "RELIANCE", Exchange: "NSE"}}
	if err := bot.Start(context.Background(), entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer bot.Stop(context.Background(), false)

	if err := bot.Start(context.Background(), entries); err == nil {
		t.Fatal("expected error starting an already-running bot")
	}
}

func TestBot_StopReclaimsReservedCapital(t *testing.T) {
	bot, paper := newTestBot(t)
	entries := []Entry{{Strategy: &stubStrategy{name: "s1"}, Symbol: "RELIANCE", Exchange: "NSE"}}
	if err := bot.Start(context.Background(), entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := bot.Stop(context.Background(), false); err != nil {
		t.Fatalf("unexpected error stopping: %v", err)
	}
	if bot.Status() != StatusStopped {
		t.Fatalf("expected STOPPED, got %s", bot.Status())
	}
	if got := paper.Funds().Reserved; got != 0 {
		t.Fatalf("expected reserved funds reclaimed to 0, got %d", got)
	}
	if got := paper.Funds().Available; got != 1000000 {
		t.Fatalf("expected full available capital back, got %d", got)
	}
}

func TestBot_PauseThenResume(t *testing.T) {
	bot, _ := newTestBot(t)
	entries := []Entry{{Strategy: &stubStrategy{name: "s1"}, Symbol: "RELIANCE", Exchange: "NSE"}}
	if err := bot.Start(context.Background(), entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer bot.Stop(context.Background(), false)

	if err := bot.Pause(); err != nil {
		t.Fatalf("unexpected error pausing: %v", err)
	}
	if bot.Status() != StatusPaused {
		t.Fatalf("expected PAUSED, got %s", bot.Status())
	}
	if err := bot.Resume(); err != nil {
		t.Fatalf("unexpected error resuming: %v", err)
	}
	if bot.Status() != StatusRunning {
		t.Fatalf("expected RUNNING after resume, got %s", bot.Status())
	}
}

func TestBot_HandleSignal_BuyPlacesEntryAndStopLossOrders(t *testing.T) {
	bot, paper := newTestBot(t)
	sig := strategy.Signal{
		Symbol: "RELIANCE", Exchange: "NSE", Kind: strategy.Buy,
		Qty: 10, StopLoss: 9800, StrategyName: "s1",
	}
	bot.exchanges["RELIANCE"] = "NSE"

	bot.handleSignal(context.Background(), sig)

	orders := paper.Orders()
	if len(orders) != 2 {
		t.Fatalf("expected entry + stop-loss order, got %d", len(orders))
	}
	if bot.slOrders["RELIANCE"] == "" {
		t.Fatal("expected a tracked stop-loss order id")
	}
}

func TestBot_HandleSignal_ExitCancelsStopLossAndClosesPosition(t *testing.T) {
	bot, paper := newTestBot(t)
	bot.exchanges["RELIANCE"] = "NSE"

	buySig := strategy.Signal{Symbol: "RELIANCE", Exchange: "NSE", Kind: strategy.Buy, Qty: 10, StopLoss: 9800, StrategyName: "s1"}
	bot.handleSignal(context.Background(), buySig)

	exitSig := strategy.Signal{
		Symbol: "RELIANCE", Exchange: "NSE", Kind: strategy.Exit, StrategyName: "s1",
		Metadata: map[string]any{"exit_side": string(model.Sell)},
	}
	bot.handleSignal(context.Background(), exitSig)

	if _, stillTracked := bot.slOrders["RELIANCE"]; stillTracked {
		t.Fatal("expected stop-loss order untracked after exit")
	}
	for _, p := range paper.Positions() {
		if p.Symbol == "RELIANCE" && p.NetQty != 0 {
			t.Fatalf("expected flat position after exit, got net qty %d", p.NetQty)
		}
	}
}

func TestBot_HandleSignal_HoldWithUpdateSLTrailsStopLoss(t *testing.T) {
	bot, paper := newTestBot(t)
	bot.exchanges["RELIANCE"] = "NSE"

	buySig := strategy.Signal{Symbol: "RELIANCE", Exchange: "NSE", Kind: strategy.Buy, Qty: 10, StopLoss: 9800, StrategyName: "s1"}
	bot.handleSignal(context.Background(), buySig)
	slOrderID := bot.slOrders["RELIANCE"]

	holdSig := strategy.Signal{
		Symbol: "RELIANCE", Exchange: "NSE", Kind: strategy.Hold, StopLoss: 9900, StrategyName: "s1",
		Metadata: map[string]any{"action": "update_sl"},
	}
	bot.handleSignal(context.Background(), holdSig)

	var found bool
	for _, o := range paper.Orders() {
		if o.OrderID == slOrderID {
			found = true
			if o.TriggerPrice != 9900 {
				t.Fatalf("expected trailed trigger price 9900, got %d", o.TriggerPrice)
			}
		}
	}
	if !found {
		t.Fatal("expected to find the stop-loss order after trailing")
	}
}
