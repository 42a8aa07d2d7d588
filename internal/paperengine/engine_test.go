package paperengine

import (
	"context"
	"testing"

	"tradingcore/internal/model"
)

type fakeStore struct {
	orders    map[string]model.Order
	positions map[string]model.Position
	funds     model.Funds
	trades    []model.Trade
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    make(map[string]model.Order),
		positions: make(map[string]model.Position),
	}
}

func (f *fakeStore) SaveOrder(o model.Order) error          { f.orders[o.OrderID] = o; return nil }
func (f *fakeStore) SavePosition(p model.Position) error    { f.positions[p.Key()] = p; return nil }
func (f *fakeStore) DeletePosition(key string) error        { delete(f.positions, key); return nil }
func (f *fakeStore) SaveFunds(fu model.Funds) error          { f.funds = fu; return nil }
func (f *fakeStore) AppendTrade(t model.Trade) error         { f.trades = append(f.trades, t); return nil }
func (f *fakeStore) Close() error                            { return nil }
func (f *fakeStore) LoadAll() ([]model.Order, []model.Position, *model.Funds, error) {
	var orders []model.Order
	for _, o := range f.orders {
		orders = append(orders, o)
	}
	var positions []model.Position
	for _, p := range f.positions {
		positions = append(positions, p)
	}
	return orders, positions, &f.funds, nil
}

type fakeOracle struct {
	price int64
}

func (o *fakeOracle) LTP(ctx context.Context, exchange, symbol string) (int64, error) {
	return o.price, nil
}

func testConfig() Config {
	return Config{MaxLossPerDay: 500000, MaxTradesPerDay: 20, MaxPositions: 5}
}

func TestPlaceOrder_MarketBuyFillsImmediatelyAndDeductsAvailable(t *testing.T) {
	store := newFakeStore()
	e := New(store, &fakeOracle{price: 10000}, testConfig(), 1000000)

	orderID, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Buy, Qty: 10, Type: model.Market, Product: "INTRADAY",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	funds := e.Funds()
	wantAvailable := int64(1000000 - 10*10000)
	if funds.Available != wantAvailable {
		t.Fatalf("expected available=%d, got %d", wantAvailable, funds.Available)
	}
	if funds.Invested != 10*10000 {
		t.Fatalf("expected invested=%d, got %d", 10*10000, funds.Invested)
	}

	positions := e.Positions()
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if positions[0].NetQty != 10 {
		t.Fatalf("expected net_qty=10, got %d", positions[0].NetQty)
	}
	if positions[0].AvgPrice != 10000 {
		t.Fatalf("expected avg_price=10000, got %d", positions[0].AvgPrice)
	}

	orders := e.Orders()
	if len(orders) != 1 || orders[0].OrderID != orderID {
		t.Fatalf("expected 1 persisted order matching %s", orderID)
	}
	if orders[0].Status != model.OrderComplete {
		t.Fatalf("expected order status COMPLETE, got %s", orders[0].Status)
	}
}

func TestPlaceOrder_BuyThenSellRoundTripRealizesPnL(t *testing.T) {
	store := newFakeStore()
	e := New(store, &fakeOracle{price: 10000}, testConfig(), 1000000)

	if _, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Buy, Qty: 10, Type: model.Market, Product: "INTRADAY",
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	e.ltpCache["NSE:RELIANCE"] = 10500
	if _, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Sell, Qty: 10, Type: model.Market, Product: "INTRADAY",
	}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	funds := e.Funds()
	wantRealized := int64((10500 - 10000) * 10)
	if funds.RealizedPnL != wantRealized {
		t.Fatalf("expected realized_pnl=%d, got %d", wantRealized, funds.RealizedPnL)
	}
	if funds.Invested != 0 {
		t.Fatalf("expected invested back to 0, got %d", funds.Invested)
	}

	positions := e.Positions()
	if len(positions) != 0 {
		t.Fatalf("expected position destroyed on net_qty=0, got %d remaining", len(positions))
	}
}

func TestPlaceOrder_PartialSellsThenFullCloseZeroesInvested(t *testing.T) {
	store := newFakeStore()
	e := New(store, &fakeOracle{price: 100}, testConfig(), 1000000)

	if _, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Buy, Qty: 10, Type: model.Market, Product: "INTRADAY",
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	e.ltpCache["NSE:RELIANCE"] = 120
	if _, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Sell, Qty: 4, Type: model.Market, Product: "INTRADAY",
	}); err != nil {
		t.Fatalf("first partial sell failed: %v", err)
	}

	e.ltpCache["NSE:RELIANCE"] = 90
	if _, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Sell, Qty: 6, Type: model.Market, Product: "INTRADAY",
	}); err != nil {
		t.Fatalf("second partial sell failed: %v", err)
	}

	funds := e.Funds()
	if funds.Invested != 0 {
		t.Fatalf("expected invested back to 0 once position is flat, got %d", funds.Invested)
	}

	positions := e.Positions()
	if len(positions) != 0 {
		t.Fatalf("expected position destroyed on net_qty=0, got %d remaining", len(positions))
	}
}

func TestPlaceOrder_BotTaggedBuyDrawsFromReservedFirst(t *testing.T) {
	store := newFakeStore()
	e := New(store, &fakeOracle{price: 10000}, testConfig(), 1000000)

	if err := e.Allocate(200000); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	if _, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Buy, Qty: 10, Type: model.Market, Product: "INTRADAY",
		Tag: "BOT_RELIANCE",
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	funds := e.Funds()
	if funds.Reserved != 100000 {
		t.Fatalf("expected reserved drawn down to 100000, got %d", funds.Reserved)
	}
	if funds.Available != 800000 {
		t.Fatalf("expected available untouched at 800000, got %d", funds.Available)
	}
}

func TestPlaceOrder_RejectsWhenLiveModeConfigured(t *testing.T) {
	store := newFakeStore()
	cfg := testConfig()
	cfg.LiveMode = true
	e := New(store, &fakeOracle{price: 10000}, cfg, 1000000)

	_, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Buy, Qty: 10, Type: model.Market, Product: "INTRADAY",
	})
	if err == nil {
		t.Fatalf("expected safety guard rejection in live mode")
	}
}

func TestPlaceOrder_RejectsInsufficientFunds(t *testing.T) {
	store := newFakeStore()
	e := New(store, &fakeOracle{price: 10000}, testConfig(), 1000)

	_, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Buy, Qty: 10, Type: model.Market, Product: "INTRADAY",
	})
	if err == nil {
		t.Fatalf("expected insufficient funds rejection")
	}
}

func TestCancelOrder_MovesPendingToCancelled(t *testing.T) {
	store := newFakeStore()
	e := New(store, &fakeOracle{price: 10000}, testConfig(), 1000000)

	orderID, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Buy, Qty: 10, Type: model.Limit, Price: 9900, Product: "INTRADAY",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.CancelOrder(orderID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	orders := e.Orders()
	if orders[0].Status != model.OrderCancelled {
		t.Fatalf("expected status CANCELLED, got %s", orders[0].Status)
	}
	if orders[0].CancelledQty != 10 || orders[0].PendingQty != 0 {
		t.Fatalf("expected cancelled_qty=10 pending_qty=0, got cancelled=%d pending=%d",
			orders[0].CancelledQty, orders[0].PendingQty)
	}
}

func TestUpdateLTP_RecomputesUnrealizedPnLForMatchingPositions(t *testing.T) {
	store := newFakeStore()
	e := New(store, &fakeOracle{price: 10000}, testConfig(), 1000000)

	if _, err := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "RELIANCE", Exchange: "NSE", Side: model.Buy, Qty: 10, Type: model.Market, Product: "INTRADAY",
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	if err := e.UpdateLTP("RELIANCE", "NSE", 10200); err != nil {
		t.Fatalf("update ltp failed: %v", err)
	}

	positions := e.Positions()
	if positions[0].LastPrice != 10200 {
		t.Fatalf("expected last_price=10200, got %d", positions[0].LastPrice)
	}
	wantUnrealized := int64((10200 - 10000) * 10)
	if positions[0].UnrealizedPnL() != wantUnrealized {
		t.Fatalf("expected unrealized_pnl=%d, got %d", wantUnrealized, positions[0].UnrealizedPnL())
	}
}
