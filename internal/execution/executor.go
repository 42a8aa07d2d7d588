package execution

import (
	"context"
	"fmt"
	"log"

	"tradingcore/internal/model"
	"tradingcore/pkg/smartconnect"
)

// LiveExecutor places real orders through Angel One SmartConnect. It is the
// alternate path the Paper Engine's safety guard refuses to become: the
// engine rejects PlaceOrder outright when configured for live trading
// instead of routing to a broker, so a genuine live path has to exist
// somewhere for that refusal to mean anything.
type LiveExecutor struct {
	client *smartconnect.SmartConnect
}

// NewLiveExecutor wraps an authenticated SmartConnect client.
func NewLiveExecutor(client *smartconnect.SmartConnect) *LiveExecutor {
	return &LiveExecutor{client: client}
}

// PlaceOrder submits a market/limit order to the exchange and returns the
// broker-assigned order id.
func (l *LiveExecutor) PlaceOrder(ctx context.Context, symbol, exchange string, side model.Side, qty int64, orderType model.OrderType, product string, price, triggerPrice int64, tag string) (string, error) {
	params := map[string]any{
		"tradingsymbol":    symbol,
		"exchange":         exchange,
		"transactiontype":  string(side),
		"ordertype":        string(orderType),
		"producttype":      product,
		"quantity":         fmt.Sprintf("%d", qty),
		"duration":         "DAY",
		"variety":          "NORMAL",
		"ordertag":         tag,
	}
	if orderType == model.Limit || orderType == model.SL {
		params["price"] = fmt.Sprintf("%.2f", float64(price)/100.0)
	}
	if orderType == model.SL || orderType == model.SLM {
		params["triggerprice"] = fmt.Sprintf("%.2f", float64(triggerPrice)/100.0)
	}

	orderID, err := l.client.PlaceOrder(params)
	if err != nil {
		log.Printf("[live-executor] place order failed for %s:%s: %v", exchange, symbol, err)
		return "", fmt.Errorf("live order placement: %w", err)
	}
	log.Printf("[live-executor] placed %s %s qty=%d order_id=%s", side, symbol, qty, orderID)
	return orderID, nil
}

// ModifyOrder changes price/trigger/qty on a resting order.
func (l *LiveExecutor) ModifyOrder(ctx context.Context, orderID string, qty, price, triggerPrice int64) error {
	_, err := l.client.ModifyOrder(map[string]any{
		"orderid":      orderID,
		"quantity":     fmt.Sprintf("%d", qty),
		"price":        fmt.Sprintf("%.2f", float64(price)/100.0),
		"triggerprice": fmt.Sprintf("%.2f", float64(triggerPrice)/100.0),
		"variety":      "NORMAL",
	})
	if err != nil {
		return fmt.Errorf("live order modify: %w", err)
	}
	return nil
}

// CancelOrder cancels a resting order.
func (l *LiveExecutor) CancelOrder(ctx context.Context, orderID string) error {
	_, err := l.client.CancelOrder(orderID, "NORMAL")
	if err != nil {
		return fmt.Errorf("live order cancel: %w", err)
	}
	return nil
}
