// Package execution bridges Strategy Runtime signals to an order-placing
// backend. SignalExecutor consumes a signal channel and maps each Kind to
// a Paper Engine call; LiveExecutor (executor.go) is the real-broker
// alternative the Paper Engine's safety guard refuses to become.
package execution

import (
	"context"
	"log"
	"strings"
	"time"

	"tradingcore/internal/model"
	"tradingcore/internal/paperengine"
	"tradingcore/internal/strategy"
)

// OrderResult represents the outcome of an order placement.
type OrderResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"` // PLACED, REJECTED, ERROR
	Message string `json:"message"`
	Signal  strategy.Signal
}

// SignalExecutor consumes strategy signals from a channel and routes them
// to the Paper Engine, tagging bot-originated orders BOT_<symbol> so the
// engine's fund-reservation math can identify them.
type SignalExecutor struct {
	engine   *paperengine.Engine
	resultCh chan OrderResult
}

// NewPaperExecutor creates a channel-driven Paper Engine adapter.
func NewPaperExecutor(engine *paperengine.Engine, resultBufferSize int) *SignalExecutor {
	return &SignalExecutor{
		engine:   engine,
		resultCh: make(chan OrderResult, resultBufferSize),
	}
}

// Results returns the channel of order results.
func (p *SignalExecutor) Results() <-chan OrderResult {
	return p.resultCh
}

// Run consumes strategy signals and executes them via the Paper Engine.
// Blocks until ctx is cancelled or signalCh is closed.
func (p *SignalExecutor) Run(ctx context.Context, signalCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			p.execute(ctx, sig)
		}
	}
}

func (p *SignalExecutor) execute(ctx context.Context, sig strategy.Signal) {
	tag := "BOT_" + sig.Symbol

	var side model.Side
	switch sig.Kind {
	case strategy.Buy:
		side = model.Buy
	case strategy.Sell:
		side = model.Sell
	case strategy.Exit:
		// Flatten: direction is determined by the caller via sig.Metadata
		// ("exit_side"); default to SELL (closing a long) if unspecified.
		side = model.Sell
		if v, ok := sig.Metadata["exit_side"]; ok {
			if s, ok := v.(string); ok && strings.EqualFold(s, "BUY") {
				side = model.Buy
			}
		}
	case strategy.Hold:
		log.Printf("[executor] HOLD signal for %s: %s (no order placed)", sig.Symbol, sig.Reason)
		return
	default:
		return
	}

	orderID, err := p.engine.PlaceOrder(ctx, paperengine.PlaceOrderRequest{
		Symbol:   sig.Symbol,
		Exchange: sig.Exchange,
		Side:     side,
		Qty:      sig.Qty,
		Type:     model.Market,
		Product:  "INTRADAY",
		Tag:      tag,
	})

	result := OrderResult{OrderID: orderID, Signal: sig}
	if err != nil {
		result.Status = "REJECTED"
		result.Message = err.Error()
		log.Printf("[executor] %s %s rejected: %v", sig.Kind, sig.Symbol, err)
	} else {
		result.Status = "FILLED"
		result.Message = "paper filled"
	}

	select {
	case p.resultCh <- result:
	case <-time.After(time.Second):
		log.Printf("[executor] result channel full, dropping result for %s", orderID)
	}
}
