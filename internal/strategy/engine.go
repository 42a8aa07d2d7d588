// Package strategy provides the strategy runtime: one instance per symbol,
// bound to a capital allocation, evaluated on a periodic candle series and
// (optionally) on raw ticks.
//
// A Strategy receives periodic bars and the latest spot price and emits a
// Signal (BUY/SELL/HOLD/EXIT). The Engine manages registration and routes
// candle closes to all registered strategies, collecting their signals on
// one channel.
package strategy

import (
	"context"
	"time"

	"tradingcore/internal/model"
)

// Kind is the action a Signal asks the caller to take.
type Kind string

const (
	Buy  Kind = "BUY"
	Sell Kind = "SELL"
	Hold Kind = "HOLD"
	Exit Kind = "EXIT"
)

// Signal is what a Strategy emits on each evaluation.
type Signal struct {
	TS           time.Time      `json:"ts"`
	Symbol       string         `json:"symbol"`
	Exchange     string         `json:"exchange"`
	Kind         Kind           `json:"kind"`
	Price        int64          `json:"price"` // paise, 0 = market
	Qty          int64          `json:"qty"`
	StopLoss     int64          `json:"stop_loss,omitempty"` // paise
	Target       int64          `json:"target,omitempty"`    // paise
	Reason       string         `json:"reason"`
	Confidence   float64        `json:"confidence"` // [0,1]
	StrategyName string         `json:"strategy_name"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Status is the introspection payload returned by get_status.
type Status struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Active      bool   `json:"active"`
	HasPosition bool   `json:"has_position"`
	TradesToday int    `json:"trades_today"`
	PnLToday    int64  `json:"pnl_today"` // paise
}

// Strategy is the contract every family variant implements, bound to one
// symbol with a capital allocation.
type Strategy interface {
	Name() string

	// GenerateSignal evaluates a periodic candle series plus the latest
	// spot price and returns a Signal, or nil to sit out this evaluation.
	GenerateSignal(bars []model.Candle, currentPrice int64) *Signal

	// ProcessTick is for tick-driven strategies (Renko); a no-op otherwise.
	ProcessTick(tick model.Tick)

	CalculateStopLoss(entry int64, side model.Side) int64
	CalculateTarget(entry int64, side model.Side) int64

	GetStatus() Status
}

// Engine routes periodic candle closes to all registered strategies and
// collects their signals on one channel.
type Engine struct {
	strategies []Strategy
	signalCh   chan Signal
}

// NewEngine creates a new strategy engine.
func NewEngine(signalBufferSize int) *Engine {
	return &Engine{signalCh: make(chan Signal, signalBufferSize)}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Strategies returns the registered strategies.
func (e *Engine) Strategies() []Strategy {
	return e.strategies
}

// Signals returns the channel of signals emitted by strategies.
func (e *Engine) Signals() <-chan Signal {
	return e.signalCh
}

// EvaluateAll calls GenerateSignal on every registered strategy with its
// own bar series and current price, pushing non-nil signals to the channel.
// Used by the Trading Bot's monitoring loop, which owns the per-symbol bar
// fetch and cadence.
func (e *Engine) EvaluateAll(barsBySymbol map[string][]model.Candle, pricesBySymbol map[string]int64) {
	for _, s := range e.strategies {
		st := s.GetStatus()
		bars, ok := barsBySymbol[st.Symbol]
		if !ok {
			continue
		}
		price, ok := pricesBySymbol[st.Symbol]
		if !ok {
			continue
		}
		if sig := s.GenerateSignal(bars, price); sig != nil {
			select {
			case e.signalCh <- *sig:
			default:
				// signal channel full, drop
			}
		}
	}
}

// RouteTick fans a tick out to every registered strategy's ProcessTick,
// isolating one strategy's state from another's.
func (e *Engine) RouteTick(tick model.Tick) {
	for _, s := range e.strategies {
		s.ProcessTick(tick)
	}
}

// Run drains ctx cancellation only; EvaluateAll/RouteTick are called
// directly by the Trading Bot's monitoring loop rather than via a channel,
// since bar fetches are synchronous I/O the bot already schedules.
func (e *Engine) Run(ctx context.Context) {
	<-ctx.Done()
}
