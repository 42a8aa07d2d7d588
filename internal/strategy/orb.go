package strategy

import (
	"time"

	"tradingcore/internal/model"
)

// ORB is the opening-range breakout family variant: freezes the high/low
// of the first rangeMinutes of the session as the day's range, then signals
// on the first close beyond that range. Percentage-based SL/target, one
// trade per direction per session.
type ORB struct {
	symbol   string
	exchange string

	rangeMinutes int
	slPct        float64
	targetPct    float64
	capital      int64
	riskPerTrade float64

	sessionDay    time.Time
	rangeHigh     int64
	rangeLow      int64
	rangeFrozen   bool
	tradedUp      bool
	tradedDown    bool

	hasPosition bool
	side        model.Side
	entry       int64
	stopLoss    int64
	target      int64

	tradesToday int
	pnlToday    int64
}

// NewORB builds an opening-range breakout strategy bound to one symbol.
func NewORB(symbol, exchange string, rangeMinutes int, slPct, targetPct float64, capital int64, riskPerTrade float64) *ORB {
	return &ORB{
		symbol: symbol, exchange: exchange,
		rangeMinutes: rangeMinutes, slPct: slPct, targetPct: targetPct,
		capital: capital, riskPerTrade: riskPerTrade,
	}
}

func (o *ORB) Name() string { return "opening_range_breakout" }

func (o *ORB) ProcessTick(tick model.Tick) {}

func (o *ORB) GenerateSignal(bars []model.Candle, currentPrice int64) *Signal {
	if len(bars) == 0 {
		return nil
	}

	o.maybeResetSession(bars[0].TS)

	if o.hasPosition {
		return o.checkExit(currentPrice)
	}

	if !o.updateRange(bars) {
		return nil // range still forming
	}

	last := bars[len(bars)-1]
	switch {
	case !o.tradedUp && last.Close > o.rangeHigh:
		o.tradedUp = true
		return o.open(model.Buy, last.Close, "opening range breakout up")
	case !o.tradedDown && last.Close < o.rangeLow:
		o.tradedDown = true
		return o.open(model.Sell, last.Close, "opening range breakdown")
	}
	return nil
}

// maybeResetSession clears the frozen range and per-day trade flags when a
// new trading session begins.
func (o *ORB) maybeResetSession(barTS time.Time) {
	day := barTS.Truncate(24 * time.Hour)
	if o.sessionDay.Equal(day) {
		return
	}
	o.sessionDay = day
	o.rangeFrozen = false
	o.rangeHigh = 0
	o.rangeLow = 0
	o.tradedUp = false
	o.tradedDown = false
}

// updateRange accumulates the session's opening range until rangeMinutes
// have elapsed, then freezes it. Returns true once frozen.
func (o *ORB) updateRange(bars []model.Candle) bool {
	if o.rangeFrozen {
		return true
	}

	sessionStart := bars[0].TS
	var high, low int64
	count := 0
	for _, c := range bars {
		if c.TS.Sub(sessionStart) > time.Duration(o.rangeMinutes)*time.Minute {
			break
		}
		if count == 0 {
			high, low = c.High, c.Low
		}
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
		count++
	}

	elapsed := bars[len(bars)-1].TS.Sub(sessionStart)
	if elapsed < time.Duration(o.rangeMinutes)*time.Minute {
		return false
	}

	o.rangeHigh = high
	o.rangeLow = low
	o.rangeFrozen = true
	return true
}

func (o *ORB) open(side model.Side, entry int64, reason string) *Signal {
	stopLoss := o.CalculateStopLoss(entry, side)
	target := o.CalculateTarget(entry, side)
	qty := positionSize(o.capital, o.riskPerTrade, entry, stopLoss)
	if qty <= 0 {
		return nil
	}

	o.hasPosition = true
	o.side = side
	o.entry = entry
	o.stopLoss = stopLoss
	o.target = target
	o.tradesToday++

	kind := Buy
	if side == model.Sell {
		kind = Sell
	}
	return &Signal{
		Symbol: o.symbol, Exchange: o.exchange, Kind: kind,
		Qty: qty, StopLoss: stopLoss, Target: target,
		Reason: reason, Confidence: 0.6, StrategyName: o.Name(),
	}
}

func (o *ORB) checkExit(currentPrice int64) *Signal {
	hitSL := (o.side == model.Buy && currentPrice <= o.stopLoss) || (o.side == model.Sell && currentPrice >= o.stopLoss)
	hitTarget := (o.side == model.Buy && currentPrice >= o.target) || (o.side == model.Sell && currentPrice <= o.target)
	if !hitSL && !hitTarget {
		return nil
	}
	pnl := currentPrice - o.entry
	if o.side == model.Sell {
		pnl = -pnl
	}
	o.pnlToday += pnl
	o.hasPosition = false

	reason := "target hit"
	if hitSL {
		reason = "stop-loss hit"
	}
	return &Signal{
		Symbol: o.symbol, Exchange: o.exchange, Kind: Exit,
		Reason: reason, Confidence: 1, StrategyName: o.Name(),
		Metadata: map[string]any{"exit_side": string(oppositeSide(o.side))},
	}
}

func (o *ORB) CalculateStopLoss(entry int64, side model.Side) int64 {
	delta := int64(float64(entry) * o.slPct)
	if side == model.Buy {
		return entry - delta
	}
	return entry + delta
}

func (o *ORB) CalculateTarget(entry int64, side model.Side) int64 {
	delta := int64(float64(entry) * o.targetPct)
	if side == model.Buy {
		return entry + delta
	}
	return entry - delta
}

func (o *ORB) GetStatus() Status {
	return Status{Name: o.Name(), Symbol: o.symbol, Active: true, HasPosition: o.hasPosition, TradesToday: o.tradesToday, PnLToday: o.pnlToday}
}
