package strategy

import (
	"math"

	"tradingcore/internal/model"
)

// Breakout is the price-action breakout family variant: recomputes
// dynamic support/resistance from recent swing highs/lows every lookback
// window, and signals when price closes through resistance (or support)
// on above-average volume, gated by a minimum reward:risk ratio.
type Breakout struct {
	symbol   string
	exchange string

	lookback      int
	volumeFactor  float64 // close-candle volume must exceed average * volumeFactor
	minRR         float64 // minimum reward:risk ratio required to take the trade
	slPct         float64
	capital       int64
	riskPerTrade  float64
	maxLossPerDay int64
	maxTradesDay  int

	hasPosition bool
	side        model.Side
	entry       int64
	stopLoss    int64
	target      int64

	tradesToday int
	pnlToday    int64
}

// NewBreakout builds a price-action breakout strategy bound to one symbol.
func NewBreakout(symbol, exchange string, lookback int, volumeFactor, minRR, slPct float64, capital int64, riskPerTrade float64, maxLossPerDay int64, maxTradesDay int) *Breakout {
	return &Breakout{
		symbol: symbol, exchange: exchange,
		lookback: lookback, volumeFactor: volumeFactor, minRR: minRR, slPct: slPct,
		capital: capital, riskPerTrade: riskPerTrade,
		maxLossPerDay: maxLossPerDay, maxTradesDay: maxTradesDay,
	}
}

func (b *Breakout) Name() string { return "price_action_breakout" }

func (b *Breakout) ProcessTick(tick model.Tick) {}

func (b *Breakout) GenerateSignal(bars []model.Candle, currentPrice int64) *Signal {
	if len(bars) < b.lookback+1 {
		return nil
	}

	if b.hasPosition {
		return b.checkExit(currentPrice)
	}

	if b.maxLossPerDay > 0 && -b.pnlToday >= b.maxLossPerDay {
		return nil
	}
	if b.maxTradesDay > 0 && b.tradesToday >= b.maxTradesDay {
		return nil
	}

	window := bars[len(bars)-1-b.lookback : len(bars)-1]
	support, resistance := swingLevels(window)
	last := bars[len(bars)-1]

	avgVol := averageVolume(window)
	volumeConfirmed := avgVol == 0 || float64(last.Volume) >= avgVol*b.volumeFactor

	switch {
	case last.Close > resistance && volumeConfirmed:
		return b.open(model.Buy, last.Close, support, "breakout above resistance")
	case last.Close < support && volumeConfirmed:
		return b.open(model.Sell, last.Close, resistance, "breakdown below support")
	}
	return nil
}

func (b *Breakout) open(side model.Side, entry, structuralLevel int64, reason string) *Signal {
	stopLoss := b.CalculateStopLoss(entry, side)
	// Prefer the structural level if it's tighter than the percentage stop
	// and still on the correct side of entry.
	if side == model.Buy && structuralLevel > stopLoss && structuralLevel < entry {
		stopLoss = structuralLevel
	}
	if side == model.Sell && structuralLevel < stopLoss && structuralLevel > entry {
		stopLoss = structuralLevel
	}

	target := b.CalculateTarget(entry, side)
	risk := math.Abs(float64(entry - stopLoss))
	reward := math.Abs(float64(target - entry))
	if risk == 0 || reward/risk < b.minRR {
		return nil
	}

	qty := positionSize(b.capital, b.riskPerTrade, entry, stopLoss)
	if qty <= 0 {
		return nil
	}

	b.hasPosition = true
	b.side = side
	b.entry = entry
	b.stopLoss = stopLoss
	b.target = target
	b.tradesToday++

	kind := Buy
	if side == model.Sell {
		kind = Sell
	}
	return &Signal{
		Symbol: b.symbol, Exchange: b.exchange, Kind: kind,
		Price: 0, Qty: qty, StopLoss: stopLoss, Target: target,
		Reason: reason, Confidence: 0.65, StrategyName: b.Name(),
	}
}

func (b *Breakout) checkExit(currentPrice int64) *Signal {
	hitSL := (b.side == model.Buy && currentPrice <= b.stopLoss) || (b.side == model.Sell && currentPrice >= b.stopLoss)
	hitTarget := (b.side == model.Buy && currentPrice >= b.target) || (b.side == model.Sell && currentPrice <= b.target)
	if !hitSL && !hitTarget {
		return nil
	}
	pnl := currentPrice - b.entry
	if b.side == model.Sell {
		pnl = -pnl
	}
	b.pnlToday += pnl
	b.hasPosition = false

	reason := "target hit"
	if hitSL {
		reason = "stop-loss hit"
	}
	return &Signal{
		Symbol: b.symbol, Exchange: b.exchange, Kind: Exit,
		Reason: reason, Confidence: 1, StrategyName: b.Name(),
		Metadata: map[string]any{"exit_side": string(oppositeSide(b.side))},
	}
}

func (b *Breakout) CalculateStopLoss(entry int64, side model.Side) int64 {
	delta := int64(float64(entry) * b.slPct)
	if side == model.Buy {
		return entry - delta
	}
	return entry + delta
}

func (b *Breakout) CalculateTarget(entry int64, side model.Side) int64 {
	delta := int64(math.Abs(float64(entry-b.stopLoss)) * b.minRR)
	if delta == 0 {
		delta = int64(float64(entry) * b.slPct * b.minRR)
	}
	if side == model.Buy {
		return entry + delta
	}
	return entry - delta
}

func (b *Breakout) GetStatus() Status {
	return Status{Name: b.Name(), Symbol: b.symbol, Active: true, HasPosition: b.hasPosition, TradesToday: b.tradesToday, PnLToday: b.pnlToday}
}

// swingLevels returns the lowest low (support) and highest high (resistance)
// over a window of candles.
func swingLevels(bars []model.Candle) (support, resistance int64) {
	support = bars[0].Low
	resistance = bars[0].High
	for _, c := range bars[1:] {
		if c.Low < support {
			support = c.Low
		}
		if c.High > resistance {
			resistance = c.High
		}
	}
	return support, resistance
}

func averageVolume(bars []model.Candle) float64 {
	if len(bars) == 0 {
		return 0
	}
	var sum int64
	for _, c := range bars {
		sum += c.Volume
	}
	return float64(sum) / float64(len(bars))
}

// positionSize applies the capital*riskPerTrade / |entry-stopLoss| sizing
// formula shared by every strategy family, capped by capital/entry.
func positionSize(capital int64, riskPerTrade float64, entry, stopLoss int64) int64 {
	riskPerShare := math.Abs(float64(entry - stopLoss))
	if riskPerShare == 0 || entry == 0 {
		return 0
	}
	byRisk := math.Floor(float64(capital) * riskPerTrade / riskPerShare)
	byCapital := math.Floor(float64(capital) / float64(entry))
	qty := math.Min(byRisk, byCapital)
	if qty < 1 {
		return 0
	}
	return int64(qty)
}
