package strategy

import (
	"tradingcore/internal/indicator"
	"tradingcore/internal/model"
	"tradingcore/internal/renko"
)

// RenkoMACD is the Renko+MACD family variant: bricks are accumulated from
// raw ticks (brick size sized off ATR(14), clamped to [1,10] rupees), and
// a MACD crossover on the periodic bars confirms direction. A signal
// only fires once the brick run has reached brickThreshold in the
// confirmed direction. Stop-loss sits at the brick's opposite limit.
type RenkoMACD struct {
	symbol   string
	exchange string

	atrPeriod      int
	brickThreshold int64
	targetPct      float64
	capital        int64
	riskPerTrade   float64

	bricks    *renko.Accumulator
	brickSize int64

	hasPosition bool
	side        model.Side
	entry       int64
	stopLoss    int64
	target      int64

	tradesToday int
	pnlToday    int64
}

// NewRenkoMACD builds a Renko+MACD strategy bound to one symbol.
func NewRenkoMACD(symbol, exchange string, atrPeriod int, brickThreshold int64, targetPct float64, capital int64, riskPerTrade float64) *RenkoMACD {
	return &RenkoMACD{
		symbol: symbol, exchange: exchange,
		atrPeriod: atrPeriod, brickThreshold: brickThreshold, targetPct: targetPct,
		capital: capital, riskPerTrade: riskPerTrade,
		bricks: renko.New(),
	}
}

func (r *RenkoMACD) Name() string { return "renko_macd" }

// ProcessTick feeds every tick into the Renko accumulator, using whatever
// brick size was last derived from the candle series.
func (r *RenkoMACD) ProcessTick(tick model.Tick) {
	if r.brickSize == 0 {
		return // no ATR-derived brick size yet
	}
	r.bricks.Update(r.key(), tick.Price, r.brickSize)
}

func (r *RenkoMACD) key() string { return r.exchange + ":" + r.symbol }

func (r *RenkoMACD) GenerateSignal(bars []model.Candle, currentPrice int64) *Signal {
	if len(bars) < r.atrPeriod*3 {
		return nil
	}

	r.brickSize = atrBrickSize(bars, r.atrPeriod)

	macd := indicator.NewMACD(12, 26, 9)
	for _, c := range bars {
		macd.Update(c)
	}
	if !macd.Ready() {
		return nil
	}

	brick, ok := r.bricks.State(r.key())
	if !ok {
		return nil
	}

	if r.hasPosition {
		return r.checkExit(currentPrice, brick)
	}

	crossover := macd.Crossover()
	switch {
	case crossover == "bullish" && brick.BrickCount >= r.brickThreshold:
		return r.open(model.Buy, currentPrice, brick, "MACD bullish crossover confirmed by Renko uptrend")
	case crossover == "bearish" && brick.BrickCount <= -r.brickThreshold:
		return r.open(model.Sell, currentPrice, brick, "MACD bearish crossover confirmed by Renko downtrend")
	}
	return nil
}

func (r *RenkoMACD) open(side model.Side, entry int64, brick renko.Brick, reason string) *Signal {
	var stopLoss int64
	if side == model.Buy {
		stopLoss = brick.LowerLimit
	} else {
		stopLoss = brick.UpperLimit
	}
	target := r.CalculateTarget(entry, side)
	qty := positionSize(r.capital, r.riskPerTrade, entry, stopLoss)
	if qty <= 0 {
		return nil
	}

	r.hasPosition = true
	r.side = side
	r.entry = entry
	r.stopLoss = stopLoss
	r.target = target
	r.tradesToday++

	kind := Buy
	if side == model.Sell {
		kind = Sell
	}
	confidence := float64(absInt64(brick.BrickCount)) / 5
	if confidence > 1 {
		confidence = 1
	}
	return &Signal{
		Symbol: r.symbol, Exchange: r.exchange, Kind: kind,
		Qty: qty, StopLoss: stopLoss, Target: target,
		Reason: reason, Confidence: confidence, StrategyName: r.Name(),
	}
}

func (r *RenkoMACD) checkExit(currentPrice int64, brick renko.Brick) *Signal {
	hitSL := (r.side == model.Buy && currentPrice <= r.stopLoss) || (r.side == model.Sell && currentPrice >= r.stopLoss)
	hitTarget := (r.side == model.Buy && currentPrice >= r.target) || (r.side == model.Sell && currentPrice <= r.target)
	if !hitSL && !hitTarget {
		return nil
	}
	pnl := currentPrice - r.entry
	if r.side == model.Sell {
		pnl = -pnl
	}
	r.pnlToday += pnl
	r.hasPosition = false

	reason := "target hit"
	if hitSL {
		reason = "stop-loss hit"
	}
	return &Signal{
		Symbol: r.symbol, Exchange: r.exchange, Kind: Exit,
		Reason: reason, Confidence: 1, StrategyName: r.Name(),
		Metadata: map[string]any{"exit_side": string(oppositeSide(r.side))},
	}
}

func (r *RenkoMACD) CalculateStopLoss(entry int64, side model.Side) int64 {
	// The Renko brick's opposite limit is the real stop (see open());
	// this fallback only covers standalone interface calls.
	return entry
}

func (r *RenkoMACD) CalculateTarget(entry int64, side model.Side) int64 {
	delta := int64(float64(entry) * r.targetPct)
	if side == model.Buy {
		return entry + delta
	}
	return entry - delta
}

func (r *RenkoMACD) GetStatus() Status {
	return Status{Name: r.Name(), Symbol: r.symbol, Active: true, HasPosition: r.hasPosition, TradesToday: r.tradesToday, PnLToday: r.pnlToday}
}

// atrBrickSize derives a Renko brick size from ATR(period): 1.5x ATR,
// clamped to [1,10] rupees (100-1000 paise), matching the upstream sizing.
func atrBrickSize(bars []model.Candle, period int) int64 {
	if len(bars) < period+1 {
		return 100
	}
	var sum int64
	prevClose := bars[len(bars)-period-1].Close
	for _, c := range bars[len(bars)-period:] {
		tr := c.High - c.Low
		if v := absInt64(c.High - prevClose); v > tr {
			tr = v
		}
		if v := absInt64(c.Low - prevClose); v > tr {
			tr = v
		}
		sum += tr
		prevClose = c.Close
	}
	atr := sum / int64(period)
	brickSize := int64(1.5 * float64(atr))
	if brickSize < 100 {
		brickSize = 100
	}
	if brickSize > 1000 {
		brickSize = 1000
	}
	return brickSize
}

func absInt64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
