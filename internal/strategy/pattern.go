package strategy

import (
	"math"

	"tradingcore/internal/indicator"
	"tradingcore/internal/model"
)

// PatternConfirmation is the candlestick-pattern family variant: detects a
// small set of reversal/continuation candlestick patterns on the latest
// bar, then requires trend alignment (price vs EMA(trendPeriod)) and a
// minimum ADX reading before acting on it. Highest minRR of the families
// since pattern signals alone are the weakest entries.
type PatternConfirmation struct {
	symbol   string
	exchange string

	trendPeriod int
	adxPeriod   int
	minADX      float64
	minRR       float64
	slPct       float64
	capital     int64
	riskPerTrade float64

	hasPosition bool
	side        model.Side
	entry       int64
	stopLoss    int64
	target      int64

	tradesToday int
	pnlToday    int64
}

// NewPatternConfirmation builds a pattern-confirmation strategy bound to
// one symbol.
func NewPatternConfirmation(symbol, exchange string, trendPeriod, adxPeriod int, minADX, minRR, slPct float64, capital int64, riskPerTrade float64) *PatternConfirmation {
	return &PatternConfirmation{
		symbol: symbol, exchange: exchange,
		trendPeriod: trendPeriod, adxPeriod: adxPeriod, minADX: minADX, minRR: minRR, slPct: slPct,
		capital: capital, riskPerTrade: riskPerTrade,
	}
}

func (p *PatternConfirmation) Name() string { return "pattern_confirmation" }

func (p *PatternConfirmation) ProcessTick(tick model.Tick) {}

func (p *PatternConfirmation) GenerateSignal(bars []model.Candle, currentPrice int64) *Signal {
	need := p.trendPeriod
	if p.adxPeriod*2 > need {
		need = p.adxPeriod * 2
	}
	if len(bars) < need+2 {
		return nil
	}

	if p.hasPosition {
		return p.checkExit(currentPrice)
	}

	trendEMA := indicator.NewEMA(p.trendPeriod)
	adx := indicator.NewADX(p.adxPeriod)
	for _, c := range bars {
		trendEMA.Update(c)
		adx.Update(c)
	}
	if !trendEMA.Ready() || !adx.Ready() || adx.Value() < p.minADX {
		return nil
	}

	prev := bars[len(bars)-2]
	last := bars[len(bars)-1]
	uptrend := float64(last.Close) > trendEMA.Value()

	switch detectPattern(prev, last) {
	case patternBullish:
		if uptrend {
			return p.open(model.Buy, last.Close, "bullish pattern confirmed by EMA uptrend")
		}
	case patternBearish:
		if !uptrend {
			return p.open(model.Sell, last.Close, "bearish pattern confirmed by EMA downtrend")
		}
	}
	return nil
}

func (p *PatternConfirmation) open(side model.Side, entry int64, reason string) *Signal {
	stopLoss := p.CalculateStopLoss(entry, side)
	target := p.CalculateTarget(entry, side)
	risk := math.Abs(float64(entry - stopLoss))
	reward := math.Abs(float64(target - entry))
	if risk == 0 || reward/risk < p.minRR {
		return nil
	}
	qty := positionSize(p.capital, p.riskPerTrade, entry, stopLoss)
	if qty <= 0 {
		return nil
	}

	p.hasPosition = true
	p.side = side
	p.entry = entry
	p.stopLoss = stopLoss
	p.target = target
	p.tradesToday++

	kind := Buy
	if side == model.Sell {
		kind = Sell
	}
	return &Signal{
		Symbol: p.symbol, Exchange: p.exchange, Kind: kind,
		Qty: qty, StopLoss: stopLoss, Target: target,
		Reason: reason, Confidence: 0.55, StrategyName: p.Name(),
	}
}

func (p *PatternConfirmation) checkExit(currentPrice int64) *Signal {
	hitSL := (p.side == model.Buy && currentPrice <= p.stopLoss) || (p.side == model.Sell && currentPrice >= p.stopLoss)
	hitTarget := (p.side == model.Buy && currentPrice >= p.target) || (p.side == model.Sell && currentPrice <= p.target)
	if !hitSL && !hitTarget {
		return nil
	}
	pnl := currentPrice - p.entry
	if p.side == model.Sell {
		pnl = -pnl
	}
	p.pnlToday += pnl
	p.hasPosition = false

	reason := "target hit"
	if hitSL {
		reason = "stop-loss hit"
	}
	return &Signal{
		Symbol: p.symbol, Exchange: p.exchange, Kind: Exit,
		Reason: reason, Confidence: 1, StrategyName: p.Name(),
		Metadata: map[string]any{"exit_side": string(oppositeSide(p.side))},
	}
}

func (p *PatternConfirmation) CalculateStopLoss(entry int64, side model.Side) int64 {
	delta := int64(float64(entry) * p.slPct)
	if side == model.Buy {
		return entry - delta
	}
	return entry + delta
}

func (p *PatternConfirmation) CalculateTarget(entry int64, side model.Side) int64 {
	delta := int64(float64(entry) * p.slPct * p.minRR)
	if side == model.Buy {
		return entry + delta
	}
	return entry - delta
}

func (p *PatternConfirmation) GetStatus() Status {
	return Status{Name: p.Name(), Symbol: p.symbol, Active: true, HasPosition: p.hasPosition, TradesToday: p.tradesToday, PnLToday: p.pnlToday}
}

type patternKind int

const (
	patternNone patternKind = iota
	patternBullish
	patternBearish
)

// detectPattern recognizes bullish/bearish engulfing and hammer/shooting-star
// patterns on the last two candles — the small, high-signal subset of the
// candlestick patterns used upstream.
func detectPattern(prev, last model.Candle) patternKind {
	if isBullishEngulfing(prev, last) || isHammer(last) {
		return patternBullish
	}
	if isBearishEngulfing(prev, last) || isShootingStar(last) {
		return patternBearish
	}
	return patternNone
}

func isBullishEngulfing(prev, last model.Candle) bool {
	prevBearish := prev.Close < prev.Open
	lastBullish := last.Close > last.Open
	return prevBearish && lastBullish && last.Open <= prev.Close && last.Close >= prev.Open
}

func isBearishEngulfing(prev, last model.Candle) bool {
	prevBullish := prev.Close > prev.Open
	lastBearish := last.Close < last.Open
	return prevBullish && lastBearish && last.Open >= prev.Close && last.Close <= prev.Open
}

func isHammer(c model.Candle) bool {
	body := math.Abs(float64(c.Close - c.Open))
	lowerWick := float64(minInt64(c.Open, c.Close) - c.Low)
	upperWick := float64(c.High - maxInt64(c.Open, c.Close))
	if body == 0 {
		return false
	}
	return lowerWick >= 2*body && upperWick <= body*0.3
}

func isShootingStar(c model.Candle) bool {
	body := math.Abs(float64(c.Close - c.Open))
	upperWick := float64(c.High - maxInt64(c.Open, c.Close))
	lowerWick := float64(minInt64(c.Open, c.Close) - c.Low)
	if body == 0 {
		return false
	}
	return upperWick >= 2*body && lowerWick <= body*0.3
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
