package strategy

import (
	"log"

	"tradingcore/internal/indicator"
	"tradingcore/internal/model"
)

// IndicatorThreshold is the crossover + oscillator-filter family variant:
// an EMA(fast)/EMA(slow) crossover gated by an RSI overbought/oversold
// filter, the same shape as the teacher's SMA crossover generalized to
// EMA per the base strategy's indicator-threshold design. Covers the
// EMA/RSI, EMA-scalping, and scalping variants via tighter periods and a
// smaller riskPerTrade.
type IndicatorThreshold struct {
	symbol   string
	exchange string

	fastPeriod int
	slowPeriod int
	rsiPeriod  int
	rsiEnabled bool

	capital       int64
	riskPerTrade  float64 // fraction of capital risked per trade
	slPct         float64 // stop-loss distance as a fraction of entry
	targetPct     float64
	maxLossPerDay int64
	maxTradesDay  int

	hasPosition bool
	side        model.Side
	entry       int64
	stopLoss    int64
	target      int64

	tradesToday int
	pnlToday    int64

	prevFast, prevSlow float64
	haveHist           bool
}

// NewIndicatorThreshold builds an EMA-crossover strategy bound to one
// symbol. slPct/targetPct are fractions (0.005 = 0.5%).
func NewIndicatorThreshold(symbol, exchange string, fastPeriod, slowPeriod, rsiPeriod int, capital int64, riskPerTrade, slPct, targetPct float64, maxLossPerDay int64, maxTradesDay int) *IndicatorThreshold {
	return &IndicatorThreshold{
		symbol:        symbol,
		exchange:      exchange,
		fastPeriod:    fastPeriod,
		slowPeriod:    slowPeriod,
		rsiPeriod:     rsiPeriod,
		rsiEnabled:    rsiPeriod > 0,
		capital:       capital,
		riskPerTrade:  riskPerTrade,
		slPct:         slPct,
		targetPct:     targetPct,
		maxLossPerDay: maxLossPerDay,
		maxTradesDay:  maxTradesDay,
	}
}

func (s *IndicatorThreshold) Name() string { return "indicator_threshold" }

func (s *IndicatorThreshold) ProcessTick(tick model.Tick) {
	// candle-driven only
}

func (s *IndicatorThreshold) GenerateSignal(bars []model.Candle, currentPrice int64) *Signal {
	if len(bars) < s.slowPeriod+1 {
		return nil
	}

	if s.hasPosition {
		return s.checkExit(currentPrice)
	}

	if !s.withinRiskLimits() {
		return nil
	}

	fast := indicator.NewEMA(s.fastPeriod)
	slow := indicator.NewEMA(s.slowPeriod)
	rsi := indicator.NewRSI(s.rsiPeriod)

	var prevFast, prevSlow float64
	for i, c := range bars {
		fast.Update(c)
		slow.Update(c)
		if s.rsiEnabled {
			rsi.Update(c)
		}
		if i == len(bars)-2 {
			prevFast, prevSlow = fast.Value(), slow.Value()
		}
	}
	if !fast.Ready() || !slow.Ready() {
		return nil
	}
	curFast, curSlow := fast.Value(), slow.Value()

	goldenCross := prevFast <= prevSlow && curFast > curSlow
	deathCross := prevFast >= prevSlow && curFast < curSlow

	switch {
	case goldenCross:
		if s.rsiEnabled && rsi.Ready() && rsi.Value() > 70 {
			log.Printf("[strategy] %s %s: golden cross filtered, RSI %.1f overbought", s.Name(), s.symbol, rsi.Value())
			return nil
		}
		return s.open(model.Buy, currentPrice, "EMA golden cross")
	case deathCross:
		if s.rsiEnabled && rsi.Ready() && rsi.Value() < 30 {
			log.Printf("[strategy] %s %s: death cross filtered, RSI %.1f oversold", s.Name(), s.symbol, rsi.Value())
			return nil
		}
		return s.open(model.Sell, currentPrice, "EMA death cross")
	}
	return nil
}

func (s *IndicatorThreshold) open(side model.Side, entry int64, reason string) *Signal {
	stopLoss := s.CalculateStopLoss(entry, side)
	target := s.CalculateTarget(entry, side)
	qty := s.positionSize(entry, stopLoss)
	if qty <= 0 {
		return nil
	}

	s.hasPosition = true
	s.side = side
	s.entry = entry
	s.stopLoss = stopLoss
	s.target = target
	s.tradesToday++

	kind := Buy
	if side == model.Sell {
		kind = Sell
	}
	return &Signal{
		Symbol: s.symbol, Exchange: s.exchange, Kind: kind,
		Price: 0, Qty: qty, StopLoss: stopLoss, Target: target,
		Reason: reason, Confidence: 0.6, StrategyName: s.Name(),
	}
}

func (s *IndicatorThreshold) checkExit(currentPrice int64) *Signal {
	hitSL := (s.side == model.Buy && currentPrice <= s.stopLoss) || (s.side == model.Sell && currentPrice >= s.stopLoss)
	hitTarget := (s.side == model.Buy && currentPrice >= s.target) || (s.side == model.Sell && currentPrice <= s.target)
	if !hitSL && !hitTarget {
		return nil
	}

	pnl := (currentPrice - s.entry)
	if s.side == model.Sell {
		pnl = -pnl
	}
	s.pnlToday += pnl
	s.hasPosition = false

	reason := "target hit"
	if hitSL {
		reason = "stop-loss hit"
	}
	return &Signal{
		Symbol: s.symbol, Exchange: s.exchange, Kind: Exit,
		Price: 0, Reason: reason, Confidence: 1, StrategyName: s.Name(),
		Metadata: map[string]any{"exit_side": string(oppositeSide(s.side))},
	}
}

func (s *IndicatorThreshold) positionSize(entry, stopLoss int64) int64 {
	return positionSize(s.capital, s.riskPerTrade, entry, stopLoss)
}

func (s *IndicatorThreshold) withinRiskLimits() bool {
	if s.maxLossPerDay > 0 && -s.pnlToday >= s.maxLossPerDay {
		return false
	}
	if s.maxTradesDay > 0 && s.tradesToday >= s.maxTradesDay {
		return false
	}
	return true
}

func (s *IndicatorThreshold) CalculateStopLoss(entry int64, side model.Side) int64 {
	delta := int64(float64(entry) * s.slPct)
	if side == model.Buy {
		return entry - delta
	}
	return entry + delta
}

func (s *IndicatorThreshold) CalculateTarget(entry int64, side model.Side) int64 {
	delta := int64(float64(entry) * s.targetPct)
	if side == model.Buy {
		return entry + delta
	}
	return entry - delta
}

func (s *IndicatorThreshold) GetStatus() Status {
	return Status{
		Name: s.Name(), Symbol: s.symbol, Active: true,
		HasPosition: s.hasPosition, TradesToday: s.tradesToday, PnLToday: s.pnlToday,
	}
}

func oppositeSide(side model.Side) model.Side {
	if side == model.Buy {
		return model.Sell
	}
	return model.Buy
}
