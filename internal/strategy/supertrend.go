package strategy

import (
	"math"

	"tradingcore/internal/indicator"
	"tradingcore/internal/model"
)

// SupertrendConfig is one (period, multiplier) pair in the triplet.
type SupertrendConfig struct {
	Period     int
	Multiplier float64
}

// SupertrendTriplet is the supertrend family variant: runs three
// Supertrend indicators with distinct (period, multiplier) pairs and
// requires all three to agree (all bullish or all bearish) before
// signaling. The stop-loss trails as a 0.6/0.4 weighted blend of the two
// Supertrend values closest to price, tightening as the trend matures.
type SupertrendTriplet struct {
	symbol   string
	exchange string

	configs   [3]SupertrendConfig
	targetPct float64
	capital   int64
	riskPerTrade float64

	hasPosition bool
	side        model.Side
	entry       int64
	stopLoss    int64
	target      int64

	tradesToday int
	pnlToday    int64
}

// NewSupertrendTriplet builds a three-supertrend-line strategy bound to
// one symbol. Conventional defaults: (7,3.0), (10,3.0), (11,2.0).
func NewSupertrendTriplet(symbol, exchange string, c1, c2, c3 SupertrendConfig, targetPct float64, capital int64, riskPerTrade float64) *SupertrendTriplet {
	return &SupertrendTriplet{
		symbol: symbol, exchange: exchange,
		configs: [3]SupertrendConfig{c1, c2, c3},
		targetPct: targetPct, capital: capital, riskPerTrade: riskPerTrade,
	}
}

func (s *SupertrendTriplet) Name() string { return "supertrend_triplet" }

func (s *SupertrendTriplet) ProcessTick(tick model.Tick) {}

func (s *SupertrendTriplet) GenerateSignal(bars []model.Candle, currentPrice int64) *Signal {
	maxPeriod := 0
	for _, c := range s.configs {
		if c.Period > maxPeriod {
			maxPeriod = c.Period
		}
	}
	if len(bars) < maxPeriod*2 {
		return nil
	}

	sts := [3]*indicator.Supertrend{
		indicator.NewSupertrend(s.configs[0].Period, s.configs[0].Multiplier),
		indicator.NewSupertrend(s.configs[1].Period, s.configs[1].Multiplier),
		indicator.NewSupertrend(s.configs[2].Period, s.configs[2].Multiplier),
	}
	for _, c := range bars {
		for _, st := range sts {
			st.Update(c)
		}
	}
	for _, st := range sts {
		if !st.Ready() {
			return nil
		}
	}

	if s.hasPosition {
		return s.checkExitOrTrail(currentPrice, sts)
	}

	allGreen := sts[0].TrendUp() && sts[1].TrendUp() && sts[2].TrendUp()
	allRed := !sts[0].TrendUp() && !sts[1].TrendUp() && !sts[2].TrendUp()

	switch {
	case allGreen:
		return s.open(model.Buy, currentPrice, sts, "all three supertrends aligned bullish")
	case allRed:
		return s.open(model.Sell, currentPrice, sts, "all three supertrends aligned bearish")
	}
	return nil
}

// weightedStop blends the two Supertrend values closest to price 0.6/0.4,
// the closer line weighted more heavily, mirroring the upstream strategy's
// trailing-stop construction.
func weightedStop(currentPrice int64, sts [3]*indicator.Supertrend) int64 {
	values := []float64{sts[0].Value(), sts[1].Value(), sts[2].Value()}
	price := float64(currentPrice)

	// sort indices by distance to price, ascending
	idx := []int{0, 1, 2}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0; j-- {
			if math.Abs(values[idx[j]]-price) < math.Abs(values[idx[j-1]]-price) {
				idx[j], idx[j-1] = idx[j-1], idx[j]
			} else {
				break
			}
		}
	}
	closest, second := values[idx[0]], values[idx[1]]
	return int64(closest*0.6 + second*0.4)
}

func (s *SupertrendTriplet) open(side model.Side, entry int64, sts [3]*indicator.Supertrend, reason string) *Signal {
	stopLoss := weightedStop(entry, sts)
	target := s.CalculateTarget(entry, side)
	qty := positionSize(s.capital, s.riskPerTrade, entry, stopLoss)
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
		Qty: qty, StopLoss: stopLoss, Target: target,
		Reason: reason, Confidence: 0.7, StrategyName: s.Name(),
	}
}

func (s *SupertrendTriplet) checkExitOrTrail(currentPrice int64, sts [3]*indicator.Supertrend) *Signal {
	hitSL := (s.side == model.Buy && currentPrice <= s.stopLoss) || (s.side == model.Sell && currentPrice >= s.stopLoss)
	hitTarget := (s.side == model.Buy && currentPrice >= s.target) || (s.side == model.Sell && currentPrice <= s.target)

	if hitSL || hitTarget {
		pnl := currentPrice - s.entry
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
			Reason: reason, Confidence: 1, StrategyName: s.Name(),
			Metadata: map[string]any{"exit_side": string(oppositeSide(s.side))},
		}
	}

	// Trail the stop as the supertrend lines ratchet in our favor.
	newStop := weightedStop(currentPrice, sts)
	trailed := (s.side == model.Buy && newStop > s.stopLoss) || (s.side == model.Sell && newStop < s.stopLoss)
	if trailed {
		s.stopLoss = newStop
		return &Signal{
			Symbol: s.symbol, Exchange: s.exchange, Kind: Hold,
			Reason: "trailing stop updated", Confidence: 1, StrategyName: s.Name(),
			StopLoss: newStop,
			Metadata: map[string]any{"action": "update_sl"},
		}
	}
	return nil
}

func (s *SupertrendTriplet) CalculateStopLoss(entry int64, side model.Side) int64 {
	// Structural stop comes from the Supertrend lines themselves (see open());
	// this fallback exists only to satisfy the interface when called standalone.
	return entry
}

func (s *SupertrendTriplet) CalculateTarget(entry int64, side model.Side) int64 {
	delta := int64(float64(entry) * s.targetPct)
	if side == model.Buy {
		return entry + delta
	}
	return entry - delta
}

func (s *SupertrendTriplet) GetStatus() Status {
	return Status{Name: s.Name(), Symbol: s.symbol, Active: true, HasPosition: s.hasPosition, TradesToday: s.tradesToday, PnLToday: s.pnlToday}
}
