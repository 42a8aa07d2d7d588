package indicator

import "tradingcore/internal/model"

// Supertrend is an ATR-banded trend-following overlay: basic bands at
// (hl2 ± multiplier*ATR), ratcheted into final bands that only ever
// tighten toward price, with the trend flipping when close crosses the
// opposite band. The supertrend strategy family runs three of these with
// distinct (period, multiplier) pairs and requires all three to agree.
type Supertrend struct {
	period     int
	multiplier float64
	atr        *wilderATR

	finalUpper, finalLower float64
	trendUp                bool
	value                  float64
	initialized            bool
}

// NewSupertrend creates a Supertrend indicator with the given ATR period
// and band multiplier.
func NewSupertrend(period int, multiplier float64) *Supertrend {
	return &Supertrend{period: period, multiplier: multiplier, atr: newWilderATR(period)}
}

func (s *Supertrend) Name() string { return "Supertrend" }

func (s *Supertrend) Update(candle model.Candle) {
	s.atr.update(candle)
	if !s.atr.ready {
		return
	}

	hl2 := float64(candle.High+candle.Low) / 2
	basicUpper := hl2 + s.multiplier*s.atr.value
	basicLower := hl2 - s.multiplier*s.atr.value
	close := float64(candle.Close)

	if !s.initialized {
		s.finalUpper = basicUpper
		s.finalLower = basicLower
		s.trendUp = close >= (basicUpper+basicLower)/2
		s.initialized = true
	} else {
		if basicUpper < s.finalUpper || close > s.finalUpper {
			s.finalUpper = basicUpper
		}
		if basicLower > s.finalLower || close < s.finalLower {
			s.finalLower = basicLower
		}

		switch {
		case s.trendUp && close < s.finalLower:
			s.trendUp = false
		case !s.trendUp && close > s.finalUpper:
			s.trendUp = true
		}
	}

	if s.trendUp {
		s.value = s.finalLower
	} else {
		s.value = s.finalUpper
	}
}

// Value returns the current supertrend line (paise scale).
func (s *Supertrend) Value() float64 { return s.value }

// TrendUp reports whether the current trend is bullish (supertrend below price).
func (s *Supertrend) TrendUp() bool { return s.trendUp }

func (s *Supertrend) Ready() bool { return s.atr.ready && s.initialized }

// wilderATR is Wilder-smoothed Average True Range, used internally by Supertrend.
type wilderATR struct {
	period    int
	count     int
	prevClose float64
	sum       float64
	value     float64
	ready     bool
}

func newWilderATR(period int) *wilderATR {
	return &wilderATR{period: period}
}

func (a *wilderATR) update(candle model.Candle) {
	high := float64(candle.High)
	low := float64(candle.Low)
	close := float64(candle.Close)
	a.count++

	var tr float64
	if a.count == 1 {
		tr = high - low
	} else {
		tr = trueRange(high, low, a.prevClose)
	}
	a.prevClose = close

	p := float64(a.period)
	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.value = a.sum / p
			a.ready = true
		}
		return
	}
	a.value = (a.value*(p-1) + tr) / p
}
