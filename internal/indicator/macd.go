package indicator

import "tradingcore/internal/model"

// MACD is Moving Average Convergence Divergence: EMA(fast) - EMA(slow),
// smoothed again by EMA(signal) to produce the signal line. Crossovers of
// the MACD line over its signal line are the bullish/bearish trigger used
// by the Renko+MACD strategy family.
type MACD struct {
	fast   *rawEMA
	slow   *rawEMA
	signal *rawEMA

	macd      float64
	prevMACD  float64
	prevSig   float64
	hasPrev   bool
	sigPeriod int
}

// NewMACD creates a MACD with the conventional 12/26/9 periods (or custom ones).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:      newRawEMA(fastPeriod),
		slow:      newRawEMA(slowPeriod),
		signal:    newRawEMA(signalPeriod),
		sigPeriod: signalPeriod,
	}
}

func (m *MACD) Name() string { return "MACD" }

// Update feeds a new candle close.
func (m *MACD) Update(candle model.Candle) {
	price := float64(candle.Close)
	m.fast.update(price)
	m.slow.update(price)
	if !m.fast.ready || !m.slow.ready {
		return
	}

	if m.hasPrev {
		m.prevMACD = m.macd
		m.prevSig = m.signal.value
	}
	m.macd = m.fast.value - m.slow.value
	m.signal.update(m.macd)
	if m.signal.ready {
		m.hasPrev = true
	}
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.macd }

// SignalValue returns the signal line (EMA of the MACD line).
func (m *MACD) SignalValue() float64 { return m.signal.value }

// Histogram returns MACD minus signal.
func (m *MACD) Histogram() float64 { return m.macd - m.signal.value }

func (m *MACD) Ready() bool { return m.signal.ready }

// Crossover reports "bullish" when MACD crosses above signal, "bearish"
// when it crosses below, "" otherwise.
func (m *MACD) Crossover() string {
	if !m.Ready() || !m.hasPrev {
		return ""
	}
	if m.prevMACD <= m.prevSig && m.macd > m.signal.value {
		return "bullish"
	}
	if m.prevMACD >= m.prevSig && m.macd < m.signal.value {
		return "bearish"
	}
	return ""
}

// rawEMA is an EMA over an arbitrary float series (not candle closes),
// used internally to build MACD's fast/slow/signal lines.
type rawEMA struct {
	period     int
	multiplier float64
	value      float64
	count      int
	sum        float64
	ready      bool
}

func newRawEMA(period int) *rawEMA {
	return &rawEMA{period: period, multiplier: 2.0 / float64(period+1)}
}

func (e *rawEMA) update(x float64) {
	e.count++
	if e.count <= e.period {
		e.sum += x
		if e.count == e.period {
			e.value = e.sum / float64(e.period)
			e.ready = true
		}
		return
	}
	e.value = x*e.multiplier + e.value*(1-e.multiplier)
}
