package strategy

import (
	"testing"
	"time"

	"tradingcore/internal/model"
	"tradingcore/internal/renko"
)

type stubStrategy struct {
	name        string
	symbol      string
	signal      *Signal
	ticksSeen   int
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) GenerateSignal(bars []model.Candle, currentPrice int64) *Signal {
	return s.signal
}
func (s *stubStrategy) ProcessTick(tick model.Tick)                           { s.ticksSeen++ }
func (s *stubStrategy) CalculateStopLoss(entry int64, side model.Side) int64  { return entry - 100 }
func (s *stubStrategy) CalculateTarget(entry int64, side model.Side) int64    { return entry + 100 }
func (s *stubStrategy) GetStatus() Status                                    { return Status{Name: s.name, Symbol: s.symbol} }

func TestEngine_EvaluateAll_CollectsSignalsFromEachStrategy(t *testing.T) {
	e := NewEngine(10)
	sig := &Signal{Symbol: "RELIANCE", Kind: Buy}
	e.Register(&stubStrategy{name: "a", symbol: "RELIANCE", signal: sig})
	e.Register(&stubStrategy{name: "b", symbol: "TCS", signal: nil})

	bars := map[string][]model.Candle{"RELIANCE": {{Close: 1000}}, "TCS": {{Close: 2000}}}
	prices := map[string]int64{"RELIANCE": 1000, "TCS": 2000}
	e.EvaluateAll(bars, prices)

	select {
	case got := <-e.Signals():
		if got.Symbol != "RELIANCE" {
			t.Fatalf("expected signal for RELIANCE, got %s", got.Symbol)
		}
	default:
		t.Fatal("expected a signal on the channel")
	}

	select {
	case <-e.Signals():
		t.Fatal("did not expect a second signal")
	default:
	}
}

func TestEngine_RouteTick_FansOutToAllStrategies(t *testing.T) {
	e := NewEngine(10)
	s1 := &stubStrategy{name: "a", symbol: "RELIANCE"}
	s2 := &stubStrategy{name: "b", symbol: "TCS"}
	e.Register(s1)
	e.Register(s2)

	e.RouteTick(model.Tick{Token: "RELIANCE", Price: 1000})

	if s1.ticksSeen != 1 || s2.ticksSeen != 1 {
		t.Fatalf("expected both strategies to see the tick, got %d and %d", s1.ticksSeen, s2.ticksSeen)
	}
}

func makeCandle(ts time.Time, close int64) model.Candle {
	return model.Candle{TS: ts, Open: close, High: close + 50, Low: close - 50, Close: close, Volume: 100}
}

func TestIndicatorThreshold_GoldenCrossEmitsBuy(t *testing.T) {
	s := NewIndicatorThreshold("RELIANCE", "NSE", 3, 6, 0, 1000000, 0.01, 0.005, 0.01, 500000, 20)

	base := time.Now()
	var bars []model.Candle
	// Flat prices so fast==slow, then a sharp rally so fast crosses above slow.
	prices := []int64{10000, 10000, 10000, 10000, 10000, 10000, 10500, 11000}
	var sig *Signal
	for i, p := range prices {
		bars = append(bars, makeCandle(base.Add(time.Duration(i)*time.Minute), p))
		if got := s.GenerateSignal(bars, p); got != nil {
			sig = got
			break
		}
	}
	if sig == nil || sig.Kind != Buy {
		t.Fatalf("expected a BUY signal on rally, got %+v", sig)
	}
}

func TestBreakout_ClosingAboveResistanceWithVolumeSignalsBuy(t *testing.T) {
	b := NewBreakout("RELIANCE", "NSE", 5, 1.2, 1.2, 0.005, 1000000, 0.01, 500000, 20)

	base := time.Now()
	var bars []model.Candle
	for i := 0; i < 5; i++ {
		c := makeCandle(base.Add(time.Duration(i)*time.Minute), 10000)
		c.Volume = 100
		bars = append(bars, c)
	}
	breakoutCandle := makeCandle(base.Add(5*time.Minute), 10200)
	breakoutCandle.High = 10250
	breakoutCandle.Volume = 200
	bars = append(bars, breakoutCandle)

	sig := b.GenerateSignal(bars, 10200)
	if sig == nil || sig.Kind != Buy {
		t.Fatalf("expected BUY on resistance breakout with volume, got %+v", sig)
	}
}

func TestORB_FreezesRangeThenSignalsOnBreakout(t *testing.T) {
	o := NewORB("RELIANCE", "NSE", 15, 0.005, 0.01, 1000000, 0.01)

	base := time.Now().Truncate(24 * time.Hour).Add(9 * time.Hour)
	var bars []model.Candle
	for i := 0; i < 16; i++ {
		c := makeCandle(base.Add(time.Duration(i)*time.Minute), 10000)
		bars = append(bars, c)
	}
	if sig := o.GenerateSignal(bars, 10000); sig != nil {
		t.Fatalf("expected no signal while range is still forming, got %+v", sig)
	}

	breakout := makeCandle(base.Add(17*time.Minute), 10100)
	bars = append(bars, breakout)
	sig := o.GenerateSignal(bars, 10100)
	if sig == nil || sig.Kind != Buy {
		t.Fatalf("expected BUY on breakout above opening range, got %+v", sig)
	}
}

func TestRenkoMACD_ExitsAtOppositeBrickLimit(t *testing.T) {
	r := NewRenkoMACD("RELIANCE", "NSE", 5, 1, 0.01, 1000000, 0.01)
	r.hasPosition = true
	r.side = model.Buy
	r.entry = 10000
	r.stopLoss = 9800
	r.target = 10500

	sig := r.checkExit(9750, renko.Brick{})
	if sig == nil || sig.Kind != Exit {
		t.Fatalf("expected EXIT when price falls through stop-loss, got %+v", sig)
	}
}
