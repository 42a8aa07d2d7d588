package historical

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradingcore/internal/model"
)

type fakeChunkFetcher struct {
	calls   int
	windows []window
	fail    func(from, to time.Time) bool
	gen     func(from, to time.Time) []model.Candle
}

func (f *fakeChunkFetcher) FetchCandles(ctx context.Context, token, interval string, from, to time.Time) ([]model.Candle, error) {
	f.calls++
	f.windows = append(f.windows, window{from, to})
	if f.fail != nil && f.fail(from, to) {
		return nil, errors.New("upstream boom")
	}
	return f.gen(from, to), nil
}

func candleAt(ts time.Time, close int64) model.Candle {
	return model.Candle{Token: "99926000", Exchange: "NSE", TS: ts, Close: close}
}

func TestFetch_SingleWindowWhenWithinLimit(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 10)
	fc := &fakeChunkFetcher{gen: func(f, t time.Time) []model.Candle {
		return []model.Candle{candleAt(f, 100)}
	}}
	fetcher := New(fc)
	out, err := fetcher.Fetch(context.Background(), "99926000", "1m", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", fc.calls)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(out))
	}
}

func TestFetch_ChunksAcrossLimit(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 150) // 1m limit is 60 days
	fc := &fakeChunkFetcher{gen: func(f, t time.Time) []model.Candle {
		return []model.Candle{candleAt(f, 100)}
	}}
	fetcher := New(fc)
	out, err := fetcher.Fetch(context.Background(), "99926000", "1m", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.calls < 3 {
		t.Fatalf("expected at least 3 chunked calls for a 150-day span, got %d", fc.calls)
	}
	if len(out) != fc.calls {
		t.Fatalf("expected one candle per window, got %d candles for %d calls", len(out), fc.calls)
	}
}

func TestFetch_DedupesByTimestampKeepingFirst(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 5)
	dupTS := from.Add(time.Hour)
	fc := &fakeChunkFetcher{gen: func(f, t time.Time) []model.Candle {
		return []model.Candle{candleAt(dupTS, 100), candleAt(dupTS, 200)}
	}}
	fetcher := New(fc)
	out, err := fetcher.Fetch(context.Background(), "99926000", "1m", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected dedup to collapse to 1 candle, got %d", len(out))
	}
	if out[0].Close != 100 {
		t.Fatalf("expected first occurrence (close=100) to win, got %d", out[0].Close)
	}
}

func TestFetch_SortsAscending(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)
	fc := &fakeChunkFetcher{gen: func(f, t time.Time) []model.Candle {
		return []model.Candle{candleAt(t, 2), candleAt(f, 1)}
	}}
	fetcher := New(fc)
	out, err := fetcher.Fetch(context.Background(), "99926000", "1m", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(out); i++ {
		if out[i].TS.Before(out[i-1].TS) {
			t.Fatalf("output not sorted ascending at index %d", i)
		}
	}
}

func TestFetch_ChunkFailureAbortsWithNoPartialResult(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 150)
	callN := 0
	fc := &fakeChunkFetcher{
		fail: func(f, t time.Time) bool {
			callN++
			return callN == 2
		},
		gen: func(f, t time.Time) []model.Candle { return []model.Candle{candleAt(f, 100)} },
	}
	fetcher := New(fc)
	out, err := fetcher.Fetch(context.Background(), "99926000", "1m", from, to)
	if err == nil {
		t.Fatalf("expected an error from the failing chunk")
	}
	if out != nil {
		t.Fatalf("expected no partial results, got %d candles", len(out))
	}
}

func TestFetch_UnknownIntervalRejected(t *testing.T) {
	fc := &fakeChunkFetcher{gen: func(f, t time.Time) []model.Candle { return nil }}
	fetcher := New(fc)
	_, err := fetcher.Fetch(context.Background(), "99926000", "7m", time.Now(), time.Now())
	if err == nil {
		t.Fatalf("expected an error for an unknown interval")
	}
}
