// Package historical chunks large historical-candle requests into
// per-interval day-bounded windows and merges the results.
package historical

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradingcore/internal/model"
)

// maxDaysPerRequest bounds how many days a single upstream call may span,
// per interval. Mirrors the teacher's nseHolidays2026 constant-table style.
var maxDaysPerRequest = map[string]int{
	"day": 2000,
	"60m": 200,
	"30m": 100,
	"15m": 100,
	"5m":  60,
	"3m":  60,
	"1m":  60,
}

// ChunkFetcher queries one window of candles from the upstream historical
// data API. Implementations wrap pkg/smartconnect.GetCandleData or similar.
type ChunkFetcher interface {
	FetchCandles(ctx context.Context, token, interval string, from, to time.Time) ([]model.Candle, error)
}

// Fetcher walks a requested [from, to] range in interval-specific chunks.
type Fetcher struct {
	chunks ChunkFetcher
}

// New creates a Fetcher backed by the given chunk-level source.
func New(chunks ChunkFetcher) *Fetcher {
	return &Fetcher{chunks: chunks}
}

// Fetch returns the full [from, to] range for token/interval, deduplicated
// by timestamp (first occurrence wins) and sorted ascending. A failure in
// any chunk aborts the whole fetch — no partial results are returned.
func (f *Fetcher) Fetch(ctx context.Context, token, interval string, from, to time.Time) ([]model.Candle, error) {
	limitDays, ok := maxDaysPerRequest[interval]
	if !ok {
		return nil, fmt.Errorf("historical: unknown interval %q", interval)
	}

	windows := windowsFor(from, to, limitDays)

	seen := make(map[int64]bool)
	var out []model.Candle
	for _, w := range windows {
		candles, err := f.chunks.FetchCandles(ctx, token, interval, w.from, w.to)
		if err != nil {
			return nil, fmt.Errorf("historical: chunk [%s, %s] failed: %w", w.from.Format(time.RFC3339), w.to.Format(time.RFC3339), err)
		}
		for _, c := range candles {
			key := c.TS.UnixNano()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

type window struct {
	from, to time.Time
}

// windowsFor splits [from, to] into inclusive-bound windows no longer than
// limitDays each. If the whole range already fits, it returns one window.
func windowsFor(from, to time.Time, limitDays int) []window {
	totalDays := int(to.Sub(from).Hours() / 24)
	if totalDays <= limitDays {
		return []window{{from, to}}
	}

	var windows []window
	cur := from
	step := time.Duration(limitDays) * 24 * time.Hour
	for cur.Before(to) {
		end := cur.Add(step)
		if end.After(to) {
			end = to
		}
		windows = append(windows, window{cur, end})
		cur = end
	}
	return windows
}
