package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skalibog/bfsignals/pkg/models"
)

const interval15m = int64(15 * 60 * 1000)

// fakeFeed отдает свечи из непрерывного ряда, начиная с Request.Start
type fakeFeed struct {
	candles  models.CandleSeries
	requests []Request
	failAt   int
	err      error
}

func (f *fakeFeed) FetchCandles(_ context.Context, req Request) (models.CandleSeries, error) {
	f.requests = append(f.requests, req)
	if f.err != nil && len(f.requests) == f.failAt {
		return nil, f.err
	}

	var out models.CandleSeries
	for _, c := range f.candles {
		if c.OpenTime < req.Start.UnixMilli() {
			continue
		}
		if !req.End.IsZero() && c.OpenTime > req.End.UnixMilli() {
			continue
		}
		out = append(out, c)
		if len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func series(from int64, n int) models.CandleSeries {
	out := make(models.CandleSeries, n)
	for i := range out {
		open := from + int64(i)*interval15m
		out[i] = models.Candle{OpenTime: open, CloseTime: open + interval15m - 1, Close: float64(i)}
	}
	return out
}

type countingPacer struct{ calls int }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.calls++
	return ctx.Err()
}

func TestFetchRange_Pages(t *testing.T) {
	start := int64(1_700_000_100_000)
	feed := &fakeFeed{candles: series(start, 25)}
	pacer := &countingPacer{}

	r := NewRangeFetcher(feed, pacer, 10)
	got, err := r.FetchRange(context.Background(), "BTC", "15m",
		time.UnixMilli(start), time.UnixMilli(start+24*interval15m))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 25 {
		t.Fatalf("expected 25 candles, got %d", len(got))
	}
	if len(feed.requests) != 3 {
		t.Errorf("expected 3 pages, got %d", len(feed.requests))
	}
	if pacer.calls != 2 {
		t.Errorf("expected 2 pacer waits, got %d", pacer.calls)
	}
	wantStart := start + 10*interval15m
	if feed.requests[1].Start.UnixMilli() != wantStart {
		t.Errorf("expected second page at %d, got %d", wantStart, feed.requests[1].Start.UnixMilli())
	}
}

func TestFetchRange_StopsAtEnd(t *testing.T) {
	start := int64(0)
	feed := &fakeFeed{candles: series(start, 100)}

	r := NewRangeFetcher(feed, nil, 10)
	end := start + 9*interval15m + 5
	got, err := r.FetchRange(context.Background(), "BTC", "15m", time.UnixMilli(start), time.UnixMilli(end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("expected 10 candles, got %d", len(got))
	}
	if len(feed.requests) != 1 {
		t.Errorf("expected single page, got %d", len(feed.requests))
	}
}

func TestFetchRange_FiltersOutsideRange(t *testing.T) {
	start := int64(10 * interval15m)
	// источник игнорирует границы и отдает лишнее
	feed := &fakeFeed{candles: series(0, 30)}
	wrapped := feedFunc(func(ctx context.Context, req Request) (models.CandleSeries, error) {
		req.Start = time.UnixMilli(0)
		return feed.FetchCandles(ctx, req)
	})

	r := NewRangeFetcher(wrapped, nil, 1000)
	got, err := r.FetchRange(context.Background(), "BTC", "15m",
		time.UnixMilli(start), time.UnixMilli(start+4*interval15m))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 candles, got %d", len(got))
	}
	if got[0].OpenTime != start {
		t.Errorf("expected first candle at %d, got %d", start, got[0].OpenTime)
	}
}

func TestFetchRange_PageErrorKeepsCollected(t *testing.T) {
	start := int64(0)
	boom := errors.New("boom")
	feed := &fakeFeed{candles: series(start, 25), failAt: 2, err: boom}

	r := NewRangeFetcher(feed, nil, 10)
	got, err := r.FetchRange(context.Background(), "BTC", "15m",
		time.UnixMilli(start), time.UnixMilli(start+24*interval15m))
	if !errors.Is(err, boom) {
		t.Fatalf("expected page error, got %v", err)
	}
	if len(got) != 10 {
		t.Errorf("expected 10 collected candles, got %d", len(got))
	}
}

type feedFunc func(ctx context.Context, req Request) (models.CandleSeries, error)

func (f feedFunc) FetchCandles(ctx context.Context, req Request) (models.CandleSeries, error) {
	return f(ctx, req)
}
