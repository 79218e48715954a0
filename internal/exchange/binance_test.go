package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
)

func klineJSON(n int, startMs int64) string {
	rows := make([]string, n)
	for i := 0; i < n; i++ {
		open := startMs + int64(i)*900_000
		rows[i] = fmt.Sprintf(`[%d,"100.5","101.25","99.75","100.9","12.5",%d,"1260.0",42,"6.0","600.0","0"]`,
			open, open+899_999)
	}
	return "[" + strings.Join(rows, ",") + "]"
}

func testFeed(t *testing.T, handler http.HandlerFunc) *BinanceFeed {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := futures.NewClient("", "")
	client.BaseURL = srv.URL
	f := newBinanceFeed(client, 2)
	f.backoff = func() *backoff.Backoff {
		return &backoff.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond}
	}
	return f
}

func TestBinanceFeed_FetchCandles(t *testing.T) {
	var query string
	f := testFeed(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		fmt.Fprint(w, klineJSON(3, 1_700_000_000_000))
	})

	start := time.UnixMilli(1_700_000_000_000)
	candles, err := f.FetchCandles(context.Background(), Request{
		Symbol:   "btc",
		Interval: "15m",
		Limit:    3,
		Start:    start,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"symbol=BTCUSDT", "interval=15m", "limit=3", "startTime=1700000000000"} {
		if !strings.Contains(query, want) {
			t.Errorf("expected %q in query %q", want, query)
		}
	}
	if strings.Contains(query, "endTime") {
		t.Errorf("unexpected endTime in query %q", query)
	}

	if len(candles) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(candles))
	}
	c := candles[0]
	if c.Open != 100.5 || c.High != 101.25 || c.Low != 99.75 || c.Close != 100.9 || c.Volume != 12.5 {
		t.Errorf("unexpected prices %+v", c)
	}
	if c.CloseTime != c.OpenTime+899_999 || c.Symbol != "BTCUSDT" || c.Interval != "15m" {
		t.Errorf("unexpected candle metadata %+v", c)
	}
}

func TestBinanceFeed_MinCandles(t *testing.T) {
	f := testFeed(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, klineJSON(2, 0))
	})

	_, err := f.FetchCandles(context.Background(), Request{Symbol: "ETH", Interval: "15m", Limit: 200, MinCandles: 100})
	if !errors.Is(err, ErrInsufficientCandles) {
		t.Fatalf("expected ErrInsufficientCandles, got %v", err)
	}
	if !IsUpstream(err) {
		t.Error("expected UpstreamError")
	}
}

func TestBinanceFeed_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	f := testFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"code":-1000,"msg":"unavailable"}`)
			return
		}
		fmt.Fprint(w, klineJSON(1, 0))
	})

	candles, err := f.FetchCandles(context.Background(), Request{Symbol: "BTC", Interval: "15m", Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 1 || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 1 candle after 2 calls, got %d candles, %d calls", len(candles), calls)
	}
}

func TestBinanceFeed_GivesUp(t *testing.T) {
	var calls int32
	f := testFeed(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"code":-1000,"msg":"down"}`)
	})

	_, err := f.FetchCandles(context.Background(), Request{Symbol: "BTC", Interval: "15m", Limit: 1})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Symbol != "BTCUSDT" {
		t.Errorf("expected BTCUSDT, got %s", ue.Symbol)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestBinanceFeed_NoRetryOnBadRequest(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
	}{
		{"invalid symbol", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, 1},
		{"invalid interval", http.StatusBadRequest, `{"code":-1120,"msg":"Invalid interval."}`, 1},
		{"rate limit", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests."}`, 3},
		{"teapot ban", http.StatusTeapot, `{"code":-1003,"msg":"Way too many requests."}`, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			f := testFeed(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := f.FetchCandles(context.Background(), Request{Symbol: "NOPE", Interval: "15m", Limit: 1})
			if !IsUpstream(err) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestConvertKline_BadNumber(t *testing.T) {
	_, err := convertKline(&futures.Kline{Open: "x", High: "1", Low: "1", Close: "1", Volume: "1"})
	if err == nil {
		t.Error("expected parse error")
	}
	if _, err := convertKline(nil); err == nil {
		t.Error("expected error for nil kline")
	}
}
