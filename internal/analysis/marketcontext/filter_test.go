package marketcontext

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skalibog/bfsignals/internal/exchange"
	"github.com/skalibog/bfsignals/pkg/models"
)

func closes(values ...float64) (models.Candle, models.Candle) {
	return models.Candle{Close: values[0]}, models.Candle{Close: values[1]}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		prev    float64
		last    float64
		symbol  string
		signal  models.SignalType
		allowed bool
	}{
		{"calm market", 100, 100.5, "ETH", models.SignalBuy, true},
		{"high volatility up blocks buy", 100, 103.5, "ETH", models.SignalBuy, false},
		{"high volatility down blocks benchmark", 100, 96.5, "BTC", models.SignalBuy, false},
		{"exactly 3 percent allowed", 100, 103, "ETH", models.SignalSell, true},
		{"benchmark drop blocks alt sell", 100, 98.5, "ETH", models.SignalSell, false},
		{"benchmark drop allows alt buy", 100, 98.5, "ETH", models.SignalBuy, true},
		{"benchmark drop allows benchmark sell", 100, 98.5, "BTCUSDT", models.SignalSell, true},
		{"exactly minus 1 percent allowed", 100, 99, "ETH", models.SignalSell, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, last := closes(tt.prev, tt.last)
			d := Evaluate(prev, last, tt.symbol, "BTC", tt.signal)
			if d.Allowed != tt.allowed {
				t.Errorf("expected allowed=%v, got %v (%s)", tt.allowed, d.Allowed, d.Reason)
			}
		})
	}
}

type stubFeed struct {
	candles models.CandleSeries
	err     error
	req     exchange.Request
}

func (s *stubFeed) FetchCandles(_ context.Context, req exchange.Request) (models.CandleSeries, error) {
	s.req = req
	return s.candles, s.err
}

func TestFilter_FailOpen(t *testing.T) {
	f := New(&stubFeed{err: errors.New("timeout")}, "BTC", "15m")
	d := f.Check(context.Background(), "ETH", models.SignalSell)
	if !d.Allowed {
		t.Error("expected fail-open on fetch error")
	}
}

func TestFilter_DropsFormingCandle(t *testing.T) {
	now := time.Date(2026, 2, 4, 12, 7, 0, 0, time.UTC)
	base := now.Add(-37 * time.Minute).UnixMilli()
	step := int64(15 * 60 * 1000)

	feed := &stubFeed{candles: models.CandleSeries{
		{OpenTime: base, CloseTime: base + step - 1, Close: 100},
		{OpenTime: base + step, CloseTime: base + 2*step - 1, Close: 100.2},
		// формирующаяся свеча с резким движением не учитывается
		{OpenTime: base + 2*step, CloseTime: base + 3*step - 1, Close: 90},
	}}

	f := New(feed, "BTC", "15m")
	f.now = func() time.Time { return now }

	d := f.Check(context.Background(), "ETH", models.SignalBuy)
	if !d.Allowed {
		t.Errorf("expected allowed, got %s", d.Reason)
	}
	if feed.req.Limit != 3 || feed.req.Symbol != "BTC" {
		t.Errorf("unexpected request %+v", feed.req)
	}
}

func TestFilter_InsufficientData(t *testing.T) {
	f := New(&stubFeed{candles: models.CandleSeries{{Close: 1, CloseTime: 1}}}, "BTC", "15m")
	if d := f.Check(context.Background(), "ETH", models.SignalSell); !d.Allowed {
		t.Error("expected allowed with insufficient data")
	}
}
