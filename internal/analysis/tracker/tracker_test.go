package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skalibog/bfsignals/internal/storage"
	"github.com/skalibog/bfsignals/pkg/models"
)

var now = time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)

type rangeCall struct {
	symbol, interval string
	start, end       time.Time
}

type fakeSource struct {
	candles map[string]models.CandleSeries
	errs    map[string]error
	panics  map[string]bool
	calls   []rangeCall
}

func (f *fakeSource) FetchRange(_ context.Context, symbol, interval string, start, end time.Time) (models.CandleSeries, error) {
	f.calls = append(f.calls, rangeCall{symbol, interval, start, end})
	if f.panics[symbol] {
		panic("bad kline")
	}
	return f.candles[symbol], f.errs[symbol]
}

type recordingJournal struct {
	storage.NopJournal
	outcomes []storage.OutcomeRecord
}

func (j *recordingJournal) RecordOutcome(_ models.PersistedSignal, rec storage.OutcomeRecord) {
	j.outcomes = append(j.outcomes, rec)
}

func level(v float64) *float64 { return &v }

func seed(t *testing.T, store storage.SignalStore, symbol string, typ models.SignalType, sl, tp float64, decisionAgo time.Duration) int64 {
	t.Helper()
	var s models.PersistedSignal
	s.Symbol = symbol
	s.Strategy = "EMA+RSI+MACD"
	s.Interval = "15m"
	s.Type = typ
	s.Strength = models.StrengthStrong
	s.Price = 100
	if typ.Directional() {
		s.StopLoss, s.TakeProfit = level(sl), level(tp)
	}
	s.CreatedAt = now.Add(-decisionAgo - 4*time.Hour)
	if err := store.Create(context.Background(), &s); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSignalTime(context.Background(), s.ID, now.Add(-decisionAgo)); err != nil {
		t.Fatal(err)
	}
	return s.ID
}

// candles строит 15-минутные свечи начиная с момента start
func candles(start time.Time, bars ...[2]float64) models.CandleSeries {
	out := make(models.CandleSeries, 0, len(bars))
	for i, b := range bars {
		open := start.Add(time.Duration(i) * 15 * time.Minute)
		out = append(out, models.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(15*time.Minute).UnixMilli() - 1,
			Low:       b[0],
			High:      b[1],
			Open:      (b[0] + b[1]) / 2,
			Close:     (b[0] + b[1]) / 2,
		})
	}
	return out
}

func newTracker(store storage.SignalStore, src CandleSource, journal storage.Journal) *Tracker {
	tr := New(Options{Hours: 12, Range: 24, Interval: "15m"}, store, src, journal, nil, nil)
	tr.now = func() time.Time { return now }
	return tr
}

func status(t *testing.T, store storage.SignalStore, id int64) models.Status {
	t.Helper()
	s, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return s.Status
}

func TestWindow(t *testing.T) {
	from, to := Options{Hours: 12, Range: 24}.Window(now)
	if !to.Equal(now.Add(-12*time.Hour)) || !from.Equal(now.Add(-36*time.Hour)) {
		t.Errorf("unexpected window %v - %v", from, to)
	}
}

func TestRun_ResolvesStatuses(t *testing.T) {
	store := storage.NewMemoryStore()
	ago := 16 * time.Hour
	decision := now.Add(-ago)

	done := seed(t, store, "BTCUSDT", models.SignalBuy, 95, 110, ago)
	missed := seed(t, store, "ETHUSDT", models.SignalSell, 105, 90, ago)
	open := seed(t, store, "SOLUSDT", models.SignalBuy, 95, 110, ago)
	noData := seed(t, store, "XRPUSDT", models.SignalBuy, 95, 110, ago)
	recent := seed(t, store, "BTCUSDT", models.SignalBuy, 95, 110, 2*time.Hour)
	hold := seed(t, store, "BTCUSDT", models.SignalHold, 0, 0, ago)

	src := &fakeSource{
		candles: map[string]models.CandleSeries{
			"BTCUSDT": candles(decision, [2]float64{98, 102}, [2]float64{100, 111}),
			"ETHUSDT": candles(decision, [2]float64{99, 101}, [2]float64{100, 106}),
			"SOLUSDT": candles(decision, [2]float64{97, 103}, [2]float64{96, 109}),
		},
		errs: map[string]error{"XRPUSDT": errors.New("binance unavailable")},
	}
	journal := &recordingJournal{}

	sum, err := newTracker(store, src, journal).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.Total != 4 {
		t.Errorf("expected 4 pending signals, got %d", sum.Total)
	}
	if sum.Done != 1 || sum.Missed != 1 || sum.Processing != 2 || sum.Errors != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	checks := []struct {
		id   int64
		want models.Status
	}{
		{done, models.StatusDone},
		{missed, models.StatusMissed},
		{open, models.StatusProcessing},
		{noData, models.StatusNone},
		{recent, models.StatusNone},
		{hold, models.StatusNone},
	}
	for _, c := range checks {
		if got := status(t, store, c.id); got != c.want {
			t.Errorf("signal %d: expected %q, got %q", c.id, c.want, got)
		}
	}

	if len(journal.outcomes) != 3 {
		t.Errorf("expected 3 journal outcomes, got %d", len(journal.outcomes))
	}

	for _, c := range src.calls {
		if !c.start.Equal(decision) || !c.end.Equal(now) || c.interval != "15m" {
			t.Errorf("unexpected fetch range: %+v", c)
		}
	}
}

func TestRun_Rerun(t *testing.T) {
	store := storage.NewMemoryStore()
	ago := 16 * time.Hour
	decision := now.Add(-ago)
	done := seed(t, store, "BTCUSDT", models.SignalBuy, 95, 110, ago)
	open := seed(t, store, "SOLUSDT", models.SignalBuy, 95, 110, ago)

	src := &fakeSource{candles: map[string]models.CandleSeries{
		"BTCUSDT": candles(decision, [2]float64{100, 111}),
		"SOLUSDT": candles(decision, [2]float64{99, 101}),
	}}
	tr := newTracker(store, src, nil)
	if _, err := tr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// новая свеча закрывает открытую позицию по стопу
	src.candles["SOLUSDT"] = candles(decision, [2]float64{99, 101}, [2]float64{94, 100})
	src.calls = nil
	sum, err := tr.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if sum.Total != 1 || len(src.calls) != 1 || src.calls[0].symbol != "SOLUSDT" {
		t.Errorf("expected only the PROCESSING signal to be rechecked, got %+v", src.calls)
	}
	if got := status(t, store, open); got != models.StatusMissed {
		t.Errorf("expected MISSED, got %s", got)
	}
	if got := status(t, store, done); got != models.StatusDone {
		t.Errorf("expected DONE to stay final, got %s", got)
	}
}

func TestRun_PanicIsolated(t *testing.T) {
	store := storage.NewMemoryStore()
	ago := 16 * time.Hour
	seed(t, store, "BADUSDT", models.SignalBuy, 95, 110, ago)
	ok := seed(t, store, "BTCUSDT", models.SignalBuy, 95, 110, ago)

	src := &fakeSource{
		candles: map[string]models.CandleSeries{"BTCUSDT": candles(now.Add(-ago), [2]float64{100, 111})},
		panics:  map[string]bool{"BADUSDT": true},
	}
	sum, err := newTracker(store, src, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Errors != 1 || sum.Done != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if got := status(t, store, ok); got != models.StatusDone {
		t.Errorf("expected DONE, got %s", got)
	}
}

func TestRun_Empty(t *testing.T) {
	sum, err := newTracker(storage.NewMemoryStore(), &fakeSource{}, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 0 || sum.Done+sum.Missed+sum.Processing+sum.Errors != 0 {
		t.Errorf("expected empty summary, got %+v", sum)
	}
}
