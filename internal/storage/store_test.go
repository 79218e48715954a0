package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/skalibog/bfsignals/pkg/models"
)

var base = time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]SignalStore {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "signals.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]SignalStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func newSignal(symbol string, typ models.SignalType, strength models.Strength, created time.Time) *models.PersistedSignal {
	sl, tp := 48850.0, 51000.0
	s := &models.PersistedSignal{
		Symbol:    symbol,
		Strategy:  "EMA+RSI+MACD",
		Interval:  "15m",
		Limit:     200,
		FlowID:    "flow-1",
		CreatedAt: created,
	}
	s.Type = typ
	s.Strength = strength
	s.Price = 50000
	s.RSI = 55.1234
	s.ATR = 500
	s.LongProbability = 100
	s.Reason = "RSI: 55.12"
	if typ.Directional() {
		s.StopLoss, s.TakeProfit = &sl, &tp
	}
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sig := newSignal("BTCUSDT", models.SignalBuy, models.StrengthStrong, base)
			sig.MACDHistATR = 0.123456789123

			if err := store.Create(ctx, sig); err != nil {
				t.Fatalf("create: %v", err)
			}
			if sig.ID == 0 {
				t.Fatal("expected id to be assigned")
			}

			got, err := store.Get(ctx, sig.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Symbol != "BTCUSDT" || got.Type != models.SignalBuy || got.Strength != models.StrengthStrong {
				t.Errorf("unexpected signal %+v", got)
			}
			if !got.CreatedAt.Equal(base) {
				t.Errorf("expected created_at %v, got %v", base, got.CreatedAt)
			}
			if got.Price != 50000 || got.RSI != 55.1234 {
				t.Errorf("unexpected price/rsi %v/%v", got.Price, got.RSI)
			}
			if !got.HasLevels() || *got.StopLoss != 48850 || *got.TakeProfit != 51000 {
				t.Errorf("unexpected levels %v/%v", got.StopLoss, got.TakeProfit)
			}
			if math.Abs(got.MACDHistATR-0.12345679) > 1e-12 && got.MACDHistATR != sig.MACDHistATR {
				t.Errorf("unexpected macd_hist_atr %v", got.MACDHistATR)
			}
			if got.Status != models.StatusNone || !got.SignalTime.IsZero() {
				t.Errorf("expected empty status and signal_time, got %q %v", got.Status, got.SignalTime)
			}

			if _, err := store.Get(ctx, 9999); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_HoldWithoutLevels(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sig := newSignal("ETHUSDT", models.SignalHold, models.StrengthWeak, base)
			if err := store.Create(ctx, sig); err != nil {
				t.Fatal(err)
			}
			got, err := store.Get(ctx, sig.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.StopLoss != nil || got.TakeProfit != nil {
				t.Error("expected null levels for HOLD")
			}
		})
	}
}

func TestStore_SetSignalTimeOnce(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sig := newSignal("BTCUSDT", models.SignalBuy, models.StrengthStrong, base)
			if err := store.Create(ctx, sig); err != nil {
				t.Fatal(err)
			}

			st := base.Add(4 * time.Hour)
			if err := store.SetSignalTime(ctx, sig.ID, st); err != nil {
				t.Fatalf("first set: %v", err)
			}
			if err := store.SetSignalTime(ctx, sig.ID, st.Add(time.Hour)); !errors.Is(err, ErrSignalTimeSet) {
				t.Errorf("expected ErrSignalTimeSet, got %v", err)
			}
			if err := store.SetSignalTime(ctx, 9999, st); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}

			got, _ := store.Get(ctx, sig.ID)
			if !got.SignalTime.Equal(st) {
				t.Errorf("expected signal_time %v, got %v", st, got.SignalTime)
			}
		})
	}
}

func TestStore_UpdateStatusNeverReverts(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sig := newSignal("BTCUSDT", models.SignalBuy, models.StrengthStrong, base)
			if err := store.Create(ctx, sig); err != nil {
				t.Fatal(err)
			}

			for _, st := range []models.Status{models.StatusProcessing, models.StatusProcessing, models.StatusDone, models.StatusDone} {
				if err := store.UpdateStatus(ctx, sig.ID, st); err != nil {
					t.Fatalf("update to %s: %v", st, err)
				}
			}
			if err := store.UpdateStatus(ctx, sig.ID, models.StatusMissed); !errors.Is(err, ErrStatusFinal) {
				t.Errorf("expected ErrStatusFinal, got %v", err)
			}
			if err := store.UpdateStatus(ctx, sig.ID, models.StatusProcessing); !errors.Is(err, ErrStatusFinal) {
				t.Errorf("expected ErrStatusFinal, got %v", err)
			}
			if err := store.UpdateStatus(ctx, 9999, models.StatusDone); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}

			got, _ := store.Get(ctx, sig.ID)
			if got.Status != models.StatusDone {
				t.Errorf("expected DONE, got %s", got.Status)
			}
		})
	}
}

func TestStore_UpdateStatusRejectsReset(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sig := newSignal("ETHUSDT", models.SignalSell, models.StrengthMedium, base)
			if err := store.Create(ctx, sig); err != nil {
				t.Fatal(err)
			}
			if err := store.UpdateStatus(ctx, sig.ID, models.StatusProcessing); err != nil {
				t.Fatal(err)
			}
			if err := store.UpdateStatus(ctx, sig.ID, models.StatusNone); !errors.Is(err, ErrStatusReset) {
				t.Errorf("expected ErrStatusReset, got %v", err)
			}

			got, _ := store.Get(ctx, sig.ID)
			if got.Status != models.StatusProcessing {
				t.Errorf("expected PROCESSING, got %s", got.Status)
			}
		})
	}
}

func TestStore_NonFiniteValues(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sig := newSignal("SOLUSDT", models.SignalBuy, models.StrengthStrong, base)
			nan := math.NaN()
			sig.ATR = math.Inf(1)
			sig.MACDHistATR = math.NaN()
			sig.StopLoss = &nan

			if err := store.Create(ctx, sig); err != nil {
				t.Fatalf("create with non-finite values: %v", err)
			}
			if _, err := store.Get(ctx, sig.ID); err != nil {
				t.Fatalf("get: %v", err)
			}
		})
	}
}

func TestStore_Query(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a := newSignal("BTCUSDT", models.SignalBuy, models.StrengthStrong, base.Add(-10*time.Minute))
			a.SentToTelegram = true
			b := newSignal("BTCUSDT", models.SignalBuy, models.StrengthMedium, base.Add(-40*time.Minute))
			c := newSignal("BTCUSDT", models.SignalSell, models.StrengthStrong, base.Add(-5*time.Minute))
			d := newSignal("ETHUSDT", models.SignalBuy, models.StrengthStrong, base.Add(-1*time.Minute))
			for _, s := range []*models.PersistedSignal{a, b, c, d} {
				if err := store.Create(ctx, s); err != nil {
					t.Fatal(err)
				}
			}
			if err := store.UpdateStatus(ctx, c.ID, models.StatusMissed); err != nil {
				t.Fatal(err)
			}

			tests := []struct {
				name string
				q    SignalQuery
				want []int64
			}{
				{"all newest first", SignalQuery{}, []int64{d.ID, c.ID, a.ID, b.ID}},
				{"by symbol base", SignalQuery{Symbol: "BTC"}, []int64{c.ID, a.ID, b.ID}},
				{"symbol and type", SignalQuery{Symbol: "BTCUSDT", Type: models.SignalBuy}, []int64{a.ID, b.ID}},
				{"created since", SignalQuery{Symbol: "BTC", Type: models.SignalBuy, CreatedSince: base.Add(-30 * time.Minute)}, []int64{a.ID}},
				{"sent only", SignalQuery{SentOnly: true}, []int64{a.ID}},
				{"strength and strategy", SignalQuery{Strength: models.StrengthMedium, Strategy: "EMA+RSI+MACD"}, []int64{b.ID}},
				{"status missed", SignalQuery{Statuses: []models.Status{models.StatusMissed}}, []int64{c.ID}},
				{"status null", SignalQuery{Symbol: "BTC", Statuses: []models.Status{models.StatusNone}}, []int64{a.ID, b.ID}},
				{"limit", SignalQuery{Limit: 2}, []int64{d.ID, c.ID}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := store.Query(ctx, tt.q)
					if err != nil {
						t.Fatal(err)
					}
					if len(got) != len(tt.want) {
						t.Fatalf("expected %d signals, got %d", len(tt.want), len(got))
					}
					for i, id := range tt.want {
						if got[i].ID != id {
							t.Errorf("position %d: expected id %d, got %d", i, id, got[i].ID)
						}
					}
				})
			}
		})
	}
}

func TestStore_Pending(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			from, to := base.Add(-36*time.Hour), base.Add(-12*time.Hour)

			inWindow := newSignal("BTCUSDT", models.SignalBuy, models.StrengthStrong, base.Add(-30*time.Hour))
			viaSignalTime := newSignal("ETHUSDT", models.SignalSell, models.StrengthMedium, base.Add(-40*time.Hour))
			viaSignalTime.SignalTime = base.Add(-35 * time.Hour)
			tooRecent := newSignal("SOLUSDT", models.SignalBuy, models.StrengthStrong, base.Add(-2*time.Hour))
			hold := newSignal("XRPUSDT", models.SignalHold, models.StrengthWeak, base.Add(-20*time.Hour))
			done := newSignal("BNBUSDT", models.SignalBuy, models.StrengthStrong, base.Add(-20*time.Hour))
			processing := newSignal("ADAUSDT", models.SignalSell, models.StrengthStrong, base.Add(-20*time.Hour))

			for _, s := range []*models.PersistedSignal{inWindow, viaSignalTime, tooRecent, hold, done, processing} {
				if err := store.Create(ctx, s); err != nil {
					t.Fatal(err)
				}
			}
			if err := store.UpdateStatus(ctx, done.ID, models.StatusDone); err != nil {
				t.Fatal(err)
			}
			if err := store.UpdateStatus(ctx, processing.ID, models.StatusProcessing); err != nil {
				t.Fatal(err)
			}

			got, err := store.Pending(ctx, from, to)
			if err != nil {
				t.Fatal(err)
			}
			want := []int64{viaSignalTime.ID, inWindow.ID, processing.ID}
			if len(got) != len(want) {
				t.Fatalf("expected %d pending, got %d", len(want), len(got))
			}
			for i, id := range want {
				if got[i].ID != id {
					t.Errorf("position %d: expected id %d, got %d", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestStore_Stats(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := newSignal("BTCUSDT", models.SignalBuy, models.StrengthStrong, base)
			a.SentToTelegram = true
			b := newSignal("ETHUSDT", models.SignalSell, models.StrengthStrong, base)
			c := newSignal("SOLUSDT", models.SignalHold, models.StrengthWeak, base)
			for _, s := range []*models.PersistedSignal{a, b, c} {
				if err := store.Create(ctx, s); err != nil {
					t.Fatal(err)
				}
			}
			_ = store.UpdateStatus(ctx, a.ID, models.StatusDone)
			_ = store.UpdateStatus(ctx, b.ID, models.StatusMissed)

			st, err := store.Stats(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if st.Total != 3 || st.Sent != 1 {
				t.Errorf("expected total 3 sent 1, got %d %d", st.Total, st.Sent)
			}
			if st.ByType[models.SignalHold] != 1 || st.ByStatus[models.StatusDone] != 1 || st.ByStatus[models.StatusNone] != 1 {
				t.Errorf("unexpected breakdown %+v", st)
			}
			if st.WinRate() != 50 {
				t.Errorf("expected win rate 50, got %v", st.WinRate())
			}
		})
	}
}
