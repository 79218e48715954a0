package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.SignalClassified("BTCUSDT", "BUY", "STRONG")
	r.SignalClassified("BTCUSDT", "BUY", "STRONG")
	r.Dispatch(DispatchSent)
	r.Persist(PersistDuplicate)
	r.Outcome("DONE")
	r.FetchError("analysis")
	r.LastPrice("BTCUSDT", 50000)
	r.ObserveRun("analysis", 2*time.Second, nil)
	r.ObserveRun("analysis", time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(r.classified.WithLabelValues("BTCUSDT", "BUY", "STRONG")); got != 2 {
		t.Errorf("expected 2 classified, got %v", got)
	}
	if got := testutil.ToFloat64(r.dispatched.WithLabelValues(DispatchSent)); got != 1 {
		t.Errorf("expected 1 sent, got %v", got)
	}
	if got := testutil.ToFloat64(r.persisted.WithLabelValues(PersistDuplicate)); got != 1 {
		t.Errorf("expected 1 duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(r.outcomes.WithLabelValues("DONE")); got != 1 {
		t.Errorf("expected 1 DONE, got %v", got)
	}
	if got := testutil.ToFloat64(r.lastPrice.WithLabelValues("BTCUSDT")); got != 50000 {
		t.Errorf("expected price 50000, got %v", got)
	}
	if got := testutil.ToFloat64(r.runsTotal.WithLabelValues("analysis", "error")); got != 1 {
		t.Errorf("expected 1 failed run, got %v", got)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.SignalClassified("BTCUSDT", "BUY", "STRONG")
	r.Dispatch(DispatchSent)
	r.Persist(PersistStored)
	r.Outcome("MISSED")
	r.FetchError("status")
	r.LastPrice("BTCUSDT", 1)
	r.ObserveRun("status", time.Second, nil)
	if r.Handler() == nil {
		t.Error("expected default handler for nil recorder")
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.Dispatch(DispatchFiltered)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `bfsignals_dispatch_total{result="filtered"} 1`) {
		t.Errorf("expected dispatch counter in output, got:\n%s", body)
	}
}
