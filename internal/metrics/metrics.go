// Package metrics собирает метрики Prometheus по запускам анализа и проверки исходов.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Результаты этапа отправки
const (
	DispatchSent      = "sent"
	DispatchDuplicate = "duplicate"
	DispatchFiltered  = "filtered"
	DispatchWeak      = "weak"
	DispatchFailed    = "failed"
)

// Результаты этапа сохранения
const (
	PersistStored    = "stored"
	PersistDuplicate = "duplicate"
	PersistSkipped   = "skipped"
	PersistFailed    = "failed"
)

// Recorder метрики сервиса. Методы безопасно вызывать на nil.
type Recorder struct {
	registry *prometheus.Registry

	runDuration *prometheus.HistogramVec
	runsTotal   *prometheus.CounterVec
	classified  *prometheus.CounterVec
	dispatched  *prometheus.CounterVec
	persisted   *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
}

// New создает Recorder со своим реестром
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bfsignals_run_duration_seconds",
			Help:    "Длительность запусков по типу",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bfsignals_runs_total",
			Help: "Количество запусков по типу и результату",
		}, []string{"kind", "result"}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bfsignals_signals_classified_total",
			Help: "Классифицированные сигналы",
		}, []string{"symbol", "type", "strength"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bfsignals_dispatch_total",
			Help: "Результаты этапа отправки",
		}, []string{"result"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bfsignals_persist_total",
			Help: "Результаты этапа сохранения",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bfsignals_outcomes_total",
			Help: "Статусы проверенных сигналов",
		}, []string{"status"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bfsignals_fetch_errors_total",
			Help: "Ошибки получения свечей",
		}, []string{"stage"}),
		lastPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bfsignals_last_price",
			Help: "Последняя цена закрытия по символу",
		}, []string{"symbol"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.runDuration, r.runsTotal, r.classified, r.dispatched,
		r.persisted, r.outcomes, r.fetchErrors, r.lastPrice,
	)
	return r
}

// Registry реестр метрик
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler HTTP обработчик для /metrics
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRun фиксирует завершение запуска
func (r *Recorder) ObserveRun(kind string, d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.runsTotal.WithLabelValues(kind, result).Inc()
	r.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (r *Recorder) SignalClassified(symbol, typ, strength string) {
	if r == nil {
		return
	}
	r.classified.WithLabelValues(symbol, typ, strength).Inc()
}

func (r *Recorder) Dispatch(result string) {
	if r == nil {
		return
	}
	r.dispatched.WithLabelValues(result).Inc()
}

func (r *Recorder) Persist(result string) {
	if r == nil {
		return
	}
	r.persisted.WithLabelValues(result).Inc()
}

func (r *Recorder) Outcome(status string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(status).Inc()
}

func (r *Recorder) FetchError(stage string) {
	if r == nil {
		return
	}
	r.fetchErrors.WithLabelValues(stage).Inc()
}

func (r *Recorder) LastPrice(symbol string, price float64) {
	if r == nil {
		return
	}
	r.lastPrice.WithLabelValues(symbol).Set(price)
}
