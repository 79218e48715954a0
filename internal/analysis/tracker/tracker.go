// Package tracker проверяет исходы сохраненных сигналов по истории свечей.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/analysis/outcome"
	"github.com/skalibog/bfsignals/internal/config"
	"github.com/skalibog/bfsignals/internal/metrics"
	"github.com/skalibog/bfsignals/internal/ratelimit"
	"github.com/skalibog/bfsignals/internal/storage"
	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

// CandleSource свечи за интервал времени
type CandleSource interface {
	FetchRange(ctx context.Context, symbol, interval string, start, end time.Time) (models.CandleSeries, error)
}

// Options окно выборки сигналов
type Options struct {
	// Сигналы моложе Hours не проверяются
	Hours int
	// Глубина окна в часах
	Range int
	// Интервал свечей, если у сигнала он не сохранен
	Interval string
}

// OptionsFromConfig собирает параметры из конфигурации
func OptionsFromConfig(cfg config.StatusConfig) Options {
	return Options{Hours: cfg.Hours, Range: cfg.Range, Interval: cfg.Interval}
}

// Window возвращает [now-(hours+range), now-hours]
func (o Options) Window(now time.Time) (from, to time.Time) {
	to = now.Add(-time.Duration(o.Hours) * time.Hour)
	from = to.Add(-time.Duration(o.Range) * time.Hour)
	return from, to
}

// Summary итоги проверки
type Summary struct {
	From, To time.Time
	Total    int

	Done       int
	Missed     int
	Processing int
	Errors     int

	Duration time.Duration
}

// Tracker проверка статусов
type Tracker struct {
	opts    Options
	store   storage.SignalStore
	source  CandleSource
	journal storage.Journal
	pacer   ratelimit.Pacer
	metrics *metrics.Recorder
	now     func() time.Time
}

// New создает проверку статусов. journal, pacer и rec могут быть nil.
func New(opts Options, store storage.SignalStore, source CandleSource, journal storage.Journal, pacer ratelimit.Pacer, rec *metrics.Recorder) *Tracker {
	if journal == nil {
		journal = storage.NopJournal{}
	}
	if pacer == nil {
		pacer = ratelimit.None{}
	}
	if opts.Interval == "" {
		opts.Interval = "15m"
	}
	return &Tracker{
		opts:    opts,
		store:   store,
		source:  source,
		journal: journal,
		pacer:   pacer,
		metrics: rec,
		now:     time.Now,
	}
}

// Run проверяет все ожидающие сигналы окна
func (t *Tracker) Run(ctx context.Context) (*Summary, error) {
	started := t.now()
	sum := &Summary{}
	sum.From, sum.To = t.opts.Window(started)

	logger.Info("Запуск проверки статусов",
		zap.Time("from", sum.From),
		zap.Time("to", sum.To),
		zap.Int("hours", t.opts.Hours),
		zap.Int("range", t.opts.Range))

	pending, err := t.store.Pending(ctx, sum.From, sum.To)
	if err != nil {
		return sum, fmt.Errorf("ошибка выборки сигналов: %w", err)
	}
	sum.Total = len(pending)

	if len(pending) == 0 {
		logger.Info("Сигналы для проверки не найдены", zap.Time("from", sum.From), zap.Time("to", sum.To))
		sum.Duration = t.now().Sub(started)
		return sum, nil
	}

	for i, sig := range pending {
		if i > 0 {
			if err := t.pacer.Wait(ctx); err != nil {
				sum.Duration = t.now().Sub(started)
				return sum, err
			}
		}

		status, err := t.check(ctx, sig)
		if err != nil {
			sum.Errors++
			logger.Error("Ошибка проверки сигнала",
				zap.Int64("id", sig.ID),
				zap.String("symbol", sig.Symbol),
				zap.String("type", string(sig.Type)),
				zap.Error(err))
			continue
		}

		switch status {
		case models.StatusDone:
			sum.Done++
		case models.StatusMissed:
			sum.Missed++
		case models.StatusProcessing:
			sum.Processing++
		}
	}

	sum.Duration = t.now().Sub(started)
	logger.Info("Проверка статусов завершена",
		zap.Int("total", sum.Total),
		zap.Int("done", sum.Done),
		zap.Int("missed", sum.Missed),
		zap.Int("processing", sum.Processing),
		zap.Int("errors", sum.Errors),
		zap.Duration("duration", sum.Duration))
	return sum, nil
}

// check проверяет один сигнал. Паника при разборе данных превращается в ошибку.
func (t *Tracker) check(ctx context.Context, sig models.PersistedSignal) (status models.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника при проверке сигнала %d: %v", sig.ID, r)
		}
	}()

	interval := sig.Interval
	if interval == "" {
		interval = t.opts.Interval
	}
	start, end := sig.DecisionTime(), t.now()

	log := logger.With(zap.Int64("id", sig.ID), zap.String("symbol", sig.Symbol))
	log.Debug("Проверка сигнала", zap.String("type", string(sig.Type)), zap.Time("decision_time", start))

	candles, fetchErr := t.source.FetchRange(ctx, sig.Symbol, interval, start, end)
	if fetchErr != nil {
		t.metrics.FetchError("status")
		log.Warn("Ошибка получения свечей, проверка по полученным данным",
			zap.Int("candles", len(candles)),
			zap.Error(fetchErr))
	}

	res, err := outcome.Evaluate(sig, candles)
	if err != nil {
		return "", err
	}

	if errors.Is(res.Diagnostic, outcome.ErrNoCandles) {
		log.Warn("Нет свечей для проверки, статус не изменен")
		t.metrics.Outcome(string(res.Status))
		return res.Status, nil
	}

	if err := t.store.UpdateStatus(ctx, sig.ID, res.Status); err != nil {
		return "", fmt.Errorf("ошибка обновления статуса: %w", err)
	}

	t.metrics.Outcome(string(res.Status))
	t.journal.RecordOutcome(sig, storage.OutcomeRecord{
		Status:     res.Status,
		ResolvedAt: res.ResolvedAt,
		ExitPrice:  res.ExitPrice,
		Scanned:    res.Scanned,
	})

	log.Info("Статус сигнала обновлен",
		zap.String("old_status", string(sig.Status)),
		zap.String("new_status", string(res.Status)),
		zap.Int("scanned", res.Scanned))
	return res.Status, nil
}
