// Package aggregator выполняет прогон анализа: свечи, индикаторы, классификация, отправка и сохранение сигналов.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/analysis/classifier"
	"github.com/skalibog/bfsignals/internal/analysis/dedup"
	"github.com/skalibog/bfsignals/internal/analysis/marketcontext"
	"github.com/skalibog/bfsignals/internal/config"
	"github.com/skalibog/bfsignals/internal/exchange"
	"github.com/skalibog/bfsignals/internal/indicators"
	"github.com/skalibog/bfsignals/internal/metrics"
	"github.com/skalibog/bfsignals/internal/notify"
	"github.com/skalibog/bfsignals/internal/ratelimit"
	"github.com/skalibog/bfsignals/internal/storage"
	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

// ContextChecker проверка рыночного контекста
type ContextChecker interface {
	Check(ctx context.Context, symbol string, t models.SignalType) marketcontext.Decision
}

// Gate проверки дубликатов перед отправкой и сохранением
type Gate interface {
	AllowPersist(ctx context.Context, c dedup.Candidate) (bool, error)
	AllowDispatch(ctx context.Context, c dedup.Candidate) (bool, error)
}

// Options параметры прогона
type Options struct {
	Symbols    []string
	Interval   string
	Limit      int
	MinCandles int
	Strategy   string

	// Отправка выполняется только при Dispatch и заданном Notifier
	Dispatch      bool
	MinStrength   models.Strength
	UnanimousOnly bool
	// signal_time = created_at + SignalTimeOffset
	SignalTimeOffset time.Duration
}

// OptionsFromConfig собирает параметры прогона из конфигурации
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Symbols:          cfg.Trading.Symbols,
		Interval:         cfg.Trading.Interval,
		Limit:            cfg.Trading.Limit,
		MinCandles:       cfg.Trading.MinCandles,
		Strategy:         cfg.Strategy.Name,
		Dispatch:         cfg.Dispatch.Enabled,
		MinStrength:      models.Strength(cfg.Dispatch.MinStrength),
		UnanimousOnly:    cfg.Persist.UnanimousOnly,
		SignalTimeOffset: cfg.Strategy.SignalTimeOffset,
	}
}

// Dependencies компоненты прогона. Context, Notifier, Journal, Pacer и Metrics необязательны.
type Dependencies struct {
	Feed       exchange.PriceFeed
	Params     indicators.Params
	Classifier *classifier.Classifier
	Context    ContextChecker
	Gate       Gate
	Store      storage.SignalStore
	Journal    storage.Journal
	Notifier   notify.Notifier
	Pacer      ratelimit.Pacer
	Metrics    *metrics.Recorder
}

// Result сигнал одного символа в прогоне
type Result struct {
	Symbol string
	Signal models.ClassifiedSignal
	Sent   bool
	Saved  bool
	// ID сохраненного сигнала, 0 если не сохранен
	ID  int64
	Err error
}

// Summary итоги прогона
type Summary struct {
	FlowID   string
	Started  time.Time
	Duration time.Duration

	Success int
	Errors  int

	Sent                int
	SkippedByStrength   int
	SkippedByContext    int
	SkippedByDuplicate  int
	NotifierErrors      int
	Saved               int
	SkippedNotUnanimous int
	SkippedPersistDup   int
	SaveErrors          int

	Results []Result
}

// Skipped всего пропущено на этапе отправки
func (s Summary) Skipped() int {
	return s.SkippedByStrength + s.SkippedByContext + s.SkippedByDuplicate
}

// Analyzer прогон анализа по списку символов
type Analyzer struct {
	opts Options
	deps Dependencies

	now       func() time.Time
	newFlowID func() string
}

// NewAnalyzer создает анализатор
func NewAnalyzer(opts Options, deps Dependencies) *Analyzer {
	if deps.Journal == nil {
		deps.Journal = storage.NopJournal{}
	}
	if deps.Pacer == nil {
		deps.Pacer = ratelimit.None{}
	}
	if opts.MinStrength == "" {
		opts.MinStrength = models.StrengthMedium
	}
	return &Analyzer{
		opts:      opts,
		deps:      deps,
		now:       time.Now,
		newFlowID: func() string { return uuid.NewString() },
	}
}

// Run выполняет прогон: анализ всех символов, затем отправка, затем сохранение
func (a *Analyzer) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{FlowID: a.newFlowID(), Started: a.now()}

	logger.Info("Запуск анализа",
		zap.String("flow_id", sum.FlowID),
		zap.String("strategy", a.opts.Strategy),
		zap.String("profile", a.deps.Classifier.Profile()),
		zap.Strings("symbols", a.opts.Symbols),
		zap.String("interval", a.opts.Interval),
		zap.Int("limit", a.opts.Limit))

	if len(a.opts.Symbols) == 0 {
		return sum, fmt.Errorf("не указаны символы для анализа")
	}

	for i, symbol := range a.opts.Symbols {
		if i > 0 {
			if err := a.deps.Pacer.Wait(ctx); err != nil {
				return sum, err
			}
		}

		res := a.analyzeSymbol(ctx, symbol)
		if res.Err != nil {
			sum.Errors++
			if exchange.IsUpstream(res.Err) {
				logger.Warn("Биржа не вернула данные по символу", zap.String("symbol", symbol), zap.Error(res.Err))
			} else {
				logger.Error("Ошибка анализа символа", zap.String("symbol", symbol), zap.Error(res.Err))
			}
			continue
		}
		sum.Success++
		sum.Results = append(sum.Results, res)
	}

	logger.Info("Анализ символов завершен",
		zap.String("flow_id", sum.FlowID),
		zap.Int("success", sum.Success),
		zap.Int("errors", sum.Errors))

	if a.opts.Dispatch && a.deps.Notifier != nil {
		a.dispatchAll(ctx, sum)
	}
	a.persistAll(ctx, sum)

	sum.Duration = a.now().Sub(sum.Started)
	logger.Info("Анализ завершен",
		zap.String("flow_id", sum.FlowID),
		zap.Duration("duration", sum.Duration),
		zap.Int("success", sum.Success),
		zap.Int("errors", sum.Errors),
		zap.Int("sent", sum.Sent),
		zap.Int("saved", sum.Saved))

	return sum, ctx.Err()
}

// analyzeSymbol получает свечи и классифицирует последнюю закрытую свечу
func (a *Analyzer) analyzeSymbol(ctx context.Context, symbol string) (res Result) {
	res.Symbol = models.PairSymbol(symbol)
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("паника при анализе %s: %v", res.Symbol, r)
		}
	}()

	candles, err := a.deps.Feed.FetchCandles(ctx, exchange.Request{
		Symbol:     symbol,
		Interval:   a.opts.Interval,
		Limit:      a.opts.Limit,
		MinCandles: a.opts.MinCandles,
	})
	if err != nil {
		a.deps.Metrics.FetchError("analysis")
		res.Err = err
		return res
	}

	closed := candles.Normalize().Closed(a.now().UnixMilli())
	last, ok := closed.Last()
	if !ok {
		res.Err = fmt.Errorf("нет закрытых свечей для %s", res.Symbol)
		return res
	}

	snap := indicators.Compute(closed, a.deps.Params)
	res.Signal = a.deps.Classifier.Classify(last.Close, snap)

	a.deps.Metrics.LastPrice(res.Symbol, res.Signal.Price)
	a.deps.Metrics.SignalClassified(res.Symbol, string(res.Signal.Type), string(res.Signal.Strength))

	logger.Debug("Сигнал рассчитан",
		zap.String("symbol", res.Symbol),
		zap.String("type", string(res.Signal.Type)),
		zap.String("strength", string(res.Signal.Strength)),
		zap.Float64("price", res.Signal.Price),
		zap.Float64("rsi", res.Signal.RSI))
	return res
}

// dispatchAll фильтр силы, рыночный контекст, проверка дубликата, отправка
func (a *Analyzer) dispatchAll(ctx context.Context, sum *Summary) {
	for i := range sum.Results {
		res := &sum.Results[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					sum.NotifierErrors++
					logger.Error("Паника при отправке сигнала", zap.String("symbol", res.Symbol), zap.Any("panic", r))
				}
			}()
			a.dispatch(ctx, sum, res)
		}()
	}

	logger.Info("Отправка сигналов завершена",
		zap.String("flow_id", sum.FlowID),
		zap.Int("sent", sum.Sent),
		zap.Int("skipped", sum.Skipped()),
		zap.Int("skipped_by_strength", sum.SkippedByStrength),
		zap.Int("skipped_by_market_context", sum.SkippedByContext),
		zap.Int("skipped_by_duplicate", sum.SkippedByDuplicate),
		zap.Int("notifier_errors", sum.NotifierErrors))
}

func (a *Analyzer) dispatch(ctx context.Context, sum *Summary, res *Result) {
	sig := res.Signal
	if !sig.Type.Directional() || sig.Strength.Rank() < a.opts.MinStrength.Rank() {
		sum.SkippedByStrength++
		a.deps.Metrics.Dispatch(metrics.DispatchWeak)
		return
	}

	if a.deps.Context != nil {
		if d := a.deps.Context.Check(ctx, res.Symbol, sig.Type); !d.Allowed {
			sum.SkippedByContext++
			a.deps.Metrics.Dispatch(metrics.DispatchFiltered)
			logger.Info("Сигнал пропущен по рыночному контексту",
				zap.String("symbol", res.Symbol),
				zap.String("type", string(sig.Type)),
				zap.String("reason", d.Reason))
			return
		}
	}

	if a.deps.Gate != nil {
		ok, err := a.deps.Gate.AllowDispatch(ctx, dedup.CandidateFrom(sig, res.Symbol, a.opts.Strategy))
		switch {
		case err != nil:
			logger.Error("Ошибка проверки дубликата, сигнал отправляется", zap.String("symbol", res.Symbol), zap.Error(err))
		case !ok:
			sum.SkippedByDuplicate++
			a.deps.Metrics.Dispatch(metrics.DispatchDuplicate)
			logger.Info("Дубликат сигнала пропущен",
				zap.String("symbol", res.Symbol),
				zap.String("type", string(sig.Type)),
				zap.String("strength", string(sig.Strength)))
			return
		}
	}

	if err := a.deps.Notifier.Send(ctx, sig, res.Symbol, a.opts.Strategy); err != nil {
		sum.NotifierErrors++
		a.deps.Metrics.Dispatch(metrics.DispatchFailed)
		logger.Error("Ошибка отправки сигнала", zap.String("symbol", res.Symbol), zap.Error(err))
		return
	}

	res.Sent = true
	sum.Sent++
	a.deps.Metrics.Dispatch(metrics.DispatchSent)
	logger.Info("Сигнал отправлен",
		zap.String("symbol", res.Symbol),
		zap.String("type", string(sig.Type)),
		zap.String("strength", string(sig.Strength)),
		zap.Float64("price", sig.Price))
}

// persistAll сохраняет сигналы, прошедшие политику сохранения
func (a *Analyzer) persistAll(ctx context.Context, sum *Summary) {
	for i := range sum.Results {
		res := &sum.Results[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					sum.SaveErrors++
					logger.Error("Паника при сохранении сигнала", zap.String("symbol", res.Symbol), zap.Any("panic", r))
				}
			}()
			a.persist(ctx, sum, res)
		}()
	}

	logger.Info("Сохранение сигналов завершено",
		zap.String("flow_id", sum.FlowID),
		zap.Int("saved", sum.Saved),
		zap.Int("skipped_not_unanimous", sum.SkippedNotUnanimous),
		zap.Int("skipped_duplicate", sum.SkippedPersistDup),
		zap.Int("save_errors", sum.SaveErrors))
}

func (a *Analyzer) persist(ctx context.Context, sum *Summary, res *Result) {
	sig := res.Signal
	if a.opts.UnanimousOnly && !res.Sent && sig.LongProbability != 100 && sig.ShortProbability != 100 {
		sum.SkippedNotUnanimous++
		a.deps.Metrics.Persist(metrics.PersistSkipped)
		return
	}

	// отправленный сигнал сохраняется всегда, иначе гейт отправки не увидит его в следующем прогоне
	if a.deps.Gate != nil && !res.Sent {
		ok, err := a.deps.Gate.AllowPersist(ctx, dedup.CandidateFrom(sig, res.Symbol, a.opts.Strategy))
		if err != nil {
			sum.SaveErrors++
			a.deps.Metrics.Persist(metrics.PersistFailed)
			logger.Error("Ошибка проверки дубликата сохранения", zap.String("symbol", res.Symbol), zap.Error(err))
			return
		}
		if !ok {
			sum.SkippedPersistDup++
			a.deps.Metrics.Persist(metrics.PersistDuplicate)
			logger.Debug("Сигнал уже сохранен в окне сохранения", zap.String("symbol", res.Symbol), zap.String("type", string(sig.Type)))
			return
		}
	}

	rec := models.PersistedSignal{
		ClassifiedSignal: sig,
		FlowID:           sum.FlowID,
		Symbol:           res.Symbol,
		Strategy:         a.opts.Strategy,
		Interval:         a.opts.Interval,
		Limit:            a.opts.Limit,
		CreatedAt:        a.now().UTC(),
		SentToTelegram:   res.Sent,
	}
	if err := a.deps.Store.Create(ctx, &rec); err != nil {
		sum.SaveErrors++
		a.deps.Metrics.Persist(metrics.PersistFailed)
		logger.Error("Ошибка сохранения сигнала", zap.String("symbol", res.Symbol), zap.Error(err))
		return
	}

	signalTime := rec.CreatedAt.Add(a.opts.SignalTimeOffset)
	if err := a.deps.Store.SetSignalTime(ctx, rec.ID, signalTime); err != nil {
		logger.Error("Ошибка установки signal_time",
			zap.Int64("id", rec.ID),
			zap.String("symbol", res.Symbol),
			zap.Error(err))
	} else {
		rec.SignalTime = signalTime
	}

	res.Saved = true
	res.ID = rec.ID
	sum.Saved++
	a.deps.Metrics.Persist(metrics.PersistStored)
	a.deps.Journal.RecordSignal(rec)

	logger.Debug("Сигнал сохранен",
		zap.Int64("id", rec.ID),
		zap.String("symbol", res.Symbol),
		zap.String("type", string(sig.Type)),
		zap.Time("signal_time", rec.SignalTime))
}
