package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/analysis/aggregator"
	"github.com/skalibog/bfsignals/internal/analysis/classifier"
	"github.com/skalibog/bfsignals/internal/analysis/dedup"
	"github.com/skalibog/bfsignals/internal/analysis/marketcontext"
	"github.com/skalibog/bfsignals/internal/analysis/tracker"
	"github.com/skalibog/bfsignals/internal/config"
	"github.com/skalibog/bfsignals/internal/exchange"
	"github.com/skalibog/bfsignals/internal/indicators"
	"github.com/skalibog/bfsignals/internal/metrics"
	"github.com/skalibog/bfsignals/internal/notify"
	"github.com/skalibog/bfsignals/internal/ratelimit"
	"github.com/skalibog/bfsignals/internal/storage"
	"github.com/skalibog/bfsignals/pkg/logger"
)

// app собранные компоненты сервиса
type app struct {
	cfg      *config.Config
	store    storage.SignalStore
	journal  storage.Journal
	feed     *exchange.BinanceFeed
	cache    *exchange.KlineCache
	notifier *notify.Multi
	metrics  *metrics.Recorder
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New(), cache: exchange.NewKlineCache()}

	switch cfg.Storage.Type {
	case "memory":
		a.store = storage.NewMemoryStore()
	default:
		store, err := storage.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
		}
		a.store = store
	}

	a.journal = storage.NopJournal{}
	if cfg.Journal.Enabled {
		j, err := storage.NewInfluxJournal(ctx, cfg.Journal)
		if err != nil {
			// журнал необязателен
			logger.Warn("Журнал InfluxDB недоступен", zap.Error(err))
		} else {
			a.journal = j
		}
	}

	a.feed = exchange.NewBinanceFeed(cfg.Binance)

	var channels []notify.Notifier
	tg := cfg.Dispatch.Telegram
	if tg.Enabled && (tg.BotToken == "" || tg.ChatID == "") {
		logger.Warn("Telegram включен, но не задан bot_token или chat_id")
	} else if tg.Enabled {
		channels = append(channels, notify.NewTelegramNotifier(tg))
	}
	if cfg.Dispatch.Kafka.Enabled {
		channels = append(channels, notify.NewKafkaNotifier(cfg.Dispatch.Kafka))
	}
	a.notifier = notify.NewMulti(channels...)

	return a, nil
}

func (a *app) Close() error {
	defer logger.Sync()
	a.journal.Close()
	return multierr.Combine(a.notifier.Close(), a.store.Close())
}

func indicatorParams(cfg config.StrategyConfig) indicators.Params {
	return indicators.Params{
		EMAFast:    cfg.EMAFast,
		EMASlow:    cfg.EMASlow,
		RSIPeriod:  cfg.RSIPeriod,
		MACDFast:   cfg.MACDFast,
		MACDSlow:   cfg.MACDSlow,
		MACDSignal: cfg.MACDSignal,
		ATRPeriod:  cfg.ATRPeriod,
	}
}

// benchmarkFilter фильтр рыночного контекста, эталон всегда на своем таймфрейме
func benchmarkFilter(feed exchange.PriceFeed, cfg config.TradingConfig) *marketcontext.Filter {
	return marketcontext.New(feed, cfg.Benchmark, cfg.BenchmarkInterval)
}

func dedupPolicy(cfg config.DedupConfig) dedup.Policy {
	return dedup.Policy{
		PersistWindow: cfg.PersistWindow,
		StrongWindow:  cfg.StrongWindow,
		MediumWindow:  cfg.MediumWindow,
		DefaultWindow: cfg.WeakWindow,
		RSIBand:       cfg.RSIBand,
		RSILow:        cfg.RSILow,
		RSIHigh:       cfg.RSIHigh,
	}
}

// analyzer собирает прогон анализа. Кэш свечей общий для анализа и рыночного контекста.
func (a *app) analyzer(opts aggregator.Options) (*aggregator.Analyzer, error) {
	profile, err := classifier.ProfileByName(a.cfg.Strategy.Profile)
	if err != nil {
		return nil, err
	}
	cls := classifier.New(profile, classifier.Options{
		StopMultiplier:   a.cfg.Strategy.StopMultiplier,
		TargetMultiplier: a.cfg.Strategy.TargetMultiplier,
	})

	feed := exchange.NewCachedFeed(a.feed, a.cache)

	deps := aggregator.Dependencies{
		Feed:       feed,
		Params:     indicatorParams(a.cfg.Strategy),
		Classifier: cls,
		Gate:       dedup.New(a.store, dedupPolicy(a.cfg.Dedup)),
		Store:      a.store,
		Journal:    a.journal,
		Pacer:      ratelimit.NewFixed(a.cfg.Pacing.Analysis),
		Metrics:    a.metrics,
	}
	if a.cfg.Dispatch.MarketContext {
		deps.Context = benchmarkFilter(feed, a.cfg.Trading)
	}
	if a.notifier.Len() > 0 {
		deps.Notifier = a.notifier
	}
	return aggregator.NewAnalyzer(opts, deps), nil
}

func (a *app) runAnalysis(ctx context.Context, opts aggregator.Options) (*aggregator.Summary, error) {
	an, err := a.analyzer(opts)
	if err != nil {
		return nil, err
	}
	// кэш живет один прогон
	a.cache.Reset()
	defer a.cache.Reset()
	return an.Run(ctx)
}

func (a *app) tracker(opts tracker.Options) *tracker.Tracker {
	fetcher := exchange.NewRangeFetcher(a.feed, ratelimit.NewFixed(a.cfg.Pacing.Paging), a.cfg.Binance.PageLimit)
	return tracker.New(opts, a.store, fetcher, a.journal, ratelimit.NewFixed(a.cfg.Pacing.Status), a.metrics)
}
