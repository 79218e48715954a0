package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/bfsignals/internal/analysis/aggregator"
	"github.com/skalibog/bfsignals/internal/analysis/tracker"
	"github.com/skalibog/bfsignals/internal/api"
	"github.com/skalibog/bfsignals/internal/config"
	"github.com/skalibog/bfsignals/internal/scheduler"
	"github.com/skalibog/bfsignals/internal/ui"
	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

const usage = `bfsignals - сигналы EMA+RSI+MACD для Binance Futures

Использование:
  bfsignals <команда> [флаги]

Команды:
  analyze       анализ символов, отправка и сохранение сигналов
  check-status  проверка исходов сохраненных сигналов (DONE/MISSED/PROCESSING)
  run           планировщик: анализ каждые 15 минут, проверка статусов в 00:00 и 12:00 UTC, HTTP API
  watch         панель наблюдения за сигналами

Общие флаги:
  -config string  путь к файлу конфигурации (по умолчанию config.yaml)
`

// symbolList флаг --symbol, допускает повтор и списки через запятую
type symbolList []string

func (s *symbolList) String() string {
	return strings.Join(*s, ",")
}

func (s *symbolList) Set(v string) error {
	*s = append(*s, config.SplitSymbols(v)...)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "analyze":
		err = cmdAnalyze(ctx, args)
	case "check-status":
		err = cmdCheckStatus(ctx, args)
	case "run":
		err = cmdRun(ctx, args)
	case "watch":
		err = cmdWatch(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "неизвестная команда %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// setup загружает конфигурацию, применяет override и инициализирует логгер
func setup(ctx context.Context, path string, console bool, override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if err := logger.Init(logger.Options{
		Level:    cfg.Logging.Level,
		Console:  console && cfg.Logging.Console,
		File:     cfg.Logging.File,
		JSONFile: cfg.Logging.JSONFile,
		Truncate: cfg.Logging.Truncate,
	}); err != nil {
		return nil, err
	}

	logger.Info("Конфигурация загружена", zap.String("path", path), zap.Strings("symbols", cfg.Trading.Symbols))
	return newApp(ctx, cfg)
}

func cmdAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "путь к файлу конфигурации")
	var symbols symbolList
	fs.Var(&symbols, "symbol", "символ для анализа (можно повторять, BTC или BTC,ETH)")
	interval := fs.String("interval", "", "таймфрейм свечей (по умолчанию из конфигурации)")
	limit := fs.Int("limit", 0, "количество свечей (по умолчанию из конфигурации)")
	telegram := fs.Bool("telegram", false, "отправить сигналы в каналы уведомлений")
	telegramOnly := fs.Bool("telegram-only", false, "только отправка, без вывода сигналов в консоль")
	_ = fs.Parse(args)

	a, err := setup(ctx, *configPath, false, func(cfg *config.Config) {
		if len(symbols) > 0 {
			cfg.Trading.Symbols = dedupeSymbols(symbols)
		}
		if *interval != "" {
			cfg.Trading.Interval = *interval
		}
		if *limit > 0 {
			cfg.Trading.Limit = *limit
		}
		if *telegramOnly {
			cfg.Dispatch.TelegramOnly = true
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	opts := aggregator.OptionsFromConfig(a.cfg)
	opts.Dispatch = *telegram || a.cfg.Dispatch.TelegramOnly

	fmt.Println("🚀 Запуск анализа EMA+RSI+MACD стратегии...")
	fmt.Printf("📊 Анализ символов: %s\n⏱️  Таймфрейм: %s\n📈 Лимит свечей: %d\n\n",
		strings.Join(opts.Symbols, ", "), opts.Interval, opts.Limit)

	sum, err := a.runAnalysis(ctx, opts)
	if sum != nil {
		ui.RenderAnalysis(os.Stdout, sum, !a.cfg.Dispatch.TelegramOnly)
	}
	return err
}

func cmdCheckStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check-status", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "путь к файлу конфигурации")
	hours := fs.Int("hours", -1, "сколько часов назад заканчивается окно проверки (по умолчанию 12)")
	rangeHours := fs.Int("range", 0, "глубина окна в часах (по умолчанию 24)")
	_ = fs.Parse(args)

	a, err := setup(ctx, *configPath, false, func(cfg *config.Config) {
		if *hours >= 0 {
			cfg.Status.Hours = *hours
		}
		if *rangeHours > 0 {
			cfg.Status.Range = *rangeHours
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("🔍 Проверка статусов сигналов...")
	sum, err := a.tracker(tracker.OptionsFromConfig(a.cfg.Status)).Run(ctx)
	if sum != nil {
		ui.RenderStatus(os.Stdout, sum)
	}
	return err
}

func cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "путь к файлу конфигурации")
	_ = fs.Parse(args)

	a, err := setup(ctx, *configPath, true, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var locker scheduler.Locker = scheduler.NewLocalLocker()
	if a.cfg.Scheduler.Lock == "redis" {
		rl, err := scheduler.NewRedisLocker(ctx, a.cfg.Scheduler)
		if err != nil {
			return err
		}
		defer rl.Close()
		locker = rl
	}

	sched := scheduler.New(locker, a.cfg.Scheduler.LockTTL, a.metrics)
	analysisOpts := aggregator.OptionsFromConfig(a.cfg)
	if err := sched.Add(scheduler.Job{
		Name:  "analysis",
		Every: a.cfg.Scheduler.AnalysisEvery,
		Run: func(ctx context.Context) error {
			_, err := a.runAnalysis(ctx, analysisOpts)
			return err
		},
	}); err != nil {
		return err
	}
	if err := sched.Add(scheduler.Job{
		Name:  "status",
		Every: a.cfg.Scheduler.StatusEvery,
		Run: func(ctx context.Context) error {
			_, err := a.tracker(tracker.OptionsFromConfig(a.cfg.Status)).Run(ctx)
			return err
		},
	}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(ctx) })
	if a.cfg.Server.Enabled {
		srv := api.NewServer(a.cfg.Server.Addr, a.store, a.journal, a.metrics)
		g.Go(func() error { return srv.Start(ctx) })
	}

	logger.Info("Планировщик запущен",
		zap.Duration("analysis_every", a.cfg.Scheduler.AnalysisEvery),
		zap.Duration("status_every", a.cfg.Scheduler.StatusEvery),
		zap.Time("next_analysis", scheduler.NextRun(time.Now(), a.cfg.Scheduler.AnalysisEvery)))
	return g.Wait()
}

func cmdWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "путь к файлу конфигурации")
	symbol := fs.String("symbol", "", "показывать только один символ")
	_ = fs.Parse(args)

	a, err := setup(ctx, *configPath, false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return ui.NewDashboard(a.cfg.UI, a.store, a.cfg.Logging.JSONFile, *symbol).Run(ctx)
}

func dedupeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := models.BaseSymbol(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
