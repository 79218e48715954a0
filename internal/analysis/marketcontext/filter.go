// Package marketcontext блокирует сигналы при аномальной волатильности эталонного актива.
package marketcontext

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/exchange"
	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

const (
	// MaxVolatility порог волатильности эталона в процентах, выше которого блокируются все сигналы
	MaxVolatility = 3.0
	// MaxBenchmarkDrop падение эталона в процентах, ниже которого блокируются SELL по другим символам
	MaxBenchmarkDrop = -1.0
)

// Decision результат проверки
type Decision struct {
	Allowed    bool
	Reason     string
	Volatility float64
	Change     float64
}

// Evaluate принимает решение по двум последним закрытым свечам эталона
func Evaluate(prev, last models.Candle, symbol, benchmark string, t models.SignalType) Decision {
	if prev.Close == 0 {
		return Decision{Allowed: true, Reason: "нулевая цена эталона"}
	}

	change := (last.Close - prev.Close) / prev.Close * 100
	d := Decision{Allowed: true, Volatility: math.Abs(change), Change: change}

	if d.Volatility > MaxVolatility {
		d.Allowed = false
		d.Reason = fmt.Sprintf("волатильность %s слишком высокая: %.2f%%", benchmark, d.Volatility)
		return d
	}

	if t == models.SignalSell && !models.SameAsset(symbol, benchmark) && change < MaxBenchmarkDrop {
		d.Allowed = false
		d.Reason = fmt.Sprintf("%s падает на %.2f%%, SELL по альткоинам заблокирован", benchmark, change)
		return d
	}

	d.Reason = "рыночный контекст в норме"
	return d
}

// Filter проверяет рыночный контекст по свечам эталона. При ошибке получения данных сигнал разрешается.
type Filter struct {
	feed      exchange.PriceFeed
	benchmark string
	interval  string
	now       func() time.Time
}

// New создает фильтр
func New(feed exchange.PriceFeed, benchmark, interval string) *Filter {
	return &Filter{feed: feed, benchmark: benchmark, interval: interval, now: time.Now}
}

// Check разрешает или блокирует сигнал для символа
func (f *Filter) Check(ctx context.Context, symbol string, t models.SignalType) Decision {
	candles, err := f.feed.FetchCandles(ctx, exchange.Request{
		Symbol:   f.benchmark,
		Interval: f.interval,
		Limit:    3,
	})
	if err != nil {
		logger.Warn("Ошибка проверки рыночного контекста, сигнал разрешен",
			zap.String("symbol", symbol),
			zap.String("benchmark", f.benchmark),
			zap.Error(err))
		return Decision{Allowed: true, Reason: fmt.Sprintf("ошибка проверки рыночного контекста: %v", err)}
	}

	closed := candles.Normalize().Closed(f.now().UnixMilli())
	if len(closed) < 2 {
		return Decision{Allowed: true, Reason: "недостаточно данных " + f.benchmark}
	}

	return Evaluate(closed[len(closed)-2], closed[len(closed)-1], symbol, f.benchmark, t)
}
