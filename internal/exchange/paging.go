package exchange

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/ratelimit"
	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

// DefaultPageLimit максимальный размер страницы свечей Binance Futures
const DefaultPageLimit = 1000

// RangeFetcher выбирает свечи за интервал постранично
type RangeFetcher struct {
	feed      PriceFeed
	pacer     ratelimit.Pacer
	pageLimit int
}

// NewRangeFetcher создает постраничный загрузчик
func NewRangeFetcher(feed PriceFeed, pacer ratelimit.Pacer, pageLimit int) *RangeFetcher {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	if pacer == nil {
		pacer = ratelimit.None{}
	}
	return &RangeFetcher{feed: feed, pacer: pacer, pageLimit: pageLimit}
}

// FetchRange возвращает свечи с start <= openTime <= end, отсортированные и без дублей.
// Следующая страница начинается с closeTime последней свечи + 1 мс. Выборка заканчивается, когда
// страница короче лимита или ее последняя свеча закрылась не раньше end.
// Ошибка страницы прекращает выборку: возвращаются уже собранные свечи и ошибка.
func (r *RangeFetcher) FetchRange(ctx context.Context, symbol, interval string, start, end time.Time) (models.CandleSeries, error) {
	startMs, endMs := start.UnixMilli(), end.UnixMilli()

	var (
		out     models.CandleSeries
		pageErr error
		cursor  = startMs
	)
	for page := 0; cursor <= endMs; page++ {
		if page > 0 {
			if err := r.pacer.Wait(ctx); err != nil {
				pageErr = err
				break
			}
		}

		candles, err := r.feed.FetchCandles(ctx, Request{
			Symbol:   symbol,
			Interval: interval,
			Limit:    r.pageLimit,
			Start:    time.UnixMilli(cursor),
			End:      end,
		})
		if err != nil {
			logger.Warn("Ошибка получения страницы свечей",
				zap.String("symbol", symbol),
				zap.Int("page", page),
				zap.Int("collected", len(out)),
				zap.Error(err))
			pageErr = err
			break
		}
		if len(candles) == 0 {
			break
		}

		for _, c := range candles {
			if c.OpenTime >= startMs && c.OpenTime <= endMs {
				out = append(out, c)
			}
		}

		last := candles[len(candles)-1]
		if len(candles) < r.pageLimit || last.CloseTime >= endMs {
			break
		}
		if last.CloseTime+1 <= cursor {
			break
		}
		cursor = last.CloseTime + 1
	}

	return out.Normalize(), pageErr
}
