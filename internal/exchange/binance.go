package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/config"
	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

// BinanceFeed получает свечи фьючерсного рынка Binance
type BinanceFeed struct {
	client     *futures.Client
	maxRetries int
	backoff    func() *backoff.Backoff
}

// NewBinanceFeed создает клиент Binance Futures
func NewBinanceFeed(cfg config.BinanceConfig) *BinanceFeed {
	futures.UseTestnet = cfg.Testnet
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.Timeout > 0 {
		client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return newBinanceFeed(client, cfg.MaxRetries)
}

func newBinanceFeed(client *futures.Client, maxRetries int) *BinanceFeed {
	return &BinanceFeed{
		client:     client,
		maxRetries: maxRetries,
		backoff: func() *backoff.Backoff {
			return &backoff.Backoff{Min: 250 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}
		},
	}
}

// FetchCandles запрашивает свечи пары <BASE>USDT с повторами при ошибках сети
func (f *BinanceFeed) FetchCandles(ctx context.Context, req Request) (models.CandleSeries, error) {
	pair := models.PairSymbol(req.Symbol)

	svc := f.client.NewKlinesService().
		Symbol(pair).
		Interval(req.Interval)
	if req.Limit > 0 {
		svc = svc.Limit(req.Limit)
	}
	if !req.Start.IsZero() {
		svc = svc.StartTime(req.Start.UnixMilli())
	}
	if !req.End.IsZero() {
		svc = svc.EndTime(req.End.UnixMilli())
	}

	var (
		klines []*futures.Kline
		err    error
		b      = f.backoff()
	)
	for attempt := 0; ; attempt++ {
		klines, err = svc.Do(ctx)
		if err == nil {
			break
		}
		if attempt >= f.maxRetries || ctx.Err() != nil || !retryable(err) {
			return nil, &UpstreamError{Op: "klines", Symbol: pair, Err: err}
		}

		wait := b.Duration()
		logger.Warn("Ошибка получения свечей, повтор",
			zap.String("symbol", pair),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, &UpstreamError{Op: "klines", Symbol: pair, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}

	candles := make(models.CandleSeries, 0, len(klines))
	for _, k := range klines {
		c, err := convertKline(k)
		if err != nil {
			return nil, &UpstreamError{Op: "klines", Symbol: pair, Err: err}
		}
		c.Symbol = pair
		c.Interval = req.Interval
		candles = append(candles, c)
	}

	if req.MinCandles > 0 && len(candles) < req.MinCandles {
		return nil, &UpstreamError{
			Op:     "klines",
			Symbol: pair,
			Err:    fmt.Errorf("%w: получено %d, нужно минимум %d", ErrInsufficientCandles, len(candles), req.MinCandles),
		}
	}

	return candles, nil
}

// convertKline разбирает строковые цены свечи
func convertKline(k *futures.Kline) (models.Candle, error) {
	if k == nil {
		return models.Candle{}, errors.New("пустая свеча в ответе")
	}

	var (
		c   = models.Candle{OpenTime: k.OpenTime, CloseTime: k.CloseTime}
		err error
	)
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", k.Open, &c.Open},
		{"high", k.High, &c.High},
		{"low", k.Low, &c.Low},
		{"close", k.Close, &c.Close},
		{"volume", k.Volume, &c.Volume},
	}
	for _, fl := range fields {
		if *fl.dst, err = strconv.ParseFloat(fl.raw, 64); err != nil {
			return models.Candle{}, fmt.Errorf("неверное поле %s свечи %d: %w", fl.name, k.OpenTime, err)
		}
	}
	return c, nil
}
