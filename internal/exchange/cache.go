package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/skalibog/bfsignals/pkg/models"
)

// KlineCache кэш ответов на время одного прогона. Ключ: базовый символ, интервал и лимит.
type KlineCache struct {
	mu      sync.Mutex
	entries map[string]models.CandleSeries
	hits    int
}

// NewKlineCache создает пустой кэш
func NewKlineCache() *KlineCache {
	return &KlineCache{entries: make(map[string]models.CandleSeries)}
}

func cacheKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("%s|%s|%d", models.BaseSymbol(symbol), interval, limit)
}

func (c *KlineCache) get(key string) (models.CandleSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return s, ok
}

func (c *KlineCache) put(key string, s models.CandleSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = s
}

// Reset очищает кэш
func (c *KlineCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.CandleSeries)
	c.hits = 0
}

// Stats возвращает число записей и попаданий
func (c *KlineCache) Stats() (entries, hits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.hits
}

// CachedFeed кэширует запросы без временных границ. Запросы с Start/End идут напрямую.
type CachedFeed struct {
	feed  PriceFeed
	cache *KlineCache
}

// NewCachedFeed оборачивает источник кэшем
func NewCachedFeed(feed PriceFeed, cache *KlineCache) *CachedFeed {
	return &CachedFeed{feed: feed, cache: cache}
}

func (f *CachedFeed) FetchCandles(ctx context.Context, req Request) (models.CandleSeries, error) {
	if req.Ranged() || f.cache == nil {
		return f.feed.FetchCandles(ctx, req)
	}

	key := cacheKey(req.Symbol, req.Interval, req.Limit)
	if s, ok := f.cache.get(key); ok {
		if req.MinCandles > 0 && len(s) < req.MinCandles {
			return nil, &UpstreamError{
				Op:     "klines",
				Symbol: models.PairSymbol(req.Symbol),
				Err:    fmt.Errorf("%w: получено %d, нужно минимум %d", ErrInsufficientCandles, len(s), req.MinCandles),
			}
		}
		return s, nil
	}

	s, err := f.feed.FetchCandles(ctx, req)
	if err != nil {
		return nil, err
	}
	f.cache.put(key, s)
	return s, nil
}
