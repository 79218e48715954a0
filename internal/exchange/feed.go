// Package exchange получает свечи с Binance Futures: запросы с повторами, постраничная выборка и кэш на время прогона.
package exchange

import (
	"context"
	"time"

	"github.com/skalibog/bfsignals/pkg/models"
)

// Request параметры запроса свечей. Нулевые Start и End не передаются бирже.
type Request struct {
	Symbol   string
	Interval string
	Limit    int
	Start    time.Time
	End      time.Time
	// Минимум свечей в ответе, 0 - без проверки
	MinCandles int
}

// Ranged сообщает, что запрос ограничен по времени
func (r Request) Ranged() bool {
	return !r.Start.IsZero() || !r.End.IsZero()
}

// PriceFeed источник свечей
type PriceFeed interface {
	FetchCandles(ctx context.Context, req Request) (models.CandleSeries, error)
}
