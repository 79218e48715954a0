// Package outcome определяет исход сигнала по истории свечей после момента решения.
package outcome

import (
	"errors"
	"time"

	"github.com/skalibog/bfsignals/pkg/models"
)

var (
	// ErrNotEvaluable HOLD или сигнал без stop loss / take profit
	ErrNotEvaluable = errors.New("сигнал не подлежит проверке")
	// ErrNoCandles свечей нет, статус не меняется
	ErrNoCandles = errors.New("нет свечей для проверки")
)

// Result исход проверки
type Result struct {
	Status models.Status
	// Свеча, на которой сработал уровень. Нулевая для PROCESSING.
	ResolvedAt time.Time
	ExitPrice  float64
	// Количество просмотренных свечей после момента решения
	Scanned int
	// Некритичная диагностика, например ErrNoCandles
	Diagnostic error
}

// Evaluable сообщает, можно ли проверять сигнал
func Evaluable(sig models.PersistedSignal) bool {
	return sig.Type.Directional() && sig.HasLevels()
}

// Evaluate проходит свечи в хронологическом порядке начиная с момента решения.
// Если одна свеча задевает и stop loss, и take profit, исход MISSED.
// Функция чистая: входная серия не меняется, повторный вызов дает тот же результат.
func Evaluate(sig models.PersistedSignal, candles models.CandleSeries) (Result, error) {
	if !Evaluable(sig) {
		return Result{}, ErrNotEvaluable
	}

	if len(candles) == 0 {
		return Result{Status: models.StatusProcessing, Diagnostic: ErrNoCandles}, nil
	}

	decisionMs := sig.DecisionTime().UnixMilli()
	stopLoss, takeProfit := *sig.StopLoss, *sig.TakeProfit

	res := Result{Status: models.StatusProcessing}
	for _, c := range candles.Normalize() {
		if c.CloseTime < decisionMs {
			continue
		}
		res.Scanned++

		hitSL, hitTP := hits(sig.Type, c, stopLoss, takeProfit)
		switch {
		case hitSL:
			res.Status = models.StatusMissed
			res.ExitPrice = stopLoss
		case hitTP:
			res.Status = models.StatusDone
			res.ExitPrice = takeProfit
		default:
			continue
		}
		res.ResolvedAt = c.OpenAt()
		return res, nil
	}

	return res, nil
}

// hits проверяет касание уровней одной свечой
func hits(t models.SignalType, c models.Candle, stopLoss, takeProfit float64) (hitSL, hitTP bool) {
	if t == models.SignalBuy {
		return c.Low <= stopLoss, c.High >= takeProfit
	}
	return c.High >= stopLoss, c.Low <= takeProfit
}
