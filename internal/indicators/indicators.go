// Package indicators рассчитывает EMA, RSI, MACD и ATR по упорядоченным рядам цен.
// Все функции чистые: при нехватке истории возвращают фиксированные значения вместо ошибок.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/skalibog/bfsignals/pkg/models"
)

// Params периоды индикаторов
type Params struct {
	EMAFast    int
	EMASlow    int
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	ATRPeriod  int
}

// DefaultParams возвращает периоды стратегии EMA+RSI+MACD
func DefaultParams() Params {
	return Params{
		EMAFast:    20,
		EMASlow:    50,
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		ATRPeriod:  14,
	}
}

// MACDResult линия, сигнальная линия и гистограмма MACD
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// EMA экспоненциальная скользящая средняя с затравкой SMA первых period значений.
// Если значений меньше period, возвращается последнее значение ряда (0 для пустого ряда).
func EMA(series []float64, period int) float64 {
	n := len(series)
	if n == 0 {
		return 0
	}
	if period <= 0 || n < period {
		return series[n-1]
	}

	k := 2 / float64(period+1)
	ema := sma(series[:period])
	for i := period; i < n; i++ {
		ema = series[i]*k + ema*(1-k)
	}
	return ema
}

// emaPath возвращает EMA(series[:i+1], period) для каждого i.
// Порядок операций совпадает с EMA, поэтому значения побитово равны пересчету каждого префикса.
func emaPath(series []float64, period int) []float64 {
	n := len(series)
	out := make([]float64, n)
	if period <= 0 {
		copy(out, series)
		return out
	}

	k := 2 / float64(period+1)
	var ema float64
	for i := 0; i < n; i++ {
		switch {
		case i < period-1:
			out[i] = series[i]
		case i == period-1:
			ema = sma(series[:period])
			out[i] = ema
		default:
			ema = series[i]*k + ema*(1-k)
			out[i] = ema
		}
	}
	return out
}

// RSI индекс относительной силы со сглаживанием Уайлдера.
// При len(series) < period+1 или period < 2 возвращает нейтральные 50, ряд без падений дает 100.
func RSI(series []float64, period int) float64 {
	n := len(series)
	if period < 2 || n < period+1 {
		return 50
	}

	v := talib.Rsi(series, period)[n-1]
	if v == 0 && !hasLoss(series) {
		return 100
	}
	return v
}

// MACD рассчитывает линию EMA(fast)-EMA(slow) и сигнальную линию как EMA(signal)
// исторических значений MACD, где значение на индексе i (i >= slow) считается только по series[:i+1].
// При len(series) < slow+signal возвращает нули.
func MACD(series []float64, fast, slow, signal int) MACDResult {
	n := len(series)
	if n < slow+signal || slow <= 0 {
		return MACDResult{}
	}

	fastPath := emaPath(series, fast)
	slowPath := emaPath(series, slow)

	line := fastPath[n-1] - slowPath[n-1]

	history := make([]float64, 0, n-slow)
	for i := slow; i < n; i++ {
		history = append(history, fastPath[i]-slowPath[i])
	}

	var signalLine float64
	if len(history) >= signal {
		signalLine = EMA(history, signal)
	}

	return MACDResult{
		Line:      line,
		Signal:    signalLine,
		Histogram: line - signalLine,
	}
}

// ATR средний истинный диапазон: простое среднее последних period значений True Range.
// При len < period+1 возвращает 0.
func ATR(highs, lows, closes []float64, period int) float64 {
	n := len(highs)
	if len(lows) < n {
		n = len(lows)
	}
	if len(closes) < n {
		n = len(closes)
	}
	if period <= 0 || n < period+1 {
		return 0
	}

	tr := talib.TRange(highs[:n], lows[:n], closes[:n])
	return math.Max(0, talib.Sma(tr, period)[n-1])
}

// Compute считает снимок индикаторов по серии свечей
func Compute(series models.CandleSeries, p Params) models.IndicatorSnapshot {
	closes := series.Closes()
	macd := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)

	return models.IndicatorSnapshot{
		EMAFast:       EMA(closes, p.EMAFast),
		EMASlow:       EMA(closes, p.EMASlow),
		RSI:           RSI(closes, p.RSIPeriod),
		MACD:          macd.Line,
		MACDSignal:    macd.Signal,
		MACDHistogram: macd.Histogram,
		ATR:           ATR(series.Highs(), series.Lows(), closes, p.ATRPeriod),
	}
}

func hasLoss(series []float64) bool {
	for i := 1; i < len(series); i++ {
		if series[i] < series[i-1] {
			return true
		}
	}
	return false
}

func sma(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
