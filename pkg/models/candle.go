package models

import (
	"sort"
	"time"
)

// Candle представляет свечу (kline). Время открытия и закрытия в миллисекундах epoch.
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OpenAt возвращает время открытия свечи
func (c Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// CandleSeries упорядоченная по OpenTime последовательность свечей
type CandleSeries []Candle

// Closes возвращает цены закрытия
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Highs возвращает максимумы свечей
func (s CandleSeries) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

// Lows возвращает минимумы свечей
func (s CandleSeries) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

// Last возвращает последнюю свечу серии
func (s CandleSeries) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// Normalize сортирует свечи по времени открытия и удаляет дубликаты.
// При совпадении OpenTime остается первая встреченная свеча. Исходная серия не меняется.
func (s CandleSeries) Normalize() CandleSeries {
	out := make(CandleSeries, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpenTime < out[j].OpenTime
	})

	deduped := out[:0]
	for i, c := range out {
		if i > 0 && c.OpenTime == deduped[len(deduped)-1].OpenTime {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

// Closed отбрасывает хвостовые свечи, которые еще не закрылись к моменту nowMs
func (s CandleSeries) Closed(nowMs int64) CandleSeries {
	end := len(s)
	for end > 0 && s[end-1].CloseTime >= nowMs {
		end--
	}
	return s[:end]
}
