package models

import (
	"fmt"
	"strings"
	"time"
)

// SignalType направление сигнала
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Directional сообщает, является ли сигнал торговым (BUY или SELL)
func (t SignalType) Directional() bool {
	return t == SignalBuy || t == SignalSell
}

// ParseSignalType разбирает тип сигнала
func ParseSignalType(s string) (SignalType, error) {
	switch t := SignalType(strings.ToUpper(strings.TrimSpace(s))); t {
	case SignalBuy, SignalSell, SignalHold:
		return t, nil
	}
	return "", fmt.Errorf("неизвестный тип сигнала: %q", s)
}

// Strength сила сигнала
type Strength string

const (
	StrengthStrong Strength = "STRONG"
	StrengthMedium Strength = "MEDIUM"
	StrengthWeak   Strength = "WEAK"
)

// Rank возвращает порядковый вес силы: WEAK=1, MEDIUM=2, STRONG=3
func (s Strength) Rank() int {
	switch s {
	case StrengthStrong:
		return 3
	case StrengthMedium:
		return 2
	case StrengthWeak:
		return 1
	}
	return 0
}

// ParseStrength разбирает силу сигнала
func ParseStrength(s string) (Strength, error) {
	switch v := Strength(strings.ToUpper(strings.TrimSpace(s))); v {
	case StrengthStrong, StrengthMedium, StrengthWeak:
		return v, nil
	}
	return "", fmt.Errorf("неизвестная сила сигнала: %q", s)
}

// Status результат проверки сигнала. Пустое значение означает, что сигнал еще не проверялся.
type Status string

const (
	StatusNone       Status = ""
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusMissed     Status = "MISSED"
)

// Final сообщает, что статус терминальный и больше не меняется
func (s Status) Final() bool {
	return s == StatusDone || s == StatusMissed
}

// ParseStatus разбирает статус, пустая строка дает StatusNone
func ParseStatus(s string) (Status, error) {
	switch v := Status(strings.ToUpper(strings.TrimSpace(s))); v {
	case StatusNone, StatusProcessing, StatusDone, StatusMissed:
		return v, nil
	}
	return "", fmt.Errorf("неизвестный статус сигнала: %q", s)
}

// IndicatorSnapshot значения индикаторов на последней закрытой свече
type IndicatorSnapshot struct {
	EMAFast       float64 `json:"ema"`
	EMASlow       float64 `json:"ema_slow"`
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	ATR           float64 `json:"atr"`
}

// ClassifiedSignal результат классификации
type ClassifiedSignal struct {
	Type     SignalType `json:"type"`
	Strength Strength   `json:"strength"`
	Price    float64    `json:"price"`

	IndicatorSnapshot

	LongScore        int `json:"long_score"`
	ShortScore       int `json:"short_score"`
	LongProbability  int `json:"long_probability"`
	ShortProbability int `json:"short_probability"`
	ScoreDiff        int `json:"score_diff"`

	MACDHistATR    float64 `json:"macd_hist_atr"`
	EMADistanceATR float64 `json:"ema_distance_atr"`
	ATRPct         float64 `json:"atr_pct"`

	// Заполняются только для BUY и SELL
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`

	Reason string `json:"reason"`
}

// HasLevels сообщает, что у сигнала есть защитные уровни
func (s ClassifiedSignal) HasLevels() bool {
	return s.StopLoss != nil && s.TakeProfit != nil
}

// PersistedSignal сохраненный сигнал
type PersistedSignal struct {
	ClassifiedSignal

	ID       int64  `json:"id"`
	FlowID   string `json:"flow_id"`
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	Interval string `json:"interval"`
	Limit    int    `json:"limit"`

	CreatedAt      time.Time `json:"created_at"`
	SignalTime     time.Time `json:"signal_time"`
	Status         Status    `json:"status"`
	SentToTelegram bool      `json:"sent_to_telegram"`
}

// DecisionTime момент, с которого начинается проверка исхода: signal_time, если задан, иначе created_at
func (p PersistedSignal) DecisionTime() time.Time {
	if !p.SignalTime.IsZero() {
		return p.SignalTime
	}
	return p.CreatedAt
}
