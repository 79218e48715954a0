package classifier

import "github.com/skalibog/bfsignals/pkg/models"

// Side сторона, которой начисляются баллы правила
type Side int

const (
	Long Side = iota
	Short
)

// Inputs входные данные правил: текущая цена и снимок индикаторов
type Inputs struct {
	Price float64
	models.IndicatorSnapshot
}

// Rule предикат с весом
type Rule struct {
	Name   string
	Side   Side
	Weight int
	When   func(in Inputs) bool
}

// RuleTable набор правил стратегии
type RuleTable []Rule

// Score суммирует веса сработавших правил по сторонам
func (t RuleTable) Score(in Inputs) (long, short int) {
	for _, r := range t {
		if !r.When(in) {
			continue
		}
		switch r.Side {
		case Long:
			long += r.Weight
		case Short:
			short += r.Weight
		}
	}
	return long, short
}

// EMARSIMACDRules таблица баллов стратегии EMA+RSI+MACD
func EMARSIMACDRules() RuleTable {
	return RuleTable{
		{Name: "trend_up", Side: Long, Weight: 30, When: func(in Inputs) bool {
			return in.Price > in.EMAFast && in.EMAFast > in.EMASlow
		}},
		{Name: "macd_positive", Side: Long, Weight: 30, When: func(in Inputs) bool {
			return in.MACD > 0 && in.MACDHistogram > 0
		}},
		{Name: "rsi_long_band", Side: Long, Weight: 20, When: func(in Inputs) bool {
			return in.RSI >= 48 && in.RSI <= 60
		}},
		{Name: "macd_cross_up", Side: Long, Weight: 20, When: func(in Inputs) bool {
			return in.MACDHistogram > 0 && in.MACD > in.MACDSignal
		}},

		{Name: "trend_down", Side: Short, Weight: 30, When: func(in Inputs) bool {
			return in.Price < in.EMAFast && in.EMAFast < in.EMASlow
		}},
		{Name: "macd_negative", Side: Short, Weight: 30, When: func(in Inputs) bool {
			return in.MACD < 0 && in.MACDHistogram < 0
		}},
		{Name: "rsi_short_band", Side: Short, Weight: 20, When: func(in Inputs) bool {
			return in.RSI >= 40 && in.RSI <= 52
		}},
		{Name: "macd_cross_down", Side: Short, Weight: 20, When: func(in Inputs) bool {
			return in.MACDHistogram < 0 && in.MACD < in.MACDSignal
		}},
	}
}
