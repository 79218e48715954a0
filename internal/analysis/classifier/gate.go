package classifier

import (
	"fmt"
	"math"

	"github.com/skalibog/bfsignals/pkg/models"
)

// Evaluation промежуточные значения классификации, доступные политике решения
type Evaluation struct {
	Inputs

	ATR              float64 // после подстановки price*0.01 при ATR <= 0
	LongScore        int
	ShortScore       int
	LongProbability  int
	ShortProbability int
	ScoreDiff        int // long - short
	MACDHistATR      float64
	EMADistanceATR   float64
	ATRPct           float64
}

// Gate политика выбора направления
type Gate interface {
	Decide(ev Evaluation) models.SignalType
}

// MajorityGate BUY, если вероятность long больше short и больше 50. SELL симметрично.
type MajorityGate struct{}

func (MajorityGate) Decide(ev Evaluation) models.SignalType {
	switch {
	case ev.LongProbability > ev.ShortProbability && ev.LongProbability > 50:
		return models.SignalBuy
	case ev.ShortProbability > ev.LongProbability && ev.ShortProbability > 50:
		return models.SignalSell
	}
	return models.SignalHold
}

// Band замкнутый интервал [Min, Max]
type Band struct {
	Min, Max float64
}

func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// ATRGate требует одновременного выполнения всех условий, нормированных через ATR.
// BUY проверяется первым.
type ATRGate struct {
	BuyRSI      Band
	SellRSI     Band
	MinHistATR  float64
	EMADistance Band
	ATRPct      Band
	ScoreDiff   Band
}

// DefaultATRGate пороги ATR-фильтра
func DefaultATRGate() ATRGate {
	return ATRGate{
		BuyRSI:      Band{48, 60},
		SellRSI:     Band{40, 52},
		MinHistATR:  0.25,
		EMADistance: Band{0.5, 1.5},
		ATRPct:      Band{0.3, 3.0},
		ScoreDiff:   Band{10, 20},
	}
}

func (g ATRGate) Decide(ev Evaluation) models.SignalType {
	common := g.EMADistance.Contains(ev.EMADistanceATR) && g.ATRPct.Contains(ev.ATRPct)
	if !common {
		return models.SignalHold
	}

	if g.BuyRSI.Contains(ev.RSI) &&
		ev.MACDHistATR >= g.MinHistATR &&
		g.ScoreDiff.Contains(float64(ev.ScoreDiff)) {
		return models.SignalBuy
	}

	if g.SellRSI.Contains(ev.RSI) &&
		math.Abs(ev.MACDHistogram)/ev.ATR >= g.MinHistATR &&
		g.ScoreDiff.Contains(float64(-ev.ScoreDiff)) {
		return models.SignalSell
	}

	return models.SignalHold
}

// Profile стратегия: таблица правил и политика решения
type Profile struct {
	Name  string
	Rules RuleTable
	Gate  Gate
}

const (
	ProfileMajority = "majority"
	ProfileATRGate  = "atr-gate"
)

// ProfileByName возвращает профиль стратегии EMA+RSI+MACD по имени
func ProfileByName(name string) (Profile, error) {
	switch name {
	case ProfileMajority, "":
		return Profile{Name: ProfileMajority, Rules: EMARSIMACDRules(), Gate: MajorityGate{}}, nil
	case ProfileATRGate:
		return Profile{Name: ProfileATRGate, Rules: EMARSIMACDRules(), Gate: DefaultATRGate()}, nil
	}
	return Profile{}, fmt.Errorf("неизвестный профиль стратегии: %q", name)
}
