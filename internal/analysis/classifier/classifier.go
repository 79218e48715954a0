// Package classifier превращает снимок индикаторов в торговый сигнал с силой и защитными уровнями.
package classifier

import (
	"fmt"
	"math"

	"github.com/skalibog/bfsignals/pkg/models"
)

// Options множители защитных уровней
type Options struct {
	StopMultiplier   float64
	TargetMultiplier float64
}

// DefaultOptions stop 2.3 ATR, target 2.0 ATR
func DefaultOptions() Options {
	return Options{StopMultiplier: 2.3, TargetMultiplier: 2.0}
}

// Classifier классифицирует сигнал по профилю стратегии
type Classifier struct {
	profile Profile
	opts    Options
}

// New создает классификатор
func New(profile Profile, opts Options) *Classifier {
	if profile.Rules == nil {
		profile.Rules = EMARSIMACDRules()
	}
	if profile.Gate == nil {
		profile.Gate = MajorityGate{}
	}
	return &Classifier{profile: profile, opts: opts}
}

// Profile возвращает имя профиля
func (c *Classifier) Profile() string {
	return c.profile.Name
}

// Evaluate считает баллы, вероятности и нормированные через ATR величины
func (c *Classifier) Evaluate(price float64, snap models.IndicatorSnapshot) Evaluation {
	in := Inputs{Price: price, IndicatorSnapshot: snap}

	atr := snap.ATR
	if atr <= 0 {
		atr = price * 0.01
	}
	in.ATR = atr

	ev := Evaluation{Inputs: in, ATR: atr}
	ev.LongScore, ev.ShortScore = c.profile.Rules.Score(in)
	ev.ScoreDiff = ev.LongScore - ev.ShortScore
	ev.LongProbability, ev.ShortProbability = probabilities(ev.LongScore, ev.ShortScore)

	if atr != 0 {
		ev.MACDHistATR = snap.MACDHistogram / atr
		ev.EMADistanceATR = math.Abs(price-snap.EMAFast) / atr
	}
	if price != 0 {
		ev.ATRPct = atr / price * 100
	}
	return ev
}

// Classify строит ClassifiedSignal. Побочных эффектов нет.
func (c *Classifier) Classify(price float64, snap models.IndicatorSnapshot) models.ClassifiedSignal {
	ev := c.Evaluate(price, snap)
	signalType := c.profile.Gate.Decide(ev)

	sig := models.ClassifiedSignal{
		Type:              signalType,
		Strength:          strength(ev.LongProbability, ev.ShortProbability),
		Price:             price,
		IndicatorSnapshot: ev.IndicatorSnapshot,
		LongScore:         ev.LongScore,
		ShortScore:        ev.ShortScore,
		LongProbability:   ev.LongProbability,
		ShortProbability:  ev.ShortProbability,
		ScoreDiff:         ev.ScoreDiff,
		MACDHistATR:       ev.MACDHistATR,
		EMADistanceATR:    ev.EMADistanceATR,
		ATRPct:            ev.ATRPct,
	}

	switch signalType {
	case models.SignalBuy:
		sig.StopLoss = ptr(price - ev.ATR*c.opts.StopMultiplier)
		sig.TakeProfit = ptr(price + ev.ATR*c.opts.TargetMultiplier)
	case models.SignalSell:
		sig.StopLoss = ptr(price + ev.ATR*c.opts.StopMultiplier)
		sig.TakeProfit = ptr(price - ev.ATR*c.opts.TargetMultiplier)
	}

	sig.Reason = reason(ev)
	return sig
}

// probabilities нормирует баллы в проценты, сумма всегда 100
func probabilities(long, short int) (int, int) {
	total := long + short
	if total <= 0 {
		return 50, 50
	}
	lp := int(math.Round(100 * float64(long) / float64(total)))
	return lp, 100 - lp
}

func strength(longP, shortP int) models.Strength {
	diff := longP - shortP
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff > 20:
		return models.StrengthStrong
	case diff > 10:
		return models.StrengthMedium
	}
	return models.StrengthWeak
}

func reason(ev Evaluation) string {
	trend := "Bearish"
	if ev.EMAFast > ev.EMASlow {
		trend = "Bullish"
	}
	position := "below"
	if ev.Price > ev.EMAFast {
		position = "above"
	}
	return fmt.Sprintf(
		"RSI: %.2f | MACD Hist/ATR: %.3f | EMA Dist/ATR: %.3f | ATR%%: %.2f | Score Diff: %d | Trend: %s | Price %s EMA20",
		ev.RSI, ev.MACDHistATR, ev.EMADistanceATR, ev.ATRPct, ev.ScoreDiff, trend, position,
	)
}

func ptr(v float64) *float64 {
	return &v
}
