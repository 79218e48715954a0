package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/skalibog/bfsignals/pkg/models"
)

// FormatNumber форматирует число с фиксированным числом знаков и разделителем тысяч
func FormatNumber(v float64, places int32, thousands bool) string {
	s := decimal.NewFromFloat(v).StringFixed(places)
	if !thousands {
		return s
	}

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}

func strengthEmoji(s models.Strength) string {
	switch s {
	case models.StrengthStrong:
		return "🔥"
	case models.StrengthMedium:
		return "⚡"
	case models.StrengthWeak:
		return "💡"
	}
	return "📊"
}

func level(v *float64) string {
	if v == nil || *v == 0 {
		return "N/A"
	}
	return FormatNumber(*v, 2, true)
}

// FormatSignalHTML текст сигнала для Telegram (parse_mode HTML)
func FormatSignalHTML(sig models.ClassifiedSignal, symbol, strategy string) string {
	emoji := "🔴"
	if sig.Type == models.SignalBuy {
		emoji = "🟢"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s %s Signal - %s</b>\n", emoji, sig.Type, symbol)
	fmt.Fprintf(&b, "<b>Strategy:</b> %s\n", escapeHTML(strategy))
	fmt.Fprintf(&b, "<b>Strength:</b> %s %s\n\n", strengthEmoji(sig.Strength), sig.Strength)

	fmt.Fprintf(&b, "<b>Price:</b> $%s\n", FormatNumber(sig.Price, 2, true))
	fmt.Fprintf(&b, "<b>RSI:</b> %s\n", FormatNumber(sig.RSI, 2, true))
	fmt.Fprintf(&b, "<b>EMA(20):</b> $%s\n", FormatNumber(sig.EMAFast, 2, true))
	fmt.Fprintf(&b, "<b>MACD:</b> %s\n", FormatNumber(sig.MACD, 4, true))
	fmt.Fprintf(&b, "<b>MACD Histogram:</b> %s\n\n", FormatNumber(sig.MACDHistogram, 4, true))

	fmt.Fprintf(&b, "<b>Stop Loss:</b> $%s\n", level(sig.StopLoss))
	fmt.Fprintf(&b, "<b>Take Profit:</b> $%s\n\n", level(sig.TakeProfit))

	b.WriteString("<b>Probabilities:</b>\n")
	fmt.Fprintf(&b, "  BUY: %d%%\n", sig.LongProbability)
	fmt.Fprintf(&b, "  SELL: %d%%\n\n", sig.ShortProbability)

	if sig.Reason != "" {
		fmt.Fprintf(&b, "<b>Reason:</b> %s\n", escapeHTML(sig.Reason))
	}
	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
