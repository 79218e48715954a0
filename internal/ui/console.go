package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/skalibog/bfsignals/internal/analysis/aggregator"
	"github.com/skalibog/bfsignals/internal/analysis/tracker"
	"github.com/skalibog/bfsignals/internal/notify"
	"github.com/skalibog/bfsignals/pkg/models"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(secondaryColor)).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeader
			}
			return cellStyle
		})
}

// RenderSignal карточка сигнала для консоли
func RenderSignal(symbol string, sig models.ClassifiedSignal) string {
	var b strings.Builder
	head := fmt.Sprintf("%s %s: %s (%s %s)", typeEmoji(sig.Type), symbol, sig.Type, strengthEmoji(sig.Strength), sig.Strength)
	b.WriteString(typeStyle(sig.Type, sig.Strength).Render(head) + "\n")
	fmt.Fprintf(&b, "   Цена: $%s | RSI: %s\n", notify.FormatNumber(sig.Price, 2, true), notify.FormatNumber(sig.RSI, 2, true))
	fmt.Fprintf(&b, "   Вероятности: BUY %d%% | SELL %d%%\n", sig.LongProbability, sig.ShortProbability)
	if sig.HasLevels() {
		fmt.Fprintf(&b, "   SL: $%s | TP: $%s\n", notify.FormatNumber(*sig.StopLoss, 2, true), notify.FormatNumber(*sig.TakeProfit, 2, true))
	}
	fmt.Fprintf(&b, "   Причина: %s\n", sig.Reason)
	return b.String()
}

// RenderAnalysis итоги прогона анализа. showSignals выводит карточки сигналов.
func RenderAnalysis(w io.Writer, sum *aggregator.Summary, showSignals bool) {
	if showSignals {
		for _, r := range sum.Results {
			fmt.Fprintln(w, RenderSignal(r.Symbol, r.Signal))
		}
	}

	t := newTable("Этап", "Показатель", "Значение").Rows(
		[]string{"Анализ", "Успешно", strconv.Itoa(sum.Success)},
		[]string{"Анализ", "Ошибок", strconv.Itoa(sum.Errors)},
		[]string{"Отправка", "Отправлено", strconv.Itoa(sum.Sent)},
		[]string{"Отправка", "Пропущено (сила)", strconv.Itoa(sum.SkippedByStrength)},
		[]string{"Отправка", "Пропущено (рынок)", strconv.Itoa(sum.SkippedByContext)},
		[]string{"Отправка", "Пропущено (дубликат)", strconv.Itoa(sum.SkippedByDuplicate)},
		[]string{"Отправка", "Ошибок отправки", strconv.Itoa(sum.NotifierErrors)},
		[]string{"Сохранение", "Сохранено", strconv.Itoa(sum.Saved)},
		[]string{"Сохранение", "Пропущено (не 100%)", strconv.Itoa(sum.SkippedNotUnanimous)},
		[]string{"Сохранение", "Пропущено (30 минут)", strconv.Itoa(sum.SkippedPersistDup)},
		[]string{"Сохранение", "Ошибок сохранения", strconv.Itoa(sum.SaveErrors)},
	)

	fmt.Fprintln(w, titleStyle.Render("Анализ "+sum.FlowID))
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "⏱️  Время выполнения: %.2f сек\n", sum.Duration.Seconds())
}

// RenderStatus итоги проверки статусов
func RenderStatus(w io.Writer, sum *tracker.Summary) {
	t := newTable("Status", "Count").Rows(
		[]string{statusStyle(models.StatusDone).Render("DONE"), strconv.Itoa(sum.Done)},
		[]string{statusStyle(models.StatusMissed).Render("MISSED"), strconv.Itoa(sum.Missed)},
		[]string{statusStyle(models.StatusProcessing).Render("PROCESSING"), strconv.Itoa(sum.Processing)},
		[]string{"ERRORS", strconv.Itoa(sum.Errors)},
	)

	fmt.Fprintf(w, "📊 Найдено сигналов: %d (%s - %s)\n",
		sum.Total, sum.From.Format("02.01.2006 15:04"), sum.To.Format("02.01.2006 15:04"))
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "⏱️  Время выполнения: %.2f сек\n", sum.Duration.Seconds())
}

// SignalsTable таблица сохраненных сигналов
func SignalsTable(signals []models.PersistedSignal, selected int) string {
	t := newTable("ID", "Время", "Символ", "Тип", "Сила", "Цена", "SL", "TP", "Статус", "TG")
	for i, s := range signals {
		sl, tp := "-", "-"
		if s.HasLevels() {
			sl = notify.FormatNumber(*s.StopLoss, 2, true)
			tp = notify.FormatNumber(*s.TakeProfit, 2, true)
		}
		status := string(s.Status)
		if status == "" {
			status = "-"
		}
		sent := ""
		if s.SentToTelegram {
			sent = "✓"
		}
		id := strconv.FormatInt(s.ID, 10)
		if i == selected {
			id = "> " + id
		}
		t.Row(
			id,
			s.CreatedAt.Local().Format("02.01 15:04"),
			s.Symbol,
			typeStyle(s.Type, s.Strength).Render(string(s.Type)),
			string(s.Strength),
			notify.FormatNumber(s.Price, 2, true),
			sl, tp,
			statusStyle(s.Status).Render(status),
			sent,
		)
	}
	return t.Render()
}
