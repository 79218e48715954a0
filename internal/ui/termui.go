// Package ui выводит итоги прогонов в консоль и показывает панель наблюдения за сигналами.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/config"
	"github.com/skalibog/bfsignals/internal/storage"
	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

const maxLogs = 50

// Source данные для панели
type Source interface {
	Query(ctx context.Context, q storage.SignalQuery) ([]models.PersistedSignal, error)
	Stats(ctx context.Context) (storage.Stats, error)
}

type snapshotMsg struct {
	signals []models.PersistedSignal
	stats   storage.Stats
	logs    []string
	err     error
	at      time.Time
}

type tickMsg time.Time

// Dashboard модель bubbletea для команды watch
type Dashboard struct {
	source   Source
	logFile  string
	refresh  time.Duration
	maxRows  int
	symbol   string
	signals  []models.PersistedSignal
	stats    storage.Stats
	logs     []string
	err      error
	updated  time.Time
	selected int
	width    int
	height   int
}

// NewDashboard создает панель. symbol ограничивает выборку одним символом.
func NewDashboard(cfg config.UIConfig, source Source, logFile, symbol string) *Dashboard {
	return &Dashboard{
		source:  source,
		logFile: logFile,
		refresh: time.Duration(cfg.RefreshRate) * time.Millisecond,
		maxRows: cfg.MaxRows,
		symbol:  symbol,
		logs:    []string{"bfsignals watch запущен. Ожидание данных..."},
		width:   120,
		height:  40,
	}
}

// Run запускает панель до выхода пользователя или отмены контекста
func (d *Dashboard) Run(ctx context.Context) error {
	p := tea.NewProgram(d, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

func (d *Dashboard) load() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := snapshotMsg{at: time.Now()}
	msg.signals, msg.err = d.source.Query(ctx, storage.SignalQuery{Symbol: d.symbol, Limit: d.maxRows})
	if msg.err == nil {
		msg.stats, msg.err = d.source.Stats(ctx)
	}

	logs, err := ReadLogTail(d.logFile, maxLogs)
	if err != nil {
		logger.Warn("Ошибка загрузки логов", zap.Error(err))
	}
	msg.logs = logs
	return msg
}

func (d *Dashboard) tick() tea.Cmd {
	return tea.Tick(d.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.load, d.tick())
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return d, tea.Quit
		case "up", "k":
			d.selected = max(0, d.selected-1)
		case "down", "j":
			d.selected = max(0, min(len(d.signals)-1, d.selected+1))
		case "r":
			return d, d.load
		}

	case tea.WindowSizeMsg:
		d.width, d.height = msg.Width, msg.Height

	case tickMsg:
		return d, tea.Batch(d.load, d.tick())

	case snapshotMsg:
		d.err = msg.err
		d.updated = msg.at
		if msg.err == nil {
			d.signals = msg.signals
			d.stats = msg.stats
			d.selected = max(0, min(len(d.signals)-1, d.selected))
		}
		if len(msg.logs) > 0 {
			d.logs = msg.logs
		}
	}
	return d, nil
}

func (d *Dashboard) View() string {
	title := titleStyle.Render("bfsignals - EMA+RSI+MACD сигналы Binance Futures")
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, R - обновить, Q - выход")

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		d.renderStats(),
		"",
		d.renderSignals(),
		"",
		d.renderDetails(),
		"",
		d.renderLogs(),
		"",
		footer,
	))
}

func (d *Dashboard) renderStats() string {
	s := d.stats
	line := fmt.Sprintf("Всего: %d | Отправлено: %d | BUY: %d | SELL: %d | HOLD: %d | DONE: %s | MISSED: %s | PROCESSING: %s | Win rate: %.1f%%",
		s.Total, s.Sent,
		s.ByType[models.SignalBuy], s.ByType[models.SignalSell], s.ByType[models.SignalHold],
		statusStyle(models.StatusDone).Render(fmt.Sprint(s.ByStatus[models.StatusDone])),
		statusStyle(models.StatusMissed).Render(fmt.Sprint(s.ByStatus[models.StatusMissed])),
		statusStyle(models.StatusProcessing).Render(fmt.Sprint(s.ByStatus[models.StatusProcessing])),
		s.WinRate())
	if !d.updated.IsZero() {
		line += footerStyle.Render("обновлено " + d.updated.Format("15:04:05"))
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("СТАТИСТИКА"), line))
}

func (d *Dashboard) renderSignals() string {
	var body string
	switch {
	case d.err != nil:
		body = lipgloss.NewStyle().Foreground(errorColor).Render("Ошибка загрузки: " + d.err.Error())
	case len(d.signals) == 0:
		body = "  Ожидание данных..."
	default:
		body = SignalsTable(d.signals, d.selected)
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("СИГНАЛЫ"), body))
}

func (d *Dashboard) renderDetails() string {
	if d.selected < 0 || d.selected >= len(d.signals) {
		return ""
	}
	s := d.signals[d.selected]
	text := RenderSignal(s.Symbol, s.ClassifiedSignal)
	if !s.SignalTime.IsZero() {
		text += fmt.Sprintf("   Время решения: %s | Flow: %s\n", s.SignalTime.Local().Format("02.01.2006 15:04"), s.FlowID)
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("ДЕТАЛИ"), selectedStyle.Render(strings.TrimRight(text, "\n"))))
}

func (d *Dashboard) renderLogs() string {
	show := 8
	if d.height > 50 {
		show = d.height - 42
	}
	start := max(0, len(d.logs)-show)

	var b strings.Builder
	for _, line := range d.logs[start:] {
		switch {
		case strings.Contains(line, "[ERROR]"):
			line = lipgloss.NewStyle().Foreground(errorColor).Render(line)
		case strings.Contains(line, "[WARN]"):
			line = lipgloss.NewStyle().Foreground(warningColor).Render(line)
		case strings.Contains(line, "[INFO]"):
			line = lipgloss.NewStyle().Foreground(successColor).Render(line)
		case strings.Contains(line, "[DEBUG]"):
			line = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(line)
		}
		b.WriteString("  " + line + "\n")
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("ЛОГИ"), b.String()))
}
