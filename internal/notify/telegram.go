package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/config"
	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

// ErrTelegramNotConfigured не заданы токен бота или chat id
var ErrTelegramNotConfigured = errors.New("telegram: не заданы bot_token или chat_id")

// TelegramNotifier отправляет сигналы через Telegram Bot API
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier создает канал Telegram
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) Send(ctx context.Context, sig models.ClassifiedSignal, symbol, strategy string) error {
	if t.botToken == "" || t.chatID == "" {
		return ErrTelegramNotConfigured
	}

	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       FormatSignalHTML(sig, symbol, strategy),
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("telegram: ошибка сериализации: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: ошибка отправки: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: неожиданный статус %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	logger.Debug("Сигнал отправлен в Telegram",
		zap.String("symbol", symbol),
		zap.String("type", string(sig.Type)),
		zap.String("strength", string(sig.Strength)))
	return nil
}
