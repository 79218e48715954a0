// Package notify отправляет торговые сигналы во внешние каналы.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

// ErrNoChannels нет ни одного канала доставки
var ErrNoChannels = errors.New("каналы уведомлений не настроены")

// Notifier канал доставки сигнала
type Notifier interface {
	Name() string
	Send(ctx context.Context, sig models.ClassifiedSignal, symbol, strategy string) error
}

// Multi рассылает сигнал во все каналы. Отправка успешна, если доставил хотя бы один канал.
type Multi struct {
	channels []Notifier
}

// NewMulti объединяет каналы, nil пропускаются
func NewMulti(channels ...Notifier) *Multi {
	m := &Multi{}
	for _, ch := range channels {
		if ch != nil {
			m.channels = append(m.channels, ch)
		}
	}
	return m
}

func (m *Multi) Name() string {
	return "multi"
}

// Len количество каналов
func (m *Multi) Len() int {
	return len(m.channels)
}

func (m *Multi) Send(ctx context.Context, sig models.ClassifiedSignal, symbol, strategy string) error {
	if len(m.channels) == 0 {
		return ErrNoChannels
	}

	var (
		errs      error
		delivered int
	)
	for _, ch := range m.channels {
		if err := ch.Send(ctx, sig, symbol, strategy); err != nil {
			logger.Warn("Ошибка отправки сигнала",
				zap.String("channel", ch.Name()),
				zap.String("symbol", symbol),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return errs
	}
	return nil
}

// Close закрывает каналы, которые держат соединения
func (m *Multi) Close() error {
	var errs error
	for _, ch := range m.channels {
		if c, ok := ch.(interface{ Close() error }); ok {
			errs = multierr.Append(errs, c.Close())
		}
	}
	return errs
}
