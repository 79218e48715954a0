package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/skalibog/bfsignals/internal/config"
	"github.com/skalibog/bfsignals/pkg/models"
)

// SignalEvent событие сигнала в Kafka
type SignalEvent struct {
	Symbol           string            `json:"symbol"`
	Strategy         string            `json:"strategy"`
	Type             models.SignalType `json:"type"`
	Strength         models.Strength   `json:"strength"`
	Price            float64           `json:"price"`
	StopLoss         *float64          `json:"stop_loss"`
	TakeProfit       *float64          `json:"take_profit"`
	LongProbability  int               `json:"long_probability"`
	ShortProbability int               `json:"short_probability"`
	RSI              float64           `json:"rsi"`
	ATR              float64           `json:"atr"`
	Reason           string            `json:"reason"`
	EmittedAt        time.Time         `json:"emitted_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier публикует сигналы в топик Kafka, ключ сообщения - символ
type KafkaNotifier struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaNotifier создает продюсер
func NewKafkaNotifier(cfg config.KafkaConfig) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		now: time.Now,
	}
}

func (k *KafkaNotifier) Name() string {
	return "kafka"
}

func (k *KafkaNotifier) Send(ctx context.Context, sig models.ClassifiedSignal, symbol, strategy string) error {
	event := SignalEvent{
		Symbol:           symbol,
		Strategy:         strategy,
		Type:             sig.Type,
		Strength:         sig.Strength,
		Price:            sig.Price,
		StopLoss:         sig.StopLoss,
		TakeProfit:       sig.TakeProfit,
		LongProbability:  sig.LongProbability,
		ShortProbability: sig.ShortProbability,
		RSI:              sig.RSI,
		ATR:              sig.ATR,
		Reason:           sig.Reason,
		EmittedAt:        k.now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: ошибка сериализации: %w", err)
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(symbol), Value: value}); err != nil {
		return fmt.Errorf("kafka: ошибка публикации: %w", err)
	}
	return nil
}

// Close закрывает продюсер
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
