package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/internal/config"
	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

// OutcomeRecord исход проверки сигнала для журнала
type OutcomeRecord struct {
	Status     models.Status
	ResolvedAt time.Time
	ExitPrice  float64
	Scanned    int
}

// Journal временной ряд сигналов и исходов
type Journal interface {
	RecordSignal(sig models.PersistedSignal)
	RecordOutcome(sig models.PersistedSignal, rec OutcomeRecord)
	// OutcomeCounts количество исходов по статусам за период
	OutcomeCounts(ctx context.Context, since time.Duration) (map[models.Status]int, error)
	Close()
}

// NopJournal журнал, который ничего не пишет
type NopJournal struct{}

func (NopJournal) RecordSignal(models.PersistedSignal) {}

func (NopJournal) RecordOutcome(models.PersistedSignal, OutcomeRecord) {}

func (NopJournal) Close() {}

func (NopJournal) OutcomeCounts(context.Context, time.Duration) (map[models.Status]int, error) {
	return map[models.Status]int{}, nil
}

// InfluxJournal пишет точки signals и signal_outcomes в InfluxDB
type InfluxJournal struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	bucket   string
}

// NewInfluxJournal создает журнал и проверяет соединение
func NewInfluxJournal(ctx context.Context, cfg config.JournalConfig) (*InfluxJournal, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("Ошибка записи в InfluxDB", zap.Error(err))
		}
	}()

	return &InfluxJournal{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: writeAPI,
		bucket:   cfg.Bucket,
	}, nil
}

// RecordSignal пишет сохраненный сигнал
func (j *InfluxJournal) RecordSignal(sig models.PersistedSignal) {
	j.writeAPI.WritePoint(signalPoint(sig))
	j.writeAPI.Flush()
}

// RecordOutcome пишет исход проверки
func (j *InfluxJournal) RecordOutcome(sig models.PersistedSignal, rec OutcomeRecord) {
	j.writeAPI.WritePoint(outcomePoint(sig, rec, time.Now()))
	j.writeAPI.Flush()
}

// OutcomeCounts считает исходы по статусам за период
func (j *InfluxJournal) OutcomeCounts(ctx context.Context, since time.Duration) (map[models.Status]int, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -%ds)
			|> filter(fn: (r) => r._measurement == "signal_outcomes")
			|> filter(fn: (r) => r._field == "signal_id")
			|> group(columns: ["status"])
			|> count()
	`, j.bucket, int64(since.Seconds()))

	result, err := j.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса исходов: %w", err)
	}

	counts := make(map[models.Status]int)
	for result.Next() {
		record := result.Record()
		status, _ := record.ValueByKey("status").(string)
		n, _ := record.Value().(int64)
		counts[models.Status(status)] += int(n)
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}
	return counts, nil
}

// Close сбрасывает буфер и закрывает соединение
func (j *InfluxJournal) Close() {
	j.writeAPI.Flush()
	j.client.Close()
}

func signalPoint(sig models.PersistedSignal) *write.Point {
	fields := map[string]interface{}{
		"signal_id":         sig.ID,
		"price":             sig.Price,
		"rsi":               sig.RSI,
		"atr":               sig.ATR,
		"macd_histogram":    sig.MACDHistogram,
		"long_probability":  sig.LongProbability,
		"short_probability": sig.ShortProbability,
		"sent":              sig.SentToTelegram,
		"flow_id":           sig.FlowID,
	}
	if sig.StopLoss != nil {
		fields["stop_loss"] = *sig.StopLoss
	}
	if sig.TakeProfit != nil {
		fields["take_profit"] = *sig.TakeProfit
	}

	return influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol":   sig.Symbol,
			"type":     string(sig.Type),
			"strength": string(sig.Strength),
			"strategy": sig.Strategy,
		},
		fields,
		sig.CreatedAt,
	)
}

func outcomePoint(sig models.PersistedSignal, rec OutcomeRecord, now time.Time) *write.Point {
	ts := rec.ResolvedAt
	if ts.IsZero() {
		ts = now
	}
	fields := map[string]interface{}{
		"signal_id": sig.ID,
		"scanned":   rec.Scanned,
		"entry":     sig.Price,
	}
	if rec.Status.Final() {
		fields["exit"] = rec.ExitPrice
		fields["hours_to_resolve"] = ts.Sub(sig.DecisionTime()).Hours()
	}

	return influxdb2.NewPoint(
		"signal_outcomes",
		map[string]string{
			"symbol":   sig.Symbol,
			"type":     string(sig.Type),
			"strength": string(sig.Strength),
			"status":   string(rec.Status),
		},
		fields,
		ts,
	)
}
