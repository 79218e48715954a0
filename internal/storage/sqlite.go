package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skalibog/bfsignals/pkg/logger"
	"github.com/skalibog/bfsignals/pkg/models"
)

// Точность хранения цен и индикаторов
const pricePlaces = 8

// SQLiteStore хранилище сигналов в SQLite. Цены хранятся как TEXT с 8 знаками после запятой.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore открывает базу и создает схему
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка создания схемы sqlite: %w", err)
	}

	logger.Info("Открыта база сигналов", zap.String("path", path))
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS crypto_signals (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			flow_id           TEXT    NOT NULL DEFAULT '',
			symbol            TEXT    NOT NULL,
			strategy          TEXT    NOT NULL,
			type              TEXT    NOT NULL,
			strength          TEXT    NOT NULL,
			price             TEXT    NOT NULL,
			ema               TEXT,
			ema_slow          TEXT,
			rsi               TEXT,
			macd              TEXT,
			macd_signal       TEXT,
			macd_histogram    TEXT,
			atr               TEXT,
			stop_loss         TEXT,
			take_profit       TEXT,
			long_score        INTEGER NOT NULL DEFAULT 0,
			short_score       INTEGER NOT NULL DEFAULT 0,
			long_probability  INTEGER NOT NULL DEFAULT 0,
			short_probability INTEGER NOT NULL DEFAULT 0,
			score_diff        INTEGER NOT NULL DEFAULT 0,
			macd_hist_atr     TEXT,
			ema_distance_atr  TEXT,
			atr_pct           TEXT,
			candle_interval   TEXT    NOT NULL,
			candle_limit      INTEGER NOT NULL,
			reason            TEXT,
			sent_to_telegram  INTEGER NOT NULL DEFAULT 0,
			status            TEXT,
			created_at        INTEGER NOT NULL,
			signal_time       INTEGER,
			updated_at        INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_signals_symbol_type_created
			ON crypto_signals (symbol, type, strength, created_at);
		CREATE INDEX IF NOT EXISTS idx_signals_status
			ON crypto_signals (status, signal_time);
		CREATE INDEX IF NOT EXISTS idx_signals_flow
			ON crypto_signals (flow_id);
	`)
	return err
}

const signalColumns = `id, flow_id, symbol, strategy, type, strength, price,
	ema, ema_slow, rsi, macd, macd_signal, macd_histogram, atr, stop_loss, take_profit,
	long_score, short_score, long_probability, short_probability, score_diff,
	macd_hist_atr, ema_distance_atr, atr_pct, candle_interval, candle_limit, reason,
	sent_to_telegram, status, created_at, signal_time`

func (s *SQLiteStore) Create(ctx context.Context, sig *models.PersistedSignal) error {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = s.now().UTC()
	}

	var signalTime sql.NullInt64
	if !sig.SignalTime.IsZero() {
		signalTime = sql.NullInt64{Int64: sig.SignalTime.UnixMilli(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO crypto_signals (
			flow_id, symbol, strategy, type, strength, price,
			ema, ema_slow, rsi, macd, macd_signal, macd_histogram, atr, stop_loss, take_profit,
			long_score, short_score, long_probability, short_probability, score_diff,
			macd_hist_atr, ema_distance_atr, atr_pct, candle_interval, candle_limit, reason,
			sent_to_telegram, status, created_at, signal_time, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.FlowID, sig.Symbol, sig.Strategy, string(sig.Type), string(sig.Strength), formatDecimal(sig.Price),
		formatDecimal(sig.EMAFast), formatDecimal(sig.EMASlow), formatDecimal(sig.RSI),
		formatDecimal(sig.MACD), formatDecimal(sig.MACDSignal), formatDecimal(sig.MACDHistogram),
		formatDecimal(sig.ATR), nullDecimal(sig.StopLoss), nullDecimal(sig.TakeProfit),
		sig.LongScore, sig.ShortScore, sig.LongProbability, sig.ShortProbability, sig.ScoreDiff,
		formatDecimal(sig.MACDHistATR), formatDecimal(sig.EMADistanceATR), formatDecimal(sig.ATRPct),
		sig.Interval, sig.Limit, sig.Reason,
		sig.SentToTelegram, nullStatus(sig.Status), sig.CreatedAt.UnixMilli(), signalTime, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения сигнала: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("ошибка получения id сигнала: %w", err)
	}
	sig.ID = id
	return nil
}

func (s *SQLiteStore) SetSignalTime(ctx context.Context, id int64, t time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crypto_signals SET signal_time = ?, updated_at = ? WHERE id = ? AND signal_time IS NULL`,
		t.UnixMilli(), s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("ошибка установки signal_time: %w", err)
	}
	return s.checkAffected(ctx, res, id, ErrSignalTimeSet)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id int64, status models.Status) error {
	if status == models.StatusNone {
		return ErrStatusReset
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE crypto_signals SET status = ?, updated_at = ?
		WHERE id = ? AND (status IS NULL OR status NOT IN ('DONE', 'MISSED') OR status = ?)`,
		nullStatus(status), s.now().UnixMilli(), id, string(status))
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса: %w", err)
	}
	return s.checkAffected(ctx, res, id, ErrStatusFinal)
}

// checkAffected отличает отсутствующую строку от нарушенного условия обновления
func (s *SQLiteStore) checkAffected(ctx context.Context, res sql.Result, id int64, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка проверки обновления: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM crypto_signals WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("ошибка проверки сигнала: %w", err)
	}
	return conflict
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (models.PersistedSignal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM crypto_signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PersistedSignal{}, ErrNotFound
	}
	return sig, err
}

func (s *SQLiteStore) Query(ctx context.Context, q SignalQuery) ([]models.PersistedSignal, error) {
	var (
		where []string
		args  []any
	)
	if q.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, models.PairSymbol(q.Symbol))
	}
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	if q.Strength != "" {
		where = append(where, "strength = ?")
		args = append(args, string(q.Strength))
	}
	if q.Strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, q.Strategy)
	}
	if q.SentOnly {
		where = append(where, "sent_to_telegram = 1")
	}
	if !q.CreatedSince.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.CreatedSince.UnixMilli())
	}
	if len(q.Statuses) > 0 {
		var parts []string
		for _, st := range q.Statuses {
			if st == models.StatusNone {
				parts = append(parts, "status IS NULL")
				continue
			}
			parts = append(parts, "status = ?")
			args = append(args, string(st))
		}
		where = append(where, "("+strings.Join(parts, " OR ")+")")
	}

	query := `SELECT ` + signalColumns + ` FROM crypto_signals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	return s.querySignals(ctx, query, args...)
}

func (s *SQLiteStore) Pending(ctx context.Context, from, to time.Time) ([]models.PersistedSignal, error) {
	return s.querySignals(ctx, `
		SELECT `+signalColumns+` FROM crypto_signals
		WHERE type IN ('BUY', 'SELL')
			AND stop_loss IS NOT NULL AND take_profit IS NOT NULL
			AND (status IS NULL OR status = 'PROCESSING')
			AND COALESCE(signal_time, created_at) BETWEEN ? AND ?
		ORDER BY created_at ASC, id ASC`,
		from.UnixMilli(), to.UnixMilli())
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COALESCE(status, ''), sent_to_telegram, COUNT(*)
		FROM crypto_signals
		GROUP BY type, status, sent_to_telegram`)
	if err != nil {
		return Stats{}, fmt.Errorf("ошибка получения статистики: %w", err)
	}
	defer rows.Close()

	st := Stats{ByType: map[models.SignalType]int{}, ByStatus: map[models.Status]int{}}
	for rows.Next() {
		var (
			typ, status string
			sent        bool
			n           int
		)
		if err := rows.Scan(&typ, &status, &sent, &n); err != nil {
			return Stats{}, fmt.Errorf("ошибка чтения статистики: %w", err)
		}
		st.Total += n
		if sent {
			st.Sent += n
		}
		st.ByType[models.SignalType(typ)] += n
		st.ByStatus[models.Status(status)] += n
	}
	return st, rows.Err()
}

// Close закрывает соединение с базой данных
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) querySignals(ctx context.Context, query string, args ...any) ([]models.PersistedSignal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки сигналов: %w", err)
	}
	defer rows.Close()

	var out []models.PersistedSignal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(row scanner) (models.PersistedSignal, error) {
	var (
		sig                                                models.PersistedSignal
		typ, strength, price                               string
		ema, emaSlow, rsi, macd, macdSignal, macdHist, atr sql.NullString
		stopLoss, takeProfit, histATR, emaDistATR, atrPct  sql.NullString
		reason, status                                     sql.NullString
		createdAt                                          int64
		signalTime                                         sql.NullInt64
	)
	err := row.Scan(
		&sig.ID, &sig.FlowID, &sig.Symbol, &sig.Strategy, &typ, &strength, &price,
		&ema, &emaSlow, &rsi, &macd, &macdSignal, &macdHist, &atr, &stopLoss, &takeProfit,
		&sig.LongScore, &sig.ShortScore, &sig.LongProbability, &sig.ShortProbability, &sig.ScoreDiff,
		&histATR, &emaDistATR, &atrPct, &sig.Interval, &sig.Limit, &reason,
		&sig.SentToTelegram, &status, &createdAt, &signalTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sig, err
		}
		return sig, fmt.Errorf("ошибка чтения сигнала: %w", err)
	}

	sig.Type = models.SignalType(typ)
	sig.Strength = models.Strength(strength)
	sig.Status = models.Status(status.String)
	sig.Reason = reason.String
	sig.CreatedAt = time.UnixMilli(createdAt).UTC()
	if signalTime.Valid {
		sig.SignalTime = time.UnixMilli(signalTime.Int64).UTC()
	}

	sig.Price = parseDecimal(sql.NullString{String: price, Valid: true})
	sig.EMAFast = parseDecimal(ema)
	sig.EMASlow = parseDecimal(emaSlow)
	sig.RSI = parseDecimal(rsi)
	sig.MACD = parseDecimal(macd)
	sig.MACDSignal = parseDecimal(macdSignal)
	sig.MACDHistogram = parseDecimal(macdHist)
	sig.ATR = parseDecimal(atr)
	sig.MACDHistATR = parseDecimal(histATR)
	sig.EMADistanceATR = parseDecimal(emaDistATR)
	sig.ATRPct = parseDecimal(atrPct)
	if stopLoss.Valid {
		v := parseDecimal(stopLoss)
		sig.StopLoss = &v
	}
	if takeProfit.Valid {
		v := parseDecimal(takeProfit)
		sig.TakeProfit = &v
	}
	return sig, nil
}

// formatDecimal пишет NaN и ±Inf как 0
func formatDecimal(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return decimal.NewFromFloat(v).Round(pricePlaces).String()
}

func nullDecimal(v *float64) sql.NullString {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDecimal(*v), Valid: true}
}

func parseDecimal(s sql.NullString) float64 {
	if !s.Valid || s.String == "" {
		return 0
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		logger.Warn("Неверное десятичное значение в базе", zap.String("value", s.String), zap.Error(err))
		return 0
	}
	f, _ := d.Float64()
	return f
}

func nullStatus(st models.Status) sql.NullString {
	if st == models.StatusNone {
		return sql.NullString{}
	}
	return sql.NullString{String: string(st), Valid: true}
}
