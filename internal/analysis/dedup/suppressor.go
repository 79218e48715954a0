// Package dedup подавляет повторное сохранение и повторную отправку одинаковых сигналов.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/bfsignals/internal/storage"
	"github.com/skalibog/bfsignals/pkg/models"
)

// Candidate новый сигнал, который проверяется на дубликат
type Candidate struct {
	Symbol   string
	Strategy string
	Type     models.SignalType
	Strength models.Strength
	RSI      float64
}

// CandidateFrom собирает кандидата из классифицированного сигнала
func CandidateFrom(sig models.ClassifiedSignal, symbol, strategy string) Candidate {
	return Candidate{
		Symbol:   symbol,
		Strategy: strategy,
		Type:     sig.Type,
		Strength: sig.Strength,
		RSI:      sig.RSI,
	}
}

// Policy окна и RSI-полоса
type Policy struct {
	PersistWindow time.Duration
	StrongWindow  time.Duration
	MediumWindow  time.Duration
	// Для WEAK и неизвестной силы
	DefaultWindow time.Duration
	RSIBand       float64
	RSILow        float64
	RSIHigh       float64
}

// DefaultPolicy 30 минут для сохранения, 90/120/180 минут для отправки, ±5 RSI в зонах <=30 и >=70
func DefaultPolicy() Policy {
	return Policy{
		PersistWindow: 30 * time.Minute,
		StrongWindow:  90 * time.Minute,
		MediumWindow:  120 * time.Minute,
		DefaultWindow: 180 * time.Minute,
		RSIBand:       5,
		RSILow:        30,
		RSIHigh:       70,
	}
}

// DispatchWindow окно подавления отправки для силы сигнала
func (p Policy) DispatchWindow(s models.Strength) time.Duration {
	switch s {
	case models.StrengthStrong:
		return p.StrongWindow
	case models.StrengthMedium:
		return p.MediumWindow
	}
	return p.DefaultWindow
}

// PersistQuery запрос предыдущих сигналов для проверки сохранения
func (p Policy) PersistQuery(c Candidate, now time.Time) storage.SignalQuery {
	return storage.SignalQuery{
		Symbol:       c.Symbol,
		Type:         c.Type,
		CreatedSince: now.Add(-p.PersistWindow),
	}
}

// DispatchQuery запрос предыдущих отправленных сигналов
func (p Policy) DispatchQuery(c Candidate, now time.Time) storage.SignalQuery {
	return storage.SignalQuery{
		Symbol:       c.Symbol,
		Type:         c.Type,
		Strength:     c.Strength,
		Strategy:     c.Strategy,
		SentOnly:     true,
		CreatedSince: now.Add(-p.DispatchWindow(c.Strength)),
	}
}

// PersistDuplicate сообщает, что среди prior есть сигнал того же символа и типа внутри окна сохранения
func (p Policy) PersistDuplicate(c Candidate, prior []models.PersistedSignal, now time.Time) bool {
	q := p.PersistQuery(c, now)
	for _, s := range prior {
		if q.Matches(s) {
			return true
		}
	}
	return false
}

// DispatchDuplicate сообщает, что такой же сигнал уже отправлялся внутри окна.
// Если RSI кандидата в экстремальной зоне, предыдущий сигнал должен иметь RSI в пределах ±RSIBand.
func (p Policy) DispatchDuplicate(c Candidate, prior []models.PersistedSignal, now time.Time) bool {
	q := p.DispatchQuery(c, now)
	extreme := c.RSI <= p.RSILow || c.RSI >= p.RSIHigh
	for _, s := range prior {
		if !q.Matches(s) {
			continue
		}
		if extreme && (s.RSI < c.RSI-p.RSIBand || s.RSI > c.RSI+p.RSIBand) {
			continue
		}
		return true
	}
	return false
}

// Lookup источник предыдущих сигналов
type Lookup interface {
	Query(ctx context.Context, q storage.SignalQuery) ([]models.PersistedSignal, error)
}

// Suppressor применяет политику к хранилищу
type Suppressor struct {
	store  Lookup
	policy Policy
	now    func() time.Time
}

// New создает подавитель дублей
func New(store Lookup, policy Policy) *Suppressor {
	return &Suppressor{store: store, policy: policy, now: time.Now}
}

// AllowPersist true, если сигнал можно сохранить
func (s *Suppressor) AllowPersist(ctx context.Context, c Candidate) (bool, error) {
	now := s.now()
	prior, err := s.store.Query(ctx, s.policy.PersistQuery(c, now))
	if err != nil {
		return false, fmt.Errorf("ошибка проверки дубликата сохранения: %w", err)
	}
	return !s.policy.PersistDuplicate(c, prior, now), nil
}

// AllowDispatch true, если сигнал можно отправить
func (s *Suppressor) AllowDispatch(ctx context.Context, c Candidate) (bool, error) {
	now := s.now()
	prior, err := s.store.Query(ctx, s.policy.DispatchQuery(c, now))
	if err != nil {
		return false, fmt.Errorf("ошибка проверки дубликата отправки: %w", err)
	}
	return !s.policy.DispatchDuplicate(c, prior, now), nil
}
