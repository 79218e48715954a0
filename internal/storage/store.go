// Package storage хранит сигналы и их исходы.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/skalibog/bfsignals/pkg/models"
)

var (
	// ErrNotFound сигнал не найден
	ErrNotFound = errors.New("сигнал не найден")
	// ErrStatusFinal попытка изменить терминальный статус
	ErrStatusFinal = errors.New("статус сигнала уже финальный")
	// ErrStatusReset попытка сбросить статус в пустой
	ErrStatusReset = errors.New("статус сигнала нельзя сбросить")
	// ErrSignalTimeSet signal_time уже установлен
	ErrSignalTimeSet = errors.New("signal_time уже установлен")
)

// SignalQuery фильтр выборки. Нулевые поля не ограничивают выборку.
type SignalQuery struct {
	Symbol       string
	Type         models.SignalType
	Strength     models.Strength
	Strategy     string
	SentOnly     bool
	CreatedSince time.Time
	// StatusNone в списке выбирает сигналы без статуса
	Statuses []models.Status
	Limit    int
}

// Matches проверяет сигнал на соответствие фильтру (без учета Limit)
func (q SignalQuery) Matches(s models.PersistedSignal) bool {
	if q.Symbol != "" && !models.SameAsset(q.Symbol, s.Symbol) {
		return false
	}
	if q.Type != "" && q.Type != s.Type {
		return false
	}
	if q.Strength != "" && q.Strength != s.Strength {
		return false
	}
	if q.Strategy != "" && q.Strategy != s.Strategy {
		return false
	}
	if q.SentOnly && !s.SentToTelegram {
		return false
	}
	if !q.CreatedSince.IsZero() && s.CreatedAt.Before(q.CreatedSince) {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, st := range q.Statuses {
			if st == s.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Stats агрегаты по сохраненным сигналам
type Stats struct {
	Total    int                       `json:"total"`
	Sent     int                       `json:"sent"`
	ByType   map[models.SignalType]int `json:"by_type"`
	ByStatus map[models.Status]int     `json:"by_status"`
}

// WinRate доля DONE среди завершенных сигналов в процентах
func (s Stats) WinRate() float64 {
	done, missed := s.ByStatus[models.StatusDone], s.ByStatus[models.StatusMissed]
	if done+missed == 0 {
		return 0
	}
	return float64(done) / float64(done+missed) * 100
}

// SignalStore хранилище сигналов
type SignalStore interface {
	// Create сохраняет сигнал, заполняет ID и CreatedAt (если не задан)
	Create(ctx context.Context, s *models.PersistedSignal) error
	// SetSignalTime устанавливает signal_time один раз
	SetSignalTime(ctx context.Context, id int64, t time.Time) error
	// UpdateStatus меняет статус. Терминальный статус не меняется.
	UpdateStatus(ctx context.Context, id int64, status models.Status) error
	Get(ctx context.Context, id int64) (models.PersistedSignal, error)
	// Query возвращает сигналы от новых к старым
	Query(ctx context.Context, q SignalQuery) ([]models.PersistedSignal, error)
	// Pending возвращает BUY/SELL сигналы с уровнями, без статуса или в PROCESSING,
	// у которых момент решения попадает в [from, to]
	Pending(ctx context.Context, from, to time.Time) ([]models.PersistedSignal, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// isPending общий предикат для Pending
func isPending(s models.PersistedSignal, from, to time.Time) bool {
	if !s.Type.Directional() || !s.HasLevels() {
		return false
	}
	if s.Status != models.StatusNone && s.Status != models.StatusProcessing {
		return false
	}
	t := s.DecisionTime()
	return !t.Before(from) && !t.After(to)
}

// checkTransition проверяет допустимость смены статуса
func checkTransition(current, next models.Status) error {
	if next == models.StatusNone {
		return ErrStatusReset
	}
	if current.Final() && current != next {
		return ErrStatusFinal
	}
	return nil
}
